// Package storage is the SQLite implementation of the expense store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"roomsplit/internal/core"
	"roomsplit/internal/store"

	_ "modernc.org/sqlite"
)

const expenseColumns = `id, item, amount_cents, payer, occurred_at, note, created_at`

type SQLiteRepository struct {
	db  *sql.DB
	loc *time.Location
}

// Option configures a SQLiteRepository.
type Option func(*SQLiteRepository)

// WithLocation sets the location dates are returned in. Defaults to
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(r *SQLiteRepository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db, loc: time.Local}
	for _, opt := range opts {
		opt(repo)
	}

	slog.Info("SQLite store ready", "path", dbPath, "schema_version", version)
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Append implements store.ExpenseWriter
func (r *SQLiteRepository) Append(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Item, e.Amount.Cents, e.Payer, e.Date.UnixMilli(), e.Note, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"amount_cents", e.Amount.Cents,
		"payer", e.Payer)

	// Round-trip precision matches what a later read returns.
	e.Date = time.UnixMilli(e.Date.UnixMilli()).In(r.loc)
	e.CreatedAt = time.UnixMilli(e.CreatedAt.UnixMilli()).In(r.loc)
	return e, nil
}

// Delete implements store.ExpenseWriter
func (r *SQLiteRepository) Delete(ctx context.Context, id string) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := r.scan(row)
	if err != nil {
		return core.Expense{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id); err != nil {
		return core.Expense{}, fmt.Errorf("delete expense %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit delete: %w", err)
	}
	return e, nil
}

// Reset implements store.ExpenseWriter
func (r *SQLiteRepository) Reset(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses`)
	if err != nil {
		return 0, fmt.Errorf("reset expenses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset expenses: %w", err)
	}
	slog.InfoContext(ctx, "Expenses reset", "deleted", n)
	return n, nil
}

// Get implements store.ExpenseReader
func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	return r.scan(row)
}

// List implements store.ExpenseReader
func (r *SQLiteRepository) List(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses ORDER BY occurred_at DESC, created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return r.collect(rows)
}

// ListBetween implements store.ExpenseReader
func (r *SQLiteRepository) ListBetween(ctx context.Context, from, to time.Time) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE occurred_at >= ? AND occurred_at <= ?
		 ORDER BY occurred_at DESC, created_at DESC, rowid DESC`,
		from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list expenses between %s and %s: %w",
			from.Format(time.DateOnly), to.Format(time.DateOnly), err)
	}
	return r.collect(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scan(s scanner) (core.Expense, error) {
	var (
		e                   core.Expense
		occurred, createdAt int64
	)
	err := s.Scan(&e.ID, &e.Item, &e.Amount.Cents, &e.Payer, &occurred, &e.Note, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, store.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}
	e.Date = time.UnixMilli(occurred).In(r.loc)
	e.CreatedAt = time.UnixMilli(createdAt).In(r.loc)
	return e, nil
}

func (r *SQLiteRepository) collect(rows *sql.Rows) ([]core.Expense, error) {
	defer rows.Close()
	var out []core.Expense
	for rows.Next() {
		e, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

var _ store.ExpenseStore = (*SQLiteRepository)(nil)
