// Package store declares the ports of the expense record store.
package store

import (
	"context"
	"errors"
	"time"

	"roomsplit/internal/core"
)

// ErrNotFound is returned when no record has the requested ID.
var ErrNotFound = errors.New("expense not found")

// Ports for outbound adapters.
type (
	ExpenseWriter interface {
		// Append stores e and returns the stored record.
		Append(ctx context.Context, e core.Expense) (core.Expense, error)
		// Delete removes the record with the given ID and returns it.
		Delete(ctx context.Context, id string) (core.Expense, error)
		// Reset removes every record and reports how many were removed.
		Reset(ctx context.Context) (int64, error)
	}

	ExpenseReader interface {
		Get(ctx context.Context, id string) (core.Expense, error)
		// List returns all records, newest date first.
		List(ctx context.Context) ([]core.Expense, error)
		// ListBetween returns records dated within [from, to], newest first.
		ListBetween(ctx context.Context, from, to time.Time) ([]core.Expense, error)
	}

	ExpenseStore interface {
		ExpenseWriter
		ExpenseReader
		Ping(ctx context.Context) error
	}
)
