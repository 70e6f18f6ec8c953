// Package services holds the application services sitting between the
// transports and the expense store.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomsplit/internal/amqp"
	"roomsplit/internal/core"
	"roomsplit/internal/log"
	"roomsplit/internal/metrics"
	"roomsplit/internal/store"
)

// Publisher sends expense events to other processes.
type Publisher interface {
	Publish(ctx context.Context, ev amqp.ExpenseEvent) error
}

// Invalidator drops derived data affected by a write.
type Invalidator interface {
	Invalidate(month time.Time)
	InvalidateAll()
}

// ExpenseService is the only writer of expense records. Writes are
// serialized; each successful write is published and invalidates the
// cached statistics it affects.
type ExpenseService struct {
	mu sync.Mutex

	store       store.ExpenseStore
	roster      core.Roster
	loc         *time.Location
	publisher   Publisher
	invalidator Invalidator
	metrics     *metrics.Metrics
	logger      *log.Logger
	now         func() time.Time
	newID       func() string
}

// ExpenseOption configures an ExpenseService.
type ExpenseOption func(*ExpenseService)

func WithPublisher(p Publisher) ExpenseOption {
	return func(s *ExpenseService) { s.publisher = p }
}

func WithInvalidator(inv Invalidator) ExpenseOption {
	return func(s *ExpenseService) { s.invalidator = inv }
}

func WithExpenseMetrics(m *metrics.Metrics) ExpenseOption {
	return func(s *ExpenseService) { s.metrics = m }
}

func WithExpenseLogger(l *log.Logger) ExpenseOption {
	return func(s *ExpenseService) { s.logger = l.WithComponent(log.ComponentExpense) }
}

// WithLocation sets the zone date-only input is interpreted in.
func WithLocation(loc *time.Location) ExpenseOption {
	return func(s *ExpenseService) { s.loc = loc }
}

func WithClock(now func() time.Time) ExpenseOption {
	return func(s *ExpenseService) { s.now = now }
}

func WithIDGenerator(gen func() string) ExpenseOption {
	return func(s *ExpenseService) { s.newID = gen }
}

func NewExpenseService(st store.ExpenseStore, roster core.Roster, opts ...ExpenseOption) *ExpenseService {
	s := &ExpenseService{
		store:  st,
		roster: roster,
		loc:    time.Local,
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentExpense),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Roster returns the configured participants.
func (s *ExpenseService) Roster() core.Roster { return s.roster }

// Create validates in, stores the new record and returns it.
func (s *ExpenseService) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	now := s.now().In(s.loc)
	e, err := core.NewExpense(in, s.roster, now)
	if err != nil {
		s.count(log.OpValidate, err)
		return core.Expense{}, err
	}
	e.ID = s.newID()
	e.CreatedAt = now

	s.mu.Lock()
	saved, err := s.store.Append(ctx, e)
	s.mu.Unlock()
	s.count(log.OpCreate, err)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	log.NewStructuredLogger(s.logger).LogExpenseCreated(ctx, saved.ID, saved.Item, saved.Payer, saved.Amount.Cents)

	s.publish(ctx, amqp.NewCreatedEvent(saved))
	if s.invalidator != nil {
		s.invalidator.Invalidate(saved.Date)
	}
	return saved, nil
}

// Delete removes a record. Unknown IDs yield store.ErrNotFound.
func (s *ExpenseService) Delete(ctx context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	removed, err := s.store.Delete(ctx, id)
	s.mu.Unlock()
	s.count(log.OpDelete, err)
	if err != nil {
		return core.Expense{}, fmt.Errorf("delete expense %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "Expense deleted",
		log.FieldExpenseID, removed.ID,
		log.FieldAmountCents, removed.Amount.Cents)

	s.publish(ctx, amqp.NewDeletedEvent(removed))
	if s.invalidator != nil {
		s.invalidator.Invalidate(removed.Date)
	}
	return removed, nil
}

// Reset deletes every record and reports how many were removed.
func (s *ExpenseService) Reset(ctx context.Context) (int64, error) {
	s.mu.Lock()
	n, err := s.store.Reset(ctx)
	s.mu.Unlock()
	s.count(log.OpReset, err)
	if err != nil {
		return 0, fmt.Errorf("reset expenses: %w", err)
	}

	s.logger.WarnContext(ctx, "All expenses reset", log.FieldCount, n)

	s.publish(ctx, amqp.NewResetEvent())
	if s.invalidator != nil {
		s.invalidator.InvalidateAll()
	}
	return n, nil
}

// List returns every record, newest date first.
func (s *ExpenseService) List(ctx context.Context) ([]core.Expense, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return items, nil
}

// publish is best effort: the record is already stored.
func (s *ExpenseService) publish(ctx context.Context, ev amqp.ExpenseEvent) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, ev)
	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(string(ev.Type), metrics.Outcome(err)).Inc()
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			log.FieldEventType, ev.Type,
			log.FieldExpenseID, ev.ID,
			log.FieldError, err)
	}
}

func (s *ExpenseService) count(op string, err error) {
	if s.metrics != nil {
		s.metrics.ExpenseOps.WithLabelValues(op, metrics.Outcome(err)).Inc()
	}
}
