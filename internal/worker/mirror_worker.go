// Package worker applies expense events to external mirrors.
package worker

import (
	"context"
	"fmt"

	"roomsplit/internal/amqp"
	"roomsplit/internal/core"
	"roomsplit/internal/log"
	"roomsplit/internal/metrics"
)

// Mirror is a copy of the expense records kept outside the store.
type Mirror interface {
	AppendExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// MirrorWorker keeps a Mirror in step with the expense events.
type MirrorWorker struct {
	mirror  Mirror
	metrics *metrics.Metrics
	logger  *log.Logger
}

func NewMirrorWorker(mirror Mirror, m *metrics.Metrics, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &MirrorWorker{
		mirror:  mirror,
		metrics: m,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent applies one event. It has the amqp.Handler signature.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev amqp.ExpenseEvent) error {
	err := w.apply(ctx, ev)
	if w.metrics != nil {
		w.metrics.EventsConsumed.WithLabelValues(string(ev.Type), metrics.Outcome(err)).Inc()
	}
	if err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "Mirror updated",
		log.FieldEventType, ev.Type,
		log.FieldExpenseID, ev.ID,
		log.FieldOperation, log.OpMirror)
	return nil
}

func (w *MirrorWorker) apply(ctx context.Context, ev amqp.ExpenseEvent) error {
	switch ev.Type {
	case amqp.EventExpenseCreated:
		if ev.Expense == nil {
			return fmt.Errorf("%s event %s without expense", ev.Type, ev.ID)
		}
		if err := w.mirror.AppendExpense(ctx, ev.Expense.Record()); err != nil {
			return fmt.Errorf("mirror append %s: %w", ev.ID, err)
		}
	case amqp.EventExpenseDeleted:
		if err := w.mirror.DeleteExpense(ctx, ev.ID); err != nil {
			return fmt.Errorf("mirror delete %s: %w", ev.ID, err)
		}
	case amqp.EventExpensesReset:
		if err := w.mirror.Clear(ctx); err != nil {
			return fmt.Errorf("mirror clear: %w", err)
		}
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}
