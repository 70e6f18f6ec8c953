package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"roomsplit/internal/amqp"
	"roomsplit/internal/core"
	"roomsplit/internal/metrics"
)

type fakeMirror struct {
	rows []string
	err  error
}

func (f *fakeMirror) AppendExpense(_ context.Context, e core.Expense) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, e.ID)
	return nil
}

func (f *fakeMirror) DeleteExpense(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	for i, r := range f.rows {
		if r == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeMirror) Clear(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.rows = nil
	return nil
}

func record(id string) core.Expense {
	return core.Expense{ID: id, Item: "x", Amount: core.Money{Cents: 100}, Payer: "A", Date: time.Now()}
}

func TestMirrorWorkerHandleEvent(t *testing.T) {
	ctx := context.Background()
	mirror := &fakeMirror{}
	m := metrics.New()
	w := NewMirrorWorker(mirror, m, nil)

	for _, ev := range []amqp.ExpenseEvent{
		amqp.NewCreatedEvent(record("a")),
		amqp.NewCreatedEvent(record("b")),
		amqp.NewDeletedEvent(record("a")),
	} {
		if err := w.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("HandleEvent(%s): %v", ev.Type, err)
		}
	}
	if len(mirror.rows) != 1 || mirror.rows[0] != "b" {
		t.Fatalf("unexpected mirror rows %v", mirror.rows)
	}

	if err := w.HandleEvent(ctx, amqp.NewResetEvent()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(mirror.rows) != 0 {
		t.Fatalf("mirror should be empty, got %v", mirror.rows)
	}

	if got := testutil.ToFloat64(m.EventsConsumed.WithLabelValues(string(amqp.EventExpenseCreated), "ok")); got != 2 {
		t.Fatalf("consumed counter = %v, want 2", got)
	}
}

func TestMirrorWorkerErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("sheets unavailable")
	w := NewMirrorWorker(&fakeMirror{err: boom}, nil, nil)

	if err := w.HandleEvent(ctx, amqp.NewCreatedEvent(record("a"))); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped mirror error, got %v", err)
	}
	if err := w.HandleEvent(ctx, amqp.ExpenseEvent{Type: "expense.renamed"}); err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if err := w.HandleEvent(ctx, amqp.ExpenseEvent{Type: amqp.EventExpenseCreated, ID: "x"}); err == nil {
		t.Fatal("expected error for created event without payload")
	}
}
