package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"roomsplit/internal/cache"
	"roomsplit/internal/core"
	"roomsplit/internal/settlement"
	"roomsplit/internal/store/memory"
)

type countingReader struct {
	*memory.Store
	calls atomic.Int32
}

func (r *countingReader) ListBetween(ctx context.Context, from, to time.Time) ([]core.Expense, error) {
	r.calls.Add(1)
	return r.Store.ListBetween(ctx, from, to)
}

func rec(id, payer string, cents int64, date time.Time) core.Expense {
	return core.Expense{ID: id, Item: "item", Payer: payer, Amount: core.Money{Cents: cents}, Date: date}
}

func TestStatisticsService_Month(t *testing.T) {
	roster := testRoster(t)
	oct := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	st := memory.New(
		rec("1", "Umakanta", 9000, oct),
		rec("2", "Vikram", 6000, oct),
		rec("3", "Somanath", 3000, time.Date(2026, 10, 31, 22, 0, 0, 0, time.UTC)),
		rec("4", "Vikram", 99999, time.Date(2026, 9, 30, 23, 0, 0, 0, time.UTC)),
	)
	svc := NewStatisticsService(st, roster, time.UTC, WithStatisticsClock(func() time.Time { return testNow }))

	stats, err := svc.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if stats.Label != "October 2026" {
		t.Fatalf("Label = %q", stats.Label)
	}
	if stats.Totals.Total.Cents != 18000 {
		t.Fatalf("Total = %d, want 18000", stats.Totals.Total.Cents)
	}
	want := []core.Transfer{{From: "Somanath", To: "Umakanta", Amount: core.Money{Cents: 3000}}}
	if len(stats.Settlement.Transfers) != 1 || stats.Settlement.Transfers[0] != want[0] {
		t.Fatalf("transfers = %+v, want %+v", stats.Settlement.Transfers, want)
	}
	if stats.Settlement.Balances["Vikram"].Cents != 0 {
		t.Fatalf("Vikram should be settled, got %v", stats.Settlement.Balances["Vikram"])
	}

	sep, err := svc.Month(context.Background(), time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Month(September): %v", err)
	}
	if sep.Totals.Total.Cents != 99999 || sep.Label != "September 2026" {
		t.Fatalf("unexpected September stats %+v", sep)
	}
}

func TestStatisticsService_EmptyMonth(t *testing.T) {
	svc := NewStatisticsService(memory.New(), testRoster(t), time.UTC)
	stats, err := svc.Month(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	if !stats.Totals.Total.IsZero() || len(stats.Settlement.Transfers) != 0 || len(stats.Totals.PerParticipant) != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStatisticsService_CacheAndInvalidate(t *testing.T) {
	ctx := context.Background()
	reader := &countingReader{Store: memory.New(rec("1", "Vikram", 300, testNow))}
	svc := NewStatisticsService(reader, testRoster(t), time.UTC,
		WithCache(cache.NewLRUCache[core.Statistics](12, time.Minute)))

	for i := 0; i < 3; i++ {
		if _, err := svc.Month(ctx, testNow); err != nil {
			t.Fatalf("Month: %v", err)
		}
	}
	if got := reader.calls.Load(); got != 1 {
		t.Fatalf("reader calls = %d, want 1", got)
	}

	if _, err := reader.Append(ctx, rec("2", "Umakanta", 300, testNow)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	svc.Invalidate(testNow)
	stats, err := svc.Month(ctx, testNow)
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	if stats.Totals.Total.Cents != 600 || reader.calls.Load() != 2 {
		t.Fatalf("stale stats after invalidate: total=%d calls=%d", stats.Totals.Total.Cents, reader.calls.Load())
	}

	svc.InvalidateAll()
	if _, err := svc.Month(ctx, testNow); err != nil {
		t.Fatalf("Month: %v", err)
	}
	if reader.calls.Load() != 3 {
		t.Fatalf("reader calls = %d, want 3", reader.calls.Load())
	}
}

// writeOnFill runs a write when the first report is about to be cached, then
// gives it a moment to finish before the report is stored.
type writeOnFill struct {
	cache.Cache[core.Statistics]
	once  sync.Once
	write func()
	done  chan struct{}
}

func (c *writeOnFill) Set(key string, st core.Statistics) {
	c.once.Do(func() {
		go func() {
			defer close(c.done)
			c.write()
		}()
		select {
		case <-c.done:
		case <-time.After(100 * time.Millisecond):
		}
	})
	c.Cache.Set(key, st)
}

func TestStatisticsService_WriteDuringFillIsNotCached(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	hook := &writeOnFill{Cache: cache.NewLRUCache[core.Statistics](12, time.Hour), done: make(chan struct{})}
	stats := NewStatisticsService(st, testRoster(t), time.UTC,
		WithCache(hook), WithStatisticsClock(func() time.Time { return testNow }))
	expenses := NewExpenseService(st, testRoster(t),
		WithInvalidator(stats),
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC))

	hook.write = func() {
		if _, err := expenses.Create(ctx, core.ExpenseInput{Item: "Rent", Price: "300.00", Person: "Vikram"}); err != nil {
			t.Errorf("Create: %v", err)
		}
	}

	first, err := stats.Current(ctx)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !first.Totals.Total.IsZero() {
		t.Fatalf("first report should predate the write, got %v", first.Totals.Total)
	}
	<-hook.done

	second, err := stats.Current(ctx)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if second.Totals.Total.Cents != 30000 {
		t.Fatalf("stale report served after write: total=%v", second.Totals.Total)
	}
}

func TestStatisticsService_IntegrityError(t *testing.T) {
	st := memory.New(rec("bad", "Mallory", 100, testNow))
	svc := NewStatisticsService(st, testRoster(t), time.UTC)

	_, err := svc.Month(context.Background(), testNow)
	var ie *settlement.IntegrityError
	if !errors.As(err, &ie) || ie.ExpenseID != "bad" {
		t.Fatalf("expected IntegrityError for record bad, got %v", err)
	}
	if !errors.Is(err, core.ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}
}
