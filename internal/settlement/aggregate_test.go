package settlement

import (
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"roomsplit/internal/core"
)

func expense(id, payer string, cents int64, date time.Time) core.Expense {
	return core.Expense{ID: id, Item: "item " + id, Payer: payer, Amount: core.Money{Cents: cents}, Date: date}
}

func TestAggregate(t *testing.T) {
	r := roster(t, "A", "B", "C")
	oct := time.Date(2026, 10, 10, 12, 0, 0, 0, time.UTC)
	records := []core.Expense{
		expense("1", "A", 1000, oct),
		expense("2", "A", 250, oct),
		expense("3", "B", 99, oct),
	}

	got, err := Aggregate(records, r, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got.Total.Cents != 1349 {
		t.Fatalf("total = %d, want 1349", got.Total.Cents)
	}
	want := map[string]core.Money{"A": {Cents: 1250}, "B": {Cents: 99}, "C": {}}
	if !reflect.DeepEqual(got.PerParticipant, want) {
		t.Fatalf("per participant = %+v, want %+v", got.PerParticipant, want)
	}
}

func TestAggregateEmpty(t *testing.T) {
	r := roster(t, "A", "B")
	got, err := Aggregate(nil, r, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !got.Total.IsZero() || len(got.PerParticipant) != 2 {
		t.Fatalf("unexpected totals %+v", got)
	}
}

func TestAggregateWindowIsInclusive(t *testing.T) {
	r := roster(t, "A")
	w := MonthWindow(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
	records := []core.Expense{
		expense("first", "A", 1, w.From),
		expense("last", "A", 10, w.To),
		expense("before", "A", 100, w.From.Add(-time.Nanosecond)),
		expense("after", "A", 1000, w.To.Add(time.Nanosecond)),
		expense("lastday", "A", 10000, time.Date(2026, 10, 31, 23, 30, 0, 0, time.UTC)),
	}
	got, err := Aggregate(records, r, &w)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got.Total.Cents != 10011 {
		t.Fatalf("total = %d, want 10011", got.Total.Cents)
	}
}

func TestAggregateIntegrityErrors(t *testing.T) {
	r := roster(t, "A", "B")
	now := time.Now()

	_, err := Aggregate([]core.Expense{expense("1", "A", 5, now), expense("2", "Mallory", 5, now)}, r, nil)
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if ie.ExpenseID != "2" || ie.Payer != "Mallory" || !errors.Is(err, core.ErrUnknownParticipant) {
		t.Fatalf("unexpected error %+v", ie)
	}

	_, err = Aggregate([]core.Expense{expense("3", "B", -1, now)}, r, nil)
	if !errors.As(err, &ie) || !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected negative amount integrity error, got %v", err)
	}

	// Out-of-window records are not inspected.
	w := MonthWindow(now)
	old := expense("4", "Mallory", 5, w.From.AddDate(0, -1, 0))
	if _, err := Aggregate([]core.Expense{old}, r, &w); err != nil {
		t.Fatalf("expected out-of-window record to be skipped, got %v", err)
	}

	if _, err := Aggregate(nil, core.Roster{}, nil); !errors.Is(err, core.ErrEmptyRoster) {
		t.Fatalf("expected ErrEmptyRoster, got %v", err)
	}
}

func TestAggregateOverflow(t *testing.T) {
	r := roster(t, "A", "B")
	now := time.Now()
	big := int64(math.MaxInt64/2 + 1)

	cases := map[string][]core.Expense{
		"same payer":      {expense("1", "A", big, now), expense("2", "A", big, now)},
		"different payer": {expense("1", "A", big, now), expense("2", "B", big, now)},
	}
	for name, records := range cases {
		t.Run(name, func(t *testing.T) {
			totals, err := Aggregate(records, r, nil)
			var ie *IntegrityError
			if !errors.As(err, &ie) || ie.ExpenseID != "2" || !errors.Is(err, core.ErrAmountOverflow) {
				t.Fatalf("expected overflow on record 2, got %v", err)
			}
			if totals.PerParticipant != nil || !totals.Total.IsZero() {
				t.Fatalf("partial totals returned: %+v", totals)
			}
		})
	}
}

func TestAggregateNoDrift(t *testing.T) {
	r := roster(t, "A", "B", "C")
	names := r.Names()
	records := make([]core.Expense, 10000)
	for i := range records {
		cents, err := core.ParseDecimalToCents("0.10")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		records[i] = core.Expense{ID: "x", Payer: names[i%3], Amount: core.Money{Cents: cents}}
	}
	got, err := Aggregate(records, r, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got.Total.String() != "1000.00" {
		t.Fatalf("total = %s, want 1000.00", got.Total)
	}
	s, err := Settle(got, r)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	// A paid 3334 records and B, C 3333 each; A also absorbs the leftover
	// cent of the equal split.
	want := []core.Transfer{tr("B", "A", 3), tr("C", "A", 3)}
	if !reflect.DeepEqual(s.Transfers, want) {
		t.Fatalf("transfers = %+v, want %+v", s.Transfers, want)
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	r := roster(t, "A", "B", "C")
	names := r.Names()
	rng := rand.New(rand.NewPCG(7, 7))
	records := make([]core.Expense, 300)
	for i := range records {
		records[i] = core.Expense{ID: "r", Payer: names[rng.IntN(3)], Amount: core.Money{Cents: rng.Int64N(5000)}}
	}
	first, err := Aggregate(records, r, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	rng.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
	second, err := Aggregate(records, r, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("aggregate depends on record order: %+v vs %+v", first, second)
	}
}
