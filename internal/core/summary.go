package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodTotals is what each participant spent over a reporting window.
// PerParticipant holds an entry for every roster member and sums to Total.
type PeriodTotals struct {
	Total          Money
	PerParticipant map[string]Money
}

// Sum adds up the per-participant amounts.
func (t PeriodTotals) Sum() Money {
	var sum Money
	for _, m := range t.PerParticipant {
		sum = sum.Add(m)
	}
	return sum
}

// Transfer is a recommended payment from a debtor to a creditor.
type Transfer struct {
	From   string
	To     string
	Amount Money
}

// Settlement is the solver output for one set of totals.
type Settlement struct {
	// Average is the exact equal share, rounded to cents for display.
	Average decimal.Decimal
	// Balances is positive for creditors, negative for debtors.
	Balances  map[string]Money
	Transfers []Transfer
}

// Statistics is the full report for one reporting window.
type Statistics struct {
	Label      string
	From       time.Time
	To         time.Time
	Totals     PeriodTotals
	Settlement Settlement
}
