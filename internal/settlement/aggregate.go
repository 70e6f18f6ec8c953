// Package settlement computes per-participant totals for a reporting window
// and the transfers that even them out.
package settlement

import (
	"roomsplit/internal/core"
)

// Aggregate folds the records that fall within window into per-participant
// totals. A nil window includes every record. Every roster member appears in
// the result, with zero when they paid nothing.
//
// A record paid by someone outside the roster, carrying a negative amount,
// or pushing a sum past the int64 range aborts the aggregation with an
// *IntegrityError.
func Aggregate(records []core.Expense, roster core.Roster, window *Window) (core.PeriodTotals, error) {
	if roster.Len() == 0 {
		return core.PeriodTotals{}, core.ErrEmptyRoster
	}

	per := make(map[string]core.Money, roster.Len())
	for _, name := range roster.Names() {
		per[name] = core.Money{}
	}

	var total core.Money
	for _, r := range records {
		if window != nil && !window.Contains(r.Date) {
			continue
		}
		if !roster.Contains(r.Payer) {
			return core.PeriodTotals{}, &IntegrityError{ExpenseID: r.ID, Payer: r.Payer, Err: core.ErrUnknownParticipant}
		}
		if r.Amount.Cents < 0 {
			return core.PeriodTotals{}, &IntegrityError{ExpenseID: r.ID, Payer: r.Payer, Err: core.ErrInvalidAmount}
		}
		paid, err := per[r.Payer].CheckedAdd(r.Amount)
		if err != nil {
			return core.PeriodTotals{}, &IntegrityError{ExpenseID: r.ID, Payer: r.Payer, Err: err}
		}
		if total, err = total.CheckedAdd(r.Amount); err != nil {
			return core.PeriodTotals{}, &IntegrityError{ExpenseID: r.ID, Payer: r.Payer, Err: err}
		}
		per[r.Payer] = paid
	}

	return core.PeriodTotals{Total: total, PerParticipant: per}, nil
}
