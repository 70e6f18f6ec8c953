package settlement

import (
	"sort"

	"github.com/shopspring/decimal"

	"roomsplit/internal/core"
)

type position struct {
	name   string
	amount int64 // owed for debtors, due for creditors
}

// Shares splits total into one equal share per roster member, in cents.
// The remainder of the division goes one cent each to the first members in
// roster order, so the shares always add up to total.
func Shares(total core.Money, roster core.Roster) map[string]core.Money {
	names := roster.Names()
	n := int64(len(names))
	shares := make(map[string]core.Money, n)
	if n == 0 {
		return shares
	}
	base, rem := total.Cents/n, total.Cents%n
	for i, name := range names {
		c := base
		if int64(i) < rem {
			c++
		}
		shares[name] = core.Money{Cents: c}
	}
	return shares
}

// Settle computes every participant's balance against an equal share of the
// total and the transfers that bring all balances to zero.
//
// Debtors and creditors are matched greedily, largest first, with roster
// order breaking ties. This is deterministic and fast but does not always
// reach the theoretical minimum number of transfers.
func Settle(totals core.PeriodTotals, roster core.Roster) (core.Settlement, error) {
	n := roster.Len()
	if n == 0 {
		return core.Settlement{}, core.ErrEmptyRoster
	}

	names := roster.Names()
	var total core.Money
	for _, name := range names {
		paid := totals.PerParticipant[name]
		if paid.Cents < 0 {
			return core.Settlement{}, core.ErrInvalidAmount
		}
		var err error
		if total, err = total.CheckedAdd(paid); err != nil {
			return core.Settlement{}, err
		}
	}
	// Totals built by hand may omit members or disagree with Total; the
	// balances are always derived from what each member actually paid.
	shares := Shares(total, roster)

	balances := make(map[string]core.Money, n)
	var debtors, creditors []position
	for _, name := range names {
		b := totals.PerParticipant[name].Sub(shares[name])
		balances[name] = b
		switch {
		case b.Cents < 0:
			debtors = append(debtors, position{name: name, amount: -b.Cents})
		case b.Cents > 0:
			creditors = append(creditors, position{name: name, amount: b.Cents})
		}
	}

	sort.SliceStable(debtors, func(i, j int) bool { return debtors[i].amount > debtors[j].amount })
	sort.SliceStable(creditors, func(i, j int) bool { return creditors[i].amount > creditors[j].amount })

	transfers := make([]core.Transfer, 0, len(debtors)+len(creditors))
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		d, c := &debtors[i], &creditors[j]
		amount := min(d.amount, c.amount)
		if amount > 0 {
			transfers = append(transfers, core.Transfer{From: d.name, To: c.name, Amount: core.Money{Cents: amount}})
		}
		d.amount -= amount
		c.amount -= amount
		if d.amount == 0 {
			i++
		}
		if c.amount == 0 {
			j++
		}
	}

	for _, p := range debtors {
		if p.amount != 0 {
			return core.Settlement{}, core.ErrUnsettled
		}
	}
	for _, p := range creditors {
		if p.amount != 0 {
			return core.Settlement{}, core.ErrUnsettled
		}
	}

	average := total.Decimal().Div(decimal.NewFromInt(int64(n))).Round(2)
	return core.Settlement{Average: average, Balances: balances, Transfers: transfers}, nil
}
