package settlement

import (
	"fmt"

	"roomsplit/internal/core"
)

// IntegrityError reports a stored record that cannot be aggregated, such as
// one paid by someone outside the roster. It wraps the matching core
// sentinel so callers can use errors.Is.
type IntegrityError struct {
	ExpenseID string
	Payer     string
	Err       error
}

func (e *IntegrityError) Error() string {
	switch e.Err {
	case core.ErrInvalidAmount:
		return fmt.Sprintf("expense %s has a negative amount", e.ExpenseID)
	case core.ErrAmountOverflow:
		return fmt.Sprintf("expense %s overflows the period total", e.ExpenseID)
	}
	return fmt.Sprintf("expense %s references %q who is not in the roster", e.ExpenseID, e.Payer)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}
