package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxItemLength is the longest accepted item label, in characters.
	MaxItemLength = 100
	// MaxNoteLength is the longest accepted note, in characters.
	MaxNoteLength = 500
	// MaxAmountCents caps a single expense at 1 000 000 000.00.
	MaxAmountCents int64 = 1_000_000_000 * 100
)

type (
	// Expense is a single immutable expense record paid by one roster member
	// and shared equally by all of them.
	Expense struct {
		ID        string
		Item      string
		Amount    Money
		Payer     string
		Date      time.Time
		Note      string
		CreatedAt time.Time
	}

	// ExpenseInput carries the raw, unvalidated fields of a new expense as
	// received from a client.
	ExpenseInput struct {
		Item   string
		Price  string
		Person string
		Date   string // optional, RFC3339 or YYYY-MM-DD
		Note   string
	}
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrAmountTooLarge       = errors.New("amount too large")
	ErrAmountOverflow       = errors.New("amount overflow")
	ErrEmptyItem            = errors.New("empty item")
	ErrItemTooLong          = errors.New("item too long")
	ErrNoteTooLong          = errors.New("note too long")
	ErrInvalidDate          = errors.New("invalid date")
	ErrMissingID            = errors.New("missing expense id")
	ErrUnknownParticipant   = errors.New("unknown participant")
	ErrEmptyRoster          = errors.New("roster is empty")
	ErrDuplicateParticipant = errors.New("duplicate participant in roster")
	ErrBlankParticipant     = errors.New("blank participant name in roster")
	ErrUnsettled            = errors.New("settlement left unsettled balances")
)

// NewExpense validates in against the roster and builds an expense without
// an ID. Every invalid field is reported, not only the first one. A missing
// date defaults to now; date-only values are interpreted in now's location.
func NewExpense(in ExpenseInput, roster Roster, now time.Time) (Expense, error) {
	var errs ValidationErrors

	item := strings.TrimSpace(in.Item)
	switch {
	case item == "":
		errs = append(errs, FieldError{Field: "item", Message: "Item name is required", Err: ErrEmptyItem})
	case utf8.RuneCountInString(item) > MaxItemLength:
		errs = append(errs, FieldError{Field: "item", Message: "Item name must be less than 100 characters", Err: ErrItemTooLong})
	}

	cents, err := ParseDecimalToCents(in.Price)
	switch {
	case err != nil:
		errs = append(errs, FieldError{Field: "price", Message: "Price must be a positive number", Err: ErrInvalidAmount})
	case cents > MaxAmountCents:
		errs = append(errs, FieldError{Field: "price", Message: "Price must not exceed " + Money{Cents: MaxAmountCents}.String(), Err: ErrAmountTooLarge})
	}

	person := strings.TrimSpace(in.Person)
	switch {
	case person == "":
		errs = append(errs, FieldError{Field: "person", Message: "Person name is required", Err: ErrUnknownParticipant})
	case !roster.Contains(person):
		errs = append(errs, FieldError{Field: "person", Message: "Invalid person name. Must be one of: " + roster.String(), Err: ErrUnknownParticipant})
	}

	date := now
	if v := strings.TrimSpace(in.Date); v != "" {
		d, err := ParseDate(v, now.Location())
		if err != nil {
			errs = append(errs, FieldError{Field: "date", Message: "Invalid date format", Err: ErrInvalidDate})
		} else {
			date = d
		}
	}

	note := strings.TrimSpace(in.Note)
	if utf8.RuneCountInString(note) > MaxNoteLength {
		errs = append(errs, FieldError{Field: "note", Message: "Note must be less than 500 characters", Err: ErrNoteTooLong})
	}

	if len(errs) > 0 {
		return Expense{}, errs
	}
	return Expense{
		Item:   item,
		Amount: Money{Cents: cents},
		Payer:  person,
		Date:   date,
		Note:   note,
	}, nil
}

// ParseDate accepts RFC3339 timestamps and plain YYYY-MM-DD dates. Plain
// dates are midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, ErrInvalidDate
}

// Validate checks the intrinsic fields of a stored record. Roster membership
// is not checked here; stores do not know the roster.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(e.Item) == "" {
		return ErrEmptyItem
	}
	if utf8.RuneCountInString(e.Item) > MaxItemLength {
		return ErrItemTooLong
	}
	if e.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Payer) == "" {
		return ErrUnknownParticipant
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if utf8.RuneCountInString(e.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}
