package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"roomsplit/internal/core"
)

// EventType names what happened to the expense records.
type EventType string

const (
	EventExpenseCreated EventType = "expense.created"
	EventExpenseDeleted EventType = "expense.deleted"
	EventExpensesReset  EventType = "expenses.reset"
)

// ExpenseEvent is published after every successful write. Created and
// deleted events carry the full record so consumers need no store access.
type ExpenseEvent struct {
	Type      EventType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	Expense   *ExpensePayload `json:"expense,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ExpensePayload is the wire form of a record.
type ExpensePayload struct {
	ID          string    `json:"id"`
	Item        string    `json:"item"`
	AmountCents int64     `json:"amountCents"`
	Payer       string    `json:"payer"`
	Date        time.Time `json:"date"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewCreatedEvent(e core.Expense) ExpenseEvent {
	return ExpenseEvent{Type: EventExpenseCreated, ID: e.ID, Expense: payloadOf(e), Timestamp: time.Now()}
}

func NewDeletedEvent(e core.Expense) ExpenseEvent {
	return ExpenseEvent{Type: EventExpenseDeleted, ID: e.ID, Expense: payloadOf(e), Timestamp: time.Now()}
}

func NewResetEvent() ExpenseEvent {
	return ExpenseEvent{Type: EventExpensesReset, Timestamp: time.Now()}
}

func payloadOf(e core.Expense) *ExpensePayload {
	return &ExpensePayload{
		ID:          e.ID,
		Item:        e.Item,
		AmountCents: e.Amount.Cents,
		Payer:       e.Payer,
		Date:        e.Date,
		Note:        e.Note,
		CreatedAt:   e.CreatedAt,
	}
}

// Record converts the payload back into a domain record.
func (p ExpensePayload) Record() core.Expense {
	return core.Expense{
		ID:        p.ID,
		Item:      p.Item,
		Amount:    core.Money{Cents: p.AmountCents},
		Payer:     p.Payer,
		Date:      p.Date,
		Note:      p.Note,
		CreatedAt: p.CreatedAt,
	}
}

// Validate checks that the event is one consumers know how to apply.
func (ev ExpenseEvent) Validate() error {
	switch ev.Type {
	case EventExpenseCreated:
		if ev.Expense == nil {
			return fmt.Errorf("%s event without expense", ev.Type)
		}
		return ev.Expense.Record().Validate()
	case EventExpenseDeleted:
		if ev.ID == "" {
			return fmt.Errorf("%s event without id", ev.Type)
		}
		return nil
	case EventExpensesReset:
		return nil
	}
	return fmt.Errorf("unknown event type %q", ev.Type)
}

// ToJSON converts the event to JSON bytes
func (ev ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(ev)
}

// ExpenseEventFromJSON decodes and validates an event.
func ExpenseEventFromJSON(data []byte) (ExpenseEvent, error) {
	var ev ExpenseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ExpenseEvent{}, err
	}
	if err := ev.Validate(); err != nil {
		return ExpenseEvent{}, err
	}
	return ev, nil
}
