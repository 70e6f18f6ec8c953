package backend

import (
	"context"

	"roomsplit/internal/services"
	"roomsplit/internal/store"
)

// CleanupFunc releases the resources behind a Result.
type CleanupFunc func() error

// Result is a ready expense store plus the optional event publisher that
// rides along with it.
type Result struct {
	Store store.ExpenseStore
	// Publisher is nil when AMQP is disabled or unreachable.
	Publisher services.Publisher
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}
