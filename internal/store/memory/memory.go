// Package memory is an in-process expense store, used by default and in
// tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"roomsplit/internal/core"
	"roomsplit/internal/store"
)

type Store struct {
	mu    sync.RWMutex
	items []core.Expense
}

func New(seed ...core.Expense) *Store {
	return &Store{items: append([]core.Expense(nil), seed...)}
}

// Append stores the expense after checking its intrinsic fields.
func (s *Store) Append(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == e.ID {
			return core.Expense{}, fmt.Errorf("duplicate expense id %s", e.ID)
		}
	}
	s.items = append(s.items, e)
	return e, nil
}

func (s *Store) Delete(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return it, nil
		}
	}
	return core.Expense{}, store.ErrNotFound
}

func (s *Store) Reset(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.items))
	s.items = nil
	return n, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ID == id {
			return it, nil
		}
	}
	return core.Expense{}, store.ErrNotFound
}

func (s *Store) List(_ context.Context) ([]core.Expense, error) {
	s.mu.RLock()
	out := append([]core.Expense(nil), s.items...)
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) ListBetween(_ context.Context, from, to time.Time) ([]core.Expense, error) {
	s.mu.RLock()
	var out []core.Expense
	for _, it := range s.items {
		if !it.Date.Before(from) && !it.Date.After(to) {
			out = append(out, it)
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Newest date first; records on the same date keep the latest insert first.
func sortNewestFirst(items []core.Expense) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.After(items[j].Date)
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

var _ store.ExpenseStore = (*Store)(nil)
