package core

import (
	"fmt"
	"strings"
)

// Roster is the fixed, ordered set of participants sharing expenses. Order is
// significant: it breaks ties in settlement and decides who absorbs leftover
// cents of an equal split. The zero Roster is empty.
type Roster struct {
	names []string
	index map[string]int
}

// NewRoster builds a roster from participant names in the given order.
// Names are trimmed; an empty list, a blank name or a duplicate is rejected.
func NewRoster(names ...string) (Roster, error) {
	if len(names) == 0 {
		return Roster{}, ErrEmptyRoster
	}
	r := Roster{
		names: make([]string, 0, len(names)),
		index: make(map[string]int, len(names)),
	}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return Roster{}, ErrBlankParticipant
		}
		if _, dup := r.index[n]; dup {
			return Roster{}, fmt.Errorf("%w: %q", ErrDuplicateParticipant, n)
		}
		r.index[n] = len(r.names)
		r.names = append(r.names, n)
	}
	return r, nil
}

// ParseRoster builds a roster from a comma-separated list such as
// "Alice, Bob, Carol".
func ParseRoster(s string) (Roster, error) {
	if strings.TrimSpace(s) == "" {
		return Roster{}, ErrEmptyRoster
	}
	return NewRoster(strings.Split(s, ",")...)
}

// Len returns the number of participants.
func (r Roster) Len() int { return len(r.names) }

// Names returns a copy of the participant names in roster order.
func (r Roster) Names() []string {
	return append([]string(nil), r.names...)
}

// Contains reports whether name is a participant.
func (r Roster) Contains(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Index returns the roster position of name.
func (r Roster) Index(name string) (int, bool) {
	i, ok := r.index[name]
	return i, ok
}

func (r Roster) String() string {
	return strings.Join(r.names, ", ")
}
