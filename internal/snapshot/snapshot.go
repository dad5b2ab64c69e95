// Package snapshot keeps the current set of facilities and rebuilds it from
// upstream sources.
//
// A Snapshot is never mutated after it is stored. Refresh builds a complete
// replacement and swaps it in atomically, so a status query never sees a
// half-refreshed facility.
package snapshot

import (
	"errors"
	"sync/atomic"
	"time"

	"dininghours/internal/facility"
)

var ErrNoSnapshot = errors.New("snapshot: no data loaded yet")

// Snapshot is an immutable view of every facility at one refresh.
type Snapshot struct {
	Facilities  map[string]*facility.Facility
	Order       []string // configuration order
	RefreshedAt time.Time
}

// Get returns the facility with the given id.
func (s *Snapshot) Get(id string) (*facility.Facility, bool) {
	f, ok := s.Facilities[id]
	return f, ok
}

// List returns facilities in configuration order.
func (s *Snapshot) List() []*facility.Facility {
	out := make([]*facility.Facility, 0, len(s.Order))
	for _, id := range s.Order {
		if f, ok := s.Facilities[id]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Store holds the current Snapshot. The zero value is ready to use.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

// Load returns the current snapshot or ErrNoSnapshot before the first refresh.
func (s *Store) Load() (*Snapshot, error) {
	snap := s.cur.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Swap replaces the current snapshot.
func (s *Store) Swap(snap *Snapshot) {
	s.cur.Store(snap)
}
