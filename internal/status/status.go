// Package status derives a facility's open/closed state from its events.
//
// All functions are pure: they take the event list and an explicit reference
// time and never mutate their input. Absence is reported as -1 (for index
// lookups) or false, and ends up as Closed.
package status

import (
	"time"

	"dininghours/internal/calday"
	"dininghours/internal/model"
)

// SoonThreshold is the window used for ClosingSoon and OpeningSoon.
const SoonThreshold = time.Hour

// Kind is the coarse state of a facility at an instant.
type Kind int

const (
	Closed Kind = iota
	ClosingSoon
	Open
	OpeningSoon
)

// String returns the snake_case name used in the API.
func (k Kind) String() string {
	switch k {
	case Closed:
		return "closed"
	case ClosingSoon:
		return "closing_soon"
	case Open:
		return "open"
	case OpeningSoon:
		return "opening_soon"
	default:
		return "unknown"
	}
}

// Status is the derived state of a facility at one instant. Event is set for
// ClosingSoon, Open and OpeningSoon, and always nil for Closed.
type Status struct {
	Kind  Kind
	Event *model.Event
}

// IsOpen is true for Open and ClosingSoon.
func (s Status) IsOpen() bool {
	return s.Kind == Open || s.Kind == ClosingSoon
}

func (s Status) String() string {
	return s.Kind.String()
}

type filter struct {
	day    calday.Day
	hasDay bool
}

// Option narrows an event lookup.
type Option func(*filter)

// OnDay restricts lookups to events whose canonical day is d.
func OnDay(d calday.Day) Option {
	return func(f *filter) {
		f.day = d
		f.hasDay = true
	}
}

func buildFilter(opts []Option) filter {
	var f filter
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func (f filter) match(e model.Event) bool {
	return !f.hasDay || e.Day == f.day
}

// CurrentIndex returns the index of the first event, in list order, whose
// [Start, End] contains at. Events are assumed not to overlap; if they do, the
// earliest listed one wins.
func CurrentIndex(events []model.Event, at time.Time, opts ...Option) int {
	f := buildFilter(opts)
	for i, e := range events {
		if f.match(e) && e.Contains(at) {
			return i
		}
	}
	return -1
}

// NextIndex returns the event with the smallest Start among those starting at
// or after at.
func NextIndex(events []model.Event, at time.Time, opts ...Option) int {
	f := buildFilter(opts)
	return minIndex(events,
		func(e model.Event) bool { return f.match(e) && !e.Start.Before(at) },
		func(e model.Event) int64 { return e.Start.UnixNano() },
	)
}

// PreviousIndex returns the most recently ended event among those ending at or
// before at.
func PreviousIndex(events []model.Event, at time.Time, opts ...Option) int {
	f := buildFilter(opts)
	return minIndex(events,
		func(e model.Event) bool { return f.match(e) && !e.End.After(at) },
		func(e model.Event) int64 { return -e.End.UnixNano() },
	)
}

// SalientIndex returns the current event, else the next, else the previous.
func SalientIndex(events []model.Event, at time.Time, opts ...Option) int {
	if i := CurrentIndex(events, at, opts...); i >= 0 {
		return i
	}
	if i := NextIndex(events, at, opts...); i >= 0 {
		return i
	}
	return PreviousIndex(events, at, opts...)
}

// minIndex returns the first element minimizing key among those accepted by
// keep, or -1.
func minIndex(events []model.Event, keep func(model.Event) bool, key func(model.Event) int64) int {
	best := -1
	var bestKey int64
	for i, e := range events {
		if !keep(e) {
			continue
		}
		k := key(e)
		if best < 0 || k < bestKey {
			best, bestKey = i, k
		}
	}
	return best
}

func pick(events []model.Event, i int) (model.Event, bool) {
	if i < 0 {
		return model.Event{}, false
	}
	return events[i], true
}

// Current returns the event at CurrentIndex.
func Current(events []model.Event, at time.Time, opts ...Option) (model.Event, bool) {
	return pick(events, CurrentIndex(events, at, opts...))
}

// Next returns the event at NextIndex.
func Next(events []model.Event, at time.Time, opts ...Option) (model.Event, bool) {
	return pick(events, NextIndex(events, at, opts...))
}

// Previous returns the event at PreviousIndex.
func Previous(events []model.Event, at time.Time, opts ...Option) (model.Event, bool) {
	return pick(events, PreviousIndex(events, at, opts...))
}

// Salient returns the event at SalientIndex.
func Salient(events []model.Event, at time.Time, opts ...Option) (model.Event, bool) {
	return pick(events, SalientIndex(events, at, opts...))
}

// Derive computes the facility status at the given instant.
func Derive(events []model.Event, at time.Time) Status {
	if ev, ok := Current(events, at); ok {
		if ev.End.Sub(at) <= SoonThreshold {
			return Status{Kind: ClosingSoon, Event: &ev}
		}
		return Status{Kind: Open, Event: &ev}
	}
	if ev, ok := Next(events, at); ok && ev.Start.Sub(at) <= SoonThreshold {
		return Status{Kind: OpeningSoon, Event: &ev}
	}
	return Status{Kind: Closed}
}

// Overlap names two events, by index, whose intervals intersect.
type Overlap struct {
	First, Second int
}

// Overlaps lists every pair of events sharing more than a boundary instant.
// Back-to-back events (one ends exactly when the next starts) are allowed.
func Overlaps(events []model.Event) []Overlap {
	var out []Overlap
	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			a, b := events[i], events[j]
			if a.Start.Before(b.End) && b.Start.Before(a.End) {
				out = append(out, Overlap{First: i, Second: j})
			}
		}
	}
	return out
}
