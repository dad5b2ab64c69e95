package model

import (
	"time"

	"dininghours/internal/calday"
)

// Event is a single service interval of a facility (a meal period).
//
// Day is the canonical day the event is filed under. It is independent of the
// literal dates of Start/End: a dinner that ends at 02:00 still belongs to the
// previous evening's day. End is expected to be after Start; callers rely on
// that but nothing here enforces it.
type Event struct {
	Start time.Time
	End   time.Time
	Day   calday.Day

	Description string
	Menu        *Menu
}

// Contains reports whether at lies in [Start, End], both ends inclusive.
func (e Event) Contains(at time.Time) bool {
	return !at.Before(e.Start) && !at.After(e.End)
}

// Duration is End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Menu is the structured content served during an event.
type Menu struct {
	Categories []MenuCategory
}

// MenuCategory is an ordered group of items (e.g. "Grill", "Salad Bar").
type MenuCategory struct {
	Name  string
	Items []MenuItem
}

type MenuItem struct {
	Name        string
	Price       string
	Healthy     bool
	Description string
}

// Alert is a timestamped advisory. Alerts never affect status.
type Alert struct {
	Posted  time.Time
	Message string
}
