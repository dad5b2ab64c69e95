// Package facility holds the Facility aggregate and the ETA estimate that
// combines walking time with the expected wait on arrival.
package facility

import (
	"math"
	"time"

	"dininghours/internal/geo"
	"dininghours/internal/model"
	"dininghours/internal/status"
	"dininghours/internal/waittime"
)

// Features are upstream boolean flags. Missing upstream values map to false.
type Features struct {
	AcceptsCash     bool `json:"accepts_cash"`
	AcceptsCard     bool `json:"accepts_card"`
	AcceptsMealPlan bool `json:"accepts_meal_plan"`
	Takeout         bool `json:"takeout"`
}

// Facility is an immutable snapshot of one dining location. A refresh builds a
// new Facility instead of mutating an existing one.
type Facility struct {
	ID         string
	Name       string
	Coordinate *geo.Coordinate
	Features   Features

	Events    []model.Event
	WaitTimes waittime.ByDay
	Alerts    []model.Alert
}

// Status derives the facility status at now.
func (f *Facility) Status(now time.Time) status.Status {
	return status.Derive(f.Events, now)
}

func (f *Facility) IsOpen(now time.Time) bool {
	return f.Status(now).IsOpen()
}

// WalkTime estimates the walk from user to the facility. It reports false when
// either coordinate is unknown or not finite.
func (f *Facility) WalkTime(user *geo.Coordinate) (time.Duration, bool) {
	if f.Coordinate == nil || user == nil {
		return 0, false
	}
	meters := geo.Distance(*user, *f.Coordinate)
	if math.IsNaN(meters) || math.IsInf(meters, 0) {
		return 0, false
	}
	return time.Duration(meters / geo.WalkingSpeed * float64(time.Second)), true
}

// WaitTime samples the wait model filed under the calendar day of at.
func (f *Facility) WaitTime(at time.Time) (waittime.Sample, bool) {
	if f.WaitTimes == nil {
		return waittime.Sample{}, false
	}
	return f.WaitTimes.At(at)
}

// Timing is the walk and wait estimate for a trip. Nil fields are unknown.
type Timing struct {
	Walk *time.Duration
	Wait *waittime.Sample
}

// TimingInfo estimates walk time and the wait at arrival. Without a walk
// estimate the wait is sampled at departure.
func (f *Facility) TimingInfo(user *geo.Coordinate, departure time.Time) Timing {
	var t Timing
	arrival := departure
	if walk, ok := f.WalkTime(user); ok {
		t.Walk = &walk
		arrival = departure.Add(walk)
	}
	if wait, ok := f.WaitTime(arrival); ok {
		t.Wait = &wait
	}
	return t
}

// ExpectedTotalTime is walk time plus expected wait. It reports false only if
// both are unknown; a single missing part counts as zero.
func (f *Facility) ExpectedTotalTime(user *geo.Coordinate, departure time.Time) (time.Duration, bool) {
	return f.TimingInfo(user, departure).Total()
}

// Total sums the known parts of t.
func (t Timing) Total() (time.Duration, bool) {
	if t.Walk == nil && t.Wait == nil {
		return 0, false
	}
	var total time.Duration
	if t.Walk != nil {
		total += *t.Walk
	}
	if t.Wait != nil {
		total += t.Wait.Expected
	}
	return total, true
}
