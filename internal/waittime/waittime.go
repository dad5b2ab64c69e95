// Package waittime maps a timestamp to an expected wait using historical
// observations for a single calendar day.
package waittime

import (
	"time"

	"dininghours/internal/calday"
	appLog "dininghours/internal/log"
)

// Sample is one wait observation. Low <= Expected <= High is expected from
// upstream but not enforced.
type Sample struct {
	At       time.Time
	Low      time.Duration
	Expected time.Duration
	High     time.Duration
}

// Method selects how a query time is mapped to a sample. The set is open so
// new strategies can be added without changing the stored shape.
type Method string

const (
	// MethodNearest returns the sample closest in time to the query.
	MethodNearest Method = "nearest"
)

// Model is an immutable set of samples for one day. Refreshing data means
// building a new Model.
type Model struct {
	samples []Sample
	method  Method
}

// New copies samples into a Model. An empty method defaults to MethodNearest.
func New(samples []Sample, method Method) Model {
	if method == "" {
		method = MethodNearest
	}
	cp := make([]Sample, len(samples))
	copy(cp, samples)
	return Model{samples: cp, method: method}
}

func (m Model) Method() Method { return m.method }

func (m Model) Len() int { return len(m.samples) }

// Samples returns a copy of the underlying observations.
func (m Model) Samples() []Sample {
	cp := make([]Sample, len(m.samples))
	copy(cp, m.samples)
	return cp
}

// Sample maps at to one observation. It reports false when the model is
// empty or the method is unknown.
func (m Model) Sample(at time.Time) (Sample, bool) {
	if len(m.samples) == 0 {
		return Sample{}, false
	}
	switch m.method {
	case MethodNearest, "":
		return m.nearest(at), true
	default:
		appLog.Warn("waittime: unknown sampling method", "method", string(m.method))
		return Sample{}, false
	}
}

// nearest minimizes |s.At - at|. On a tie the earlier sample wins; samples
// with identical timestamps resolve to the first listed.
func (m Model) nearest(at time.Time) Sample {
	best := m.samples[0]
	bestDist := absDuration(best.At.Sub(at))
	for _, s := range m.samples[1:] {
		d := absDuration(s.At.Sub(at))
		if d < bestDist || (d == bestDist && s.At.Before(best.At)) {
			best, bestDist = s, d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// ByDay holds at most one Model per calendar day.
type ByDay map[calday.Day]Model

// At samples the model filed under the calendar day of at. A model for any
// other day never applies.
func (b ByDay) At(at time.Time) (Sample, bool) {
	m, ok := b[calday.FromTime(at)]
	if !ok {
		return Sample{}, false
	}
	return m.Sample(at)
}
