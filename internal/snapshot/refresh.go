package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dininghours/internal/calday"
	"dininghours/internal/clock"
	"dininghours/internal/config"
	"dininghours/internal/facility"
	"dininghours/internal/feed"
	"dininghours/internal/fetch"
	"dininghours/internal/geo"
	"dininghours/internal/ics"
	appLog "dininghours/internal/log"
	"dininghours/internal/metrics"
	"dininghours/internal/model"
)

// Fetcher is the subset of fetch.Fetcher the refresher needs.
type Fetcher interface {
	FetchOne(ctx context.Context, src fetch.Source) (fetch.Result, error)
}

// Refresher rebuilds the Store's snapshot from configured sources.
type Refresher struct {
	store      *Store
	fetcher    Fetcher
	facilities []config.FacilityConfig
	clock      clock.Clock
	metrics    *metrics.Collector

	// mu serializes refreshes; cron and the -once path may overlap.
	mu sync.Mutex
}

type RefresherOption func(*Refresher)

// WithMetrics records refresh results on c.
func WithMetrics(c *metrics.Collector) RefresherOption {
	return func(r *Refresher) { r.metrics = c }
}

// WithClock overrides the clock (defaults to the system clock).
func WithClock(c clock.Clock) RefresherOption {
	return func(r *Refresher) {
		if c != nil {
			r.clock = c
		}
	}
}

func NewRefresher(store *Store, fetcher Fetcher, facilities []config.FacilityConfig, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		store:      store,
		fetcher:    fetcher,
		facilities: facilities,
		clock:      clock.NewSystem(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh fetches every facility and swaps in a new snapshot. A facility
// that fails, or is not reached because ctx is done, keeps its value from the
// previous snapshot, if any. The returned
// error joins every per-facility failure; the snapshot is swapped regardless.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := time.Now()
	now := r.clock.Now()
	prev, _ := r.store.Load()

	next := &Snapshot{
		Facilities:  make(map[string]*facility.Facility, len(r.facilities)),
		Order:       make([]string, 0, len(r.facilities)),
		RefreshedAt: now,
	}

	keepPrevious := func(id string) {
		if prev == nil {
			return
		}
		if old, ok := prev.Get(id); ok {
			next.Facilities[id] = old
			next.Order = append(next.Order, id)
		}
	}

	var errs []error
	for i, fc := range r.facilities {
		if err := ctx.Err(); err != nil {
			// Facilities not reached keep their previous value.
			errs = append(errs, err)
			for _, rest := range r.facilities[i:] {
				keepPrevious(rest.ID)
			}
			break
		}
		f, err := r.build(ctx, fc, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("facility %s: %w", fc.ID, err))
			appLog.Error("refresh: facility failed", err, "facility", fc.ID)
			keepPrevious(fc.ID)
			continue
		}
		next.Facilities[fc.ID] = f
		next.Order = append(next.Order, fc.ID)
	}

	r.store.Swap(next)
	r.observe(next, now, started)

	appLog.Info("refresh completed",
		"facilities", len(next.Order),
		"errors", len(errs),
		"elapsed", time.Since(started).String(),
	)
	return errors.Join(errs...)
}

func (r *Refresher) build(ctx context.Context, fc config.FacilityConfig, now time.Time) (*facility.Facility, error) {
	in := feed.Input{ID: fc.ID, Name: fc.Name}
	if fc.Lat != nil && fc.Lon != nil {
		in.Coordinate = &geo.Coordinate{Lat: *fc.Lat, Lon: *fc.Lon}
	}

	if fc.Feed != "" {
		res, err := r.fetcher.FetchOne(ctx, fetch.Source{ID: fc.ID + "/feed", Location: fc.Feed})
		if err != nil {
			r.fetchError("feed")
			return nil, err
		}
		raw, err := feed.Decode(res.Body)
		if err != nil {
			r.fetchError("feed")
			return nil, err
		}
		in.Raw = &raw
	}

	if fc.HoursICS != "" {
		hours, err := r.hours(ctx, fc, now)
		if err != nil {
			r.fetchError("hours")
			return nil, err
		}
		in.Hours = hours
	}

	return feed.Map(in, now), nil
}

// hours expands the facility's hours calendar from yesterday through the
// configured horizon, so late-night intervals started yesterday are kept.
func (r *Refresher) hours(ctx context.Context, fc config.FacilityConfig, now time.Time) ([]model.Event, error) {
	src := fetch.Source{ID: fc.ID + "/hours", Location: fc.HoursICS}
	res, err := r.fetcher.FetchOne(ctx, src)
	if err != nil {
		return nil, err
	}
	parsed, err := ics.Parse(src.ID, res.Body)
	if err != nil {
		return nil, err
	}

	horizon := fc.HorizonDays
	if horizon <= 0 {
		horizon = 7
	}
	today := calday.FromTime(now)
	expanded, err := ics.Expand(parsed, ics.ExpandConfig{
		RangeStart: today.AddDays(-1).Midnight(),
		RangeEnd:   today.AddDays(horizon + 1).Midnight(),
	})
	if err != nil {
		return nil, err
	}
	return expanded.Events, nil
}

func (r *Refresher) fetchError(source string) {
	if r.metrics != nil {
		r.metrics.FetchErrors.WithLabelValues(source).Inc()
	}
}

func (r *Refresher) observe(snap *Snapshot, now, started time.Time) {
	if r.metrics == nil {
		return
	}
	m := r.metrics
	m.Refreshes.Inc()
	m.RefreshDuration.Observe(time.Since(started).Seconds())
	m.Facilities.Set(float64(len(snap.Order)))
	m.LastRefreshUTC.Set(float64(now.Unix()))
	for _, f := range snap.List() {
		m.Events.WithLabelValues(f.ID).Set(float64(len(f.Events)))
		m.WaitDays.WithLabelValues(f.ID).Set(float64(len(f.WaitTimes)))
		open := 0.0
		if f.IsOpen(now) {
			open = 1
		}
		m.FacilityOpen.WithLabelValues(f.ID).Set(open)
	}
}
