// Package feed decodes the upstream facility document and maps it into a
// facility.Facility snapshot.
//
// Mapping rules:
//   - a missing name becomes ""
//   - missing boolean flags become false
//   - events missing either bound are dropped
//   - wait observations without a day are filed under the day of "now"
//   - overlapping events are reduced to a non-overlapping set
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"dininghours/internal/calday"
	"dininghours/internal/facility"
	"dininghours/internal/geo"
	appLog "dininghours/internal/log"
	"dininghours/internal/model"
	"dininghours/internal/waittime"
)

var ErrEmptyPayload = errors.New("feed: empty payload")

// RawFacility is the upstream JSON document. Every field may be absent.
type RawFacility struct {
	ID         string          `json:"id"`
	Name       *string         `json:"name"`
	Coordinate *geo.Coordinate `json:"coordinate"`

	AcceptsCash     *bool `json:"accepts_cash"`
	AcceptsCard     *bool `json:"accepts_card"`
	AcceptsMealPlan *bool `json:"accepts_meal_plan"`
	Takeout         *bool `json:"takeout"`

	Events    []RawEvent `json:"events"`
	WaitTimes []RawWait  `json:"wait_times"`
	Alerts    []RawAlert `json:"alerts"`
}

// RawEvent bounds are Unix seconds.
type RawEvent struct {
	Start       *int64        `json:"start"`
	End         *int64        `json:"end"`
	Day         string        `json:"day,omitempty"`
	Description string        `json:"description,omitempty"`
	Menu        []RawCategory `json:"menu,omitempty"`
}

type RawCategory struct {
	Category string    `json:"category"`
	Items    []RawItem `json:"items"`
}

type RawItem struct {
	Name        string `json:"name"`
	Price       string `json:"price,omitempty"`
	Healthy     *bool  `json:"healthy,omitempty"`
	Description string `json:"description,omitempty"`
}

// RawWait durations are seconds; Timestamp is Unix seconds.
type RawWait struct {
	Timestamp int64   `json:"timestamp"`
	Low       float64 `json:"low"`
	Expected  float64 `json:"expected"`
	High      float64 `json:"high"`
	Day       string  `json:"day,omitempty"`
}

type RawAlert struct {
	Posted  int64  `json:"posted"`
	Message string `json:"message"`
}

// Decode parses a feed body.
func Decode(body []byte) (RawFacility, error) {
	var raw RawFacility
	if len(body) == 0 {
		return raw, ErrEmptyPayload
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return raw, fmt.Errorf("feed decode: %w", err)
	}
	return raw, nil
}

// Input gathers everything known about one facility before mapping.
type Input struct {
	// ID, Name and Coordinate come from local configuration and are used
	// when the feed does not provide them.
	ID         string
	Name       string
	Coordinate *geo.Coordinate

	// Raw is the decoded feed, or nil when the facility has no feed.
	Raw *RawFacility
	// Hours are intervals from an hours calendar, merged with feed events.
	Hours []model.Event
}

// Map builds an immutable Facility from in. now decides which day untagged
// wait observations are filed under.
func Map(in Input, now time.Time) *facility.Facility {
	f := &facility.Facility{
		ID:         in.ID,
		Name:       in.Name,
		Coordinate: in.Coordinate,
	}

	events := make([]model.Event, 0, len(in.Hours))
	events = append(events, in.Hours...)

	if raw := in.Raw; raw != nil {
		if raw.Name != nil {
			f.Name = *raw.Name
		}
		if raw.Coordinate != nil {
			c := *raw.Coordinate
			f.Coordinate = &c
		}
		f.Features = facility.Features{
			AcceptsCash:     flag(raw.AcceptsCash),
			AcceptsCard:     flag(raw.AcceptsCard),
			AcceptsMealPlan: flag(raw.AcceptsMealPlan),
			Takeout:         flag(raw.Takeout),
		}
		events = append(events, mapEvents(f.ID, raw.Events)...)
		f.WaitTimes = mapWaits(f.ID, raw.WaitTimes, now)
		f.Alerts = mapAlerts(raw.Alerts)
	}

	f.Events = NormalizeEvents(f.ID, events)
	if f.WaitTimes == nil {
		f.WaitTimes = waittime.ByDay{}
	}
	return f
}

func flag(b *bool) bool {
	return b != nil && *b
}

func mapEvents(id string, raws []RawEvent) []model.Event {
	out := make([]model.Event, 0, len(raws))
	for i, r := range raws {
		if r.Start == nil || r.End == nil {
			appLog.Warn("feed: event dropped, missing bound", "facility", id, "index", i)
			continue
		}
		ev := model.Event{
			Start:       time.Unix(*r.Start, 0).In(calday.Location),
			End:         time.Unix(*r.End, 0).In(calday.Location),
			Description: r.Description,
			Menu:        mapMenu(r.Menu),
		}
		ev.Day = calday.FromTime(ev.Start)
		if r.Day != "" {
			d, ok := calday.Parse(r.Day)
			if !ok {
				appLog.Warn("feed: event dropped, bad day", "facility", id, "index", i, "day", r.Day)
				continue
			}
			ev.Day = d
		}
		out = append(out, ev)
	}
	return out
}

func mapMenu(raws []RawCategory) *model.Menu {
	if len(raws) == 0 {
		return nil
	}
	m := &model.Menu{Categories: make([]model.MenuCategory, 0, len(raws))}
	for _, rc := range raws {
		cat := model.MenuCategory{Name: rc.Category, Items: make([]model.MenuItem, 0, len(rc.Items))}
		for _, it := range rc.Items {
			cat.Items = append(cat.Items, model.MenuItem{
				Name:        it.Name,
				Price:       it.Price,
				Healthy:     flag(it.Healthy),
				Description: it.Description,
			})
		}
		m.Categories = append(m.Categories, cat)
	}
	return m
}

func mapWaits(id string, raws []RawWait, now time.Time) waittime.ByDay {
	today := calday.FromTime(now)
	grouped := make(map[calday.Day][]waittime.Sample)
	for i, r := range raws {
		day := today
		if r.Day != "" {
			d, ok := calday.Parse(r.Day)
			if !ok {
				appLog.Warn("feed: wait observation dropped, bad day", "facility", id, "index", i, "day", r.Day)
				continue
			}
			day = d
		}
		grouped[day] = append(grouped[day], waittime.Sample{
			At:       time.Unix(r.Timestamp, 0).In(calday.Location),
			Low:      seconds(r.Low),
			Expected: seconds(r.Expected),
			High:     seconds(r.High),
		})
	}

	out := make(waittime.ByDay, len(grouped))
	for day, samples := range grouped {
		out[day] = waittime.New(samples, waittime.MethodNearest)
	}
	return out
}

// seconds converts upstream seconds to a Duration, clamping negatives to 0.
func seconds(s float64) time.Duration {
	if s < 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func mapAlerts(raws []RawAlert) []model.Alert {
	out := make([]model.Alert, 0, len(raws))
	for _, r := range raws {
		out = append(out, model.Alert{Posted: time.Unix(r.Posted, 0).In(calday.Location), Message: r.Message})
	}
	return out
}

// NormalizeEvents sorts events by start and drops any event that overlaps an
// earlier kept one. Back-to-back events are kept. The result never contains
// two intersecting intervals.
func NormalizeEvents(id string, events []model.Event) []model.Event {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b model.Event) int {
		return a.Start.Compare(b.Start)
	})

	out := make([]model.Event, 0, len(sorted))
	var lastEnd time.Time
	for _, ev := range sorted {
		if len(out) > 0 && ev.Start.Before(lastEnd) {
			appLog.Warn("feed: overlapping event dropped",
				"facility", id,
				"start", ev.Start.Format(time.RFC3339),
				"end", ev.End.Format(time.RFC3339),
				"day", ev.Day.String(),
			)
			continue
		}
		out = append(out, ev)
		lastEnd = ev.End
	}
	return out
}
