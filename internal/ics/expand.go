package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"dininghours/internal/calday"
	appLog "dininghours/internal/log"
	"dininghours/internal/model"
)

const defaultMaxOccurrencesPerEvent = 1000

var ErrInvalidRange = errors.New("ics: RangeEnd is before RangeStart")

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// RangeStart / RangeEnd bound the occurrences returned (inclusive).
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. Zero means the default.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps expanded events and the UIDs that hit the cap.
type ExpandResult struct {
	Events          []model.Event
	TruncatedEvents []string
}

// Expand turns parsed VEVENTs into concrete service intervals in
// calday.Location. It handles single events, RRULE recurrence, EXDATE and
// RECURRENCE-ID overrides.
//
// The canonical day of each interval is the calendar day its start falls on,
// unless the VEVENT carries X-CANONICAL-DAY. On a single or overriding VEVENT
// the property is the day itself; on a recurring one it shifts every
// occurrence by the same number of days as it shifts DTSTART.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, ErrInvalidRange
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	// Keep UID order stable so output order does not depend on map iteration.
	var uids []string
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	for _, uid := range uids {
		ov := overridesByUID[uid]
		truncated := false
		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			result.Events = append(result.Events, occ...)
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("ics expand: truncated occurrences", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	if ev.RawRRule == "" {
		return expandSingle(ev, overrides, cfg), false
	}
	return expandRecurring(ev, overrides, cfg)
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Event {
	if !overlapsRange(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	if o, ok := findOverride(overrides, ev.Start); ok {
		ev = o
	}
	return []model.Event{toEvent(ev, ev.Start, ev.End)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event length so an occurrence that started
	// before RangeStart but is still running is kept.
	dur := ev.End.Sub(ev.Start)
	starts := set.Between(cfg.RangeStart.Add(-dur).In(ev.Start.Location()), cfg.RangeEnd.In(ev.Start.Location()), true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	// X-CANONICAL-DAY on a recurring base is a day offset from DTSTART,
	// applied to each generated occurrence.
	offset := 0
	if ev.CanonicalDay != nil {
		offset = calday.FromTime(ev.Start).DaysUntil(*ev.CanonicalDay)
	}

	out := make([]model.Event, 0, len(starts))
	for _, occStart := range starts {
		occEnd := occStart.Add(dur)
		if ev.AllDay {
			d := calday.FromTime(occStart)
			occStart = d.Midnight()
			occEnd = d.AddDays(int(dur.Hours()/24 + 0.5)).Midnight()
		}

		base := ev
		// Overridden instances carry their own bounds and canonical day.
		if o, ok := findOverride(overrides, occStart); ok {
			base = o
			occStart, occEnd = o.Start, o.End
		} else if ev.CanonicalDay != nil {
			d := calday.FromTime(occStart).AddDays(offset)
			base.CanonicalDay = &d
		}
		out = append(out, toEvent(base, occStart, occEnd))
	}
	return out, hitCap
}

// findOverride finds an override whose RECURRENCE-ID equals start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func toEvent(ev ParsedEvent, start, end time.Time) model.Event {
	start = start.In(calday.Location)
	end = end.In(calday.Location)

	day := calday.FromTime(start)
	if ev.CanonicalDay != nil {
		day = *ev.CanonicalDay
	}

	desc := ev.Summary
	if desc == "" {
		desc = ev.Description
	}
	return model.Event{
		Start:       start,
		End:         end,
		Day:         day,
		Description: desc,
	}
}

func overlapsRange(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
