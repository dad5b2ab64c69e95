// Package ics reads facility opening hours published as iCalendar feeds.
//
// Every VEVENT is one service interval (breakfast, lunch, ...). Weekly hours
// are usually a handful of recurring VEVENTs; Expand turns them into concrete
// model.Event values in the facility zone.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"dininghours/internal/calday"
	appLog "dininghours/internal/log"
)

// canonicalDayProperty pins a single VEVENT to a calendar day other than the
// day it starts on (e.g. a 00:30-03:00 late-night period filed under the
// previous evening).
const canonicalDayProperty = "X-CANONICAL-DAY"

var (
	ErrEmptyBody    = errors.New("ics: empty body")
	errMissingUID   = errors.New("missing UID")
	errMissingStart = errors.New("missing DTSTART")
	errMissingEnd   = errors.New("missing DTEND")
)

// ParsedEvent is a VEVENT normalized for expansion.
type ParsedEvent struct {
	SourceID string

	UID string
	Seq int

	Summary     string
	Description string

	Start  time.Time
	End    time.Time
	AllDay bool

	// CanonicalDay is set when the VEVENT carries X-CANONICAL-DAY.
	CanonicalDay *calday.Day

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, if present
	IsOverride bool       // true if this VEVENT overrides one recurring instance
}

// Parse parses an hours calendar. VEVENTs without both DTSTART and DTEND are
// dropped: an interval with only one bound is not an interval.
func Parse(sourceID string, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics parse %s: %w", sourceID, err)
	}

	events := make([]ParsedEvent, 0)
	dropped := 0
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(sourceID, comp)
		if perr != nil {
			dropped++
			appLog.Warn("ics vevent dropped", "id", sourceID, "reason", perr.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", sourceID, "event_count", len(events), "dropped", dropped)
	return events, nil
}

func parseVEvent(sourceID string, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{SourceID: sourceID}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errMissingUID
	}
	out.UID = uidProp.Value

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, errMissingStart
	}
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd == nil || dtEnd.Value == "" {
		return out, errMissingEnd
	}

	// VALUE=DATE or no 'T' in the value means all-day.
	if vs, ok := dtStart.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		out.AllDay = true
	}
	if !strings.Contains(dtStart.Value, "T") {
		out.AllDay = true
	}

	var start, end time.Time
	var err error
	if out.AllDay {
		start, err = ve.GetAllDayStartAt()
		if err == nil {
			end, err = ve.GetAllDayEndAt()
		}
		if err == nil {
			// Anchor all-day bounds to facility midnight.
			start = calday.New(start.Year(), start.Month(), start.Day()).Midnight()
			end = calday.New(end.Year(), end.Month(), end.Day()).Midnight()
		}
	} else {
		start, err = ve.GetStartAt()
		if err == nil {
			end, err = ve.GetEndAt()
		}
	}
	if err != nil {
		return out, fmt.Errorf("bad DTSTART/DTEND: %w", err)
	}
	out.Start = start
	out.End = end

	if p := ve.GetProperty(canonicalDayProperty); p != nil {
		d, ok := calday.Parse(strings.TrimSpace(p.Value))
		if !ok {
			return out, fmt.Errorf("bad %s %q", canonicalDayProperty, p.Value)
		}
		out.CanonicalDay = &d
	}

	// RRULE is kept raw; expansion happens in Expand.
	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		if t, err := parseICSTime(ridProp.Value); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// parseICSTime parses a bare ICS date or date-time. Floating values are read
// in the facility zone.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, calday.Location)
	}
	return time.ParseInLocation("20060102", v, calday.Location)
}
