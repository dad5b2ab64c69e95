// Package calday provides a calendar day pinned to the facility time zone.
//
// Every event and wait-time observation is bucketed by a Day. A Day is always
// interpreted in Location (US/Eastern), regardless of the host's local zone.
package calday

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	appLog "dininghours/internal/log"
)

// Location is the facility calendar zone. It is set once at init and never
// reassigned.
var Location = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// time/tzdata is embedded, so this only fires on a corrupt build.
		panic(fmt.Sprintf("calday: load %s: %v", name, err))
	}
	return loc
}

// Day is a year/month/day triple. Two Days are equal iff all three fields match.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// New builds a Day from explicit components. No validation is done here; see
// Valid.
func New(year int, month time.Month, day int) Day {
	return Day{Year: year, Month: month, Day: day}
}

// FromTime truncates t to its calendar day in Location.
func FromTime(t time.Time) Day {
	y, m, d := t.In(Location).Date()
	return Day{Year: y, Month: m, Day: d}
}

// Today is shorthand for FromTime(time.Now()).
func Today() Day {
	return FromTime(time.Now())
}

// Parse reads the canonical YYYY-MM-DD form. It reports false for anything
// other than three dash-separated runs of decimal digits with month in 1..12
// and day in 1..31. Signs and surrounding whitespace are rejected; unpadded
// components such as "2024-5-6" are accepted.
func Parse(s string) (Day, bool) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Day{}, false
	}
	var nums [3]int
	for i, p := range parts {
		if !digits(p) {
			return Day{}, false
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Day{}, false
		}
		nums[i] = n
	}
	if nums[1] < 1 || nums[1] > 12 || nums[2] < 1 || nums[2] > 31 {
		return Day{}, false
	}
	return Day{Year: nums[0], Month: time.Month(nums[1]), Day: nums[2]}, true
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String formats the day as zero-padded YYYY-MM-DD.
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Valid reports whether the components name a real Gregorian date.
func (d Day) Valid() bool {
	t := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, Location)
	return FromTime(t) == d
}

// At returns the instant at hour:minute on d in Location. If d is not a real
// date or the time of day is out of range, it logs and returns time.Now().
func (d Day) At(hour, minute int) time.Time {
	if !d.Valid() || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		appLog.Warn("calday: cannot construct time, substituting now",
			"day", d.String(), "hour", hour, "minute", minute)
		return time.Now()
	}
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, Location)
}

// Midnight is At(0, 0).
func (d Day) Midnight() time.Time {
	return d.At(0, 0)
}

// Weekday returns 1 for Sunday through 7 for Saturday, or 0 for an invalid day.
func (d Day) Weekday() int {
	if !d.Valid() {
		return 0
	}
	t := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, Location)
	return int(t.Weekday()) + 1
}

var weekdayNames = map[int]string{
	1: "Sunday",
	2: "Monday",
	3: "Tuesday",
	4: "Wednesday",
	5: "Thursday",
	6: "Friday",
	7: "Saturday",
}

// WeekdayName returns the English weekday name, or "" when the weekday
// number is unmapped.
func (d Day) WeekdayName() string {
	return weekdayNames[d.Weekday()]
}

// StartOfWeek returns the most recent Sunday on or before d.
// An invalid day is returned unchanged.
func (d Day) StartOfWeek() Day {
	if !d.Valid() {
		return d
	}
	cur := d
	for i := 0; i < 7; i++ {
		if cur.Weekday() == 1 {
			return cur
		}
		cur = cur.AddDays(-1)
	}
	return d
}

// AddDays moves d by n calendar days in Location. An invalid day is returned
// unchanged.
func (d Day) AddDays(n int) Day {
	if !d.Valid() {
		return d
	}
	// Noon keeps the result away from DST gaps at midnight.
	t := time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, Location)
	return FromTime(t)
}

// DaysUntil returns the signed number of calendar days from d to other.
// It returns 0 if either day is invalid.
func (d Day) DaysUntil(other Day) int {
	if !d.Valid() || !other.Valid() {
		return 0
	}
	a := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, Location)
	b := time.Date(other.Year, other.Month, other.Day, 0, 0, 0, 0, Location)
	// Days spanning a DST switch are 23 or 25 hours long.
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// Compare orders days by (year, month, day).
func (d Day) Compare(other Day) int {
	if c := cmp.Compare(d.Year, other.Year); c != 0 {
		return c
	}
	if c := cmp.Compare(d.Month, other.Month); c != 0 {
		return c
	}
	return cmp.Compare(d.Day, other.Day)
}

func (d Day) Before(other Day) bool { return d.Compare(other) < 0 }

func (d Day) After(other Day) bool { return d.Compare(other) > 0 }

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(b []byte) error {
	parsed, ok := Parse(string(b))
	if !ok {
		return fmt.Errorf("calday: invalid day %q", string(b))
	}
	*d = parsed
	return nil
}
