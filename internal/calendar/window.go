package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the unit a calendar view displays.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// DayKeyLayout formats the date key used to match events to month cells.
const DayKeyLayout = "2006-01-02"

// ParseGranularity accepts "day", "week" or "month" in any case.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Day, Week, Month:
		return g, nil
	default:
		return "", fmt.Errorf("unknown view %q", s)
	}
}

// TimeWindow is an inclusive [Start, End] range in the display zone.
type TimeWindow struct {
	Start       time.Time
	End         time.Time
	Granularity Granularity
}

// Contains reports whether t lies in the window, both ends included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// StartOfDay returns local midnight of t's date in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's date in t's location.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfWeek returns midnight of the first day of t's week.
func StartOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	delta := (int(t.Weekday()) - int(weekStart) + 7) % 7
	return StartOfDay(t).AddDate(0, 0, -delta)
}

// StartOfMonth returns midnight of the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns the last nanosecond of t's month.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// WindowFor computes the window displayed for ref. ref is read in its own
// location, so callers pass it already expressed in the display zone.
// Unknown granularities are treated as Month.
func WindowFor(ref time.Time, g Granularity, weekStart time.Weekday) TimeWindow {
	switch g {
	case Day:
		return TimeWindow{Start: StartOfDay(ref), End: EndOfDay(ref), Granularity: Day}
	case Week:
		start := StartOfWeek(ref, weekStart)
		return TimeWindow{Start: start, End: EndOfDay(start.AddDate(0, 0, 6)), Granularity: Week}
	default:
		return TimeWindow{Start: StartOfMonth(ref), End: EndOfMonth(ref), Granularity: Month}
	}
}

// Filter keeps events whose start lies in w. Events with an empty or
// inverted range never pass. Input order is preserved and the result is
// never nil.
func Filter(events []NormalizedEvent, w TimeWindow) []NormalizedEvent {
	out := make([]NormalizedEvent, 0, len(events))
	for _, ev := range events {
		if !ev.Start.Before(ev.End) {
			continue
		}
		if w.Contains(ev.Start) {
			out = append(out, ev)
		}
	}
	return out
}

// Step moves ref by delta units of g: days, weeks (7 days) or months.
// Month steps clamp the day to the target month's length, so Jan 31 + 1
// month is the last day of February.
func Step(ref time.Time, g Granularity, delta int) time.Time {
	switch g {
	case Day:
		return ref.AddDate(0, 0, delta)
	case Week:
		return ref.AddDate(0, 0, 7*delta)
	default:
		y, m, d := ref.Date()
		first := time.Date(y, m+time.Month(delta), 1, ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
		if last := daysIn(first); d > last {
			d = last
		}
		return first.AddDate(0, 0, d-1)
	}
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DayCell is one square of the month grid.
type DayCell struct {
	Date    time.Time
	Key     string
	InMonth bool
	Events  []NormalizedEvent
}

// MonthGrid returns the whole weeks covering ref's month, including the
// leading and trailing days of adjacent months.
func MonthGrid(ref time.Time, weekStart time.Weekday) []time.Time {
	first := StartOfWeek(StartOfMonth(ref), weekStart)
	last := StartOfWeek(EndOfMonth(ref), weekStart).AddDate(0, 0, 6)

	days := make([]time.Time, 0, 42)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DayKey is the display-zone date of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}

// BucketByDay groups events by the date of their start.
func BucketByDay(events []NormalizedEvent) map[string][]NormalizedEvent {
	buckets := make(map[string][]NormalizedEvent)
	for _, ev := range events {
		key := DayKey(ev.Start)
		buckets[key] = append(buckets[key], ev)
	}
	return buckets
}

// MonthCells fills the month grid for ref with events keyed by their own
// start date. Events are not window-filtered: a leading day of the previous
// month shows that day's events.
func MonthCells(ref time.Time, weekStart time.Weekday, events []NormalizedEvent) []DayCell {
	buckets := BucketByDay(events)
	_, month, _ := ref.Date()

	days := MonthGrid(ref, weekStart)
	cells := make([]DayCell, 0, len(days))
	for _, d := range days {
		key := DayKey(d)
		cells = append(cells, DayCell{
			Date:    d,
			Key:     key,
			InMonth: d.Month() == month,
			Events:  buckets[key],
		})
	}
	return cells
}
