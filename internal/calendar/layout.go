package calendar

import (
	"slices"
	"time"
)

// NoDay is the Day value of positions produced by LayoutDay.
const NoDay = -1

// LayoutPosition places one event in a time grid. Column < Columns, and
// Columns is the size of the overlap group the event was assigned to.
type LayoutPosition struct {
	Event NormalizedEvent

	// Group is the index of the overlap group, in creation order. In week
	// layouts it restarts at 0 for each day.
	Group   int
	Column  int
	Columns int

	// Day is the 0-based day of the week relative to the week start
	// (0=Monday..6=Sunday by default), or NoDay for day layouts.
	Day int
}

// overlaps uses half-open ranges: an event ending exactly when another
// starts does not overlap it.
func overlaps(a, b NormalizedEvent) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// LayoutDay assigns columns to events rendered in a single day column.
//
// Events are stably sorted by start, then each goes into the first existing
// group none of whose members overlaps it, or into a new group. Every
// member of a group of size N gets Columns=N and its position in the group
// as Column. This is first-fit, not a minimum coloring: some inputs produce
// wider groups than strictly needed, and callers rely on exactly that.
func LayoutDay(events []NormalizedEvent) []LayoutPosition {
	return layoutGroups(events, NoDay)
}

// LayoutWeek lays out a Monday-based week.
func LayoutWeek(events []NormalizedEvent) []LayoutPosition {
	return LayoutWeekFrom(events, time.Monday)
}

// LayoutWeekFrom buckets events by the weekday of their start relative to
// weekStart, lays out each day independently with LayoutDay's algorithm and
// concatenates the days in ascending order.
func LayoutWeekFrom(events []NormalizedEvent, weekStart time.Weekday) []LayoutPosition {
	var byDay [7][]NormalizedEvent
	for _, ev := range events {
		day := WeekdayIndex(ev.Start, weekStart)
		byDay[day] = append(byDay[day], ev)
	}

	positions := make([]LayoutPosition, 0, len(events))
	for day, evs := range byDay {
		if len(evs) == 0 {
			continue
		}
		positions = append(positions, layoutGroups(evs, day)...)
	}
	return positions
}

// WeekdayIndex is t's day offset from weekStart, 0..6.
func WeekdayIndex(t time.Time, weekStart time.Weekday) int {
	return (int(t.Weekday()) - int(weekStart) + 7) % 7
}

func layoutGroups(events []NormalizedEvent, day int) []LayoutPosition {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b NormalizedEvent) int {
		return a.Start.Compare(b.Start)
	})

	var groups [][]NormalizedEvent
	for _, ev := range sorted {
		placed := false
		for gi, grp := range groups {
			if !overlapsAny(grp, ev) {
				groups[gi] = append(grp, ev)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []NormalizedEvent{ev})
		}
	}

	positions := make([]LayoutPosition, 0, len(sorted))
	for gi, grp := range groups {
		for col, ev := range grp {
			positions = append(positions, LayoutPosition{
				Event:   ev,
				Group:   gi,
				Column:  col,
				Columns: len(grp),
				Day:     day,
			})
		}
	}
	return positions
}

func overlapsAny(grp []NormalizedEvent, ev NormalizedEvent) bool {
	for _, member := range grp {
		if overlaps(member, ev) {
			return true
		}
	}
	return false
}
