package calendar

import (
	"time"

	"campuscal/internal/model"
)

// View is the navigation state of one calendar screen. It is passed in
// explicitly so every step of a render stays a pure function of its input.
type View struct {
	// ReferenceDate picks the day/week/month shown. Only its calendar date
	// (in its own location) is used.
	ReferenceDate time.Time
	Granularity   Granularity
	DisplayZone   *time.Location
	// WeekStart is the first column of week and month views. The zero value
	// is Sunday; NewView sets Monday.
	WeekStart time.Weekday
}

// NewView returns a Monday-based view.
func NewView(ref time.Time, g Granularity, zone *time.Location) View {
	return View{ReferenceDate: ref, Granularity: g, DisplayZone: zone, WeekStart: time.Monday}
}

// Reference is the reference date at midnight in the display zone.
func (v View) Reference() time.Time {
	y, m, d := v.ReferenceDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, v.zone())
}

// Window is the TimeWindow this view displays.
func (v View) Window() TimeWindow {
	return WindowFor(v.Reference(), v.Granularity, v.WeekStart)
}

// Next and Prev move the view by one unit of its granularity.
func (v View) Next() View { return v.step(1) }
func (v View) Prev() View { return v.step(-1) }

func (v View) step(delta int) View {
	v.ReferenceDate = Step(v.Reference(), v.Granularity, delta)
	return v
}

func (v View) zone() *time.Location {
	if v.DisplayZone == nil {
		return time.UTC
	}
	return v.DisplayZone
}

// Result is everything a renderer needs for one view.
type Result struct {
	Window TimeWindow
	// Events are the normalized events whose start falls in Window.
	Events []NormalizedEvent
	// Positions is set for day and week views.
	Positions []LayoutPosition
	// Cells is set for month views.
	Cells []DayCell
}

// Render runs the full pipeline: normalize into the display zone, window,
// filter and lay out.
func Render(events []model.Event, v View) Result {
	normalized := NormalizeAll(events, v.zone())
	window := v.Window()
	visible := Filter(normalized, window)

	res := Result{Window: window, Events: visible}
	switch window.Granularity {
	case Day:
		res.Positions = LayoutDay(visible)
	case Week:
		res.Positions = LayoutWeekFrom(visible, v.WeekStart)
	default:
		res.Cells = MonthCells(v.Reference(), v.WeekStart, normalized)
	}
	return res
}
