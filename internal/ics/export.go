package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"campuscal/internal/calendar"
	"campuscal/internal/model"
	"campuscal/internal/recurrence"
)

const productID = "-//campuscal//events//EN"

// Export writes events as a published iCalendar document. Timestamps are
// resolved like the calendar views do (own zone first, then display) and
// written in UTC; events that do not normalize are left out. Stored rules
// are emitted as RRULE without expansion.
func Export(w io.Writer, events []model.Event, display *time.Location, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	for _, ne := range calendar.NormalizeAll(events, display) {
		ev := ne.Event
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(now.UTC())
		ve.SetStartAt(ne.Start.UTC())
		ve.SetEndAt(ne.End.UTC())
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if cats := categories(ev); len(cats) > 0 {
			ve.AddProperty(ical.ComponentPropertyCategories, strings.Join(cats, ","))
		}
		if ev.Location != nil {
			ve.AddProperty(ical.ComponentPropertyGeo, fmt.Sprintf("%g;%g", ev.Location.Lat, ev.Location.Lng))
		}
		if rule := recurrence.RuleLine(ev.RRule); rule != "" {
			ve.AddProperty(ical.ComponentPropertyRrule, rule)
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

func categories(ev model.Event) []string {
	var out []string
	if ev.Category != "" {
		out = append(out, ev.Category)
	}
	return append(out, ev.Tags...)
}
