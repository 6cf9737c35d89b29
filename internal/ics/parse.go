package ics

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
	"campuscal/internal/recurrence"
)

const (
	icsDateTime    = "20060102T150405"
	icsDateTimeUTC = "20060102T150405Z"
	icsDate        = "20060102"

	wallClock = "2006-01-02T15:04:05"
)

// ParseFeed maps the VEVENTs of an iCalendar document to event records.
//
// Imported events are approved, keyed "<feed>:<uid>" and keep their RRULE
// unexpanded. A DTSTART with a TZID is stored as wall-clock time in that
// zone; UTC values are stored with an offset; floating values carry no
// zone. Cancelled events and VEVENTs without UID or DTSTART are skipped.
func ParseFeed(feed Feed, r io.Reader) ([]model.Event, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feed.ID, err)
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		ev, err := mapVEvent(feed, ve)
		if err != nil {
			appLog.Error("skipping vevent", err, "feed", feed.ID)
			continue
		}
		if ev == nil {
			continue
		}
		events = append(events, *ev)
	}

	appLog.Info("feed parsed", "feed", feed.ID, "event_count", len(events))
	return events, nil
}

func mapVEvent(feed Feed, ve *ical.VEvent) (*model.Event, error) {
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return nil, nil
	}

	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return nil, errors.New("missing UID")
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return nil, fmt.Errorf("vevent %s: missing DTSTART", uid)
	}
	start, err := parseStamp(startProp)
	if err != nil {
		return nil, fmt.Errorf("vevent %s: DTSTART: %w", uid, err)
	}

	end := start
	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		if end, err = parseStamp(endProp); err != nil {
			return nil, fmt.Errorf("vevent %s: DTEND: %w", uid, err)
		}
	} else if start.allDay {
		end = stamp{at: start.at.AddDate(0, 0, 1), zone: start.zone, allDay: true}
	}

	id := feed.ID + ":" + uid
	if rid := propValue(ve, "RECURRENCE-ID"); rid != "" {
		id += ":" + rid
	}

	organizer := feed.Name
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		if cn := p.ICalParameters["CN"]; len(cn) > 0 && cn[0] != "" {
			organizer = cn[0]
		}
	}

	ev := &model.Event{
		ID:          id,
		Title:       unescapeText(propValue(ve, ical.ComponentPropertySummary)),
		Date:        start.at.Format(time.DateOnly),
		Status:      model.StatusApproved,
		Organizer:   organizer,
		Description: unescapeText(propValue(ve, ical.ComponentPropertyDescription)),
		Start:       start.String(),
		End:         end.String(),
		TimeZone:    start.zone,
		SourceID:    feed.ID,
	}

	if cats := splitList(propValue(ve, ical.ComponentPropertyCategories)); len(cats) > 0 {
		ev.Category = cats[0]
		ev.Tags = cats[1:]
	}
	if geo := parseGeo(propValue(ve, ical.ComponentPropertyGeo)); geo != nil {
		ev.Location = geo
	}
	if rule := propValue(ve, ical.ComponentPropertyRrule); rule != "" {
		if err := recurrence.Validate(rule); err != nil {
			appLog.Error("dropping invalid RRULE", err, "feed", feed.ID, "uid", uid)
		} else {
			ev.RRule = rule
		}
	}

	return ev, nil
}

// stamp is a parsed DTSTART/DTEND value.
type stamp struct {
	at     time.Time
	zone   string // TZID, empty for UTC and floating values
	utc    bool
	allDay bool
}

// String formats the stamp the way event records store timestamps.
func (s stamp) String() string {
	switch {
	case s.allDay:
		return s.at.Format(time.DateOnly)
	case s.utc:
		return s.at.Format(time.RFC3339)
	default:
		return s.at.Format(wallClock)
	}
}

func parseStamp(p *ical.IANAProperty) (stamp, error) {
	v := strings.TrimSpace(p.Value)
	var s stamp
	if tz := p.ICalParameters["TZID"]; len(tz) > 0 {
		s.zone = tz[0]
	}
	isDate := !strings.Contains(v, "T")
	if vt := p.ICalParameters["VALUE"]; len(vt) > 0 && strings.EqualFold(vt[0], "DATE") {
		isDate = true
	}

	var err error
	switch {
	case isDate:
		s.allDay = true
		s.at, err = time.Parse(icsDate, v)
	case strings.HasSuffix(v, "Z"):
		s.utc = true
		s.zone = ""
		s.at, err = time.Parse(icsDateTimeUTC, v)
	default:
		s.at, err = time.Parse(icsDateTime, v)
	}
	return s, err
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, ",", `\;`, ";", `\n`, "\n", `\N`, "\n")

func unescapeText(v string) string {
	return textUnescaper.Replace(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseGeo reads a GEO value "lat;lng".
func parseGeo(v string) *model.GeoPoint {
	lat, lng, ok := strings.Cut(v, ";")
	if !ok {
		return nil
	}
	la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	lo, err2 := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &model.GeoPoint{Lat: la, Lng: lo}
}
