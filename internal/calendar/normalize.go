package calendar

import (
	"errors"
	"strings"
	"time"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

// NormalizedEvent is an Event whose Start/End have been resolved to instants
// and re-expressed in the display zone. Start is always strictly before End.
type NormalizedEvent struct {
	Event model.Event
	Start time.Time
	End   time.Time
}

// wallClockLayouts are accepted for timestamps without a UTC offset. Such a
// timestamp is read in the event's origin zone. Fractional seconds are
// accepted by the layouts that carry seconds.
var wallClockLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var errEmptyTimestamp = errors.New("empty timestamp")

// ParseInstant parses a stored timestamp. Values carrying an offset
// (RFC 3339) are absolute; wall-clock values are interpreted in origin.
func ParseInstant(value string, origin *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errEmptyTimestamp
	}
	if origin == nil {
		origin = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	var lastErr error
	for _, layout := range wallClockLayouts {
		t, err := time.ParseInLocation(layout, value, origin)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Normalize converts ev into display. The event's own TimeZone is used to
// read wall-clock timestamps; when absent, display is assumed.
//
// ok is false when a timestamp does not parse, the origin zone is unknown,
// or the range is empty or inverted. Such events are skipped by callers.
func Normalize(ev model.Event, display *time.Location) (NormalizedEvent, bool) {
	return normalizeWith(ev, display, nil)
}

// NormalizeAll normalizes events in input order, dropping invalid ones.
// The result is never nil.
func NormalizeAll(events []model.Event, display *time.Location) []NormalizedEvent {
	zones := make(map[string]*time.Location)
	out := make([]NormalizedEvent, 0, len(events))
	for _, ev := range events {
		if ne, ok := normalizeWith(ev, display, zones); ok {
			out = append(out, ne)
		}
	}
	return out
}

// normalizeWith is Normalize with an optional per-call zone cache.
func normalizeWith(ev model.Event, display *time.Location, zones map[string]*time.Location) (NormalizedEvent, bool) {
	if display == nil {
		display = time.UTC
	}

	origin := display
	if name := strings.TrimSpace(ev.TimeZone); name != "" {
		loc, err := lookupZone(name, zones)
		if err != nil {
			appLog.Debug("calendar: dropping event with unknown zone", "id", ev.ID, "timezone", name)
			return NormalizedEvent{}, false
		}
		origin = loc
	}

	start, err := ParseInstant(ev.Start, origin)
	if err != nil {
		appLog.Debug("calendar: dropping event with bad start", "id", ev.ID, "start", ev.Start)
		return NormalizedEvent{}, false
	}
	end, err := ParseInstant(ev.End, origin)
	if err != nil {
		appLog.Debug("calendar: dropping event with bad end", "id", ev.ID, "end", ev.End)
		return NormalizedEvent{}, false
	}
	if !start.Before(end) {
		appLog.Debug("calendar: dropping event with empty range", "id", ev.ID, "start", ev.Start, "end", ev.End)
		return NormalizedEvent{}, false
	}

	return NormalizedEvent{
		Event: ev,
		Start: start.In(display),
		End:   end.In(display),
	}, true
}

func lookupZone(name string, zones map[string]*time.Location) (*time.Location, error) {
	if zones != nil {
		if loc, ok := zones[name]; ok {
			return loc, nil
		}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	if zones != nil {
		zones[name] = loc
	}
	return loc, nil
}
