// Package recurrence turns the recurrence choices of the event form into a
// canonical iCalendar recurrence rule. Rules are stored as opaque strings;
// nothing here expands them into occurrences.
package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Frequency is the repeat unit picked on the form.
type Frequency string

const (
	None    Frequency = "none"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

var (
	ErrInvalidFrequency = errors.New("invalid recurrence frequency")
	ErrInvalidWeekday   = errors.New("invalid weekday")
	ErrInvalidRule      = errors.New("invalid rrule")
	ErrMissingStart     = errors.New("recurrence needs a start")
)

// weekdayCodes in canonical (Monday-first) order.
var weekdayCodes = []string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

var weekdays = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// Descriptor is the structured form of a repeat rule. Build a new one
// whenever the inputs change; it is never mutated.
type Descriptor struct {
	Frequency Frequency
	// Weekdays holds canonical two-letter codes, Monday first, without
	// duplicates. Only used for Weekly.
	Weekdays []string
	// Interval is the month step, at least 1. Only used for Monthly.
	Interval int
	// Start anchors the rule (DTSTART).
	Start time.Time
}

// ParseFrequency accepts none/daily/weekly/monthly in any case; empty means None.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return None, nil
	case None, Daily, Weekly, Monthly:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}
}

// NewDescriptor validates form input. Weekday codes are case-insensitive
// and are sorted Monday-first with duplicates removed. A monthly interval
// below 1 is clamped to 1.
func NewDescriptor(freq string, days []string, interval int, start time.Time) (Descriptor, error) {
	f, err := ParseFrequency(freq)
	if err != nil {
		return Descriptor{}, err
	}

	selected := make(map[string]bool, len(days))
	for _, d := range days {
		code := strings.ToUpper(strings.TrimSpace(d))
		if _, ok := weekdays[code]; !ok {
			return Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidWeekday, d)
		}
		selected[code] = true
	}
	var canonical []string
	for _, code := range weekdayCodes {
		if selected[code] {
			canonical = append(canonical, code)
		}
	}

	return Descriptor{
		Frequency: f,
		Weekdays:  canonical,
		Interval:  max(interval, 1),
		Start:     start,
	}, nil
}

// Build serializes d as "DTSTART:<utc>\nRRULE:<rule>". It returns "" for
// None. The anchor is written in UTC so the same instant always yields the
// same string. Any other frequency needs a non-zero Start.
func Build(d Descriptor) (string, error) {
	if d.Frequency == None || d.Frequency == "" {
		return "", nil
	}
	if d.Start.IsZero() {
		return "", ErrMissingStart
	}
	opt := rrule.ROption{Dtstart: d.Start.UTC().Truncate(time.Second)}

	switch d.Frequency {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
		for _, code := range d.Weekdays {
			wd, ok := weekdays[code]
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrInvalidWeekday, code)
			}
			opt.Byweekday = append(opt.Byweekday, wd)
		}
	case Monthly:
		opt.Freq = rrule.MONTHLY
		opt.Interval = max(d.Interval, 1)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, d.Frequency)
	}

	if _, err := rrule.NewRRule(opt); err != nil {
		return "", fmt.Errorf("build rrule: %w", err)
	}
	return opt.String(), nil
}

// RuleLine returns the RRULE value of a stored rule, without the DTSTART
// line or the "RRULE:" prefix, as needed for an iCalendar RRULE property.
func RuleLine(rule string) string {
	for _, line := range strings.Split(rule, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "DTSTART") {
			continue
		}
		return strings.TrimPrefix(line, "RRULE:")
	}
	return ""
}

// Validate reports whether rule parses as a recurrence rule.
func Validate(rule string) error {
	if _, err := rrule.StrToRRule(rule); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidRule, rule, err)
	}
	return nil
}

// Describe is a short human summary, e.g. "weekly (on MO, WE)".
func (d Descriptor) Describe() string {
	switch d.Frequency {
	case Weekly:
		if len(d.Weekdays) > 0 {
			return "weekly (on " + strings.Join(d.Weekdays, ", ") + ")"
		}
		return "weekly"
	case Monthly:
		return fmt.Sprintf("monthly (every %d month(s))", max(d.Interval, 1))
	case Daily:
		return "daily"
	default:
		return "none"
	}
}

// Codes lists the accepted weekday codes, Monday first.
func Codes() []string {
	return slices.Clone(weekdayCodes)
}
