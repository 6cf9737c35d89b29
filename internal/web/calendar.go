package web

import (
	"net/http"
	"time"

	"campuscal/internal/calendar"
	"campuscal/internal/ics"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

type eventDTO struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Status   string    `json:"status"`
	Category string    `json:"category,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

type positionDTO struct {
	eventDTO
	Group   int  `json:"group"`
	Column  int  `json:"column"`
	Columns int  `json:"columns"`
	Day     *int `json:"day,omitempty"`
}

type dayDTO struct {
	Date     string   `json:"date"`
	InMonth  bool     `json:"inMonth"`
	EventIDs []string `json:"eventIds"`
}

type calendarResponse struct {
	View        string        `json:"view"`
	Date        string        `json:"date"`
	TimeZone    string        `json:"timezone"`
	WeekStart   string        `json:"weekStart"`
	WindowStart time.Time     `json:"windowStart"`
	WindowEnd   time.Time     `json:"windowEnd"`
	Prev        string        `json:"prev"`
	Next        string        `json:"next"`
	Events      []eventDTO    `json:"events"`
	Positions   []positionDTO `json:"positions,omitempty"`
	Days        []dayDTO      `json:"days,omitempty"`
}

// handleCalendar renders one view of the current snapshot.
//
//	GET /api/calendar?view=day|week|month&date=YYYY-MM-DD&tz=Zone&status=approved
//
// view defaults to week, date to today in tz, tz to the configured zone.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	g := calendar.Week
	if v := q.Get("view"); v != "" {
		parsed, err := calendar.ParseGranularity(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		g = parsed
	}

	zone := s.cfg.Location()
	if name := q.Get("tz"); name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown timezone "+name)
			return
		}
		zone = loc
	}

	ref := s.now().In(zone)
	if d := q.Get("date"); d != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, d, zone)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		ref = parsed
	}

	events := s.refresher.Snapshot().Events
	if status := q.Get("status"); status != "" {
		events = withStatus(events, status)
	}

	v := calendar.NewView(ref, g, zone)
	v.WeekStart = s.cfg.WeekStartDay()
	res := calendar.Render(events, v)

	writeJSON(w, http.StatusOK, toCalendarResponse(v, res))
}

func toCalendarResponse(v calendar.View, res calendar.Result) calendarResponse {
	resp := calendarResponse{
		View:        string(v.Granularity),
		Date:        calendar.DayKey(v.Reference()),
		TimeZone:    v.DisplayZone.String(),
		WeekStart:   v.WeekStart.String(),
		WindowStart: res.Window.Start,
		WindowEnd:   res.Window.End,
		Prev:        calendar.DayKey(v.Prev().Reference()),
		Next:        calendar.DayKey(v.Next().Reference()),
		Events:      make([]eventDTO, 0, len(res.Events)),
	}
	for _, ne := range res.Events {
		resp.Events = append(resp.Events, toEventDTO(ne))
	}
	for _, p := range res.Positions {
		dto := positionDTO{
			eventDTO: toEventDTO(p.Event),
			Group:    p.Group,
			Column:   p.Column,
			Columns:  p.Columns,
		}
		if p.Day != calendar.NoDay {
			day := p.Day
			dto.Day = &day
		}
		resp.Positions = append(resp.Positions, dto)
	}
	for _, c := range res.Cells {
		ids := make([]string, 0, len(c.Events))
		for _, ne := range c.Events {
			ids = append(ids, ne.Event.ID)
		}
		resp.Days = append(resp.Days, dayDTO{Date: c.Key, InMonth: c.InMonth, EventIDs: ids})
	}
	return resp
}

func toEventDTO(ne calendar.NormalizedEvent) eventDTO {
	return eventDTO{
		ID:       ne.Event.ID,
		Title:    ne.Event.Title,
		Status:   ne.Event.Status,
		Category: ne.Event.Category,
		Start:    ne.Start,
		End:      ne.End,
	}
}

// handleICS publishes the approved events as an iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	events := withStatus(s.refresher.Snapshot().Events, model.StatusApproved)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	if err := ics.Export(w, events, s.cfg.Location(), s.now()); err != nil {
		appLog.Error("calendar export failed", err)
	}
}

func withStatus(events []model.Event, status string) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Status == status {
			out = append(out, ev)
		}
	}
	return out
}
