package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"campuscal/internal/calendar"
	"campuscal/internal/model"
	"campuscal/internal/recurrence"
	"campuscal/internal/store"
)

const maxBodySize = 1 << 20

// eventForm is the create payload: an event plus the repeat choices of the
// form, which are turned into the stored rrule.
type eventForm struct {
	model.Event
	Recurrence    string   `json:"recurrence"`
	WeekDays      []string `json:"weekDays"`
	MonthInterval int      `json:"monthInterval"`
}

// listEvents supports ?status=pending|template|... and ?flagged=true.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		events []model.Event
		err    error
	)
	switch {
	case q.Get("flagged") == "true" || q.Get("flagged") == "1":
		events, err = s.store.ListFlagged()
	case q.Get("status") != "":
		events, err = s.store.ListByStatus(q.Get("status"))
	default:
		events, err = s.store.List()
	}
	if err != nil {
		s.internalError(w, "failed to list events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var form eventForm
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(form.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	ev := form.Event
	loc, err := s.formZone(ev.TimeZone)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev.TimeZone = loc.String()
	if form.Recurrence != "" {
		_, rule, err := buildRule(form, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ev.RRule = rule
	}

	created, err := s.store.Create(ev)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.reload()
	writeJSON(w, http.StatusCreated, created)
}

// updateEvent merges the JSON body into the stored record: fields absent
// from the body keep their values.
func (s *Server) updateEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.store.Update(mux.Vars(r)["id"], func(ev *model.Event) error {
		return json.Unmarshal(body, ev)
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.reload()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(mux.Vars(r)["id"]); err != nil {
		s.storeError(w, err)
		return
	}
	s.reload()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reportEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.Report(mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.reload()
	writeJSON(w, http.StatusOK, ev)
}

type recurrenceResponse struct {
	RRule       string `json:"rrule"`
	Description string `json:"description"`
}

// previewRecurrence builds the rule the create form would store.
func (s *Server) previewRecurrence(w http.ResponseWriter, r *http.Request) {
	var form eventForm
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	loc, err := s.formZone(form.TimeZone)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, rule, err := buildRule(form, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recurrenceResponse{RRule: rule, Description: d.Describe()})
}

// formZone resolves the zone named on a form, defaulting to the configured
// display zone.
func (s *Server) formZone(name string) (*time.Location, error) {
	if name == "" {
		return s.cfg.Location(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.New("unknown timezone " + name)
	}
	return loc, nil
}

// buildRule validates the repeat choices and anchors the rule at the
// form's start, read in loc.
func buildRule(form eventForm, loc *time.Location) (recurrence.Descriptor, string, error) {
	freq, err := recurrence.ParseFrequency(form.Recurrence)
	if err != nil {
		return recurrence.Descriptor{}, "", err
	}
	var start time.Time
	if freq != recurrence.None {
		if start, err = calendar.ParseInstant(form.Start, loc); err != nil {
			return recurrence.Descriptor{}, "", errors.New("a valid start is required for a repeating event")
		}
	}
	d, err := recurrence.NewDescriptor(form.Recurrence, form.WeekDays, form.MonthInterval, start)
	if err != nil {
		return d, "", err
	}
	rule, err := recurrence.Build(d)
	return d, rule, err
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, recurrence.ErrInvalidRule) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.internalError(w, "event store failed", err)
}
