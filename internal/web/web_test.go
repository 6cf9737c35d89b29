package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscal/internal/config"
	"campuscal/internal/ics"
	"campuscal/internal/model"
	"campuscal/internal/refresh"
	"campuscal/internal/store"
)

type testServer struct {
	*Server
	handler http.Handler
}

func setupServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Timezone = "America/Boise"
	cfg.DataDir = dir
	if mutate != nil {
		mutate(cfg)
	}

	st := store.New(filepath.Join(dir, "events.json"))
	rf := refresh.New(st, ics.NewFetcher(filepath.Join(dir, "cache"), nil), nil)
	s := NewServer(cfg, st, rf)
	s.now = func() time.Time { return time.Date(2025, 3, 12, 17, 0, 0, 0, time.UTC) }

	return &testServer{Server: s, handler: s.Handler()}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := setupServer(t, nil)

	w := ts.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok\n", w.Body.String())
}

func TestBasicAuth(t *testing.T) {
	ts := setupServer(t, func(c *config.Config) {
		c.BasicAuth = config.BasicAuthConfig{Username: "admin", Password: "s3cret"}
	})

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil).Code)

	w := ts.do(t, http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "wrong")
	w = httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "s3cret")
	w = httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEventLifecycle(t *testing.T) {
	ts := setupServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/events", map[string]any{
		"title":      "Yoga",
		"start":      "2025-03-10T07:00",
		"end":        "2025-03-10T08:00",
		"recurrence": "weekly",
		"weekDays":   []string{"FR", "MO", "WE"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[model.Event](t, w)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "America/Boise", created.TimeZone)
	assert.Equal(t, model.StatusPending, created.Status)
	assert.Equal(t, "Unknown", created.Organizer)
	assert.Equal(t, "DTSTART:20250310T130000Z\nRRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR", created.RRule)

	w = ts.do(t, http.MethodPut, "/api/events/"+created.ID, map[string]any{"status": "approved", "id": "other"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[model.Event](t, w)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, model.StatusApproved, updated.Status)
	assert.Equal(t, "Yoga", updated.Title)

	w = ts.do(t, http.MethodPost, "/api/events/"+created.ID+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[model.Event](t, w).Flagged)

	w = ts.do(t, http.MethodGet, "/api/events?flagged=true", nil)
	assert.Len(t, decode[[]model.Event](t, w), 1)

	w = ts.do(t, http.MethodDelete, "/api/events/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/events/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, ts.refresher.Snapshot().Events)
}

func TestCreateEvent_Validation(t *testing.T) {
	ts := setupServer(t, nil)

	testCases := []struct {
		name string
		body any
	}{
		{name: "missing title", body: map[string]any{"start": "2025-03-10T07:00"}},
		{name: "bad weekday", body: map[string]any{"title": "x", "start": "2025-03-10T07:00", "recurrence": "weekly", "weekDays": []string{"XX"}}},
		{name: "bad frequency", body: map[string]any{"title": "x", "start": "2025-03-10T07:00", "recurrence": "yearly"}},
		{name: "repeat without start", body: map[string]any{"title": "x", "recurrence": "daily"}},
		{name: "bad stored rule", body: map[string]any{"title": "x", "rrule": "FREQ=SOMETIMES"}},
		{name: "unknown zone", body: map[string]any{"title": "x", "start": "2025-03-10T07:00", "timezone": "Mars/Olympus"}},
		{name: "not an object", body: []int{1, 2}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/events", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestUpdateEvent_Errors(t *testing.T) {
	ts := setupServer(t, nil)

	w := ts.do(t, http.MethodPut, "/api/events/missing", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	created, err := ts.store.Create(model.Event{Title: "x"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/events/"+created.ID, strings.NewReader("{oops"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = ts.do(t, http.MethodPut, "/api/events/"+created.ID, map[string]any{"reportCount": "many"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func seedCalendar(t *testing.T, ts *testServer) {
	t.Helper()
	for _, ev := range []model.Event{
		{Title: "Standup", Start: "2025-03-10T09:00", End: "2025-03-10T09:30", TimeZone: "America/Boise", Status: model.StatusApproved},
		{Title: "Review", Start: "2025-03-10T09:15", End: "2025-03-10T10:00", TimeZone: "America/Boise"},
		{Title: "Club fair", Start: "2025-03-12T12:00", End: "2025-03-12T14:00", TimeZone: "America/Boise", Status: model.StatusApproved},
	} {
		_, err := ts.store.Create(ev)
		require.NoError(t, err)
	}
	require.NoError(t, ts.refresher.Reload())
}

func TestCalendar_Week(t *testing.T) {
	ts := setupServer(t, nil)
	seedCalendar(t, ts)

	w := ts.do(t, http.MethodGet, "/api/calendar?view=week&date=2025-03-12", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[calendarResponse](t, w)

	assert.Equal(t, "week", resp.View)
	assert.Equal(t, "America/Boise", resp.TimeZone)
	assert.Equal(t, "Monday", resp.WeekStart)
	assert.Equal(t, "2025-03-05", resp.Prev)
	assert.Equal(t, "2025-03-19", resp.Next)
	assert.Len(t, resp.Events, 3)
	require.Len(t, resp.Positions, 3)

	titles := make([]string, 0, 3)
	for _, p := range resp.Positions {
		titles = append(titles, p.Title)
		require.NotNil(t, p.Day)
	}
	assert.Equal(t, []string{"Standup", "Review", "Club fair"}, titles)
	assert.Equal(t, 0, *resp.Positions[0].Day)
	assert.Equal(t, 1, resp.Positions[1].Group)
	assert.Equal(t, 2, *resp.Positions[2].Day)
	assert.Nil(t, resp.Days)
}

func TestCalendar_DayAndMonth(t *testing.T) {
	ts := setupServer(t, nil)
	seedCalendar(t, ts)

	w := ts.do(t, http.MethodGet, "/api/calendar?view=day&date=2025-03-10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"day":`)
	day := decode[calendarResponse](t, w)
	assert.Len(t, day.Positions, 2)

	w = ts.do(t, http.MethodGet, "/api/calendar?view=month&date=2025-03-01&status=approved", nil)
	require.Equal(t, http.StatusOK, w.Code)
	month := decode[calendarResponse](t, w)
	assert.Len(t, month.Days, 42)
	assert.Len(t, month.Events, 2)
	for _, d := range month.Days {
		if d.Date == "2025-03-12" {
			assert.Len(t, d.EventIDs, 1)
		}
	}
}

func TestCalendar_DefaultsAndErrors(t *testing.T) {
	ts := setupServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/calendar", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[calendarResponse](t, w)
	assert.Equal(t, "week", resp.View)
	assert.Equal(t, "2025-03-12", resp.Date)
	assert.NotNil(t, resp.Events)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/calendar?view=year", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/calendar?tz=Mars/Olympus", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/calendar?date=12/03/2025", nil).Code)
}

func TestMisconfiguredZoneUsesUTC(t *testing.T) {
	ts := setupServer(t, func(cfg *config.Config) { cfg.Timezone = "Mars/Olympus" })

	w := ts.do(t, http.MethodGet, "/api/calendar", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "UTC", decode[calendarResponse](t, w).TimeZone)

	w = ts.do(t, http.MethodPost, "/api/events", map[string]any{
		"title": "Lab",
		"start": "2025-03-12T15:00",
		"end":   "2025-03-12T16:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "UTC", decode[model.Event](t, w).TimeZone)

	w = ts.do(t, http.MethodGet, "/api/calendar?view=day&date=2025-03-12&tz=UTC", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[calendarResponse](t, w)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "Lab", resp.Events[0].Title)
}

func TestPreviewRecurrence(t *testing.T) {
	ts := setupServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/recurrence", map[string]any{
		"start":         "2025-01-06T09:00:00Z",
		"recurrence":    "monthly",
		"monthInterval": 0,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[recurrenceResponse](t, w)
	assert.Equal(t, "DTSTART:20250106T090000Z\nRRULE:FREQ=MONTHLY;INTERVAL=1", resp.RRule)
	assert.Equal(t, "monthly (every 1 month(s))", resp.Description)

	w = ts.do(t, http.MethodPost, "/api/recurrence", map[string]any{"recurrence": "none"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[recurrenceResponse](t, w).RRule)
}

func TestICSAndStats(t *testing.T) {
	ts := setupServer(t, nil)
	seedCalendar(t, ts)

	w := ts.do(t, http.MethodGet, "/calendar.ics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "SUMMARY:Standup")
	assert.Contains(t, body, "SUMMARY:Club fair")
	assert.NotContains(t, body, "SUMMARY:Review")

	w = ts.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	counts := decode[store.Counts](t, w)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 1, counts.Pending)
}

func TestRefreshEndpoint(t *testing.T) {
	ts := setupServer(t, nil)
	_, err := ts.store.Create(model.Event{Title: "Written behind our back"})
	require.NoError(t, err)

	w := ts.do(t, http.MethodPost, "/api/refresh", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, refreshResponse{}, decode[refreshResponse](t, w))
	assert.Len(t, ts.refresher.Snapshot().Events, 1)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := setupServer(t, nil)

	w := ts.do(t, http.MethodPatch, "/api/events", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
