package calendar

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscal/internal/model"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestNormalize(t *testing.T) {
	paris := mustZone(t, "Europe/Paris")

	testCases := []struct {
		name      string
		event     model.Event
		wantOK    bool
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "offset timestamps are absolute",
			event:     model.Event{ID: "1", Start: "2025-03-10T09:00:00Z", End: "2025-03-10T10:00:00.000Z"},
			wantOK:    true,
			wantStart: time.Date(2025, 3, 10, 10, 0, 0, 0, paris),
			wantEnd:   time.Date(2025, 3, 10, 11, 0, 0, 0, paris),
		},
		{
			name:      "wall clock read in origin zone",
			event:     model.Event{ID: "2", Start: "2025-03-10T09:00", End: "2025-03-10T10:30", TimeZone: "America/New_York"},
			wantOK:    true,
			wantStart: time.Date(2025, 3, 10, 14, 0, 0, 0, paris),
			wantEnd:   time.Date(2025, 3, 10, 15, 30, 0, 0, paris),
		},
		{
			name:      "missing origin falls back to display zone",
			event:     model.Event{ID: "3", Start: "2025-03-10T09:00:00", End: "2025-03-10T10:00:00"},
			wantOK:    true,
			wantStart: time.Date(2025, 3, 10, 9, 0, 0, 0, paris),
			wantEnd:   time.Date(2025, 3, 10, 10, 0, 0, 0, paris),
		},
		{
			name:   "unparseable start",
			event:  model.Event{ID: "4", Start: "next tuesday", End: "2025-03-10T10:00:00Z"},
			wantOK: false,
		},
		{
			name:   "missing end",
			event:  model.Event{ID: "5", Start: "2025-03-10T09:00:00Z"},
			wantOK: false,
		},
		{
			name:   "unknown origin zone",
			event:  model.Event{ID: "6", Start: "2025-03-10T09:00", End: "2025-03-10T10:00", TimeZone: "Mars/Olympus"},
			wantOK: false,
		},
		{
			name:   "end equals start",
			event:  model.Event{ID: "7", Start: "2025-03-10T09:00:00Z", End: "2025-03-10T09:00:00Z"},
			wantOK: false,
		},
		{
			name:   "end before start",
			event:  model.Event{ID: "8", Start: "2025-03-10T09:00:00Z", End: "2025-03-10T08:00:00Z"},
			wantOK: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Normalize(tc.event, paris)

			require.Equal(t, tc.wantOK, ok)
			if !ok {
				return
			}
			assert.True(t, tc.wantStart.Equal(got.Start), "start %v, want %v", got.Start, tc.wantStart)
			assert.True(t, tc.wantEnd.Equal(got.End), "end %v, want %v", got.End, tc.wantEnd)
			assert.Equal(t, paris, got.Start.Location())
			assert.Equal(t, tc.event.ID, got.Event.ID)
		})
	}
}

func TestNormalize_LocalCalendarDate(t *testing.T) {
	seoul := mustZone(t, "Asia/Seoul")

	got, ok := Normalize(model.Event{ID: "late", Start: "2025-03-10T23:30:00Z", End: "2025-03-11T00:30:00Z"}, seoul)

	require.True(t, ok)
	assert.Equal(t, 11, got.Start.Day())
	assert.Equal(t, 8, got.Start.Hour())
}

func TestNormalizeAll(t *testing.T) {
	events := []model.Event{
		{ID: "b", Start: "2025-03-10T11:00:00Z", End: "2025-03-10T12:00:00Z"},
		{ID: "bad", Start: "garbage", End: "2025-03-10T12:00:00Z"},
		{ID: "a", Start: "2025-03-10T09:00", End: "2025-03-10T10:00", TimeZone: "Europe/Paris"},
		{ID: "c", Start: "2025-03-10T13:00", End: "2025-03-10T14:00", TimeZone: "Europe/Paris"},
	}

	got := NormalizeAll(events, time.UTC)

	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Event.ID)
	assert.Equal(t, "a", got[1].Event.ID)
	assert.Equal(t, "c", got[2].Event.ID)
	assert.Equal(t, 8, got[1].Start.Hour())
}

func TestNormalizeAll_Empty(t *testing.T) {
	got := NormalizeAll(nil, time.UTC)

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseInstant(t *testing.T) {
	boise := mustZone(t, "America/Boise")

	got, err := ParseInstant("2025-07-04", boise)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 7, 4, 0, 0, 0, 0, boise).Equal(got))

	got, err = ParseInstant(" 2025-07-04 18:30 ", boise)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 7, 4, 18, 30, 0, 0, boise).Equal(got))

	got, err = ParseInstant("2025-07-04T18:30:00+02:00", boise)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 7, 4, 16, 30, 0, 0, time.UTC).Equal(got))

	_, err = ParseInstant("", boise)
	assert.Error(t, err)
}
