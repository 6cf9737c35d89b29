package refresh

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscal/internal/ics"
	"campuscal/internal/model"
	"campuscal/internal/store"
)

const feedBody = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Library//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:hours-1\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART:20250310T150000Z\r\n" +
	"DTEND:20250310T160000Z\r\n" +
	"SUMMARY:Study hall\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type fakeFetcher struct {
	bodies map[string]string
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, feed ics.Feed) (ics.Payload, error) {
	f.calls++
	body, ok := f.bodies[feed.ID]
	if !ok {
		return ics.Payload{}, errors.New("unreachable")
	}
	return ics.Payload{Feed: feed, Body: []byte(body)}, nil
}

func TestRefresher_Run(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "events.json"))
	_, err := st.Create(model.Event{Title: "Local"})
	require.NoError(t, err)

	fetcher := &fakeFetcher{bodies: map[string]string{"library": feedBody}}
	r := New(st, fetcher, []ics.Feed{{ID: "library", Name: "Library"}, {ID: "down"}})

	assert.Empty(t, r.Snapshot().Events)

	rep := r.Run(context.Background())

	assert.Equal(t, 2, rep.Feeds)
	assert.Equal(t, 1, rep.Imported)
	require.Error(t, rep.Err)
	assert.Contains(t, rep.Err.Error(), "feed down")

	snap := r.Snapshot()
	require.Len(t, snap.Events, 2)
	assert.Equal(t, "Local", snap.Events[0].Title)
	assert.Equal(t, "library:hours-1", snap.Events[1].ID)
	assert.False(t, snap.LoadedAt.IsZero())

	// Re-running does not duplicate imported events.
	r.Run(context.Background())
	assert.Len(t, r.Snapshot().Events, 2)
	assert.Equal(t, 4, fetcher.calls)
}

func TestRefresher_ReloadKeepsSnapshotOnError(t *testing.T) {
	st := &brokenStore{}
	r := New(st, &fakeFetcher{}, nil)
	before := r.Snapshot()

	err := r.Reload()

	assert.Error(t, err)
	assert.Same(t, before, r.Snapshot())
}

func TestRefresher_Schedule(t *testing.T) {
	r := New(&brokenStore{}, &fakeFetcher{}, nil)

	c, err := r.Schedule(context.Background(), "*/5 * * * *")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = r.Schedule(context.Background(), "every now and then")
	assert.Error(t, err)
}

type brokenStore struct{}

func (brokenStore) List() ([]model.Event, error) { return nil, errors.New("disk on fire") }

func (brokenStore) ReplaceSource(string, []model.Event) error { return errors.New("disk on fire") }
