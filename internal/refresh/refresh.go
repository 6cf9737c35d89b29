// Package refresh keeps an in-memory snapshot of the events file current and
// imports the configured ICS feeds on a cron schedule.
package refresh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"campuscal/internal/ics"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

// Store is the part of the events store the refresher needs.
type Store interface {
	List() ([]model.Event, error)
	ReplaceSource(sourceID string, events []model.Event) error
}

// Fetcher downloads a feed body.
type Fetcher interface {
	Fetch(ctx context.Context, feed ics.Feed) (ics.Payload, error)
}

// Snapshot is an immutable copy of the stored events. Callers must not
// modify Events.
type Snapshot struct {
	Events   []model.Event
	LoadedAt time.Time
}

// Report summarizes one refresh run.
type Report struct {
	Feeds    int
	Imported int
	Err      error
}

// Refresher owns the current snapshot. Readers never block on a refresh.
type Refresher struct {
	store   Store
	fetcher Fetcher
	feeds   []ics.Feed

	snap atomic.Pointer[Snapshot]
	run  sync.Mutex
	now  func() time.Time
}

func New(st Store, fetcher Fetcher, feeds []ics.Feed) *Refresher {
	r := &Refresher{store: st, fetcher: fetcher, feeds: feeds, now: time.Now}
	r.snap.Store(&Snapshot{Events: []model.Event{}})
	return r
}

// Snapshot returns the latest loaded snapshot. Before the first Reload it
// is empty.
func (r *Refresher) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Reload re-reads the store and swaps the snapshot. On error the previous
// snapshot stays in place.
func (r *Refresher) Reload() error {
	events, err := r.store.List()
	if err != nil {
		return fmt.Errorf("reload events: %w", err)
	}
	r.snap.Store(&Snapshot{Events: events, LoadedAt: r.now()})
	appLog.Debug("snapshot reloaded", "event_count", len(events))
	return nil
}

// Run imports every feed and then reloads the snapshot. A failing feed does
// not stop the others; its previously imported events are kept.
// Concurrent calls are serialized.
func (r *Refresher) Run(ctx context.Context) Report {
	r.run.Lock()
	defer r.run.Unlock()

	rep := Report{Feeds: len(r.feeds)}
	var errs []error
	for _, feed := range r.feeds {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, err := r.importFeed(ctx, feed)
		if err != nil {
			appLog.Error("feed import failed", err, "feed", feed.ID)
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.ID, err))
			continue
		}
		rep.Imported += n
	}
	if err := r.Reload(); err != nil {
		errs = append(errs, err)
	}
	rep.Err = errors.Join(errs...)

	appLog.Info("refresh completed", "feeds", rep.Feeds, "imported", rep.Imported, "failed", len(errs))
	return rep
}

func (r *Refresher) importFeed(ctx context.Context, feed ics.Feed) (int, error) {
	payload, err := r.fetcher.Fetch(ctx, feed)
	if err != nil {
		return 0, err
	}
	events, err := ics.ParseFeed(feed, bytes.NewReader(payload.Body))
	if err != nil {
		return 0, err
	}
	if err := r.store.ReplaceSource(feed.ID, events); err != nil {
		return 0, err
	}
	return len(events), nil
}

// Schedule registers Run on spec (standard five-field cron syntax) and
// returns the unstarted scheduler. Overlapping runs are skipped.
func (r *Refresher) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() { r.Run(ctx) }); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return c, nil
}

// cronLogger routes cron's own logging through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
