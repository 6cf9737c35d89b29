// Package store persists event records in a flat JSON file.
//
// The file holds a single JSON array, pretty-printed with two-space
// indentation. Every call re-reads the file so edits made by other tools
// are picked up; writes replace the file atomically.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
	"campuscal/internal/recurrence"
)

var ErrNotFound = errors.New("event not found")

// Store is a file-backed event repository, safe for concurrent use within
// one process.
type Store struct {
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

// Counts is the dashboard summary.
type Counts struct {
	Total    int `json:"total"`
	Upcoming int `json:"upcoming"`
	Pending  int `json:"pending"`
}

// New returns a store backed by path. The file is created on first write.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path is the backing file.
func (s *Store) Path() string {
	return s.path
}

// List returns every event in file order.
func (s *Store) List() ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// ListByStatus returns events with the given moderation status.
func (s *Store) ListByStatus(status string) ([]model.Event, error) {
	return s.listWhere(func(ev model.Event) bool { return ev.Status == status })
}

// ListFlagged returns events flagged by users or heuristics.
func (s *Store) ListFlagged() ([]model.Event, error) {
	return s.listWhere(func(ev model.Event) bool { return ev.Flagged })
}

func (s *Store) listWhere(keep func(model.Event) bool) ([]model.Event, error) {
	events, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Get returns the event with id or ErrNotFound.
func (s *Store) Get(id string) (model.Event, error) {
	events, err := s.List()
	if err != nil {
		return model.Event{}, err
	}
	i := indexOf(events, id)
	if i < 0 {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return events[i], nil
}

// Create assigns a new ID and appends ev. Missing status defaults to
// pending, organizer to "Unknown" and date to the start date (or today).
func (s *Store) Create(ev model.Event) (model.Event, error) {
	if ev.RRule != "" {
		if err := recurrence.Validate(ev.RRule); err != nil {
			return model.Event{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load()
	if err != nil {
		return model.Event{}, err
	}

	ev.ID = uuid.NewString()
	s.applyDefaults(&ev)
	events = append(events, ev)

	if err := s.save(events); err != nil {
		return model.Event{}, err
	}
	appLog.Info("event created", "id", ev.ID, "title", ev.Title, "status", ev.Status)
	return ev, nil
}

// Update applies mutate to a copy of the stored event and saves the
// result. The ID cannot be changed.
func (s *Store) Update(id string, mutate func(*model.Event) error) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load()
	if err != nil {
		return model.Event{}, err
	}
	i := indexOf(events, id)
	if i < 0 {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated := events[i]
	updated.Tags = slices.Clone(updated.Tags)
	if err := mutate(&updated); err != nil {
		return model.Event{}, err
	}
	updated.ID = id
	if updated.RRule != "" && updated.RRule != events[i].RRule {
		if err := recurrence.Validate(updated.RRule); err != nil {
			return model.Event{}, err
		}
	}
	events[i] = updated

	if err := s.save(events); err != nil {
		return model.Event{}, err
	}
	return updated, nil
}

// Delete removes the event with id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(events, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.save(slices.Delete(events, i, i+1))
}

// Report records a user report: the count goes up and the event is flagged.
func (s *Store) Report(id string) (model.Event, error) {
	return s.Update(id, func(ev *model.Event) error {
		ev.ReportCount++
		ev.Flagged = true
		return nil
	})
}

// ReplaceSource swaps every event imported from sourceID for events, keeping
// other records untouched and in place. Imported events keep their IDs.
func (s *Store) ReplaceSource(sourceID string, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(current, func(ev model.Event) bool {
		return ev.SourceID == sourceID
	})
	for _, ev := range events {
		ev.SourceID = sourceID
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		s.applyDefaults(&ev)
		kept = append(kept, ev)
	}
	return s.save(kept)
}

// Counts returns total, upcoming (date on or after today) and pending counts.
func (s *Store) Counts() (Counts, error) {
	events, err := s.List()
	if err != nil {
		return Counts{}, err
	}
	today := s.now().Format(time.DateOnly)
	c := Counts{Total: len(events)}
	for _, ev := range events {
		if ev.Date >= today {
			c.Upcoming++
		}
		if ev.Status == model.StatusPending {
			c.Pending++
		}
	}
	return c, nil
}

func (s *Store) applyDefaults(ev *model.Event) {
	if ev.Status == "" {
		ev.Status = model.StatusPending
	}
	if ev.Organizer == "" {
		ev.Organizer = "Unknown"
	}
	if ev.Date == "" {
		if len(ev.Start) >= len(time.DateOnly) {
			ev.Date = ev.Start[:len(time.DateOnly)]
		} else {
			ev.Date = s.now().Format(time.DateOnly)
		}
	}
}

// load reads the file. A missing file is an empty store.
func (s *Store) load() ([]model.Event, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Event{}, nil
		}
		return nil, fmt.Errorf("read events: %w", err)
	}
	if len(data) == 0 {
		return []model.Event{}, nil
	}
	var events []model.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode events %s: %w", s.path, err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

func (s *Store) save(events []model.Event) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write to a temp file in the same directory, then rename over the target.
	tmp, err := os.CreateTemp(dir, ".events-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

func indexOf(events []model.Event, id string) int {
	return slices.IndexFunc(events, func(ev model.Event) bool { return ev.ID == id })
}
