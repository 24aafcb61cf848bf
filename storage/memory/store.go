// Package memory provides a map-backed Store implementation, used by tests
// and the example server.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/storage"
)

// Store implements storage.Store using in-memory maps.
type Store struct {
	mu         sync.RWMutex
	events     map[string]*storage.Event
	exceptions map[string]map[recurrence.Date]storage.Exception // key: eventID
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		events:     make(map[string]*storage.Event),
		exceptions: make(map[string]map[recurrence.Date]storage.Exception),
	}
}

func cloneEvent(e *storage.Event) *storage.Event {
	c := *e
	if e.Rule != nil {
		r := *e.Rule
		c.Rule = &r
	}
	return &c
}

func (s *Store) GetEvent(_ context.Context, id string) (*storage.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneEvent(ev), nil
}

func (s *Store) PutEvent(_ context.Context, event *storage.Event) error {
	if event == nil || event.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	c := cloneEvent(event)
	if existing, ok := s.events[event.ID]; ok {
		c.CreatedAt = existing.CreatedAt
		if c.Version == 0 {
			c.Version = existing.Version
		}
	} else {
		if c.Version == 0 {
			c.Version = 1
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
	}
	c.UpdatedAt = now
	s.events[event.ID] = c
	return nil
}

func (s *Store) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.events, id)
	delete(s.exceptions, id)
	return nil
}

// FindEventsOverlapping applies the candidate test from the query contract:
// a non-recurring event qualifies iff its date falls in range; a recurring
// event qualifies iff its anchor is not past rangeEnd and, when until-bound,
// its until is not before rangeStart. Count-bounded series are included as a
// superset and trimmed by expansion.
func (s *Store) FindEventsOverlapping(_ context.Context, rangeStart, rangeEnd recurrence.Date) ([]storage.Event, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Event
	for _, ev := range s.events {
		if !ev.Recurring() {
			if !ev.EventDate.Before(rangeStart) && !ev.EventDate.After(rangeEnd) {
				out = append(out, *cloneEvent(ev))
			}
			continue
		}
		if ev.EventDate.After(rangeEnd) {
			continue
		}
		if until, ok := ev.Rule.Until.Get(); ok && until.Before(rangeStart) {
			continue
		}
		out = append(out, *cloneEvent(ev))
	}
	return out, nil
}

func (s *Store) ListExceptions(_ context.Context, eventID string) ([]storage.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Exception
	for _, exc := range s.exceptions[eventID] {
		out = append(out, exc)
	}
	return out, nil
}

func (s *Store) PutException(_ context.Context, exc storage.Exception) error {
	if exc.EventID == "" || exc.Date.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[exc.EventID]; !ok {
		return storage.ErrNotFound
	}
	byDate, ok := s.exceptions[exc.EventID]
	if !ok {
		byDate = make(map[recurrence.Date]storage.Exception)
		s.exceptions[exc.EventID] = byDate
	}
	byDate[exc.Date] = exc
	return nil
}

// CommitSplit applies the truncated original and the optional successor
// under one lock, so a reader never observes a half-applied split.
func (s *Store) CommitSplit(_ context.Context, original storage.Event, successor *storage.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.events[original.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if stored.Version != original.Version {
		return storage.ErrConflict
	}
	if successor != nil {
		if _, exists := s.events[successor.ID]; exists {
			return storage.ErrConflict
		}
	}

	now := time.Now()
	updated := cloneEvent(&original)
	updated.Version++
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = now
	s.events[original.ID] = updated

	if successor != nil {
		c := cloneEvent(successor)
		c.Version = 1
		c.CreatedAt = now
		c.UpdatedAt = now
		s.events[successor.ID] = c
	}
	return nil
}
