package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/storage"
)

// Scope selects how far an occurrence edit or delete reaches.
type Scope int

const (
	// ScopeSingle affects only the targeted occurrence, via an exception.
	ScopeSingle Scope = iota
	// ScopeFuture affects the occurrence and everything after it, by
	// splitting the series.
	ScopeFuture
)

// String provides a human-readable representation of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeSingle:
		return "single"
	case ScopeFuture:
		return "future"
	default:
		return "unknown"
	}
}

// ParseScope parses the wire form of a scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "single":
		return ScopeSingle, nil
	case "future":
		return ScopeFuture, nil
	default:
		return 0, fmt.Errorf("%w: unknown scope %q", storage.ErrInvalidInput, s)
	}
}

// Changes carries the fields a user edited. Absent options leave the base
// event's value untouched.
type Changes struct {
	Title     mo.Option[string]
	Location  mo.Option[string]
	StartTime mo.Option[recurrence.TimeOfDay]
	EndTime   mo.Option[recurrence.TimeOfDay]
}

// SplitResult reports what a mutation persisted. Successor is non-nil only
// for FUTURE-scope edits.
type SplitResult struct {
	Original  storage.Event
	Successor *storage.Event
}

// Splitter applies occurrence-level mutations against the event store.
type Splitter struct {
	store  storage.Store
	opts   recurrence.Options
	logger *slog.Logger
	newID  func() string
}

// NewSplitter creates a Splitter. A nil logger falls back to slog.Default.
func NewSplitter(store storage.Store, opts recurrence.Options, logger *slog.Logger) *Splitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Splitter{
		store:  store,
		opts:   opts,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// DeleteOccurrence removes one occurrence (ScopeSingle, via a CANCELLED
// exception) or the occurrence and all following ones (ScopeFuture, by
// truncating the rule). No successor event is ever created.
func (s *Splitter) DeleteOccurrence(ctx context.Context, eventID string, date recurrence.Date, scope Scope) (*SplitResult, error) {
	event, err := s.loadSeries(ctx, eventID, date)
	if err != nil {
		return nil, err
	}

	if scope == ScopeSingle {
		exc := storage.Exception{
			EventID: event.ID,
			Date:    date,
			Kind:    storage.ExceptionCancelled,
		}
		if err := s.store.PutException(ctx, exc); err != nil {
			return nil, err
		}
		s.logger.Info("occurrence cancelled", "event_id", event.ID, "date", date.String())
		return &SplitResult{Original: *event}, nil
	}

	truncated := truncateSeries(event, date)
	if err := s.commit(ctx, truncated, nil); err != nil {
		return nil, err
	}
	s.logger.Info("series truncated", "event_id", event.ID, "until", date.AddDays(-1).String())
	return &SplitResult{Original: truncated}, nil
}

// EditOccurrence changes one occurrence (ScopeSingle, via a MODIFIED
// exception) or the occurrence and all following ones (ScopeFuture, by
// truncating the original rule and creating a successor event carrying the
// edited fields and the remainder of the series).
func (s *Splitter) EditOccurrence(ctx context.Context, eventID string, date recurrence.Date, scope Scope, changes Changes) (*SplitResult, error) {
	event, err := s.loadSeries(ctx, eventID, date)
	if err != nil {
		return nil, err
	}

	if scope == ScopeSingle {
		exc := storage.Exception{
			EventID:   event.ID,
			Date:      date,
			Kind:      storage.ExceptionModified,
			Title:     changes.Title,
			Location:  changes.Location,
			StartTime: changes.StartTime,
			EndTime:   changes.EndTime,
		}
		if err := s.store.PutException(ctx, exc); err != nil {
			return nil, err
		}
		s.logger.Info("occurrence modified", "event_id", event.ID, "date", date.String())
		return &SplitResult{Original: *event}, nil
	}

	truncated := truncateSeries(event, date)
	successor, err := s.buildSuccessor(event, date, changes)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, truncated, successor); err != nil {
		return nil, err
	}
	s.logger.Info("series split",
		"event_id", event.ID,
		"successor_id", successor.ID,
		"split_date", date.String())
	return &SplitResult{Original: truncated, Successor: successor}, nil
}

// loadSeries fetches the event and rejects mutations that don't target an
// actual occurrence of a recurring series.
func (s *Splitter) loadSeries(ctx context.Context, eventID string, date recurrence.Date) (*storage.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.Recurring() {
		return nil, ErrNotRecurring
	}
	dates, err := recurrence.Expand(*event.Rule, event.EventDate, date, date, s.opts)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSplitPoint, date)
	}
	return event, nil
}

// truncateSeries bounds the original rule to the day before the split,
// clearing any count.
func truncateSeries(event *storage.Event, splitDate recurrence.Date) storage.Event {
	truncated := *event
	rule := event.Rule.Normalize(event.EventDate)
	rule.Count = mo.None[int]()
	rule.Until = mo.Some(splitDate.AddDays(-1))
	truncated.Rule = &rule
	return truncated
}

// buildSuccessor creates the event representing the remainder of the series
// from the split date on, with the edited fields applied and the original
// bound carried over (count decremented by what the original already
// consumed, until kept as is).
func (s *Splitter) buildSuccessor(event *storage.Event, splitDate recurrence.Date, changes Changes) (*storage.Event, error) {
	successor := *event
	successor.ID = s.newID()
	successor.EventDate = splitDate
	successor.Version = 0

	successor.Title = changes.Title.OrElse(event.Title)
	successor.Location = changes.Location.OrElse(event.Location)
	successor.StartTime = changes.StartTime.OrElse(event.StartTime)
	successor.EndTime = changes.EndTime.OrElse(event.EndTime)

	rule := event.Rule.Normalize(event.EventDate)
	if count, ok := rule.Count.Get(); ok {
		var consumed []recurrence.Date
		if splitDate.After(event.EventDate) {
			var err error
			consumed, err = recurrence.Expand(rule, event.EventDate, event.EventDate, splitDate.AddDays(-1), s.opts)
			if err != nil {
				return nil, err
			}
		}
		remaining := count - len(consumed)
		if remaining < 1 {
			// The split point was validated as an occurrence, so at
			// least one count slot must remain.
			return nil, fmt.Errorf("%w: %s", ErrInvalidSplitPoint, splitDate)
		}
		rule.Count = mo.Some(remaining)
	}
	successor.Rule = &rule
	return &successor, nil
}

func (s *Splitter) commit(ctx context.Context, original storage.Event, successor *storage.Event) error {
	err := s.store.CommitSplit(ctx, original, successor)
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%w: event %s", ErrConcurrentModification, original.ID)
	}
	return err
}
