package storage

import (
	"context"
	"errors"
	"time"

	"github.com/samber/mo"

	"github.com/zemetia/eventcal/recurrence"
)

// Store connects the occurrence engine with backend persistence (e.g. a
// database). Please use the error values provided by this package.
type Store interface {
	// GetEvent retrieves a single event by id.
	GetEvent(ctx context.Context, id string) (*Event, error)
	// PutEvent creates or replaces an event.
	PutEvent(ctx context.Context, event *Event) error
	// DeleteEvent removes an event and its exceptions.
	DeleteEvent(ctx context.Context, id string) error
	// FindEventsOverlapping returns events whose series could produce an
	// occurrence within [rangeStart, rangeEnd]. Returning a superset is
	// fine; expansion filters precisely.
	FindEventsOverlapping(ctx context.Context, rangeStart, rangeEnd recurrence.Date) ([]Event, error)
	// ListExceptions returns all per-occurrence overrides of an event.
	ListExceptions(ctx context.Context, eventID string) ([]Exception, error)
	// PutException creates or replaces the override for one occurrence date.
	PutException(ctx context.Context, exc Exception) error
	// CommitSplit persists a truncated original and an optional successor
	// as a single all-or-nothing commit. The original update must be
	// guarded by its Version and fail with ErrConflict on a lost race.
	CommitSplit(ctx context.Context, original Event, successor *Event) error
}

// Event is a schedulable activity. EventDate anchors the series: it is the
// first occurrence and the reference point for interval counting.
type Event struct {
	ID        string
	Title     string
	Location  string
	EventDate recurrence.Date
	StartTime recurrence.TimeOfDay
	EndTime   recurrence.TimeOfDay
	// Timezone is the IANA identifier the wall-clock times are local to,
	// e.g. "Asia/Jakarta". Empty means UTC.
	Timezone string
	// Rule is nil for single, non-repeating events.
	Rule *recurrence.Rule

	// Metadata the engine passes through untouched.
	Capacity   int
	Visibility string
	Type       string

	// Version guards optimistic concurrency on series splits.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recurring reports whether the event repeats.
func (e *Event) Recurring() bool {
	return e.Rule != nil
}

// NormalizedRule returns the event's rule with anchor-derived defaults
// filled in, or nil for non-repeating events.
func (e *Event) NormalizedRule() *recurrence.Rule {
	if e.Rule == nil {
		return nil
	}
	r := e.Rule.Normalize(e.EventDate)
	return &r
}

// ExceptionKind distinguishes cancellations from edits.
type ExceptionKind int

const (
	ExceptionCancelled ExceptionKind = iota
	ExceptionModified
)

// String provides a human-readable representation of the kind.
func (k ExceptionKind) String() string {
	switch k {
	case ExceptionCancelled:
		return "CANCELLED"
	case ExceptionModified:
		return "MODIFIED"
	default:
		return "UNKNOWN"
	}
}

// Exception is a per-occurrence override, keyed by (EventID, Date). The
// date always refers to the unmodified rule-generated occurrence. Override
// fields are only meaningful for ExceptionModified; absent options fall
// back to the base event's values.
type Exception struct {
	EventID string
	Date    recurrence.Date
	Kind    ExceptionKind

	Title     mo.Option[string]
	Location  mo.Option[string]
	StartTime mo.Option[recurrence.TimeOfDay]
	EndTime   mo.Option[recurrence.TimeOfDay]
}

var (
	// ErrNotFound is returned when a requested resource doesn't exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidInput is returned when the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input parameters")
	// ErrConflict is returned when an update loses a concurrency race or
	// collides with an existing resource.
	ErrConflict = errors.New("resource conflict")
	// ErrStorageUnavailable is returned when the storage backend is unavailable.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
