package schedule

import "errors"

var (
	// ErrInvalidSplitPoint is returned when the requested date is not an
	// occurrence of the series' own expansion.
	ErrInvalidSplitPoint = errors.New("date is not an occurrence of the series")
	// ErrNotRecurring is returned for scope-based mutations on events
	// without a recurrence rule; callers should fall back to a plain
	// single-event edit or delete.
	ErrNotRecurring = errors.New("event has no recurrence rule")
	// ErrConcurrentModification is returned when a FUTURE-scope split
	// loses a race against another writer. Reload the event and retry.
	ErrConcurrentModification = errors.New("event was modified concurrently")
)
