// Package schedule turns stored events and their exceptions into concrete
// calendar occurrences, and implements the "this occurrence only" vs "this
// and all following" split semantics on top of a storage.Store.
package schedule

import (
	"fmt"
	"time"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/storage"
)

// Occurrence is one concrete instance of an event. Occurrences are
// recomputed on every query and never persisted or mutated in place.
type Occurrence struct {
	// Event is a snapshot of the owning event.
	Event storage.Event

	// Date is the rule-generated occurrence date, unaffected by any
	// MODIFIED override (exceptions stay keyed by it).
	Date recurrence.Date

	// Effective fields after exception overrides.
	Title    string
	Location string
	Start    time.Time
	End      time.Time

	// IsException is true when a MODIFIED override applied.
	IsException bool
}

// Resolve merges rule-expanded dates with stored exceptions into the final
// occurrence list. CANCELLED drops the occurrence, MODIFIED overrides
// fields, everything else passes through. Exceptions whose date is not in
// dates are stale leftovers from a rule edit and are ignored, so resolving
// the same inputs twice always yields the same output.
//
// Start and end instants are computed in the event's own timezone, then
// rendered in display (nil means the event's timezone), so wall-clock times
// survive DST transitions.
func Resolve(dates []recurrence.Date, event storage.Event, exceptions []storage.Exception, display *time.Location) ([]Occurrence, error) {
	loc, err := eventLocation(event)
	if err != nil {
		return nil, err
	}
	if display == nil {
		display = loc
	}

	byDate := make(map[recurrence.Date]storage.Exception, len(exceptions))
	for _, exc := range exceptions {
		if exc.EventID == event.ID {
			byDate[exc.Date] = exc
		}
	}

	out := make([]Occurrence, 0, len(dates))
	for _, date := range dates {
		occ := Occurrence{
			Event:    event,
			Date:     date,
			Title:    event.Title,
			Location: event.Location,
		}
		start, end := event.StartTime, event.EndTime

		if exc, ok := byDate[date]; ok {
			if exc.Kind == storage.ExceptionCancelled {
				continue
			}
			occ.IsException = true
			occ.Title = exc.Title.OrElse(occ.Title)
			occ.Location = exc.Location.OrElse(occ.Location)
			start = exc.StartTime.OrElse(start)
			end = exc.EndTime.OrElse(end)
		}

		occ.Start = date.At(start, loc).In(display)
		occ.End = date.At(end, loc).In(display)
		out = append(out, occ)
	}
	return out, nil
}

func eventLocation(event storage.Event) (*time.Location, error) {
	if event.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(event.Timezone)
	if err != nil {
		return nil, fmt.Errorf("event %s: invalid timezone %q: %w", event.ID, event.Timezone, err)
	}
	return loc, nil
}
