package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/storage"
)

// Filter narrows a query to events of one type. The zero value matches all.
type Filter struct {
	Type string
}

// QueryService materializes occurrences across every event overlapping a
// requested range. It has no state of its own beyond the optional cache, so
// it is safe to call from concurrent requests.
type QueryService struct {
	store  storage.Store
	opts   recurrence.Options
	cache  *ExpansionCache
	logger *slog.Logger
}

// NewQueryService creates a QueryService. Cache may be nil to expand every
// request from scratch; a nil logger falls back to slog.Default.
func NewQueryService(store storage.Store, opts recurrence.Options, cache *ExpansionCache, logger *slog.Logger) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{store: store, opts: opts, cache: cache, logger: logger}
}

// ListOccurrences loads candidate events, expands each series, applies
// exceptions and returns the merged list sorted by occurrence date, then
// event title, then event id.
func (q *QueryService) ListOccurrences(ctx context.Context, rangeStart, rangeEnd recurrence.Date, display *time.Location, filter Filter) ([]Occurrence, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, fmt.Errorf("%w: %s is after %s", recurrence.ErrInvalidRange, rangeStart, rangeEnd)
	}

	events, err := q.store.FindEventsOverlapping(ctx, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}

	var out []Occurrence
	for _, event := range events {
		if filter.Type != "" && event.Type != filter.Type {
			continue
		}

		var dates []recurrence.Date
		var exceptions []storage.Exception
		if event.Recurring() {
			dates, err = q.expand(event, rangeStart, rangeEnd)
			if err != nil {
				return nil, err
			}
			if len(dates) == 0 {
				continue
			}
			exceptions, err = q.store.ListExceptions(ctx, event.ID)
			if err != nil {
				return nil, err
			}
		} else {
			if event.EventDate.Before(rangeStart) || event.EventDate.After(rangeEnd) {
				continue
			}
			dates = []recurrence.Date{event.EventDate}
		}

		occurrences, err := Resolve(dates, event, exceptions, display)
		if err != nil {
			return nil, err
		}
		out = append(out, occurrences...)
	}

	slices.SortFunc(out, compareOccurrences)
	q.logger.Debug("occurrences listed",
		"range_start", rangeStart.String(),
		"range_end", rangeEnd.String(),
		"events", len(events),
		"occurrences", len(out))
	return out, nil
}

func (q *QueryService) expand(event storage.Event, rangeStart, rangeEnd recurrence.Date) ([]recurrence.Date, error) {
	if q.cache != nil {
		if dates, ok := q.cache.Get(event, rangeStart, rangeEnd); ok {
			return dates, nil
		}
	}
	dates, err := recurrence.Expand(*event.Rule, event.EventDate, rangeStart, rangeEnd, q.opts)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", event.ID, err)
	}
	if q.cache != nil {
		q.cache.Set(event, rangeStart, rangeEnd, dates)
	}
	return dates, nil
}

// compareOccurrences orders by date, then title, then event id, giving a
// stable tie-break for events sharing a date.
func compareOccurrences(a, b Occurrence) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	if c := strings.Compare(a.Title, b.Title); c != 0 {
		return c
	}
	return strings.Compare(a.Event.ID, b.Event.ID)
}
