package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/storage"
	"github.com/zemetia/eventcal/storage/memory"
)

func newQueryFixture(t *testing.T, events ...*storage.Event) (*QueryService, *memory.Store) {
	t.Helper()
	store := memory.New()
	for _, ev := range events {
		require.NoError(t, store.PutEvent(context.Background(), ev))
	}
	return NewQueryService(store, recurrence.DefaultOptions, nil, nil), store
}

func TestListOccurrencesMergesAndSorts(t *testing.T) {
	weekly := &storage.Event{
		ID:        "evt-b",
		Title:     "Standup",
		EventDate: recurrence.NewDate(2025, time.January, 6), // Monday
		StartTime: recurrence.TimeOfDay{Hour: 9},
		EndTime:   recurrence.TimeOfDay{Hour: 9, Minute: 15},
		Rule: &recurrence.Rule{
			Freq:      recurrence.FreqWeekly,
			ByWeekday: []time.Weekday{time.Monday},
			WeekStart: time.Monday,
		},
	}
	single := &storage.Event{
		ID:        "evt-a",
		Title:     "Launch party",
		EventDate: recurrence.NewDate(2025, time.January, 8),
		StartTime: recurrence.TimeOfDay{Hour: 17},
		EndTime:   recurrence.TimeOfDay{Hour: 22},
	}
	q, _ := newQueryFixture(t, weekly, single)

	occs, err := q.ListOccurrences(context.Background(),
		recurrence.NewDate(2025, time.January, 1), recurrence.NewDate(2025, time.January, 14),
		time.UTC, Filter{})
	require.NoError(t, err)
	require.Len(t, occs, 3)
	assert.Equal(t, recurrence.NewDate(2025, time.January, 6), occs[0].Date)
	assert.Equal(t, "Launch party", occs[1].Title)
	assert.Equal(t, recurrence.NewDate(2025, time.January, 13), occs[2].Date)
}

func TestListOccurrencesTieBreak(t *testing.T) {
	day := recurrence.NewDate(2025, time.May, 1)
	a := &storage.Event{ID: "evt-2", Title: "Alpha", EventDate: day}
	b := &storage.Event{ID: "evt-1", Title: "Beta", EventDate: day}
	sameTitle := &storage.Event{ID: "evt-0", Title: "Alpha", EventDate: day}
	q, _ := newQueryFixture(t, a, b, sameTitle)

	occs, err := q.ListOccurrences(context.Background(), day, day, time.UTC, Filter{})
	require.NoError(t, err)
	require.Len(t, occs, 3)
	// Date, then title, then event id.
	assert.Equal(t, "evt-0", occs[0].Event.ID)
	assert.Equal(t, "evt-2", occs[1].Event.ID)
	assert.Equal(t, "evt-1", occs[2].Event.ID)
}

func TestListOccurrencesTypeFilter(t *testing.T) {
	day := recurrence.NewDate(2025, time.May, 1)
	class := &storage.Event{ID: "evt-1", Title: "Yoga", EventDate: day, Type: "class"}
	meeting := &storage.Event{ID: "evt-2", Title: "Sync", EventDate: day, Type: "meeting"}
	q, _ := newQueryFixture(t, class, meeting)

	occs, err := q.ListOccurrences(context.Background(), day, day, time.UTC, Filter{Type: "class"})
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, "Yoga", occs[0].Title)
}

func TestListOccurrencesAppliesExceptions(t *testing.T) {
	weekly := &storage.Event{
		ID:        "evt-1",
		Title:     "Standup",
		EventDate: recurrence.NewDate(2025, time.January, 6),
		StartTime: recurrence.TimeOfDay{Hour: 9},
		EndTime:   recurrence.TimeOfDay{Hour: 10},
		Rule: &recurrence.Rule{
			Freq:      recurrence.FreqWeekly,
			ByWeekday: []time.Weekday{time.Monday},
			WeekStart: time.Monday,
		},
	}
	q, store := newQueryFixture(t, weekly)
	ctx := context.Background()
	require.NoError(t, store.PutException(ctx, storage.Exception{
		EventID: "evt-1",
		Date:    recurrence.NewDate(2025, time.January, 13),
		Kind:    storage.ExceptionCancelled,
	}))
	require.NoError(t, store.PutException(ctx, storage.Exception{
		EventID: "evt-1",
		Date:    recurrence.NewDate(2025, time.January, 20),
		Kind:    storage.ExceptionModified,
		Title:   mo.Some("Retro"),
	}))

	occs, err := q.ListOccurrences(ctx,
		recurrence.NewDate(2025, time.January, 1), recurrence.NewDate(2025, time.January, 31),
		time.UTC, Filter{})
	require.NoError(t, err)
	require.Len(t, occs, 3) // 6th, 20th, 27th; the 13th is cancelled
	assert.Equal(t, "Standup", occs[0].Title)
	assert.Equal(t, "Retro", occs[1].Title)
	assert.True(t, occs[1].IsException)
}

func TestListOccurrencesSkipsOutOfRangeSingles(t *testing.T) {
	single := &storage.Event{
		ID:        "evt-1",
		Title:     "Party",
		EventDate: recurrence.NewDate(2025, time.June, 1),
	}
	q, _ := newQueryFixture(t, single)

	occs, err := q.ListOccurrences(context.Background(),
		recurrence.NewDate(2025, time.January, 1), recurrence.NewDate(2025, time.January, 31),
		time.UTC, Filter{})
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestListOccurrencesRejectsReversedRange(t *testing.T) {
	q, _ := newQueryFixture(t)

	_, err := q.ListOccurrences(context.Background(),
		recurrence.NewDate(2025, time.February, 1), recurrence.NewDate(2025, time.January, 1),
		time.UTC, Filter{})
	assert.ErrorIs(t, err, recurrence.ErrInvalidRange)
}

func TestListOccurrencesUsesCache(t *testing.T) {
	weekly := &storage.Event{
		ID:        "evt-1",
		Title:     "Standup",
		EventDate: recurrence.NewDate(2025, time.January, 6),
		Rule: &recurrence.Rule{
			Freq:      recurrence.FreqWeekly,
			ByWeekday: []time.Weekday{time.Monday},
			WeekStart: time.Monday,
		},
	}
	store := memory.New()
	require.NoError(t, store.PutEvent(context.Background(), weekly))

	cache := NewExpansionCache(DefaultCacheConfig)
	defer cache.Close()
	q := NewQueryService(store, recurrence.DefaultOptions, cache, nil)

	start := recurrence.NewDate(2025, time.January, 1)
	end := recurrence.NewDate(2025, time.January, 31)

	first, err := q.ListOccurrences(context.Background(), start, end, time.UTC, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Stats().TotalEntries)

	second, err := q.ListOccurrences(context.Background(), start, end, time.UTC, Filter{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
