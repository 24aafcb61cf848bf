package memory

import (
	"context"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/storage"
)

func testEvent(id string) *storage.Event {
	return &storage.Event{
		ID:        id,
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
}

func TestPutAndGetEvent(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.PutEvent(ctx, testEvent("evt-1")))

	got, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "Standup", got.Title)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPutEventRejectsInvalid(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.PutEvent(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, s.PutEvent(context.Background(), &storage.Event{}), storage.ErrInvalidInput)
}

func TestGetEventReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.PutEvent(ctx, testEvent("evt-1")))

	first, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	first.Title = "tampered"
	first.Rule.Interval = 99

	second, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "Standup", second.Title)
	assert.Zero(t, second.Rule.Interval)
}

func TestPutEventUpdateKeepsCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.PutEvent(ctx, testEvent("evt-1")))

	stored, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)

	updated := testEvent("evt-1")
	updated.Title = "Standup v2"
	require.NoError(t, s.PutEvent(ctx, updated))

	after, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "Standup v2", after.Title)
	assert.Equal(t, stored.CreatedAt, after.CreatedAt)
	assert.Equal(t, stored.Version, after.Version)
}

func TestDeleteEventCascadesExceptions(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.PutEvent(ctx, testEvent("evt-1")))
	require.NoError(t, s.PutException(ctx, storage.Exception{
		EventID: "evt-1",
		Date:    recurrence.NewDate(2025, time.January, 13),
		Kind:    storage.ExceptionCancelled,
	}))

	require.NoError(t, s.DeleteEvent(ctx, "evt-1"))
	assert.ErrorIs(t, s.DeleteEvent(ctx, "evt-1"), storage.ErrNotFound)

	excs, err := s.ListExceptions(ctx, "evt-1")
	require.NoError(t, err)
	assert.Empty(t, excs)
}

func TestFindEventsOverlapping(t *testing.T) {
	s := New()
	ctx := context.Background()

	single := testEvent("single")
	single.Rule = nil
	single.EventDate = recurrence.NewDate(2025, time.March, 10)
	require.NoError(t, s.PutEvent(ctx, single))

	open := testEvent("open")
	open.EventDate = recurrence.NewDate(2025, time.January, 6)
	require.NoError(t, s.PutEvent(ctx, open))

	ended := testEvent("ended")
	ended.EventDate = recurrence.NewDate(2024, time.January, 1)
	ended.Rule = &recurrence.Rule{
		Freq:  recurrence.FreqDaily,
		Until: mo.Some(recurrence.NewDate(2024, time.June, 30)),
	}
	require.NoError(t, s.PutEvent(ctx, ended))

	future := testEvent("future")
	future.EventDate = recurrence.NewDate(2026, time.January, 1)
	require.NoError(t, s.PutEvent(ctx, future))

	got, err := s.FindEventsOverlapping(ctx,
		recurrence.NewDate(2025, time.March, 1), recurrence.NewDate(2025, time.March, 31))
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, ev := range got {
		ids = append(ids, ev.ID)
	}
	assert.ElementsMatch(t, []string{"single", "open"}, ids)

	_, err = s.FindEventsOverlapping(ctx,
		recurrence.NewDate(2025, time.March, 31), recurrence.NewDate(2025, time.March, 1))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestPutExceptionRequiresEvent(t *testing.T) {
	s := New()
	err := s.PutException(context.Background(), storage.Exception{
		EventID: "ghost",
		Date:    recurrence.NewDate(2025, time.January, 13),
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPutExceptionReplacesByDate(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.PutEvent(ctx, testEvent("evt-1")))

	date := recurrence.NewDate(2025, time.January, 13)
	require.NoError(t, s.PutException(ctx, storage.Exception{
		EventID: "evt-1", Date: date, Kind: storage.ExceptionModified, Title: mo.Some("v1"),
	}))
	require.NoError(t, s.PutException(ctx, storage.Exception{
		EventID: "evt-1", Date: date, Kind: storage.ExceptionCancelled,
	}))

	excs, err := s.ListExceptions(ctx, "evt-1")
	require.NoError(t, err)
	require.Len(t, excs, 1)
	assert.Equal(t, storage.ExceptionCancelled, excs[0].Kind)
}

func TestCommitSplit(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.PutEvent(ctx, testEvent("evt-1")))

	original, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	rule := *original.Rule
	rule.Until = mo.Some(recurrence.NewDate(2025, time.February, 1))
	original.Rule = &rule

	successor := testEvent("evt-2")
	successor.EventDate = recurrence.NewDate(2025, time.February, 3)

	require.NoError(t, s.CommitSplit(ctx, *original, successor))

	updated, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.True(t, updated.Rule.Until.IsPresent())

	created, err := s.GetEvent(ctx, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
}

func TestCommitSplitVersionConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.PutEvent(ctx, testEvent("evt-1")))

	stale, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	stale.Version = 99

	err = s.CommitSplit(ctx, *stale, nil)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestCommitSplitSuccessorCollision(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.PutEvent(ctx, testEvent("evt-1")))
	require.NoError(t, s.PutEvent(ctx, testEvent("evt-2")))

	original, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)

	err = s.CommitSplit(ctx, *original, testEvent("evt-2"))
	assert.ErrorIs(t, err, storage.ErrConflict)

	// The original must be untouched after the failed commit.
	after, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, original.Version, after.Version)
}

func TestCommitSplitUnknownEvent(t *testing.T) {
	s := New()
	err := s.CommitSplit(context.Background(), *testEvent("ghost"), nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
