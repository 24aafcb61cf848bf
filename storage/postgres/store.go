// Package postgres provides a pgx-backed Store. CommitSplit runs inside a
// transaction with an optimistic version check, so series splits are
// all-or-nothing even under concurrent editors.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/storage"
)

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and verifies reachability.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ready reports backend reachability, for health endpoints.
func (s *Store) Ready(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	location    TEXT NOT NULL DEFAULT '',
	event_date  DATE NOT NULL,
	start_time  TEXT NOT NULL,
	end_time    TEXT NOT NULL,
	timezone    TEXT NOT NULL DEFAULT '',
	rule        JSONB,
	rule_until  DATE,
	capacity    INTEGER NOT NULL DEFAULT 0,
	visibility  TEXT NOT NULL DEFAULT '',
	event_type  TEXT NOT NULL DEFAULT '',
	version     BIGINT NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS events_date_idx ON events (event_date);

CREATE TABLE IF NOT EXISTS event_exceptions (
	event_id   TEXT NOT NULL REFERENCES events (id) ON DELETE CASCADE,
	date       DATE NOT NULL,
	kind       INTEGER NOT NULL,
	title      TEXT,
	location   TEXT,
	start_time TEXT,
	end_time   TEXT,
	PRIMARY KEY (event_id, date)
);
`

// Migrate creates the schema if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const eventColumns = `id, title, location, event_date, start_time, end_time,
	timezone, rule, capacity, visibility, event_type, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*storage.Event, error) {
	var (
		ev                 storage.Event
		eventDate          time.Time
		startRaw, endRaw   string
		ruleRaw            []byte
	)
	err := row.Scan(&ev.ID, &ev.Title, &ev.Location, &eventDate, &startRaw, &endRaw,
		&ev.Timezone, &ruleRaw, &ev.Capacity, &ev.Visibility, &ev.Type,
		&ev.Version, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ev.EventDate = recurrence.DateOf(eventDate)
	if ev.StartTime, err = recurrence.ParseTimeOfDay(startRaw); err != nil {
		return nil, err
	}
	if ev.EndTime, err = recurrence.ParseTimeOfDay(endRaw); err != nil {
		return nil, err
	}
	if len(ruleRaw) > 0 {
		var rule recurrence.Rule
		if err := json.Unmarshal(ruleRaw, &rule); err != nil {
			return nil, fmt.Errorf("decode rule for event %s: %w", ev.ID, err)
		}
		ev.Rule = &rule
	}
	return &ev, nil
}

func eventArgs(ev *storage.Event) ([]any, error) {
	var ruleRaw any
	var untilArg any
	if ev.Rule != nil {
		b, err := json.Marshal(ev.Rule)
		if err != nil {
			return nil, fmt.Errorf("encode rule: %w", err)
		}
		ruleRaw = b
		if until, ok := ev.Rule.Until.Get(); ok {
			untilArg = until.Time(time.UTC)
		}
	}
	return []any{
		ev.ID, ev.Title, ev.Location, ev.EventDate.Time(time.UTC),
		ev.StartTime.String(), ev.EndTime.String(), ev.Timezone,
		ruleRaw, untilArg, ev.Capacity, ev.Visibility, ev.Type,
	}, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*storage.Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return ev, err
}

func (s *Store) PutEvent(ctx context.Context, event *storage.Event) error {
	if event == nil || event.ID == "" {
		return storage.ErrInvalidInput
	}
	args, err := eventArgs(event)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO events (id, title, location, event_date, start_time, end_time,
			timezone, rule, rule_until, capacity, visibility, event_type)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			location = EXCLUDED.location,
			event_date = EXCLUDED.event_date,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			timezone = EXCLUDED.timezone,
			rule = EXCLUDED.rule,
			rule_until = EXCLUDED.rule_until,
			capacity = EXCLUDED.capacity,
			visibility = EXCLUDED.visibility,
			event_type = EXCLUDED.event_type,
			updated_at = now()`,
		args...)
	return err
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) FindEventsOverlapping(ctx context.Context, rangeStart, rangeEnd recurrence.Date) ([]storage.Event, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, storage.ErrInvalidInput
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE (rule IS NULL AND event_date BETWEEN $1 AND $2)
		   OR (rule IS NOT NULL AND event_date <= $2
		       AND (rule_until IS NULL OR rule_until >= $1))
		ORDER BY event_date, title, id`,
		rangeStart.Time(time.UTC), rangeEnd.Time(time.UTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (s *Store) ListExceptions(ctx context.Context, eventID string) ([]storage.Exception, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, date, kind, title, location, start_time, end_time
		FROM event_exceptions WHERE event_id = $1 ORDER BY date`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Exception
	for rows.Next() {
		var (
			exc              storage.Exception
			date             time.Time
			kind             int
			title, location  *string
			startRaw, endRaw *string
		)
		if err := rows.Scan(&exc.EventID, &date, &kind, &title, &location, &startRaw, &endRaw); err != nil {
			return nil, err
		}
		exc.Date = recurrence.DateOf(date)
		exc.Kind = storage.ExceptionKind(kind)
		exc.Title = optString(title)
		exc.Location = optString(location)
		if exc.StartTime, err = optTime(startRaw); err != nil {
			return nil, err
		}
		if exc.EndTime, err = optTime(endRaw); err != nil {
			return nil, err
		}
		out = append(out, exc)
	}
	return out, rows.Err()
}

func (s *Store) PutException(ctx context.Context, exc storage.Exception) error {
	if exc.EventID == "" || exc.Date.IsZero() {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_exceptions (event_id, date, kind, title, location, start_time, end_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (event_id, date) DO UPDATE SET
			kind = EXCLUDED.kind,
			title = EXCLUDED.title,
			location = EXCLUDED.location,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time`,
		exc.EventID, exc.Date.Time(time.UTC), int(exc.Kind),
		strPtr(exc.Title), strPtr(exc.Location),
		timePtr(exc.StartTime), timePtr(exc.EndTime))
	return err
}

func (s *Store) CommitSplit(ctx context.Context, original storage.Event, successor *storage.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	args, err := eventArgs(&original)
	if err != nil {
		return err
	}
	args = append(args, original.Version)
	ct, err := tx.Exec(ctx, `
		UPDATE events SET
			title = $2, location = $3, event_date = $4, start_time = $5,
			end_time = $6, timezone = $7, rule = $8, rule_until = $9,
			capacity = $10, visibility = $11, event_type = $12,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $13`,
		args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// Either the event is gone or someone else updated it first.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, original.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}

	if successor != nil {
		sargs, err := eventArgs(successor)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (id, title, location, event_date, start_time, end_time,
				timezone, rule, rule_until, capacity, visibility, event_type)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			sargs...); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
