package journal

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS race_events (
	id       BIGSERIAL PRIMARY KEY,
	at       TIMESTAMPTZ NOT NULL,
	kind     TEXT NOT NULL,
	group_id TEXT NOT NULL DEFAULT '',
	actor    TEXT NOT NULL DEFAULT '',
	detail   TEXT NOT NULL DEFAULT ''
)`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresJournal struct {
	db *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and makes sure the events table exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresJournal, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create race_events: %w", err)
	}
	return &PostgresJournal{db: pool}, nil
}

func (j *PostgresJournal) Close() { j.db.Close() }

func (j *PostgresJournal) Record(ctx context.Context, ev Event) error {
	sql, args, err := psql.Insert("race_events").
		Columns("at", "kind", "group_id", "actor", "detail").
		Values(ev.At, string(ev.Kind), ev.Group, ev.Actor, ev.Detail).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := j.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

func (j *PostgresJournal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return []Event{}, nil
	}
	sql, args, err := psql.Select("at", "kind", "group_id", "actor", "detail").
		From("race_events").
		OrderBy("at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := j.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var ev Event
		var kind string
		if err := rows.Scan(&ev.At, &kind, &ev.Group, &ev.Actor, &ev.Detail); err != nil {
			return nil, err
		}
		ev.Kind = Kind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}
