package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultCapacity = 1000

// RedisJournal keeps the newest events in a capped Redis list.
type RedisJournal struct {
	rdb      *redis.Client
	key      string
	capacity int64
}

func NewRedis(rdb *redis.Client, prefix string, capacity int) *RedisJournal {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &RedisJournal{rdb: rdb, key: prefix + "journal", capacity: int64(capacity)}
}

func (j *RedisJournal) Record(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = j.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, j.key, raw)
		p.LTrim(ctx, j.key, 0, j.capacity-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

func (j *RedisJournal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return []Event{}, nil
	}
	rows, err := j.rdb.LRange(ctx, j.key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		var ev Event
		if err := json.Unmarshal([]byte(row), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}
