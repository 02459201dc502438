package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Tx is an optimistic transaction. Reads go straight to Redis while the
// watched documents are guarded; writes are queued and applied in one
// MULTI/EXEC when the callback returns nil.
type Tx struct {
	ctx     context.Context
	store   *Store
	rtx     *redis.Tx
	ops     []func(redis.Pipeliner)
	touched map[Ref]struct{}
}

// RunTransaction runs fn until it commits without a conflicting write to any
// of the watched documents, up to a bounded number of attempts.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx *Tx) error, watch ...Ref) error {
	keys := make([]string, len(watch))
	for i, r := range watch {
		keys[i] = s.docKey(r)
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		var touched map[Ref]struct{}
		err := s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
			t := &Tx{ctx: ctx, store: s, rtx: rtx, touched: map[Ref]struct{}{}}
			if err := fn(t); err != nil {
				return err
			}
			if len(t.ops) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				for _, op := range t.ops {
					op(p)
				}
				return nil
			})
			touched = t.touched
			return err
		}, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		return s.notifyAll(ctx, touched)
	}
	return ErrTxConflict
}

func (s *Store) notifyAll(ctx context.Context, refs map[Ref]struct{}) error {
	ordered := make([]Ref, 0, len(refs))
	for r := range refs {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })
	for _, r := range ordered {
		if err := s.notify(ctx, r, ChangeUpdated); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) Get(ref Ref) (Doc, error) {
	m, err := t.rtx.HGetAll(t.ctx, t.store.docKey(ref)).Result()
	if err != nil {
		return Doc{}, fmt.Errorf("get %s: %w", ref, err)
	}
	if len(m) == 0 {
		return Doc{}, fmt.Errorf("get %s: %w", ref, ErrNotFound)
	}
	return Doc{Ref: ref, Fields: m}, nil
}

func (t *Tx) ArrayMembers(ref Ref, field string) ([]string, error) {
	out, err := t.rtx.SMembers(t.ctx, t.store.arrayKey(ref, field)).Result()
	if err != nil {
		return nil, fmt.Errorf("array members %s.%s: %w", ref, field, err)
	}
	sort.Strings(out)
	return out, nil
}

// Update queues a field write. The caller is expected to have read the
// document inside the transaction, so it is known to exist.
func (t *Tx) Update(ref Ref, fields Fields) {
	args := flatten(fields)
	key := t.store.docKey(ref)
	t.queue(ref, func(p redis.Pipeliner) {
		if len(args) > 0 {
			p.HSet(t.ctx, key, args...)
		}
	})
}

func (t *Tx) ArrayUnion(ref Ref, field string, members ...string) {
	vals := make([]any, len(members))
	for i, m := range members {
		vals[i] = m
	}
	t.queue(ref, func(p redis.Pipeliner) {
		if len(vals) == 0 {
			return
		}
		p.SAdd(t.ctx, t.store.arrayIndexKey(ref), field)
		p.SAdd(t.ctx, t.store.arrayKey(ref, field), vals...)
	})
}

func (t *Tx) ArrayClear(ref Ref, field string) {
	t.queue(ref, func(p redis.Pipeliner) {
		p.Del(t.ctx, t.store.arrayKey(ref, field))
	})
}

func (t *Tx) Increment(ref Ref, field string, by int64) {
	t.queue(ref, func(p redis.Pipeliner) {
		p.HIncrBy(t.ctx, t.store.docKey(ref), field, by)
	})
}

func (t *Tx) queue(ref Ref, op func(redis.Pipeliner)) {
	key := t.store.docKey(ref)
	t.ops = append(t.ops, op, func(p redis.Pipeliner) {
		p.HIncrBy(t.ctx, key, fieldRevision, 1)
	})
	t.touched[ref] = struct{}{}
}
