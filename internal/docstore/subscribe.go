package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

type ChangeKind string

const (
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

type Change struct {
	Ref  Ref
	Kind ChangeKind
}

// Subscription delivers change notifications for a single document.
// Bursts are coalesced: a reader that falls behind sees at least one
// pending change and is expected to re-read the document.
type Subscription struct {
	ps    *redis.PubSub
	ch    chan Change
	close sync.Once
}

// Subscribe starts listening to changes of ref. The subscription is active
// when Subscribe returns, so a write issued afterwards is always observed.
func (s *Store) Subscribe(ctx context.Context, ref Ref) (*Subscription, error) {
	ps := s.rdb.Subscribe(ctx, s.channel(ref))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", ref, err)
	}

	sub := &Subscription{ps: ps, ch: make(chan Change, 1)}
	go sub.pump(ref)
	return sub, nil
}

func (sub *Subscription) pump(ref Ref) {
	defer close(sub.ch)
	for msg := range sub.ps.Channel() {
		c := Change{Ref: ref, Kind: ChangeKind(msg.Payload)}
		select {
		case sub.ch <- c:
		default:
		}
	}
}

// Changes is closed after Close.
func (sub *Subscription) Changes() <-chan Change { return sub.ch }

func (sub *Subscription) Close() error {
	var err error
	sub.close.Do(func() { err = sub.ps.Close() })
	return err
}
