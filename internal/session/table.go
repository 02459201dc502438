package session

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Table keeps sessions keyed by Telegram user ID. A session that is not
// touched for the idle timeout is evicted; if it was mid-conversation the
// expiry hook is called after the session has been reset.
type Table struct {
	items    *ttlcache.Cache[int64, *Session]
	onExpire func(*Session)
}

func NewTable(idle time.Duration, onExpire func(*Session)) *Table {
	t := &Table{
		items:    ttlcache.New[int64, *Session](ttlcache.WithTTL[int64, *Session](idle)),
		onExpire: onExpire,
	}
	t.items.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[int64, *Session]) {
		s := item.Value()
		s.Lock()
		active := s.State != Idle
		s.Reset()
		s.Unlock()
		if reason == ttlcache.EvictionReasonExpired && active && t.onExpire != nil {
			t.onExpire(s)
		}
	})
	return t
}

// Get returns the user's session, creating an idle one if needed, and
// restarts its idle timer.
func (t *Table) Get(userID, chatID int64, username string) *Session {
	item := t.items.Get(userID)
	if item == nil {
		item, _ = t.items.GetOrSet(userID, New(userID, chatID, username))
	}
	s := item.Value()
	s.Lock()
	s.ChatID = chatID
	s.Username = username
	s.Unlock()
	return s
}

func (t *Table) Len() int { return t.items.Len() }

// Start runs the expiry loop until Stop. It blocks.
func (t *Table) Start() { t.items.Start() }

// Stop ends a running Start.
func (t *Table) Stop() { t.items.Stop() }
