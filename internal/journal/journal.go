// Package journal keeps an append-only log of race events for the dashboard.
package journal

import (
	"context"
	"time"
)

type Kind string

const (
	KindRaceStarted        Kind = "race_started"
	KindChallengeCompleted Kind = "challenge_completed"
	KindChallengeSkipped   Kind = "challenge_skipped"
	KindBonusCompleted     Kind = "bonus_completed"
	KindLocationReached    Kind = "location_reached"
	KindLoopCompleted      Kind = "loop_completed"
	KindRaceEnded          Kind = "race_ended"
	KindSubmission         Kind = "submission"
	KindBonusReleased      Kind = "bonus_released"
	KindReset              Kind = "reset"
)

type Event struct {
	At     time.Time `json:"at"`
	Kind   Kind      `json:"kind"`
	Group  string    `json:"group"`
	Actor  string    `json:"actor"`
	Detail string    `json:"detail"`
}

type Journal interface {
	Record(ctx context.Context, ev Event) error
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)
}
