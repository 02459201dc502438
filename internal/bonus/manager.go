// Package bonus runs the single global bonus challenge. Only the first
// MaxGroups groups to finish a bonus round count; once the round is full the
// next read of the current bonus moves everyone on to the following one.
package bonus

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/repository"
)

var (
	ErrNoMoreChallenges = errors.New("no more bonus challenges")
	ErrBonusUnavailable = errors.New("bonus challenge not available to this group")
)

// Current is the live bonus round.
type Current struct {
	Index     int
	Challenge models.Challenge
	Completed []string
}

type Manager struct {
	repo      *repository.Repository
	maxGroups int
	log       zerolog.Logger
}

func New(repo *repository.Repository, maxGroups int, log zerolog.Logger) *Manager {
	return &Manager{
		repo:      repo,
		maxGroups: maxGroups,
		log:       log.With().Str("component", "bonus").Logger(),
	}
}

func (m *Manager) MaxGroups() int { return m.maxGroups }

func (m *Manager) roundClosed(s models.BonusState) bool {
	return s.Index < 0 || len(s.Completed) >= m.maxGroups
}

// Current returns the live bonus challenge, rotating first when the previous
// round is closed.
func (m *Manager) Current(ctx context.Context) (Current, error) {
	challenges, err := m.repo.BonusChallenges(ctx)
	if err != nil {
		return Current{}, err
	}
	state, err := m.repo.RotateBonus(ctx, m.roundClosed)
	if err != nil {
		return Current{}, err
	}
	if state.Index >= len(challenges) {
		return Current{}, ErrNoMoreChallenges
	}
	return Current{Index: state.Index, Challenge: challenges[state.Index], Completed: state.Completed}, nil
}

// HasActive reports whether groupID can still score the live bonus round.
// It never rotates.
func (m *Manager) HasActive(ctx context.Context, groupID string) (bool, error) {
	_, ok, err := m.ActiveFor(ctx, groupID)
	return ok, err
}

// ActiveFor returns the live round when groupID can still score it. Like
// HasActive it never rotates, so a full round stays closed until the next
// release.
func (m *Manager) ActiveFor(ctx context.Context, groupID string) (Current, bool, error) {
	state, err := m.repo.BonusState(ctx)
	if err != nil {
		return Current{}, false, err
	}
	challenges, err := m.repo.BonusChallenges(ctx)
	if err != nil {
		return Current{}, false, err
	}
	if m.available(state, len(challenges), groupID) != nil {
		return Current{}, false, nil
	}
	return Current{Index: state.Index, Challenge: challenges[state.Index], Completed: state.Completed}, true, nil
}

// Complete counts groupID toward round index and bumps the group's bonus
// counter. It fails with ErrBonusUnavailable when index is no longer the live
// round, or the round is full or already counted for the group.
func (m *Manager) Complete(ctx context.Context, groupID string, index int) error {
	challenges, err := m.repo.BonusChallenges(ctx)
	if err != nil {
		return err
	}
	err = m.repo.ClaimBonus(ctx, groupID, func(s models.BonusState) error {
		if s.Index != index {
			return ErrBonusUnavailable
		}
		return m.available(s, len(challenges), groupID)
	})
	if err != nil {
		if errors.Is(err, ErrBonusUnavailable) {
			m.log.Info().Str("group", groupID).Int("bonus", index).Msg("bonus completion refused")
		}
		return err
	}
	m.log.Info().Str("group", groupID).Int("bonus", index).Msg("bonus completed")
	return nil
}

// Step returns a step of the bonus challenge at index.
func (m *Manager) Step(ctx context.Context, index, step int) (models.Step, bool, error) {
	return m.repo.Step(ctx, models.BonusLocation, index, step)
}

func (m *Manager) available(s models.BonusState, count int, groupID string) error {
	if s.Index < 0 || s.Index >= count || len(s.Completed) >= m.maxGroups {
		return ErrBonusUnavailable
	}
	for _, g := range s.Completed {
		if g == groupID {
			return ErrBonusUnavailable
		}
	}
	return nil
}
