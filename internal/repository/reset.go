package repository

import (
	"context"
	"fmt"

	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/seed"
	"github.com/jloh02/anchored-amazing-race/internal/util"
)

// Reset wipes every collection and writes a fresh game from defs. Group
// leaders and admins start unregistered and the bonus state starts before
// its first round.
func (r *Repository) Reset(ctx context.Context, defs seed.Definitions) error {
	if err := defs.Validate(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	defer r.InvalidateCaches()

	for _, c := range []string{CollGroups, CollUsers, CollAdmins, CollChallenges, CollBonus, CollApprovals} {
		if err := r.store.DeleteAll(ctx, c); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}

	for i, name := range defs.Groups {
		err := r.store.Set(ctx, groupRef(seed.GroupID(i)), docstore.Fields{
			"name":               name,
			"broadcast_channel":  0,
			"direction":          "",
			"current_location":   0,
			"challenges_skipped": 0,
			"bonus_completed":    0,
			"start_time":         nil,
			"end_time":           nil,
			"race_completed":     false,
		})
		if err != nil {
			return fmt.Errorf("reset group %s: %w", name, err)
		}
	}

	for _, a := range defs.Admins {
		err := r.store.Set(ctx, adminRef(util.NormalizeUsername(a)), docstore.Fields{
			"registered":  false,
			"telegram_id": 0,
		})
		if err != nil {
			return fmt.Errorf("reset admin %s: %w", a, err)
		}
	}

	for groupID, leaders := range defs.Leaders {
		for _, u := range leaders {
			err := r.store.Set(ctx, userRef(util.NormalizeUsername(u)), docstore.Fields{
				"registered":  false,
				"telegram_id": 0,
				"group":       groupID,
			})
			if err != nil {
				return fmt.Errorf("reset user %s: %w", u, err)
			}
		}
	}

	for _, loc := range defs.Locations {
		blob, err := encodeChallenges(loc.Challenges)
		if err != nil {
			return fmt.Errorf("reset location %s: %w", loc.ID, err)
		}
		err = r.store.Set(ctx, challengeRef(loc.ID), docstore.Fields{
			"name":       loc.Name,
			"order":      loc.Order,
			"challenges": blob,
		})
		if err != nil {
			return fmt.Errorf("reset location %s: %w", loc.ID, err)
		}
	}

	blob, err := encodeChallenges(defs.Bonus)
	if err != nil {
		return fmt.Errorf("reset bonus: %w", err)
	}
	if err := r.store.Set(ctx, challengeRef(models.BonusLocation), docstore.Fields{"challenges": blob}); err != nil {
		return fmt.Errorf("reset bonus: %w", err)
	}
	if err := r.store.Set(ctx, bonusStateRef, docstore.Fields{"idx": -1}); err != nil {
		return fmt.Errorf("reset bonus state: %w", err)
	}
	return nil
}
