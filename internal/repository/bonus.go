package repository

import (
	"context"

	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/models"
)

const fieldBonusCompleted = "completed"

func (r *Repository) BonusState(ctx context.Context) (models.BonusState, error) {
	d, err := r.store.Get(ctx, bonusStateRef)
	if err != nil {
		return models.BonusState{}, err
	}
	completed, err := r.store.ArrayMembers(ctx, bonusStateRef, fieldBonusCompleted)
	if err != nil {
		return models.BonusState{}, err
	}
	return models.BonusState{Index: d.Int("idx"), Completed: completed}, nil
}

// RotateBonus reads the bonus state and, when rotate says so, moves to the
// next bonus challenge with an empty completion set. The returned state is
// the one in effect after the call.
func (r *Repository) RotateBonus(ctx context.Context, rotate func(models.BonusState) bool) (models.BonusState, error) {
	var state models.BonusState
	err := r.store.RunTransaction(ctx, func(tx *docstore.Tx) error {
		s, err := readBonus(tx)
		if err != nil {
			return err
		}
		if rotate(s) {
			s = models.BonusState{Index: s.Index + 1, Completed: []string{}}
			tx.Update(bonusStateRef, docstore.Fields{"idx": s.Index})
			tx.ArrayClear(bonusStateRef, fieldBonusCompleted)
		}
		state = s
		return nil
	}, bonusStateRef)
	return state, err
}

// ClaimBonus counts groupID toward the current bonus round when allow
// accepts the state, and bumps the group's bonus counter in the same
// transaction.
func (r *Repository) ClaimBonus(ctx context.Context, groupID string, allow func(models.BonusState) error) error {
	gref := groupRef(groupID)
	return r.store.RunTransaction(ctx, func(tx *docstore.Tx) error {
		if _, err := tx.Get(gref); err != nil {
			return mapGroupErr(groupID, err)
		}
		s, err := readBonus(tx)
		if err != nil {
			return err
		}
		if err := allow(s); err != nil {
			return err
		}
		tx.ArrayUnion(bonusStateRef, fieldBonusCompleted, groupID)
		tx.Increment(gref, "bonus_completed", 1)
		return nil
	}, bonusStateRef, gref)
}

func readBonus(tx *docstore.Tx) (models.BonusState, error) {
	d, err := tx.Get(bonusStateRef)
	if err != nil {
		return models.BonusState{}, err
	}
	completed, err := tx.ArrayMembers(bonusStateRef, fieldBonusCompleted)
	if err != nil {
		return models.BonusState{}, err
	}
	return models.BonusState{Index: d.Int("idx"), Completed: completed}, nil
}
