package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/models"
)

const fieldCompleted = "challenges_completed"

func (r *Repository) Group(ctx context.Context, id string) (*models.Group, error) {
	doc, err := r.store.Get(ctx, groupRef(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("group %s: %w", id, ErrUnknownGroup)
	}
	if err != nil {
		return nil, err
	}
	completed, err := r.store.ArrayMembers(ctx, groupRef(id), fieldCompleted)
	if err != nil {
		return nil, err
	}
	return groupFromDoc(doc, completed), nil
}

// ListGroups returns every group ordered by numeric ID.
func (r *Repository) ListGroups(ctx context.Context) ([]models.Group, error) {
	docs, err := r.store.List(ctx, CollGroups)
	if err != nil {
		return nil, err
	}
	out := make([]models.Group, 0, len(docs))
	for _, d := range docs {
		completed, err := r.store.ArrayMembers(ctx, d.Ref, fieldCompleted)
		if err != nil {
			return nil, err
		}
		out = append(out, *groupFromDoc(d, completed))
	}
	sort.Slice(out, func(i, j int) bool { return numericLess(out[i].ID, out[j].ID) })
	return out, nil
}

// GroupBroadcasts returns the broadcast chat of every group that has set one.
func (r *Repository) GroupBroadcasts(ctx context.Context) ([]int64, error) {
	groups, err := r.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := []int64{}
	for _, g := range groups {
		if g.BroadcastChannel != 0 {
			out = append(out, g.BroadcastChannel)
		}
	}
	return out, nil
}

func (r *Repository) SetBroadcastChannel(ctx context.Context, groupID string, chatID int64) error {
	return r.store.Update(ctx, groupRef(groupID), docstore.Fields{"broadcast_channel": chatID})
}

// StartGroup puts a group at its start index. It fails with
// ErrAlreadyStarted when the group already has a start time.
func (r *Repository) StartGroup(ctx context.Context, groupID string, dir models.Direction, startIndex int, at time.Time) (*models.Group, error) {
	ref := groupRef(groupID)
	err := r.store.RunTransaction(ctx, func(tx *docstore.Tx) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return mapGroupErr(groupID, err)
		}
		if doc.Time("start_time") != nil {
			return ErrAlreadyStarted
		}
		tx.Update(ref, docstore.Fields{
			"direction":          string(dir),
			"current_location":   startIndex,
			"challenges_skipped": 0,
			"bonus_completed":    0,
			"race_completed":     false,
			"start_time":         at,
			"end_time":           "",
		})
		tx.ArrayClear(ref, fieldCompleted)
		return nil
	}, ref)
	if err != nil {
		return nil, err
	}
	return r.Group(ctx, groupID)
}

// MoveGroup moves a started group to the index returned by next and
// clears its completion set, all in one transaction. An error from next
// aborts the move.
func (r *Repository) MoveGroup(ctx context.Context, groupID string, next func(g *models.Group) (index int, raceCompleted bool, err error)) (*models.Group, error) {
	ref := groupRef(groupID)
	err := r.store.RunTransaction(ctx, func(tx *docstore.Tx) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return mapGroupErr(groupID, err)
		}
		g := groupFromDoc(doc, nil)
		if !g.RaceStarted() {
			return ErrNotStarted
		}
		idx, done, err := next(g)
		if err != nil {
			return err
		}
		tx.Update(ref, docstore.Fields{
			"current_location": idx,
			"race_completed":   done,
		})
		tx.ArrayClear(ref, fieldCompleted)
		return nil
	}, ref)
	if err != nil {
		return nil, err
	}
	return r.Group(ctx, groupID)
}

// AddCompleted records challenge idx as done at the location with the given
// order and returns how many challenges are done there. It refuses when the
// group has already left that location or already completed idx.
func (r *Repository) AddCompleted(ctx context.Context, groupID string, order, idx int) (int, error) {
	ref := groupRef(groupID)
	var done int
	err := r.store.RunTransaction(ctx, func(tx *docstore.Tx) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return mapGroupErr(groupID, err)
		}
		if doc.Time("start_time") == nil {
			return ErrNotStarted
		}
		if doc.Int("current_location") != order {
			return ErrStaleLocation
		}
		completed, err := tx.ArrayMembers(ref, fieldCompleted)
		if err != nil {
			return err
		}
		member := strconv.Itoa(idx)
		for _, c := range completed {
			if c == member {
				return ErrAlreadyCompleted
			}
		}
		tx.ArrayUnion(ref, fieldCompleted, member)
		done = len(completed) + 1
		return nil
	}, ref)
	return done, err
}

func (r *Repository) IncrementSkipped(ctx context.Context, groupID string) error {
	_, err := r.store.Increment(ctx, groupRef(groupID), "challenges_skipped", 1)
	return mapGroupErr(groupID, err)
}

// EndGroup stamps the end time once.
func (r *Repository) EndGroup(ctx context.Context, groupID string, at time.Time) (*models.Group, error) {
	ref := groupRef(groupID)
	err := r.store.RunTransaction(ctx, func(tx *docstore.Tx) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return mapGroupErr(groupID, err)
		}
		if doc.Time("end_time") != nil {
			return ErrAlreadyEnded
		}
		tx.Update(ref, docstore.Fields{"end_time": at})
		return nil
	}, ref)
	if err != nil {
		return nil, err
	}
	return r.Group(ctx, groupID)
}

func mapGroupErr(groupID string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("group %s: %w", groupID, ErrUnknownGroup)
	}
	return err
}

func groupFromDoc(d docstore.Doc, completed []string) *models.Group {
	g := &models.Group{
		ID:                  d.Ref.ID,
		Name:                d.String("name"),
		BroadcastChannel:    d.Int64("broadcast_channel"),
		Direction:           models.Direction(d.String("direction")),
		CurrentLocation:     d.Int("current_location"),
		ChallengesCompleted: []int{},
		ChallengesSkipped:   d.Int("challenges_skipped"),
		BonusCompleted:      d.Int("bonus_completed"),
		StartTime:           d.Time("start_time"),
		EndTime:             d.Time("end_time"),
		RaceCompleted:       d.Bool("race_completed"),
	}
	for _, c := range completed {
		if n, err := strconv.Atoi(c); err == nil {
			g.ChallengesCompleted = append(g.ChallengesCompleted, n)
		}
	}
	sort.Ints(g.ChallengesCompleted)
	return g
}

func numericLess(a, b string) bool {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return x < y
}
