package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/models"
)

// LocationByOrder resolves a loop index to its challenge set.
func (r *Repository) LocationByOrder(ctx context.Context, order int) (models.Location, error) {
	return r.locations.GetOrLoad(ctx, "order:"+strconv.Itoa(order), func(ctx context.Context) (models.Location, error) {
		docs, err := r.store.List(ctx, CollChallenges)
		if err != nil {
			return models.Location{}, err
		}
		for _, d := range docs {
			if d.Ref.ID == models.BonusLocation || !d.Has("order") || d.Int("order") != order {
				continue
			}
			return locationFromDoc(d)
		}
		return models.Location{}, fmt.Errorf("order %d: %w", order, ErrUnknownLocation)
	})
}

func (r *Repository) Location(ctx context.Context, id string) (models.Location, error) {
	return r.locations.GetOrLoad(ctx, "id:"+id, func(ctx context.Context) (models.Location, error) {
		d, err := r.store.Get(ctx, challengeRef(id))
		if errors.Is(err, docstore.ErrNotFound) {
			return models.Location{}, fmt.Errorf("%s: %w", id, ErrUnknownLocation)
		}
		if err != nil {
			return models.Location{}, err
		}
		return locationFromDoc(d)
	})
}

// LocationCount is the number of standard locations on the loop.
func (r *Repository) LocationCount(ctx context.Context) (int, error) {
	docs, err := r.store.List(ctx, CollChallenges)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range docs {
		if d.Ref.ID != models.BonusLocation {
			n++
		}
	}
	return n, nil
}

func (r *Repository) BonusChallenges(ctx context.Context) ([]models.Challenge, error) {
	loc, err := r.Location(ctx, models.BonusLocation)
	if err != nil {
		return nil, err
	}
	return loc.Challenges, nil
}

// Challenge returns one challenge of a location (or of the bonus list).
func (r *Repository) Challenge(ctx context.Context, locationID string, index int) (models.Challenge, error) {
	loc, err := r.Location(ctx, locationID)
	if err != nil {
		return models.Challenge{}, err
	}
	if index < 0 || index >= len(loc.Challenges) {
		return models.Challenge{}, fmt.Errorf("%s #%d: %w", locationID, index, ErrUnknownChallenge)
	}
	return loc.Challenges[index], nil
}

// Step returns a step of a challenge. ok is false once step runs past the
// last defined step, which means the challenge is finished.
func (r *Repository) Step(ctx context.Context, locationID string, challenge, step int) (models.Step, bool, error) {
	c, err := r.Challenge(ctx, locationID, challenge)
	if err != nil {
		return models.Step{}, false, err
	}
	if step < 0 || step >= len(c.Steps) {
		return models.Step{}, false, nil
	}
	return c.Steps[step], true, nil
}

func locationFromDoc(d docstore.Doc) (models.Location, error) {
	loc := models.Location{
		ID:    d.Ref.ID,
		Name:  d.String("name"),
		Order: d.Int("order"),
	}
	if raw := d.String("challenges"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &loc.Challenges); err != nil {
			return models.Location{}, fmt.Errorf("decode challenges of %s: %w", d.Ref.ID, err)
		}
	}
	return loc, nil
}

func encodeChallenges(cs []models.Challenge) (string, error) {
	if cs == nil {
		cs = []models.Challenge{}
	}
	b, err := json.Marshal(cs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
