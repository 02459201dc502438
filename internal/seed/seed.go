// Package seed describes the game definitions a reset starts from and reads
// them from a directory of roster and challenge files.
package seed

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/jloh02/anchored-amazing-race/internal/models"
)

// Definitions is everything a reset writes. Group IDs are the 1-based
// position of the group name in Groups.
type Definitions struct {
	Groups    []string
	Admins    []string
	Leaders   map[string][]string
	Locations []models.Location
	Bonus     []models.Challenge
}

type Source interface {
	Load(ctx context.Context) (Definitions, error)
}

// GroupID is the document ID of the i-th group (0-based).
func GroupID(i int) string { return strconv.Itoa(i + 1) }

// Validate checks the loop is contiguous, every leader belongs to a known
// group and every step is answerable.
func (d Definitions) Validate() error {
	if len(d.Groups) == 0 {
		return fmt.Errorf("no groups defined")
	}
	if len(d.Locations) == 0 {
		return fmt.Errorf("no locations defined")
	}

	orders := make([]int, 0, len(d.Locations))
	seen := map[string]bool{}
	for _, loc := range d.Locations {
		if loc.ID == "" {
			return fmt.Errorf("location with order %d has no id", loc.Order)
		}
		if loc.ID == models.BonusLocation {
			return fmt.Errorf("location id %q is reserved", loc.ID)
		}
		if seen[loc.ID] {
			return fmt.Errorf("duplicate location %q", loc.ID)
		}
		seen[loc.ID] = true
		if len(loc.Challenges) == 0 {
			return fmt.Errorf("location %q has no challenges", loc.ID)
		}
		for i, ch := range loc.Challenges {
			if err := validateChallenge(ch); err != nil {
				return fmt.Errorf("location %q challenge #%d: %w", loc.ID, i+1, err)
			}
		}
		orders = append(orders, loc.Order)
	}
	sort.Ints(orders)
	for i, o := range orders {
		if o != i {
			return fmt.Errorf("location orders must be 0..%d without gaps, got %v", len(orders)-1, orders)
		}
	}

	for i, ch := range d.Bonus {
		if err := validateChallenge(ch); err != nil {
			return fmt.Errorf("bonus challenge #%d: %w", i+1, err)
		}
	}

	for groupID, users := range d.Leaders {
		n, err := strconv.Atoi(groupID)
		if err != nil || n < 1 || n > len(d.Groups) {
			return fmt.Errorf("leaders reference unknown group %q", groupID)
		}
		if len(users) == 0 {
			return fmt.Errorf("group %q has no leaders", groupID)
		}
	}
	return nil
}

func validateChallenge(ch models.Challenge) error {
	if len(ch.Steps) == 0 {
		return fmt.Errorf("no steps")
	}
	for i, st := range ch.Steps {
		switch st.Type {
		case models.StepText:
			if st.Answer == "" {
				return fmt.Errorf("text step %d has no answer", i+1)
			}
		case models.StepPhoto, models.StepVideo:
		default:
			return fmt.Errorf("step %d has unknown type %q", i+1, st.Type)
		}
		if st.NumPhoto < 0 {
			return fmt.Errorf("step %d has negative photo count", i+1)
		}
	}
	return nil
}
