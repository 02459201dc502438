package race

import (
	"context"
	"time"

	"github.com/jloh02/anchored-amazing-race/internal/models"
)

type LeaderPosition struct {
	Username   string          `json:"username"`
	Location   models.GeoPoint `json:"location"`
	LastUpdate *time.Time      `json:"last_update"`
}

// GroupProgress is one row of the race overview.
type GroupProgress struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Direction       string           `json:"direction"`
	CurrentLocation int              `json:"current_location"`
	LocationName    string           `json:"location_name"`
	Completed       int              `json:"challenges_completed"`
	Skipped         int              `json:"challenges_skipped"`
	Bonus           int              `json:"bonus_completed"`
	Started         bool             `json:"started"`
	LoopCompleted   bool             `json:"loop_completed"`
	Ended           bool             `json:"ended"`
	StartTime       *time.Time       `json:"start_time"`
	EndTime         *time.Time       `json:"end_time"`
	Leaders         []LeaderPosition `json:"leaders"`
}

func (e *Engine) Progress(ctx context.Context) ([]GroupProgress, error) {
	groups, err := e.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	users, err := e.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	leaders := map[string][]LeaderPosition{}
	for _, u := range users {
		if u.Location == nil {
			continue
		}
		leaders[u.GroupID] = append(leaders[u.GroupID], LeaderPosition{
			Username:   u.Username,
			Location:   *u.Location,
			LastUpdate: u.LastUpdate,
		})
	}

	out := make([]GroupProgress, 0, len(groups))
	for _, g := range groups {
		p := GroupProgress{
			ID:              g.ID,
			Name:            g.Name,
			Direction:       string(g.Direction),
			CurrentLocation: g.CurrentLocation,
			Completed:       len(g.ChallengesCompleted),
			Skipped:         g.ChallengesSkipped,
			Bonus:           g.BonusCompleted,
			Started:         g.RaceStarted(),
			LoopCompleted:   g.RaceCompleted,
			Ended:           g.RaceEnded(),
			StartTime:       g.StartTime,
			EndTime:         g.EndTime,
			Leaders:         leaders[g.ID],
		}
		if p.Leaders == nil {
			p.Leaders = []LeaderPosition{}
		}
		if g.RaceStarted() {
			if loc, err := e.repo.LocationByOrder(ctx, g.CurrentLocation); err == nil {
				p.LocationName = loc.Name
			}
		}
		out = append(out, p)
	}
	return out, nil
}
