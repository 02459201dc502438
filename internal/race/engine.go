// Package race drives a group around the location loop: starting in a
// direction, completing or skipping the challenges of the current location,
// moving to the next one and ending the race at the finish point.
package race

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jloh02/anchored-amazing-race/internal/bonus"
	"github.com/jloh02/anchored-amazing-race/internal/journal"
	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/repository"
	"github.com/jloh02/anchored-amazing-race/internal/util"
)

var (
	ErrInvalidDirection    = errors.New("invalid direction")
	ErrRaceAlreadyStarted  = errors.New("race already started")
	ErrRaceNotStarted      = errors.New("race not started")
	ErrRaceCompleted       = errors.New("race loop already completed")
	ErrRaceNotCompleted    = errors.New("race loop not completed")
	ErrRaceAlreadyEnded    = errors.New("race already ended")
	ErrLocationUnknown     = errors.New("location never shared")
	ErrLocationStale       = errors.New("location not updated recently")
	ErrTooFarFromEndpoint  = errors.New("too far from the finish point")
	ErrWrongLocation       = errors.New("challenge is not at the current location")
	ErrChallengeDone       = errors.New("challenge already completed")
	ErrBonusNotSkippable   = errors.New("bonus challenges cannot be skipped")
	ErrChallengeOutOfRange = errors.New("no such challenge at this location")
)

type Config struct {
	// NumberLocations is the highest loop index.
	NumberLocations   int
	LocationFreshness time.Duration
	Endpoint          models.GeoPoint
	EndToleranceM     float64
}

type IndexedChallenge struct {
	Index     int
	Challenge models.Challenge
}

// Snapshot is a group together with what is left at its current location.
type Snapshot struct {
	Group        *models.Group
	LocationID   string
	LocationName string
	Pending      []IndexedChallenge
}

type Advance struct {
	Snapshot
	RaceCompleted bool
}

type CompletionKind int

const (
	CompletionStandard CompletionKind = iota
	CompletionBonus
)

// Completion is the result of completing or skipping a challenge. Remaining
// is only meaningful for standard completions.
type Completion struct {
	Kind      CompletionKind
	Remaining int
}

// LocationCleared reports whether the group may move on. A bonus completion
// never moves the group.
func (c Completion) LocationCleared() bool {
	return c.Kind == CompletionStandard && c.Remaining == 0
}

type Engine struct {
	repo    *repository.Repository
	bonus   *bonus.Manager
	journal journal.Journal
	cfg     Config
	now     func() time.Time
	log     zerolog.Logger
}

func New(repo *repository.Repository, bonusMgr *bonus.Manager, j journal.Journal, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		repo:    repo,
		bonus:   bonusMgr,
		journal: j,
		cfg:     cfg,
		now:     time.Now,
		log:     log.With().Str("component", "race").Logger(),
	}
}

// StartRace places the user's group at the start index of dir.
func (e *Engine) StartRace(ctx context.Context, username string, dir models.Direction) (*models.Group, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("%q: %w", dir, ErrInvalidDirection)
	}
	groupID, err := e.repo.GroupIDOf(ctx, username)
	if err != nil {
		return nil, err
	}

	g, err := e.repo.StartGroup(ctx, groupID, dir, StartIndex(dir, e.cfg.NumberLocations), e.now())
	if errors.Is(err, repository.ErrAlreadyStarted) {
		e.log.Info().Str("user", username).Str("group", groupID).Msg("start refused, race already started")
		return nil, ErrRaceAlreadyStarted
	}
	if err != nil {
		return nil, err
	}

	e.log.Info().Str("user", username).Str("group", groupID).Str("direction", string(dir)).
		Int("location", g.CurrentLocation).Msg("race started")
	e.record(ctx, journal.KindRaceStarted, groupID, username, string(dir))
	return g, nil
}

func (e *Engine) HasRaceStarted(ctx context.Context, username string) (bool, error) {
	g, err := e.repo.GroupOf(ctx, username)
	if err != nil {
		return false, err
	}
	return g.RaceStarted(), nil
}

// CurrentChallenges lists the challenges of the group's current location
// that are still open, keeping their original indices.
func (e *Engine) CurrentChallenges(ctx context.Context, username string) (Snapshot, error) {
	g, err := e.repo.GroupOf(ctx, username)
	if err != nil {
		return Snapshot{}, err
	}
	if !g.RaceStarted() {
		return Snapshot{}, ErrRaceNotStarted
	}
	return e.snapshot(ctx, g)
}

func (e *Engine) snapshot(ctx context.Context, g *models.Group) (Snapshot, error) {
	loc, err := e.repo.LocationByOrder(ctx, g.CurrentLocation)
	if err != nil {
		return Snapshot{}, err
	}
	s := Snapshot{Group: g, LocationID: loc.ID, LocationName: loc.Name, Pending: []IndexedChallenge{}}
	for i, c := range loc.Challenges {
		if !g.HasCompleted(i) {
			s.Pending = append(s.Pending, IndexedChallenge{Index: i, Challenge: c})
		}
	}
	return s, nil
}

// CompleteChallenge marks a challenge done for the user's group. Bonus
// completions are handed to the bonus manager.
func (e *Engine) CompleteChallenge(ctx context.Context, username, locationID string, index int) (Completion, error) {
	groupID, err := e.repo.GroupIDOf(ctx, username)
	if err != nil {
		return Completion{}, err
	}

	if locationID == models.BonusLocation {
		if err := e.bonus.Complete(ctx, groupID, index); err != nil {
			return Completion{}, err
		}
		e.record(ctx, journal.KindBonusCompleted, groupID, username, fmt.Sprintf("bonus #%d", index+1))
		return Completion{Kind: CompletionBonus}, nil
	}

	c, loc, err := e.complete(ctx, username, groupID, locationID, index)
	if err != nil {
		return Completion{}, err
	}
	e.record(ctx, journal.KindChallengeCompleted, groupID, username, fmt.Sprintf("%s #%d", loc.Name, index+1))
	return c, nil
}

// SkipChallenge is CompleteChallenge that also counts a skip.
func (e *Engine) SkipChallenge(ctx context.Context, username, locationID string, index int) (Completion, error) {
	if locationID == models.BonusLocation {
		return Completion{}, ErrBonusNotSkippable
	}
	groupID, err := e.repo.GroupIDOf(ctx, username)
	if err != nil {
		return Completion{}, err
	}

	c, loc, err := e.complete(ctx, username, groupID, locationID, index)
	if err != nil {
		return Completion{}, err
	}
	if err := e.repo.IncrementSkipped(ctx, groupID); err != nil {
		return Completion{}, err
	}
	e.record(ctx, journal.KindChallengeSkipped, groupID, username, fmt.Sprintf("%s #%d", loc.Name, index+1))
	return c, nil
}

func (e *Engine) complete(ctx context.Context, username, groupID, locationID string, index int) (Completion, models.Location, error) {
	loc, err := e.repo.Location(ctx, locationID)
	if err != nil {
		return Completion{}, loc, err
	}
	if index < 0 || index >= len(loc.Challenges) {
		return Completion{}, loc, fmt.Errorf("%s #%d: %w", locationID, index, ErrChallengeOutOfRange)
	}

	done, err := e.repo.AddCompleted(ctx, groupID, loc.Order, index)
	switch {
	case errors.Is(err, repository.ErrNotStarted):
		return Completion{}, loc, ErrRaceNotStarted
	case errors.Is(err, repository.ErrStaleLocation):
		e.log.Info().Str("user", username).Str("group", groupID).Str("location", locationID).
			Msg("completion for a location the group has left")
		return Completion{}, loc, ErrWrongLocation
	case errors.Is(err, repository.ErrAlreadyCompleted):
		return Completion{}, loc, ErrChallengeDone
	case err != nil:
		return Completion{}, loc, err
	}

	remaining := len(loc.Challenges) - done
	if remaining < 0 {
		remaining = 0
	}
	e.log.Info().Str("user", username).Str("group", groupID).Str("location", locationID).
		Int("challenge", index).Int("remaining", remaining).Msg("challenge completed")
	return Completion{Kind: CompletionStandard, Remaining: remaining}, loc, nil
}

// NextLocation moves the group one step along its direction. When the step
// lands back on the start index the loop is complete and no challenges are
// returned.
func (e *Engine) NextLocation(ctx context.Context, username string) (Advance, error) {
	groupID, err := e.repo.GroupIDOf(ctx, username)
	if err != nil {
		return Advance{}, err
	}

	g, err := e.repo.MoveGroup(ctx, groupID, func(g *models.Group) (int, bool, error) {
		if g.RaceCompleted {
			return 0, false, ErrRaceCompleted
		}
		idx, done := Next(g.Direction, g.CurrentLocation, e.cfg.NumberLocations)
		return idx, done, nil
	})
	if errors.Is(err, repository.ErrNotStarted) {
		return Advance{}, ErrRaceNotStarted
	}
	if err != nil {
		return Advance{}, err
	}

	if g.RaceCompleted {
		e.log.Info().Str("group", groupID).Msg("loop completed")
		e.record(ctx, journal.KindLoopCompleted, groupID, username, "")
		return Advance{Snapshot: Snapshot{Group: g, Pending: []IndexedChallenge{}}, RaceCompleted: true}, nil
	}

	s, err := e.snapshot(ctx, g)
	if err != nil {
		return Advance{}, err
	}
	e.log.Info().Str("group", groupID).Int("location", g.CurrentLocation).Msg("moved to next location")
	e.record(ctx, journal.KindLocationReached, groupID, username, s.LocationName)
	return Advance{Snapshot: s}, nil
}

// CheckLocationFresh fails unless the user shared a location within the
// configured freshness window.
func (e *Engine) CheckLocationFresh(ctx context.Context, username string) error {
	u, err := e.repo.User(ctx, username)
	if err != nil {
		return err
	}
	if u.Location == nil || u.LastUpdate == nil {
		return ErrLocationUnknown
	}
	if e.now().Sub(*u.LastUpdate) > e.cfg.LocationFreshness {
		return ErrLocationStale
	}
	return nil
}

// EndRace stamps the end time once the loop is complete and the user is
// within tolerance of the finish point.
func (e *Engine) EndRace(ctx context.Context, username string) (start, end time.Time, err error) {
	g, err := e.repo.GroupOf(ctx, username)
	if err != nil {
		return start, end, err
	}
	switch {
	case !g.RaceStarted():
		return start, end, ErrRaceNotStarted
	case g.RaceEnded():
		return start, end, ErrRaceAlreadyEnded
	case !g.RaceCompleted:
		return start, end, ErrRaceNotCompleted
	}

	u, err := e.repo.User(ctx, username)
	if err != nil {
		return start, end, err
	}
	if u.Location == nil {
		return start, end, ErrLocationUnknown
	}
	dist := util.DistanceMeters(u.Location.Lat, u.Location.Lng, e.cfg.Endpoint.Lat, e.cfg.Endpoint.Lng)
	if dist > e.cfg.EndToleranceM {
		e.log.Info().Str("user", username).Str("group", g.ID).Float64("distance_m", dist).Msg("end refused, too far")
		return start, end, fmt.Errorf("%w (%.0fm away)", ErrTooFarFromEndpoint, dist)
	}

	g, err = e.repo.EndGroup(ctx, g.ID, e.now())
	if errors.Is(err, repository.ErrAlreadyEnded) {
		return start, end, ErrRaceAlreadyEnded
	}
	if err != nil {
		return start, end, err
	}

	start, end = *g.StartTime, *g.EndTime
	e.log.Info().Str("group", g.ID).Dur("duration", end.Sub(start)).Msg("race ended")
	e.record(ctx, journal.KindRaceEnded, g.ID, username, util.FormatDuration(end.Sub(start)))
	return start, end, nil
}

func (e *Engine) record(ctx context.Context, kind journal.Kind, groupID, actor, detail string) {
	if e.journal == nil {
		return
	}
	ev := journal.Event{At: e.now(), Kind: kind, Group: groupID, Actor: actor, Detail: detail}
	if err := e.journal.Record(ctx, ev); err != nil {
		e.log.Error().Err(err).Str("kind", string(kind)).Msg("journal write failed")
	}
}

// Record adds an event that did not come from the engine itself.
func (e *Engine) Record(ctx context.Context, kind journal.Kind, groupID, actor, detail string) {
	e.record(ctx, kind, groupID, actor, detail)
}
