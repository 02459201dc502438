package race

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/jloh02/anchored-amazing-race/internal/bonus"
	"github.com/jloh02/anchored-amazing-race/internal/cache"
	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/journal"
	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/repository"
	"github.com/jloh02/anchored-amazing-race/internal/seed"
)

var finish = models.GeoPoint{Lat: 1.3521, Lng: 103.8198}

type testEnv struct {
	engine  *Engine
	repo    *repository.Repository
	bonus   *bonus.Manager
	journal *journal.RedisJournal
	now     time.Time
}

// setupTestEngine seeds the three-location test game, so the loop is 0..2.
func setupTestEngine(t *testing.T) *testEnv {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := docstore.Open("redis://"+s.Addr(), "test:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	repo := repository.New(store, cache.New[string, string](), cache.New[string, models.Location]())
	defs, err := seed.DirSource{Dir: "../seed/testdata/game"}.Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load definitions: %v", err)
	}
	if err := repo.Reset(context.Background(), defs); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	env := &testEnv{
		repo:    repo,
		bonus:   bonus.New(repo, 2, zerolog.Nop()),
		journal: journal.NewRedis(store.Client(), "test:", 100),
		now:     time.Date(2024, 1, 13, 9, 0, 0, 0, time.UTC),
	}
	env.engine = New(repo, env.bonus, env.journal, Config{
		NumberLocations:   2,
		LocationFreshness: 5 * time.Minute,
		Endpoint:          finish,
		EndToleranceM:     100,
	}, zerolog.Nop())
	env.engine.now = func() time.Time { return env.now }
	return env
}

func TestStartRace(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	if _, err := env.engine.StartRace(ctx, "alice", "C3"); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}

	g, err := env.engine.StartRace(ctx, "alice", models.DirectionB0)
	if err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}
	if g.CurrentLocation != 2 || !g.StartTime.Equal(env.now) || len(g.ChallengesCompleted) != 0 {
		t.Fatalf("unexpected group: %+v", g)
	}

	if _, err := env.engine.StartRace(ctx, "alice", models.DirectionA1); !errors.Is(err, ErrRaceAlreadyStarted) {
		t.Fatalf("expected ErrRaceAlreadyStarted, got %v", err)
	}
	g, _ = env.repo.Group(ctx, "1")
	if g.Direction != models.DirectionB0 {
		t.Fatalf("refused start must not change the group: %+v", g)
	}

	started, err := env.engine.HasRaceStarted(ctx, "alice")
	if err != nil || !started {
		t.Fatalf("expected race started, got %v (%v)", started, err)
	}
	started, _ = env.engine.HasRaceStarted(ctx, "bob")
	if started {
		t.Fatal("group 2 should not have started")
	}

	events, _ := env.journal.Recent(ctx, 10)
	if len(events) != 1 || events[0].Kind != journal.KindRaceStarted || events[0].Group != "1" {
		t.Fatalf("unexpected journal: %+v", events)
	}
}

func TestCompletionDrivesRemainingToZero(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	if _, err := env.engine.StartRace(ctx, "alice", models.DirectionA1); err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}

	snap, err := env.engine.CurrentChallenges(ctx, "alice")
	if err != nil {
		t.Fatalf("CurrentChallenges failed: %v", err)
	}
	if snap.LocationID != "toa-payoh" || len(snap.Pending) != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	steps := []struct {
		index     int
		remaining int
	}{
		{0, 2},
		{2, 1},
		{1, 0},
	}
	for _, st := range steps {
		c, err := env.engine.CompleteChallenge(ctx, "alice", "toa-payoh", st.index)
		if err != nil {
			t.Fatalf("complete %d failed: %v", st.index, err)
		}
		if c.Kind != CompletionStandard || c.Remaining != st.remaining {
			t.Fatalf("complete %d: expected remaining %d, got %+v", st.index, st.remaining, c)
		}
		if c.LocationCleared() != (st.remaining == 0) {
			t.Fatalf("complete %d: unexpected LocationCleared", st.index)
		}
		if st.index == 2 {
			snap, _ := env.engine.CurrentChallenges(ctx, "alice")
			if len(snap.Pending) != 1 || snap.Pending[0].Index != 1 {
				t.Fatalf("expected only challenge 1 pending, got %+v", snap.Pending)
			}
		}
	}

	if _, err := env.engine.CompleteChallenge(ctx, "bea", "toa-payoh", 1); !errors.Is(err, ErrRaceNotStarted) {
		t.Fatalf("expected ErrRaceNotStarted for group 2, got %v", err)
	}
	if _, err := env.engine.CompleteChallenge(ctx, "alice", "toa-payoh", 1); !errors.Is(err, ErrChallengeDone) {
		t.Fatalf("expected ErrChallengeDone, got %v", err)
	}
	if _, err := env.engine.CompleteChallenge(ctx, "alice", "toa-payoh", 3); !errors.Is(err, ErrChallengeOutOfRange) {
		t.Fatalf("expected ErrChallengeOutOfRange, got %v", err)
	}
}

func TestSkipChallenge(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	if _, err := env.engine.StartRace(ctx, "bob", models.DirectionA0); err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}
	c, err := env.engine.SkipChallenge(ctx, "bob", "bishan", 0)
	if err != nil {
		t.Fatalf("SkipChallenge failed: %v", err)
	}
	if c.Remaining != 1 {
		t.Fatalf("expected 1 remaining, got %+v", c)
	}
	c, err = env.engine.CompleteChallenge(ctx, "bea", "bishan", 1)
	if err != nil || !c.LocationCleared() {
		t.Fatalf("expected location cleared, got %+v (%v)", c, err)
	}

	g, _ := env.repo.Group(ctx, "2")
	if g.ChallengesSkipped != 1 {
		t.Fatalf("expected 1 skip, got %d", g.ChallengesSkipped)
	}
	if _, err := env.engine.SkipChallenge(ctx, "bob", models.BonusLocation, 0); !errors.Is(err, ErrBonusNotSkippable) {
		t.Fatalf("expected ErrBonusNotSkippable, got %v", err)
	}
}

func TestNextLocationLoop(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	if _, err := env.engine.StartRace(ctx, "alice", models.DirectionA1); err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}
	if _, err := env.engine.CompleteChallenge(ctx, "alice", "toa-payoh", 0); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	adv, err := env.engine.NextLocation(ctx, "alice")
	if err != nil {
		t.Fatalf("NextLocation failed: %v", err)
	}
	if adv.RaceCompleted || adv.LocationID != "bishan" || len(adv.Pending) != 2 {
		t.Fatalf("unexpected advance: %+v", adv)
	}
	if len(adv.Group.ChallengesCompleted) != 0 {
		t.Fatalf("completion set must be empty after moving: %v", adv.Group.ChallengesCompleted)
	}

	if _, err := env.engine.CompleteChallenge(ctx, "alice", "toa-payoh", 1); !errors.Is(err, ErrWrongLocation) {
		t.Fatalf("expected ErrWrongLocation, got %v", err)
	}

	adv, err = env.engine.NextLocation(ctx, "alice")
	if err != nil || adv.RaceCompleted || adv.LocationID != "novena" {
		t.Fatalf("unexpected advance: %+v (%v)", adv, err)
	}

	adv, err = env.engine.NextLocation(ctx, "alice")
	if err != nil {
		t.Fatalf("NextLocation failed: %v", err)
	}
	if !adv.RaceCompleted || adv.Group.CurrentLocation != 0 || len(adv.Pending) != 0 {
		t.Fatalf("expected loop completion back at 0, got %+v", adv)
	}

	if _, err := env.engine.NextLocation(ctx, "alice"); !errors.Is(err, ErrRaceCompleted) {
		t.Fatalf("expected ErrRaceCompleted, got %v", err)
	}
	if _, err := env.engine.NextLocation(ctx, "carol"); !errors.Is(err, ErrRaceNotStarted) {
		t.Fatalf("expected ErrRaceNotStarted, got %v", err)
	}
}

func TestBonusCompletionNeverAdvances(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	if _, err := env.engine.StartRace(ctx, "carol", models.DirectionB1); err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}
	if _, err := env.bonus.Current(ctx); err != nil {
		t.Fatalf("bonus Current failed: %v", err)
	}

	c, err := env.engine.CompleteChallenge(ctx, "carol", models.BonusLocation, 0)
	if err != nil {
		t.Fatalf("bonus completion failed: %v", err)
	}
	if c.Kind != CompletionBonus || c.LocationCleared() {
		t.Fatalf("unexpected completion: %+v", c)
	}

	g, _ := env.repo.Group(ctx, "3")
	if g.CurrentLocation != 0 || g.BonusCompleted != 1 || len(g.ChallengesCompleted) != 0 {
		t.Fatalf("bonus must not touch the location: %+v", g)
	}

	if _, err := env.engine.CompleteChallenge(ctx, "carol", models.BonusLocation, 0); !errors.Is(err, bonus.ErrBonusUnavailable) {
		t.Fatalf("expected ErrBonusUnavailable, got %v", err)
	}
}

func TestCheckLocationFresh(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	if err := env.engine.CheckLocationFresh(ctx, "alice"); !errors.Is(err, ErrLocationUnknown) {
		t.Fatalf("expected ErrLocationUnknown, got %v", err)
	}
	if err := env.repo.SetLocation(ctx, "alice", finish, env.now); err != nil {
		t.Fatalf("SetLocation failed: %v", err)
	}
	if err := env.engine.CheckLocationFresh(ctx, "alice"); err != nil {
		t.Fatalf("expected fresh location, got %v", err)
	}
	env.now = env.now.Add(6 * time.Minute)
	if err := env.engine.CheckLocationFresh(ctx, "alice"); !errors.Is(err, ErrLocationStale) {
		t.Fatalf("expected ErrLocationStale, got %v", err)
	}
}

func TestEndRace(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	start := env.now

	if _, _, err := env.engine.EndRace(ctx, "alice"); !errors.Is(err, ErrRaceNotStarted) {
		t.Fatalf("expected ErrRaceNotStarted, got %v", err)
	}
	if _, err := env.engine.StartRace(ctx, "alice", models.DirectionA1); err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}
	if _, _, err := env.engine.EndRace(ctx, "alice"); !errors.Is(err, ErrRaceNotCompleted) {
		t.Fatalf("expected ErrRaceNotCompleted, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := env.engine.NextLocation(ctx, "alice"); err != nil {
			t.Fatalf("NextLocation failed: %v", err)
		}
	}

	if _, _, err := env.engine.EndRace(ctx, "alice"); !errors.Is(err, ErrLocationUnknown) {
		t.Fatalf("expected ErrLocationUnknown, got %v", err)
	}

	far := models.GeoPoint{Lat: finish.Lat + 0.01, Lng: finish.Lng}
	if err := env.repo.SetLocation(ctx, "alice", far, env.now); err != nil {
		t.Fatalf("SetLocation failed: %v", err)
	}
	if _, _, err := env.engine.EndRace(ctx, "alice"); !errors.Is(err, ErrTooFarFromEndpoint) {
		t.Fatalf("expected ErrTooFarFromEndpoint, got %v", err)
	}
	g, _ := env.repo.Group(ctx, "1")
	if g.RaceEnded() {
		t.Fatal("refused end must not stamp end time")
	}

	if err := env.repo.SetLocation(ctx, "alice", finish, env.now); err != nil {
		t.Fatalf("SetLocation failed: %v", err)
	}
	env.now = env.now.Add(90 * time.Minute)
	gotStart, gotEnd, err := env.engine.EndRace(ctx, "alice")
	if err != nil {
		t.Fatalf("EndRace failed: %v", err)
	}
	if !gotStart.Equal(start) || gotEnd.Sub(gotStart) != 90*time.Minute {
		t.Fatalf("unexpected times: %v -> %v", gotStart, gotEnd)
	}

	if _, _, err := env.engine.EndRace(ctx, "alice"); !errors.Is(err, ErrRaceAlreadyEnded) {
		t.Fatalf("expected ErrRaceAlreadyEnded, got %v", err)
	}
}

func TestProgress(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	if _, err := env.engine.StartRace(ctx, "bob", models.DirectionA0); err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}
	if _, err := env.engine.CompleteChallenge(ctx, "bob", "bishan", 1); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if err := env.repo.SetLocation(ctx, "bea", finish, env.now); err != nil {
		t.Fatalf("SetLocation failed: %v", err)
	}

	rows, err := env.engine.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	p := rows[1]
	if p.ID != "2" || !p.Started || p.LocationName != "Bishan" || p.Completed != 1 {
		t.Fatalf("unexpected row: %+v", p)
	}
	if len(p.Leaders) != 1 || p.Leaders[0].Username != "bea" {
		t.Fatalf("unexpected leaders: %+v", p.Leaders)
	}
	if rows[0].Started || len(rows[0].Leaders) != 0 {
		t.Fatalf("group 1 should be idle: %+v", rows[0])
	}
}
