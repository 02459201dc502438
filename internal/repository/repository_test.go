package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/jloh02/anchored-amazing-race/internal/cache"
	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/seed"
)

func setupTestRepository(t *testing.T) *Repository {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := docstore.Open("redis://"+s.Addr(), "test:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	repo := New(store, cache.New[string, string](), cache.New[string, models.Location]())
	defs, err := seed.DirSource{Dir: "../seed/testdata/game"}.Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load definitions: %v", err)
	}
	if err := repo.Reset(context.Background(), defs); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	return repo
}

func TestResetSeedsGame(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	groups, err := repo.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(groups) != 3 || groups[0].Name != "Kraken" || groups[2].ID != "3" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	for _, g := range groups {
		if g.RaceStarted() || g.RaceEnded() || len(g.ChallengesCompleted) != 0 {
			t.Errorf("group %s not fresh: %+v", g.ID, g)
		}
	}

	n, err := repo.LocationCount(ctx)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 locations, got %d (%v)", n, err)
	}
	loc, err := repo.LocationByOrder(ctx, 1)
	if err != nil {
		t.Fatalf("LocationByOrder failed: %v", err)
	}
	if loc.ID != "bishan" || len(loc.Challenges) != 2 {
		t.Fatalf("unexpected location: %+v", loc)
	}
	if _, err := repo.LocationByOrder(ctx, 7); !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("expected ErrUnknownLocation, got %v", err)
	}

	bonus, err := repo.BonusChallenges(ctx)
	if err != nil || len(bonus) != 2 {
		t.Fatalf("expected 2 bonus challenges, got %d (%v)", len(bonus), err)
	}
	state, err := repo.BonusState(ctx)
	if err != nil {
		t.Fatalf("BonusState failed: %v", err)
	}
	if state.Index != -1 || len(state.Completed) != 0 {
		t.Fatalf("unexpected bonus state: %+v", state)
	}
}

func TestRolesAndRegistration(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	role, err := repo.Role(ctx, "alice")
	if err != nil || role != models.RoleUnregistered {
		t.Fatalf("expected unregistered before /start, got %v (%v)", role, err)
	}

	ok, err := repo.RegisterUser(ctx, "alice", 42)
	if err != nil || !ok {
		t.Fatalf("RegisterUser failed: %v %v", ok, err)
	}
	ok, err = repo.RegisterUser(ctx, "mallory", 43)
	if err != nil || ok {
		t.Fatalf("expected unknown user to be refused, got %v %v", ok, err)
	}
	if err := repo.RegisterAdmin(ctx, "captain", 7); err != nil {
		t.Fatalf("RegisterAdmin failed: %v", err)
	}

	cases := []struct {
		user string
		want models.Role
	}{
		{"alice", models.RoleGL},
		{"captain", models.RoleAdmin},
		{"quartermaster", models.RoleUnregistered},
		{"mallory", models.RoleUnregistered},
	}
	for _, tc := range cases {
		t.Run(tc.user, func(t *testing.T) {
			got, err := repo.Role(ctx, tc.user)
			if err != nil {
				t.Fatalf("Role failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	id, err := repo.GroupIDOf(ctx, "bea")
	if err != nil || id != "2" {
		t.Fatalf("expected group 2, got %q (%v)", id, err)
	}
	if _, err := repo.GroupIDOf(ctx, "mallory"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestSetLocation(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 13, 10, 0, 0, 0, time.UTC)

	if err := repo.SetLocation(ctx, "alice", models.GeoPoint{Lat: 1.35, Lng: 103.8}, at); err != nil {
		t.Fatalf("SetLocation failed: %v", err)
	}
	u, err := repo.User(ctx, "alice")
	if err != nil {
		t.Fatalf("User failed: %v", err)
	}
	if u.Location == nil || u.Location.Lat != 1.35 || u.LastUpdate == nil || !u.LastUpdate.Equal(at) {
		t.Fatalf("unexpected user: %+v", u)
	}

	u, err = repo.User(ctx, "bob")
	if err != nil || u.Location != nil {
		t.Fatalf("expected no location for bob, got %+v (%v)", u, err)
	}
}

func TestGroupLifecycle(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 13, 9, 0, 0, 0, time.UTC)

	g, err := repo.StartGroup(ctx, "1", models.DirectionA0, 1, start)
	if err != nil {
		t.Fatalf("StartGroup failed: %v", err)
	}
	if g.CurrentLocation != 1 || g.Direction != models.DirectionA0 || !g.RaceStarted() {
		t.Fatalf("unexpected group after start: %+v", g)
	}
	if _, err := repo.StartGroup(ctx, "1", models.DirectionB1, 0, start); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	n, err := repo.AddCompleted(ctx, "1", 1, 0)
	if err != nil || n != 1 {
		t.Fatalf("AddCompleted failed: %d %v", n, err)
	}
	if _, err := repo.AddCompleted(ctx, "1", 1, 0); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if _, err := repo.AddCompleted(ctx, "1", 2, 1); !errors.Is(err, ErrStaleLocation) {
		t.Fatalf("expected ErrStaleLocation, got %v", err)
	}

	g, err = repo.MoveGroup(ctx, "1", func(g *models.Group) (int, bool, error) {
		return g.CurrentLocation + 1, false, nil
	})
	if err != nil {
		t.Fatalf("MoveGroup failed: %v", err)
	}
	if g.CurrentLocation != 2 || len(g.ChallengesCompleted) != 0 {
		t.Fatalf("completion set not cleared on move: %+v", g)
	}

	if err := repo.IncrementSkipped(ctx, "1"); err != nil {
		t.Fatalf("IncrementSkipped failed: %v", err)
	}
	g, _ = repo.Group(ctx, "1")
	if g.ChallengesSkipped != 1 {
		t.Fatalf("expected 1 skip, got %d", g.ChallengesSkipped)
	}

	end := start.Add(2 * time.Hour)
	g, err = repo.EndGroup(ctx, "1", end)
	if err != nil || g.EndTime == nil || !g.EndTime.Equal(end) {
		t.Fatalf("EndGroup failed: %+v %v", g, err)
	}
	if _, err := repo.EndGroup(ctx, "1", end); !errors.Is(err, ErrAlreadyEnded) {
		t.Fatalf("expected ErrAlreadyEnded, got %v", err)
	}
}

func TestMoveGroupRequiresStart(t *testing.T) {
	repo := setupTestRepository(t)
	_, err := repo.MoveGroup(context.Background(), "2", func(g *models.Group) (int, bool, error) { return 1, false, nil })
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if _, err := repo.Group(context.Background(), "99"); !errors.Is(err, ErrUnknownGroup) {
		t.Fatalf("expected ErrUnknownGroup, got %v", err)
	}
}

func TestSteps(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	st, ok, err := repo.Step(ctx, "toa-payoh", 0, 1)
	if err != nil || !ok {
		t.Fatalf("Step failed: %v %v", ok, err)
	}
	if st.Type != models.StepPhoto || st.NumPhoto != 3 {
		t.Fatalf("unexpected step: %+v", st)
	}
	if _, ok, err := repo.Step(ctx, "toa-payoh", 0, 2); err != nil || ok {
		t.Fatalf("expected exhausted challenge, got %v %v", ok, err)
	}
	if _, _, err := repo.Step(ctx, "toa-payoh", 9, 0); !errors.Is(err, ErrUnknownChallenge) {
		t.Fatalf("expected ErrUnknownChallenge, got %v", err)
	}
}

func TestApprovalDocuments(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	if err := repo.CreateApproval(ctx, "req-1"); err != nil {
		t.Fatalf("CreateApproval failed: %v", err)
	}
	if err := repo.ResolveApproval(ctx, "req-1", true, "captain"); err != nil {
		t.Fatalf("ResolveApproval failed: %v", err)
	}
	req, err := repo.Approval(ctx, "req-1")
	if err != nil {
		t.Fatalf("Approval failed: %v", err)
	}
	if req.Status != models.ApprovalResolved || !req.Approved || req.Approver != "captain" {
		t.Fatalf("unexpected request: %+v", req)
	}

	if err := repo.DeleteApproval(ctx, "req-1"); err != nil {
		t.Fatalf("DeleteApproval failed: %v", err)
	}
	if err := repo.ResolveApproval(ctx, "req-1", false, "captain"); !errors.Is(err, ErrApprovalNotFound) {
		t.Fatalf("expected ErrApprovalNotFound, got %v", err)
	}
}

func TestClaimBonus(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	errFull := errors.New("full")

	state, err := repo.RotateBonus(ctx, func(s models.BonusState) bool { return s.Index < 0 })
	if err != nil || state.Index != 0 {
		t.Fatalf("expected rotation to 0, got %+v (%v)", state, err)
	}

	allow := func(s models.BonusState) error {
		if len(s.Completed) >= 1 {
			return errFull
		}
		return nil
	}
	if err := repo.ClaimBonus(ctx, "2", allow); err != nil {
		t.Fatalf("ClaimBonus failed: %v", err)
	}
	if err := repo.ClaimBonus(ctx, "3", allow); !errors.Is(err, errFull) {
		t.Fatalf("expected errFull, got %v", err)
	}

	g, _ := repo.Group(ctx, "2")
	if g.BonusCompleted != 1 {
		t.Fatalf("expected bonus counter 1, got %d", g.BonusCompleted)
	}
	state, _ = repo.BonusState(ctx)
	if len(state.Completed) != 1 || state.Completed[0] != "2" {
		t.Fatalf("unexpected bonus state: %+v", state)
	}
}

func TestResetInvalidatesCaches(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	if _, err := repo.GroupIDOf(ctx, "alice"); err != nil {
		t.Fatalf("GroupIDOf failed: %v", err)
	}
	if _, err := repo.LocationByOrder(ctx, 0); err != nil {
		t.Fatalf("LocationByOrder failed: %v", err)
	}
	if repo.groupRefs.Len() == 0 || repo.locations.Len() == 0 {
		t.Fatal("expected caches to be warm")
	}

	defs, err := seed.DirSource{Dir: "../seed/testdata/game"}.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := repo.Reset(ctx, defs); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if repo.groupRefs.Len() != 0 || repo.locations.Len() != 0 {
		t.Fatal("expected caches to be empty after reset")
	}
}
