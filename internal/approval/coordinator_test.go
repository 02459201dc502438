package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/jloh02/anchored-amazing-race/internal/cache"
	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/repository"
)

func setupTestCoordinator(t *testing.T) (*Coordinator, *repository.Repository) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := docstore.Open("redis://"+s.Addr(), "test:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	repo := repository.New(store, cache.New[string, string](), cache.New[string, models.Location]())
	return New(repo, zerolog.Nop()), repo
}

type awaitResult struct {
	out Outcome
	err error
}

func awaitAsync(c *Coordinator, id string, timeout time.Duration) <-chan awaitResult {
	ch := make(chan awaitResult, 1)
	go func() {
		out, err := c.AwaitResolution(context.Background(), id, timeout)
		ch <- awaitResult{out, err}
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan awaitResult) awaitResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("AwaitResolution did not return")
		return awaitResult{}
	}
}

func assertGone(t *testing.T, repo *repository.Repository, id string) {
	t.Helper()
	if _, err := repo.Approval(context.Background(), id); !errors.Is(err, repository.ErrApprovalNotFound) {
		t.Fatalf("expected request %s to be deleted, got %v", id, err)
	}
}

func TestApproveRoundTrip(t *testing.T) {
	c, repo := setupTestCoordinator(t)
	ctx := context.Background()

	id, err := c.CreateRequest(ctx)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	req, err := repo.Approval(ctx, id)
	if err != nil || req.Status != models.ApprovalPending {
		t.Fatalf("expected pending request, got %+v (%v)", req, err)
	}

	done := awaitAsync(c, id, 10*time.Second)
	time.Sleep(50 * time.Millisecond)
	if err := c.ResolveRequest(ctx, models.RoleAdmin, id, true, "captain"); err != nil {
		t.Fatalf("ResolveRequest failed: %v", err)
	}

	r := waitResult(t, done)
	if r.err != nil {
		t.Fatalf("AwaitResolution failed: %v", r.err)
	}
	if r.out.Kind != Approved || r.out.Approver != "captain" {
		t.Fatalf("unexpected outcome: %+v", r.out)
	}
	assertGone(t, repo, id)

	if err := c.ResolveRequest(ctx, models.RoleAdmin, id, false, "captain"); !errors.Is(err, ErrRequestGone) {
		t.Fatalf("expected second resolution to find nothing, got %v", err)
	}
}

func TestResolvedBeforeAwait(t *testing.T) {
	c, repo := setupTestCoordinator(t)
	ctx := context.Background()

	id, err := c.CreateRequest(ctx)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if err := c.ResolveRequest(ctx, models.RoleGL, id, false, "alice"); err != nil {
		t.Fatalf("ResolveRequest failed: %v", err)
	}

	out, err := c.AwaitResolution(ctx, id, time.Second)
	if err != nil {
		t.Fatalf("AwaitResolution failed: %v", err)
	}
	if out.Kind != Rejected || out.Approver != "alice" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	assertGone(t, repo, id)
}

func TestTimeout(t *testing.T) {
	c, repo := setupTestCoordinator(t)
	ctx := context.Background()

	id, err := c.CreateRequest(ctx)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	out, err := c.AwaitResolution(ctx, id, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitResolution failed: %v", err)
	}
	if out.Kind != TimedOut || out.Approver != "" {
		t.Fatalf("expected timeout, got %+v", out)
	}
	assertGone(t, repo, id)

	if err := c.ResolveRequest(ctx, models.RoleAdmin, id, true, "captain"); !errors.Is(err, ErrRequestGone) {
		t.Fatalf("expected late resolution to be a no-op, got %v", err)
	}
	assertGone(t, repo, id)
}

func TestUnauthorizedResolver(t *testing.T) {
	c, repo := setupTestCoordinator(t)
	ctx := context.Background()

	id, err := c.CreateRequest(ctx)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if err := c.ResolveRequest(ctx, models.RoleUnregistered, id, true, "mallory"); !errors.Is(err, ErrUnauthorizedApprover) {
		t.Fatalf("expected ErrUnauthorizedApprover, got %v", err)
	}
	req, err := repo.Approval(ctx, id)
	if err != nil || req.Status != models.ApprovalPending {
		t.Fatalf("denied resolution must not change the request: %+v (%v)", req, err)
	}
}

func TestCancelledWaitCleansUp(t *testing.T) {
	c, repo := setupTestCoordinator(t)

	id, err := c.CreateRequest(context.Background())
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if _, err := c.AwaitResolution(ctx, id, 10*time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	assertGone(t, repo, id)
}

func TestAwaitMissingRequest(t *testing.T) {
	c, _ := setupTestCoordinator(t)
	if _, err := c.AwaitResolution(context.Background(), "nope", time.Second); !errors.Is(err, ErrRequestGone) {
		t.Fatalf("expected ErrRequestGone, got %v", err)
	}
}

func TestRequestIDsAreShort(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id := newRequestID()
		if len(id) != requestIDLen {
			t.Fatalf("newRequestID() = %q, want %d chars", id, requestIDLen)
		}
		for _, r := range id {
			if !('0' <= r && r <= '9' || 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z') {
				t.Fatalf("newRequestID() = %q contains %q", id, r)
			}
		}
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
	}
}

func TestCancelDeletesRequest(t *testing.T) {
	c, repo := setupTestCoordinator(t)
	ctx := context.Background()
	id, err := c.CreateRequest(ctx)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	c.Cancel(id)
	if _, err := repo.Approval(ctx, id); !errors.Is(err, repository.ErrApprovalNotFound) {
		t.Fatalf("expected request to be deleted, got %v", err)
	}
	// cancelling twice is harmless
	c.Cancel(id)
}
