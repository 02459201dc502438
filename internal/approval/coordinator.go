// Package approval suspends a submission until an admin approves or rejects
// it, or until the wait times out. Requests live in the document store so
// the admin side can resolve them from any handler.
package approval

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/repository"
)

var (
	ErrUnauthorizedApprover = errors.New("not allowed to resolve approvals")
	ErrRequestGone          = errors.New("approval request no longer exists")
)

type OutcomeKind int

const (
	Approved OutcomeKind = iota
	Rejected
	TimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	default:
		return "timed out"
	}
}

type Outcome struct {
	Kind     OutcomeKind
	Approver string
}

type Coordinator struct {
	repo *repository.Repository
	log  zerolog.Logger
}

func New(repo *repository.Repository, log zerolog.Logger) *Coordinator {
	return &Coordinator{repo: repo, log: log.With().Str("component", "approval").Logger()}
}

// requestIDLen keeps verdict button payloads within Telegram's 64-byte
// callback_data limit for 32-character usernames.
const requestIDLen = 22

// newRequestID is a random UUID written in base62.
func newRequestID() string {
	u := uuid.New()
	id := new(big.Int).SetBytes(u[:]).Text(62)
	return strings.Repeat("0", requestIDLen-len(id)) + id
}

// CreateRequest stores a pending request and returns its ID.
func (c *Coordinator) CreateRequest(ctx context.Context) (string, error) {
	id := newRequestID()
	if err := c.repo.CreateApproval(ctx, id); err != nil {
		return "", fmt.Errorf("create approval: %w", err)
	}
	c.log.Debug().Str("request", id).Msg("approval requested")
	return id, nil
}

// AwaitResolution blocks until request id is resolved, timeout elapses or
// ctx is done. The request is deleted on every path.
func (c *Coordinator) AwaitResolution(ctx context.Context, id string, timeout time.Duration) (Outcome, error) {
	defer c.cleanup(id)

	sub, err := c.repo.SubscribeApproval(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		if err := sub.Close(); err != nil {
			c.log.Warn().Err(err).Str("request", id).Msg("closing approval subscription failed")
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		// re-read on every wake-up; this also catches a resolution that
		// happened before the subscription was active
		req, err := c.repo.Approval(ctx, id)
		switch {
		case errors.Is(err, repository.ErrApprovalNotFound):
			return Outcome{}, ErrRequestGone
		case err != nil:
			return Outcome{}, err
		case req.Status == models.ApprovalResolved:
			out := Outcome{Kind: Rejected, Approver: req.Approver}
			if req.Approved {
				out.Kind = Approved
			}
			c.log.Info().Str("request", id).Str("approver", req.Approver).Stringer("outcome", out.Kind).Msg("approval resolved")
			return out, nil
		}

		select {
		case change, ok := <-sub.Changes():
			if !ok {
				return Outcome{}, fmt.Errorf("approval %s: subscription closed", id)
			}
			if change.Kind == docstore.ChangeDeleted {
				return Outcome{}, ErrRequestGone
			}
		case <-timer.C:
			c.log.Info().Str("request", id).Dur("timeout", timeout).Msg("approval timed out")
			return Outcome{Kind: TimedOut}, nil
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
}

// Cancel drops a request nobody will wait on, e.g. when it could not be
// posted to the admins.
func (c *Coordinator) Cancel(id string) {
	c.log.Info().Str("request", id).Msg("approval cancelled")
	c.cleanup(id)
}

// cleanup deletes the request with a fresh context so it also runs after
// the caller's context was cancelled. Failures are only logged.
func (c *Coordinator) cleanup(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.repo.DeleteApproval(ctx, id); err != nil {
		c.log.Warn().Err(err).Str("request", id).Msg("deleting approval request failed")
	}
}

// ResolveRequest records an admin decision. Only admins and group leaders
// may resolve; a request that is already gone yields ErrRequestGone.
func (c *Coordinator) ResolveRequest(ctx context.Context, role models.Role, id string, approved bool, approver string) error {
	if role != models.RoleAdmin && role != models.RoleGL {
		c.log.Info().Str("request", id).Str("user", approver).Stringer("role", role).Msg("approval denied")
		return ErrUnauthorizedApprover
	}
	err := c.repo.ResolveApproval(ctx, id, approved, approver)
	if errors.Is(err, repository.ErrApprovalNotFound) {
		c.log.Info().Str("request", id).Str("user", approver).Msg("approval already gone")
		return ErrRequestGone
	}
	return err
}
