package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/models"
)

func (r *Repository) CreateApproval(ctx context.Context, id string) error {
	return r.store.Set(ctx, approvalRef(id), docstore.Fields{
		"status":   string(models.ApprovalPending),
		"approved": false,
		"approver": "",
	})
}

func (r *Repository) Approval(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	d, err := r.store.Get(ctx, approvalRef(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrApprovalNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &models.ApprovalRequest{
		ID:       id,
		Status:   models.ApprovalStatus(d.String("status")),
		Approved: d.Bool("approved"),
		Approver: d.String("approver"),
	}, nil
}

// ResolveApproval marks a request resolved. It fails with
// ErrApprovalNotFound once the request has been cleaned up.
func (r *Repository) ResolveApproval(ctx context.Context, id string, approved bool, approver string) error {
	err := r.store.Update(ctx, approvalRef(id), docstore.Fields{
		"status":   string(models.ApprovalResolved),
		"approved": approved,
		"approver": approver,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s: %w", id, ErrApprovalNotFound)
	}
	return err
}

func (r *Repository) DeleteApproval(ctx context.Context, id string) error {
	return r.store.Delete(ctx, approvalRef(id))
}

func (r *Repository) SubscribeApproval(ctx context.Context, id string) (*docstore.Subscription, error) {
	return r.store.Subscribe(ctx, approvalRef(id))
}
