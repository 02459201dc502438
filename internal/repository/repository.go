// Package repository maps the game's documents (groups, users, admins,
// challenge sets, bonus state and approval requests) onto the document store.
package repository

import (
	"errors"

	"github.com/jloh02/anchored-amazing-race/internal/cache"
	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/models"
)

const (
	CollGroups     = "groups"
	CollUsers      = "users"
	CollAdmins     = "admins"
	CollChallenges = "challenges"
	CollBonus      = "bonus"
	CollApprovals  = "approvals"
)

var (
	ErrUnknownUser      = errors.New("unknown user")
	ErrNoGroup          = errors.New("user has no group")
	ErrUnknownGroup     = errors.New("unknown group")
	ErrUnknownLocation  = errors.New("unknown location")
	ErrUnknownChallenge = errors.New("unknown challenge")
	ErrAlreadyStarted   = errors.New("race already started")
	ErrAlreadyEnded     = errors.New("race already ended")
	ErrNotStarted       = errors.New("race not started")
	ErrStaleLocation    = errors.New("group has moved on from this location")
	ErrAlreadyCompleted = errors.New("challenge already completed")
	ErrApprovalNotFound = errors.New("approval request not found")
)

var bonusStateRef = docstore.Ref{Collection: CollBonus, ID: "current"}

type Repository struct {
	store *docstore.Store

	// username -> group id; group assignments never change during a race
	groupRefs *cache.Cache[string, string]
	// "id:<location id>" and "order:<n>" -> challenge set
	locations *cache.Cache[string, models.Location]
}

func New(store *docstore.Store, groupRefs *cache.Cache[string, string], locations *cache.Cache[string, models.Location]) *Repository {
	return &Repository{store: store, groupRefs: groupRefs, locations: locations}
}

// InvalidateCaches drops every cached reference.
func (r *Repository) InvalidateCaches() {
	r.groupRefs.InvalidateAll()
	r.locations.InvalidateAll()
}

func groupRef(id string) docstore.Ref { return docstore.Ref{Collection: CollGroups, ID: id} }

func userRef(username string) docstore.Ref { return docstore.Ref{Collection: CollUsers, ID: username} }

func adminRef(username string) docstore.Ref { return docstore.Ref{Collection: CollAdmins, ID: username} }

func challengeRef(id string) docstore.Ref { return docstore.Ref{Collection: CollChallenges, ID: id} }

func approvalRef(id string) docstore.Ref { return docstore.Ref{Collection: CollApprovals, ID: id} }
