package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/models"
)

// Role resolves a username to its role. A registered group leader wins over
// a registered admin with the same name.
func (r *Repository) Role(ctx context.Context, username string) (models.Role, error) {
	u, err := r.store.Get(ctx, userRef(username))
	switch {
	case err == nil:
		if u.Bool("registered") {
			return models.RoleGL, nil
		}
	case !errors.Is(err, docstore.ErrNotFound):
		return models.RoleUnregistered, err
	}

	a, err := r.store.Get(ctx, adminRef(username))
	switch {
	case err == nil:
		if a.Bool("registered") {
			return models.RoleAdmin, nil
		}
	case !errors.Is(err, docstore.ErrNotFound):
		return models.RoleUnregistered, err
	}
	return models.RoleUnregistered, nil
}

// IsAdmin reports whether username is on the admin roster, registered or not.
func (r *Repository) IsAdmin(ctx context.Context, username string) (bool, error) {
	return r.store.Exists(ctx, adminRef(username))
}

// RegisterUser activates a pre-seeded group leader. It returns false when the
// username is not on the roster.
func (r *Repository) RegisterUser(ctx context.Context, username string, telegramID int64) (bool, error) {
	err := r.store.Update(ctx, userRef(username), docstore.Fields{
		"registered":  true,
		"telegram_id": telegramID,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *Repository) RegisterAdmin(ctx context.Context, username string, telegramID int64) error {
	return r.store.Update(ctx, adminRef(username), docstore.Fields{
		"registered":  true,
		"telegram_id": telegramID,
	})
}

func (r *Repository) SetLocation(ctx context.Context, username string, p models.GeoPoint, at time.Time) error {
	return r.store.Update(ctx, userRef(username), docstore.Fields{
		"lat":         p.Lat,
		"lng":         p.Lng,
		"last_update": at,
	})
}

func (r *Repository) User(ctx context.Context, username string) (*models.User, error) {
	doc, err := r.store.Get(ctx, userRef(username))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", username, ErrUnknownUser)
	}
	if err != nil {
		return nil, err
	}
	return userFromDoc(doc), nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	docs, err := r.store.List(ctx, CollUsers)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, *userFromDoc(d))
	}
	return out, nil
}

// GroupIDOf returns the group a user leads. The mapping is cached until the
// next reset.
func (r *Repository) GroupIDOf(ctx context.Context, username string) (string, error) {
	return r.groupRefs.GetOrLoad(ctx, username, func(ctx context.Context) (string, error) {
		u, err := r.User(ctx, username)
		if err != nil {
			return "", err
		}
		if u.GroupID == "" {
			return "", fmt.Errorf("%s: %w", username, ErrNoGroup)
		}
		return u.GroupID, nil
	})
}

func (r *Repository) GroupOf(ctx context.Context, username string) (*models.Group, error) {
	id, err := r.GroupIDOf(ctx, username)
	if err != nil {
		return nil, err
	}
	return r.Group(ctx, id)
}

func userFromDoc(d docstore.Doc) *models.User {
	u := &models.User{
		Username:   d.Ref.ID,
		TelegramID: d.Int64("telegram_id"),
		Registered: d.Bool("registered"),
		GroupID:    d.String("group"),
		LastUpdate: d.Time("last_update"),
	}
	if d.Has("lat") && d.Has("lng") {
		u.Location = &models.GeoPoint{Lat: d.Float("lat"), Lng: d.Float("lng")}
	}
	return u
}
