package tgbot

import (
	"context"
	"errors"
	"slices"

	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/race"
)

// dmOnly drops commands sent outside a private chat.
func (a *App) dmOnly(quiet bool, next handler) handler {
	return func(ctx context.Context, r *request) error {
		if !r.msg.Chat.IsPrivate() || r.sess == nil {
			if quiet {
				return nil
			}
			return a.reply(r.msg, "This command only works in DMs")
		}
		return next(ctx, r)
	}
}

// withRole resolves the sender's role. A nil allow list lets everyone
// through with the role filled in.
func (a *App) withRole(allow []models.Role, quiet bool, next handler) handler {
	return func(ctx context.Context, r *request) error {
		role, err := a.repo.Role(ctx, r.user)
		if err != nil {
			return err
		}
		r.role = role
		if allow != nil && !slices.Contains(allow, role) {
			a.log.Info().Str("user", r.user).Stringer("role", role).Str("cmd", r.msg.Command()).Msg("unauthorized")
			if quiet {
				return nil
			}
			return a.reply(r.msg, "Unauthorized user. Try /start if you have not")
		}
		return next(ctx, r)
	}
}

func (a *App) raceStartedOnly(next handler) handler {
	return func(ctx context.Context, r *request) error {
		started, err := a.race.HasRaceStarted(ctx, r.user)
		if err != nil {
			return err
		}
		if !started {
			return a.reply(r.msg, "The race hasn't started! What are you doing?")
		}
		return next(ctx, r)
	}
}

func (a *App) recentLocationOnly(next handler) handler {
	return func(ctx context.Context, r *request) error {
		err := a.race.CheckLocationFresh(ctx, r.user)
		if errors.Is(err, race.ErrLocationUnknown) || errors.Is(err, race.ErrLocationStale) {
			return a.reply(r.msg, "Please ensure your location is updated!")
		}
		if err != nil {
			return err
		}
		return next(ctx, r)
	}
}
