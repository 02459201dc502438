package tgbot

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jloh02/anchored-amazing-race/internal/approval"
	"github.com/jloh02/anchored-amazing-race/internal/journal"
	"github.com/jloh02/anchored-amazing-race/internal/race"
	"github.com/jloh02/anchored-amazing-race/internal/util"
)

func (a *App) cmdEndRace(ctx context.Context, r *request) error {
	a.log.Info().Str("user", r.user).Msg("ending race")
	start, end, err := a.race.EndRace(ctx, r.user)
	switch {
	case errors.Is(err, race.ErrRaceNotCompleted), errors.Is(err, race.ErrRaceNotStarted):
		return a.reply(r.msg, "Finish your challenges first!")
	case errors.Is(err, race.ErrRaceAlreadyEnded):
		return a.reply(r.msg, "You've already finished the race!")
	case errors.Is(err, race.ErrLocationUnknown):
		return a.reply(r.msg, "Location not found, please make sure your location is on")
	case errors.Is(err, race.ErrTooFarFromEndpoint):
		return a.reply(r.msg, "You're too far from the endpoint!")
	case err != nil:
		return err
	}

	took := util.FormatDuration(end.Sub(start))
	if g, err := a.repo.GroupOf(ctx, r.user); err == nil {
		a.notifyAdmins(fmt.Sprintf("%s finished the race in %s", g.Name, took))
	}
	return a.reply(r.msg, "Congrats! You have finished the race!\n\nTotal time: "+took)
}

func (a *App) cmdReset(ctx context.Context, r *request) error {
	defs, err := a.seed.Load(ctx)
	if err != nil {
		a.log.Error().Err(err).Str("user", r.user).Msg("loading game definitions failed")
		return a.reply(r.msg, "Could not load the game definitions: "+err.Error())
	}
	if want := a.cfg.NumberLocations + 1; len(defs.Locations) != want {
		a.log.Warn().Int("locations", len(defs.Locations)).Int("want", want).Msg("reset refused")
		return a.reply(r.msg, fmt.Sprintf("Refusing to reset: found %d locations, expected %d.", len(defs.Locations), want))
	}
	if err := a.repo.Reset(ctx, defs); err != nil {
		return err
	}
	a.race.Record(ctx, journal.KindReset, "", r.user, fmt.Sprintf("%d groups, %d locations", len(defs.Groups), len(defs.Locations)))
	a.log.Info().Str("user", r.user).Int("groups", len(defs.Groups)).Msg("game reset")
	return a.reply(r.msg, "Resetted game state")
}

func (a *App) cmdDashboard(ctx context.Context, r *request) error {
	tok, err := a.tokens.Issue(r.user)
	if err != nil {
		return err
	}
	q := url.Values{"token": {tok}}.Encode()
	text := fmt.Sprintf("Dashboard links (valid for %s):\n\nProgress: %s/api/progress?%s\nJournal: %s/api/journal?%s\nCSV: %s/export/progress.csv?%s",
		a.cfg.DashboardTTL, a.cfg.BasePublicURL, q, a.cfg.BasePublicURL, q, a.cfg.BasePublicURL, q)
	msg := tgbotapi.NewMessage(r.msg.Chat.ID, text)
	msg.DisableWebPagePreview = true
	_, err = a.bot.Send(msg)
	return err
}

func (a *App) cmdCancel(ctx context.Context, r *request) error {
	if r.sess.Request != "" {
		a.log.Info().Str("user", r.user).Str("request", r.sess.Request).Msg("submission abandoned")
	}
	r.sess.Reset()
	return a.reply(r.msg, "Cancelled")
}

// onVerdict handles the approve and reject buttons in the admin chat.
func (a *App) onVerdict(ctx context.Context, q *tgbotapi.CallbackQuery, user string) error {
	v, err := ParseVerdict(q.Data)
	if err != nil {
		a.log.Warn().Err(err).Str("user", user).Msg("bad verdict")
		return nil
	}
	role, err := a.repo.Role(ctx, user)
	if err != nil {
		return err
	}

	err = a.approvals.ResolveRequest(ctx, role, v.Request, v.Approved, user)
	switch {
	case errors.Is(err, approval.ErrUnauthorizedApprover):
		return nil
	case errors.Is(err, approval.ErrRequestGone):
		return a.editPrompt(q.Message, fmt.Sprintf("Request %s (@%s) is no longer waiting", v.Request, v.Submitter), nil)
	case err != nil:
		return err
	}

	verb := "Rejected"
	if v.Approved {
		verb = "Approved"
	}
	a.log.Info().Str("user", user).Str("request", v.Request).Str("submitter", v.Submitter).Bool("approved", v.Approved).Msg("verdict")
	return a.editPrompt(q.Message, fmt.Sprintf("%s by @%s\nRequest ID: %s (@%s)", verb, user, v.Request, v.Submitter), nil)
}
