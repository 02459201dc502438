package tgbot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jloh02/anchored-amazing-race/internal/race"
	"github.com/jloh02/anchored-amazing-race/internal/session"
)

func (a *App) cmdSkip(ctx context.Context, r *request) error {
	snap, err := a.race.CurrentChallenges(ctx, r.user)
	if err != nil {
		return err
	}
	if snap.Group.RaceCompleted {
		return a.reply(r.msg, "Nothing left to skip. Head to the endpoint!")
	}
	if len(snap.Pending) == 0 {
		return a.reply(r.msg, "Nothing left to skip here.")
	}

	msg := tgbotapi.NewMessage(r.msg.Chat.ID, "Which challenge do you want to skip?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(challengeKeyboard(snap.LocationID, snap.Pending)...)
	if _, err := a.bot.Send(msg); err != nil {
		return err
	}
	r.sess.State = session.SelectSkipChallenge
	return nil
}

func (a *App) onSkipPick(ctx context.Context, q *tgbotapi.CallbackQuery, user string, s *session.Session) error {
	pick, err := ParseChallengePick(q.Data)
	if err != nil {
		a.log.Warn().Err(err).Str("user", user).Msg("bad skip pick")
		return nil
	}
	s.Select(pick.Location, pick.Index)
	s.State = session.ConfirmSkip
	markup := yesNoKeyboard(payloadYes)
	return a.editPrompt(q.Message, fmt.Sprintf("Skip Challenge #%d? Skipped challenges score nothing.", pick.Index+1), &markup)
}

func (a *App) onSkipConfirm(ctx context.Context, q *tgbotapi.CallbackQuery, user string, s *session.Session) error {
	loc, idx := s.LocationID, s.Challenge
	s.Reset()
	if q.Data != payloadYes {
		return a.editPrompt(q.Message, "Skip cancelled", nil)
	}

	c, err := a.race.SkipChallenge(ctx, user, loc, idx)
	switch {
	case errors.Is(err, race.ErrChallengeDone):
		return a.editPrompt(q.Message, "Your group already finished that challenge.", nil)
	case errors.Is(err, race.ErrWrongLocation):
		return a.editPrompt(q.Message, "Your group has already moved on from that location.", nil)
	case err != nil:
		return err
	}
	a.log.Info().Str("user", user).Str("location", loc).Int("challenge", idx).Msg("challenge skipped")
	if err := a.editPrompt(q.Message, fmt.Sprintf("Challenge #%d skipped", idx+1), nil); err != nil {
		a.log.Warn().Err(err).Msg("edit skip prompt failed")
	}
	return a.afterCompletion(ctx, q.Message.Chat.ID, user, c)
}
