package tgbot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jloh02/anchored-amazing-race/internal/bonus"
	"github.com/jloh02/anchored-amazing-race/internal/journal"
	"github.com/jloh02/anchored-amazing-race/internal/session"
)

func (a *App) cmdBonus(ctx context.Context, r *request) error {
	msg := tgbotapi.NewMessage(r.msg.Chat.ID, "Confirm sending next bonus challenge")
	msg.ReplyMarkup = yesNoKeyboard(payloadYes)
	if _, err := a.bot.Send(msg); err != nil {
		return err
	}
	r.sess.State = session.ConfirmBonus
	return nil
}

func (a *App) onBonusConfirm(ctx context.Context, q *tgbotapi.CallbackQuery, user string, s *session.Session) error {
	s.Reset()
	if q.Data != payloadYes {
		return a.editPrompt(q.Message, "Bonus challenge cancelled", nil)
	}

	cur, err := a.bonus.Current(ctx)
	if errors.Is(err, bonus.ErrNoMoreChallenges) {
		return a.editPrompt(q.Message, "There are no bonus challenges left.", nil)
	}
	if err != nil {
		return err
	}
	if err := a.editPrompt(q.Message, fmt.Sprintf("Sending bonus challenge #%d", cur.Index+1), nil); err != nil {
		a.log.Warn().Err(err).Msg("edit bonus prompt failed")
	}

	chats, err := a.repo.GroupBroadcasts(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("A new challenge awaits! Only the first %d groups get points for it! Hurry and complete it!\n\n%s\n\n/submit and choose Bonus",
		a.bonus.MaxGroups(), cur.Challenge.Description)
	for _, chat := range chats {
		if err := a.sendText(chat, text); err != nil {
			a.log.Warn().Err(err).Int64("chat", chat).Msg("bonus broadcast failed")
		}
	}
	a.race.Record(ctx, journal.KindBonusReleased, "", user, cur.Challenge.Description)
	a.log.Info().Str("user", user).Int("bonus", cur.Index).Int("groups", len(chats)).Msg("bonus released")
	return nil
}
