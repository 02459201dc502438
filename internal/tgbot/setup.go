package tgbot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/race"
	"github.com/jloh02/anchored-amazing-race/internal/session"
)

var directions = []models.Direction{models.DirectionA1, models.DirectionA0, models.DirectionB1, models.DirectionB0}

func (a *App) cmdStart(ctx context.Context, r *request) error {
	switch r.role {
	case models.RoleAdmin:
		if err := a.repo.RegisterAdmin(ctx, r.user, r.msg.From.ID); err != nil {
			return err
		}
		a.log.Info().Str("user", r.user).Msg("admin registered")
		return a.reply(r.msg, "Welcome back admin!")
	case models.RoleGL:
		return a.reply(r.msg, "You've already registered!")
	}

	ok, err := a.repo.RegisterUser(ctx, r.user, r.msg.From.ID)
	if err != nil {
		return err
	}
	if !ok {
		// admins on the roster register on their first /start
		isAdmin, err := a.repo.IsAdmin(ctx, r.user)
		if err != nil {
			return err
		}
		if isAdmin {
			if err := a.repo.RegisterAdmin(ctx, r.user, r.msg.From.ID); err != nil {
				return err
			}
			a.log.Info().Str("user", r.user).Msg("admin registered")
			return a.reply(r.msg, "Welcome aboard admin!")
		}
		a.log.Info().Str("user", r.user).Msg("unknown user tried to register")
		return a.reply(r.msg, "You can't PM this bot! Ask your GL to do it for you!")
	}
	a.log.Info().Str("user", r.user).Msg("gl registered")
	return a.reply(r.msg, "All aboard! You can start using this amazing bot!")
}

func (a *App) cmdConfigGroup(ctx context.Context, r *request) error {
	if r.msg.Chat.IsPrivate() {
		return a.reply(r.msg, "Run this in your group chat so I know where to post updates.")
	}
	groupID, err := a.repo.GroupIDOf(ctx, r.user)
	if err != nil {
		return err
	}
	if err := a.repo.SetBroadcastChannel(ctx, groupID, r.msg.Chat.ID); err != nil {
		return err
	}
	a.log.Info().Str("user", r.user).Str("group", groupID).Int64("chat", r.msg.Chat.ID).Msg("broadcast chat set")
	return a.reply(r.msg, "I'll send updates to this group from now on!")
}

func (a *App) onLocation(ctx context.Context, r *request) error {
	p := models.GeoPoint{Lat: r.msg.Location.Latitude, Lng: r.msg.Location.Longitude}
	return a.repo.SetLocation(ctx, r.user, p, a.now())
}

func (a *App) cmdStartRace(ctx context.Context, r *request) error {
	started, err := a.race.HasRaceStarted(ctx, r.user)
	if err != nil {
		return err
	}
	if started {
		return a.reply(r.msg, "Your race has already started! Stop wasting time!")
	}
	first, err := a.repo.LocationByOrder(ctx, 0)
	if err != nil {
		return err
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, d := range directions {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(directionLabel(d, first.Name), string(d)),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	text := "Choose your direction for challenges\n\n/cancel if you have not been authorized to start"

	var msg tgbotapi.Chattable
	if a.cfg.RouteImage != "" {
		p := tgbotapi.NewPhoto(r.msg.Chat.ID, routeImage(a.cfg.RouteImage))
		p.Caption = text
		p.ReplyMarkup = markup
		msg = p
	} else {
		m := tgbotapi.NewMessage(r.msg.Chat.ID, text)
		m.ReplyMarkup = markup
		msg = m
	}
	if _, err := a.bot.Send(msg); err != nil {
		return err
	}
	r.sess.State = session.ChooseDirection
	return nil
}

func routeImage(ref string) tgbotapi.RequestFileData {
	f := mediaFile(ref)
	if _, isID := f.(tgbotapi.FileID); isID {
		return tgbotapi.FilePath(ref)
	}
	return f
}

func (a *App) onDirection(ctx context.Context, q *tgbotapi.CallbackQuery, user string, s *session.Session) error {
	d := models.Direction(q.Data)
	if !d.Valid() {
		return nil
	}
	first, err := a.repo.LocationByOrder(ctx, 0)
	if err != nil {
		return err
	}
	s.Direction = d
	s.State = session.ChooseDirectionConfirmation
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Yes", string(d))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("No", payloadCancel)),
	)
	return a.editPrompt(q.Message, "Confirm "+directionLabel(d, first.Name), &markup)
}

func (a *App) onDirectionConfirm(ctx context.Context, q *tgbotapi.CallbackQuery, user string, s *session.Session) error {
	if q.Data == payloadCancel || models.Direction(q.Data) != s.Direction {
		s.Reset()
		return a.editPrompt(q.Message, "Start race cancelled", nil)
	}
	d := s.Direction
	s.Reset()

	g, err := a.race.StartRace(ctx, user, d)
	if errors.Is(err, race.ErrRaceAlreadyStarted) {
		return a.editPrompt(q.Message, "Your race has already started! Stop wasting time!", nil)
	}
	if err != nil {
		return err
	}
	first, err := a.repo.LocationByOrder(ctx, 0)
	if err != nil {
		return err
	}
	label := directionLabel(d, first.Name)
	if err := a.editPrompt(q.Message, "The race begins!\n\n"+label, nil); err != nil {
		a.log.Warn().Err(err).Msg("edit start prompt failed")
	}

	snap, err := a.race.CurrentChallenges(ctx, user)
	if err != nil {
		return err
	}
	chat := broadcastChat(g, q.Message.Chat.ID)
	if err := a.sendText(chat, "Ahoy! The treasure hunt begins!\n\nRoute Chosen: "+label); err != nil {
		return err
	}
	if err := a.sendText(chat, formatChallenges(snap.LocationName, snap.Pending)); err != nil {
		return err
	}
	a.notifyAdmins(g.Name + " has started the race")
	a.log.Info().Str("user", user).Str("group", g.ID).Str("direction", string(d)).Msg("direction chosen")
	return nil
}
