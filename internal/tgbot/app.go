// Package tgbot is the Telegram side of the race: commands, conversations
// and the admin approval chat.
package tgbot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/jloh02/anchored-amazing-race/internal/approval"
	"github.com/jloh02/anchored-amazing-race/internal/auth"
	"github.com/jloh02/anchored-amazing-race/internal/bonus"
	"github.com/jloh02/anchored-amazing-race/internal/config"
	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/race"
	"github.com/jloh02/anchored-amazing-race/internal/repository"
	"github.com/jloh02/anchored-amazing-race/internal/seed"
	"github.com/jloh02/anchored-amazing-race/internal/session"
	"github.com/jloh02/anchored-amazing-race/internal/util"
)

var errUpdatesClosed = errors.New("telegram update channel closed")

// Bot is the part of *tgbotapi.BotAPI the app uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	GetUpdatesChan(c tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Deps struct {
	Repo      *repository.Repository
	Race      *race.Engine
	Bonus     *bonus.Manager
	Approvals *approval.Coordinator
	Seed      seed.Source
	Tokens    *auth.Issuer
	Log       zerolog.Logger
}

// request is one inbound command or message after the guards ran.
type request struct {
	msg  *tgbotapi.Message
	user string
	role models.Role
	sess *session.Session
}

type handler func(ctx context.Context, r *request) error

type App struct {
	cfg       config.Config
	bot       Bot
	repo      *repository.Repository
	race      *race.Engine
	bonus     *bonus.Manager
	approvals *approval.Coordinator
	seed      seed.Source
	tokens    *auth.Issuer
	log       zerolog.Logger

	sessions *session.Table
	commands map[string]handler
	now      func() time.Time

	// approval waits still running
	pending sync.WaitGroup
}

func New(cfg config.Config, bot Bot, d Deps) *App {
	a := &App{
		cfg:       cfg,
		bot:       bot,
		repo:      d.Repo,
		race:      d.Race,
		bonus:     d.Bonus,
		approvals: d.Approvals,
		seed:      d.Seed,
		tokens:    d.Tokens,
		log:       d.Log.With().Str("component", "tgbot").Logger(),
		now:       time.Now,
	}
	a.sessions = session.NewTable(cfg.ConversationTimeout, a.onSessionExpired)

	gl := []models.Role{models.RoleGL}
	admin := []models.Role{models.RoleAdmin}
	a.commands = map[string]handler{
		"start":       a.dmOnly(false, a.withRole(nil, false, a.cmdStart)),
		"configgroup": a.withRole(gl, false, a.cmdConfigGroup),
		"startrace":   a.dmOnly(false, a.withRole(gl, false, a.recentLocationOnly(a.cmdStartRace))),
		"submit":      a.dmOnly(false, a.withRole(gl, false, a.raceStartedOnly(a.cmdSubmit))),
		"skip":        a.dmOnly(false, a.withRole(gl, false, a.raceStartedOnly(a.cmdSkip))),
		"endrace":     a.dmOnly(false, a.withRole(gl, false, a.raceStartedOnly(a.cmdEndRace))),
		"bonus":       a.dmOnly(false, a.withRole(admin, false, a.cmdBonus)),
		"reset":       a.dmOnly(false, a.withRole(admin, false, a.cmdReset)),
		"dashboard":   a.dmOnly(false, a.withRole(admin, false, a.cmdDashboard)),
		"cancel":      a.dmOnly(true, a.cmdCancel),
	}
	return a
}

// Run polls Telegram until ctx is done, then waits for running approval
// waits to finish.
func (a *App) Run(ctx context.Context) error {
	go a.sessions.Start()
	defer a.sessions.Stop()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := a.bot.GetUpdatesChan(u)
	defer a.pending.Wait()
	defer a.bot.StopReceivingUpdates()

	a.log.Info().Msg("polling for updates")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return errUpdatesClosed
			}
			a.handleUpdate(ctx, upd)
		}
	}
}

func (a *App) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	var err error
	switch {
	case upd.Message != nil:
		err = a.handleMessage(ctx, upd.Message)
	case upd.EditedMessage != nil && upd.EditedMessage.Location != nil:
		// live locations arrive as edits
		err = a.handleMessage(ctx, upd.EditedMessage)
	case upd.CallbackQuery != nil:
		err = a.handleCallback(ctx, upd.CallbackQuery)
	}
	if err != nil {
		a.log.Error().Err(err).Int("update", upd.UpdateID).Msg("handling update failed")
	}
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.From == nil || m.Chat == nil {
		return nil
	}
	r := &request{msg: m, user: util.NormalizeUsername(m.From.UserName), role: models.RoleUnregistered}
	if m.Chat.IsPrivate() {
		r.sess = a.sessions.Get(m.From.ID, m.Chat.ID, r.user)
		r.sess.Lock()
		defer r.sess.Unlock()
	}

	if m.Location != nil {
		return a.dmOnly(true, a.withRole([]models.Role{models.RoleGL}, true, a.onLocation))(ctx, r)
	}

	if m.IsCommand() {
		cmd := strings.ToLower(m.Command())
		h, ok := a.commands[cmd]
		if !ok {
			return nil
		}
		if r.sess != nil && r.sess.State != session.Idle && cmd != "cancel" {
			return a.reply(m, "Finish what you started first, or /cancel it.")
		}
		return h(ctx, r)
	}

	if r.sess == nil {
		return nil
	}
	switch r.sess.State {
	case session.SubmitText:
		return a.onText(ctx, r)
	case session.SubmitPhoto:
		return a.onPhoto(ctx, r)
	case session.SubmitVideo:
		return a.onVideo(ctx, r)
	case session.AwaitApproval:
		return a.reply(m, "Hold on, the admins are still looking at your last submission.")
	}
	return nil
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	// ack
	if _, err := a.bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		a.log.Warn().Err(err).Msg("callback ack failed")
	}
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return nil
	}
	user := util.NormalizeUsername(q.From.UserName)

	if IsVerdict(q.Data) {
		return a.onVerdict(ctx, q, user)
	}
	if !q.Message.Chat.IsPrivate() {
		return nil
	}

	s := a.sessions.Get(q.From.ID, q.Message.Chat.ID, user)
	s.Lock()
	defer s.Unlock()

	switch s.State {
	case session.ChooseDirection:
		return a.onDirection(ctx, q, user, s)
	case session.ChooseDirectionConfirmation:
		return a.onDirectionConfirm(ctx, q, user, s)
	case session.SelectChallenge:
		return a.onChallengePick(ctx, q, user, s)
	case session.SelectSkipChallenge:
		return a.onSkipPick(ctx, q, user, s)
	case session.ConfirmSkip:
		return a.onSkipConfirm(ctx, q, user, s)
	case session.ConfirmBonus:
		return a.onBonusConfirm(ctx, q, user, s)
	}
	// stale buttons from an expired or cancelled conversation
	a.log.Debug().Str("user", user).Str("data", q.Data).Msg("callback outside a conversation")
	return nil
}

func (a *App) onSessionExpired(s *session.Session) {
	a.log.Info().Str("user", s.Username).Msg("conversation timed out")
	if err := a.sendText(s.ChatID, "Conversation timed out. Start again when you're ready."); err != nil {
		a.log.Warn().Err(err).Str("user", s.Username).Msg("timeout notice failed")
	}
}
