package tgbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jloh02/anchored-amazing-race/internal/approval"
	"github.com/jloh02/anchored-amazing-race/internal/bonus"
	"github.com/jloh02/anchored-amazing-race/internal/journal"
	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/race"
	"github.com/jloh02/anchored-amazing-race/internal/session"
)

func (a *App) cmdSubmit(ctx context.Context, r *request) error {
	a.log.Info().Str("user", r.user).Msg("attempting to submit a challenge")
	snap, err := a.race.CurrentChallenges(ctx, r.user)
	if err != nil {
		return err
	}
	if snap.Group.RaceCompleted {
		return a.reply(r.msg, "Stop wasting time! Just finish up the race and rest!")
	}

	rows := challengeKeyboard(snap.LocationID, snap.Pending)
	cur, ok, err := a.bonus.ActiveFor(ctx, snap.Group.ID)
	if err != nil {
		return err
	}
	if ok {
		pick := ChallengePick{Index: cur.Index, Location: models.BonusLocation}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Bonus", pick.Encode()),
		))
	}
	if len(rows) == 0 {
		return a.reply(r.msg, "Nothing left to submit here.")
	}

	msg := tgbotapi.NewMessage(r.msg.Chat.ID, "Which challenge do you want to submit?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := a.bot.Send(msg); err != nil {
		return err
	}
	r.sess.State = session.SelectChallenge
	return nil
}

func (a *App) onChallengePick(ctx context.Context, q *tgbotapi.CallbackQuery, user string, s *session.Session) error {
	pick, err := ParseChallengePick(q.Data)
	if err != nil {
		a.log.Warn().Err(err).Str("user", user).Msg("bad challenge pick")
		return nil
	}
	s.Select(pick.Location, pick.Index)
	step, ok, err := a.currentStep(ctx, s)
	if err != nil {
		return err
	}
	if !ok {
		s.Reset()
		return a.editPrompt(q.Message, "That challenge has no steps.", nil)
	}
	a.log.Info().Str("user", user).Str("location", pick.Location).Int("challenge", pick.Index).Msg("challenge selected")

	if err := a.editPrompt(q.Message, fmt.Sprintf("Challenge #%d", pick.Index+1), nil); err != nil {
		a.log.Warn().Err(err).Msg("edit pick prompt failed")
	}
	return a.presentStep(s, step)
}

func (a *App) currentStep(ctx context.Context, s *session.Session) (models.Step, bool, error) {
	if s.LocationID == models.BonusLocation {
		return a.bonus.Step(ctx, s.Challenge, s.Step)
	}
	return a.repo.Step(ctx, s.LocationID, s.Challenge, s.Step)
}

// presentStep shows a step and moves the session to the state that
// collects it. Steps with rotating media cycle through it until the
// submission resolves.
func (a *App) presentStep(s *session.Session, step models.Step) error {
	s.State = session.SubmitStateFor(step.Type)
	switch {
	case len(step.RotatingMedia) > 0:
		p := tgbotapi.NewPhoto(s.ChatID, mediaFile(step.RotatingMedia[0]))
		p.Caption = step.Description
		sent, err := a.bot.Send(p)
		if err != nil {
			return err
		}
		s.SetRotation(a.rotateMedia(s.ChatID, sent.MessageID, step.Description, step.RotatingMedia))
		s.MediaMessageID = sent.MessageID
		return nil
	case step.Media != "":
		p := tgbotapi.NewPhoto(s.ChatID, mediaFile(step.Media))
		p.Caption = step.Description
		_, err := a.bot.Send(p)
		return err
	default:
		return a.sendText(s.ChatID, step.Description)
	}
}

// rotateMedia swaps the photo of message msgID through media every rotate
// interval. The returned func stops it.
func (a *App) rotateMedia(chatID int64, msgID int, caption string, media []string) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(a.cfg.RotateInterval)
		defer t.Stop()
		for i := 1; ; i++ {
			select {
			case <-done:
				return
			case <-t.C:
				in := tgbotapi.NewInputMediaPhoto(mediaFile(media[i%len(media)]))
				in.Caption = caption
				edit := tgbotapi.EditMessageMediaConfig{
					BaseEdit: tgbotapi.BaseEdit{ChatID: chatID, MessageID: msgID},
					Media:    in,
				}
				if _, err := a.bot.Request(edit); err != nil {
					a.log.Debug().Err(err).Int("message", msgID).Msg("rotating media failed")
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (a *App) onText(ctx context.Context, r *request) error {
	a.log.Info().Str("user", r.user).Str("text", r.msg.Text).Msg("submitted text")
	step, ok, err := a.currentStep(ctx, r.sess)
	if err != nil {
		return err
	}
	if !ok || step.Type != models.StepText {
		r.sess.Reset()
		return a.reply(r.msg, "That step is gone. Try /submit again.")
	}
	if strings.TrimSpace(r.msg.Text) != step.Answer {
		return a.reply(r.msg, "Incorrect answer")
	}
	r.sess.StopRotation()
	return a.advanceStep(ctx, r.sess, r.user)
}

func (a *App) onPhoto(ctx context.Context, r *request) error {
	if len(r.msg.Photo) == 0 {
		return a.reply(r.msg, "Send a photo for this step, or /cancel.")
	}
	step, ok, err := a.currentStep(ctx, r.sess)
	if err != nil {
		return err
	}
	if !ok {
		r.sess.Reset()
		return a.reply(r.msg, "That step is gone. Try /submit again.")
	}
	a.log.Info().Str("user", r.user).Msg("submitted photo")

	// largest size is last
	fileID := r.msg.Photo[len(r.msg.Photo)-1].FileID
	if step.NumPhoto > 1 {
		full := r.sess.AddPhoto(fileID, step.NumPhoto)
		if err := a.reply(r.msg, fmt.Sprintf("%d/%d photos received", len(r.sess.Photos), step.NumPhoto)); err != nil {
			return err
		}
		if !full {
			return nil
		}
	} else {
		r.sess.DiscardPhotos()
		r.sess.AddPhoto(fileID, 1)
	}
	return a.requestApproval(ctx, r, step, session.SubmitPhoto)
}

func (a *App) onVideo(ctx context.Context, r *request) error {
	if r.msg.Video == nil {
		return a.reply(r.msg, "Send a video for this step, or /cancel.")
	}
	step, ok, err := a.currentStep(ctx, r.sess)
	if err != nil {
		return err
	}
	if !ok {
		r.sess.Reset()
		return a.reply(r.msg, "That step is gone. Try /submit again.")
	}
	a.log.Info().Str("user", r.user).Msg("submitted video")
	return a.requestApproval(ctx, r, step, session.SubmitVideo)
}

// adminPost is the message in the admin chat carrying the approve and
// reject buttons.
type adminPost struct {
	chatID    int64
	messageID int
}

func (a *App) requestApproval(ctx context.Context, r *request, step models.Step, retry session.State) error {
	s := r.sess
	id, err := a.approvals.CreateRequest(ctx)
	if err != nil {
		s.DiscardPhotos()
		return err
	}
	// undo leaves the step open with an empty buffer
	undo := func(err error) error {
		a.approvals.Cancel(id)
		s.DiscardPhotos()
		a.log.Error().Err(err).Str("user", r.user).Str("request", id).Msg("posting submission failed")
		if rerr := a.sendText(s.ChatID, "Couldn't reach the admins. Please send your submission again."); rerr != nil {
			a.log.Warn().Err(rerr).Str("user", r.user).Msg("resend notice failed")
		}
		return err
	}

	where := s.LocationID
	if where == models.BonusLocation {
		where = "Bonus"
	}
	caption := fmt.Sprintf("Admins! Approve @%s submission for %s Challenge #%d (%s)\n\nRequest ID: %s",
		r.user, where, s.Challenge+1, step.Description, id)
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Approve",
			Verdict{Approved: true, Request: id, Submitter: r.user}.Encode())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Reject",
			Verdict{Approved: false, Request: id, Submitter: r.user}.Encode())),
	)

	var post tgbotapi.Chattable
	if retry == session.SubmitPhoto {
		photos := s.Photos
		if len(photos) > 1 {
			files := make([]interface{}, 0, len(photos)-1)
			for _, p := range photos[:len(photos)-1] {
				files = append(files, tgbotapi.NewInputMediaPhoto(tgbotapi.FileID(p)))
			}
			if _, err := a.bot.SendMediaGroup(tgbotapi.NewMediaGroup(a.cfg.AdminChatID, files)); err != nil {
				return undo(err)
			}
		}
		p := tgbotapi.NewPhoto(a.cfg.AdminChatID, tgbotapi.FileID(photos[len(photos)-1]))
		p.Caption = caption
		p.ReplyMarkup = markup
		post = p
	} else {
		v := tgbotapi.NewVideo(a.cfg.AdminChatID, tgbotapi.FileID(r.msg.Video.FileID))
		v.Caption = caption
		v.ReplyMarkup = markup
		post = v
	}
	sent, err := a.bot.Send(post)
	if err != nil {
		return undo(err)
	}

	waiting, err := a.bot.Send(tgbotapi.NewMessage(s.ChatID, "Waiting for admin approval..."))
	if err != nil {
		a.editPost(adminPost{chatID: a.cfg.AdminChatID, messageID: sent.MessageID},
			fmt.Sprintf("Submission from @%s withdrawn. Request ID: %s", r.user, id))
		return undo(err)
	}

	s.State = session.AwaitApproval
	s.Request = id
	if g, err := a.repo.GroupOf(ctx, r.user); err == nil {
		a.race.Record(ctx, journal.KindSubmission, g.ID, r.user, fmt.Sprintf("%s #%d", where, s.Challenge+1))
	}

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		a.awaitApproval(ctx, s, r.user, id, retry, adminPost{chatID: a.cfg.AdminChatID, messageID: sent.MessageID}, waiting.MessageID)
	}()
	return nil
}

// awaitApproval waits for the admins and moves the session on. It runs on
// its own goroutine and takes the session lock once the outcome is known.
func (a *App) awaitApproval(ctx context.Context, s *session.Session, user, id string, retry session.State, post adminPost, waitingID int) {
	out, err := a.approvals.AwaitResolution(ctx, id, a.cfg.ApprovalTimeout)

	s.Lock()
	defer s.Unlock()

	if s.Request != id {
		// cancelled or timed out while waiting
		a.log.Info().Str("user", user).Str("request", id).Msg("approval outcome for an abandoned submission")
		if err == nil && out.Kind == approval.TimedOut {
			a.editPost(post, fmt.Sprintf("Submission from @%s expired. Request ID: %s", user, id))
		}
		return
	}
	s.Request = ""
	s.StopRotation()

	editWaiting := func(text string) {
		e := tgbotapi.NewEditMessageText(s.ChatID, waitingID, text)
		if _, err := a.bot.Send(e); err != nil {
			a.log.Warn().Err(err).Str("user", user).Msg("editing waiting message failed")
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		s.State = retry
		return
	case err != nil:
		a.log.Error().Err(err).Str("user", user).Str("request", id).Msg("approval wait failed")
		s.DiscardPhotos()
		s.State = retry
		editWaiting("Waiting for admin approval...\n\nSomething went wrong. Send it again pls")
	case out.Kind == approval.Rejected:
		s.DiscardPhotos()
		s.State = retry
		editWaiting(fmt.Sprintf("Waiting for admin approval...\n\nMan, you got rejected by @%s... Try sending another one! :(", out.Approver))
	case out.Kind == approval.TimedOut:
		s.DiscardPhotos()
		s.State = retry
		editWaiting("Waiting for admin approval...\n\nApproval timed out. Ask the admins to pay attention! Then send it again pls")
		a.editPost(post, fmt.Sprintf("Admins not paying attention... Ask @%s to submit it again", user))
	default:
		editWaiting(fmt.Sprintf("Waiting for admin approval... Approved by @%s!", out.Approver))
		if err := a.advanceStep(ctx, s, user); err != nil {
			a.log.Error().Err(err).Str("user", user).Msg("advancing after approval failed")
			s.Reset()
			if err := a.sendText(s.ChatID, "Something went wrong recording that. Try /submit again."); err != nil {
				a.log.Warn().Err(err).Msg("error notice failed")
			}
		}
	}
}

func (a *App) editPost(post adminPost, text string) {
	e := tgbotapi.NewEditMessageCaption(post.chatID, post.messageID, text)
	if _, err := a.bot.Send(e); err != nil {
		a.log.Warn().Err(err).Int("message", post.messageID).Msg("editing admin post failed")
	}
}

// advanceStep moves to the next step of the selected challenge, completing
// the challenge when there is none.
func (a *App) advanceStep(ctx context.Context, s *session.Session, user string) error {
	s.NextStep()
	step, ok, err := a.currentStep(ctx, s)
	if err != nil {
		return err
	}
	if ok {
		return a.presentStep(s, step)
	}

	loc, idx := s.LocationID, s.Challenge
	s.Reset()
	c, err := a.race.CompleteChallenge(ctx, user, loc, idx)
	switch {
	case errors.Is(err, bonus.ErrBonusUnavailable):
		return a.sendText(s.ChatID, "Too slow! Enough groups already finished this bonus.")
	case errors.Is(err, race.ErrChallengeDone):
		return a.sendText(s.ChatID, "Your group already completed this challenge.")
	case errors.Is(err, race.ErrWrongLocation):
		return a.sendText(s.ChatID, "Your group has already moved on from that location.")
	case err != nil:
		return err
	}
	done := "Challenge completed!"
	if c.Kind == race.CompletionBonus {
		done = "Bonus challenge completed!"
	}
	if err := a.sendText(s.ChatID, done); err != nil {
		return err
	}
	return a.afterCompletion(ctx, s.ChatID, user, c)
}

// afterCompletion moves the group on once its location is cleared.
func (a *App) afterCompletion(ctx context.Context, chatID int64, user string, c race.Completion) error {
	if !c.LocationCleared() {
		return nil
	}
	adv, err := a.race.NextLocation(ctx, user)
	if errors.Is(err, race.ErrRaceCompleted) {
		return nil
	}
	if err != nil {
		return err
	}
	chat := broadcastChat(adv.Group, chatID)
	if adv.RaceCompleted {
		a.notifyAdmins(adv.Group.Name + " has completed the loop")
		return a.sendText(chat, "Head back to the endpoint! GO GO GO! The treasure awaits you!")
	}
	return a.sendText(chat, formatChallenges(adv.LocationName, adv.Pending))
}
