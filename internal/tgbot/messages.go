package tgbot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/race"
)

func (a *App) sendText(chatID int64, text string) error {
	_, err := a.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (a *App) reply(m *tgbotapi.Message, text string) error {
	msg := tgbotapi.NewMessage(m.Chat.ID, text)
	msg.ReplyToMessageID = m.MessageID
	_, err := a.bot.Send(msg)
	return err
}

// notifyAdmins posts to the admin chat. Failures are logged only.
func (a *App) notifyAdmins(text string) {
	if err := a.sendText(a.cfg.AdminChatID, text); err != nil {
		a.log.Warn().Err(err).Msg("admin notice failed")
	}
}

// editPrompt rewrites the message a button was pressed on, using the caption
// when the message is a photo or video. A nil markup removes the buttons.
func (a *App) editPrompt(m *tgbotapi.Message, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	var c tgbotapi.Chattable
	if len(m.Photo) > 0 || m.Video != nil || m.Caption != "" {
		e := tgbotapi.NewEditMessageCaption(m.Chat.ID, m.MessageID, text)
		e.ReplyMarkup = markup
		c = e
	} else {
		e := tgbotapi.NewEditMessageText(m.Chat.ID, m.MessageID, text)
		e.ReplyMarkup = markup
		c = e
	}
	_, err := a.bot.Send(c)
	return err
}

// mediaFile turns a stored media reference into something Telegram accepts:
// URLs are fetched by Telegram, anything else is a file ID.
func mediaFile(ref string) tgbotapi.RequestFileData {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tgbotapi.FileURL(ref)
	}
	return tgbotapi.FileID(ref)
}

func yesNoKeyboard(yes string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Yes", yes)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("No", payloadNo)),
	)
}

func challengeKeyboard(locationID string, pending []race.IndexedChallenge) [][]tgbotapi.InlineKeyboardButton {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, c := range pending {
		pick := ChallengePick{Index: c.Index, Location: locationID}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Challenge #%d", c.Index+1), pick.Encode()),
		))
	}
	return rows
}

func formatChallenges(locationName string, pending []race.IndexedChallenge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Challenges for %s\n", locationName)
	b.WriteString(strings.Repeat("-", 40) + "\n")
	for _, c := range pending {
		fmt.Fprintf(&b, "Challenge #%d:\n%s\n\n", c.Index+1, c.Challenge.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func directionLabel(d models.Direction, firstLocation string) string {
	order := "Last"
	if d.StartsFirst() {
		order = "First"
	}
	return fmt.Sprintf("Direction %s, %s %s", string(d)[:1], firstLocation, order)
}

// broadcastChat is where a group's updates go: its configured group chat, or
// the leader's DM until one is set.
func broadcastChat(g *models.Group, fallback int64) int64 {
	if g.BroadcastChannel != 0 {
		return g.BroadcastChannel
	}
	return fallback
}
