package telegram

import (
	"context"
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tunebot/internal/delivery"
	"github.com/m3rciful/tunebot/internal/logger"
	"github.com/m3rciful/tunebot/internal/session"
)

// Messenger implements the outbound sinks consumed by the state machine and
// the download orchestrator over one telebot instance.
type Messenger struct {
	bot *tele.Bot
}

// NewMessenger wraps the bot for outbound sends.
func NewMessenger(bot *tele.Bot) *Messenger {
	return &Messenger{bot: bot}
}

// SendText sends a plain text message.
func (m *Messenger) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := m.bot.Send(tele.ChatID(chatID), text)
	if err != nil {
		logger.Warn(ctx, "tg", "send.text.fail", slog.String("err", err.Error()))
	}
	return err
}

// SendStatus sends a text message and returns its ID for in-place edits.
func (m *Messenger) SendStatus(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := m.bot.Send(tele.ChatID(chatID), text)
	if err != nil {
		logger.Warn(ctx, "tg", "send.status.fail", slog.String("err", err.Error()))
		return 0, err
	}
	return msg.ID, nil
}

// EditStatus rewrites a previously sent status message, optionally attaching
// an inline keyboard. A non-positive messageID falls back to a fresh send.
func (m *Messenger) EditStatus(ctx context.Context, chatID int64, messageID int, text string, rows ...[]session.Button) error {
	markup := buildMarkup(rows)
	if messageID <= 0 {
		return m.send(ctx, chatID, text, markup)
	}

	ref := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	var err error
	if markup != nil {
		_, err = m.bot.Edit(ref, text, markup)
	} else {
		_, err = m.bot.Edit(ref, text)
	}
	if err != nil {
		logger.Warn(ctx, "tg", "edit.fail", slog.String("err", err.Error()))
		// editing can fail on deleted or aged messages; degrade to a send
		return m.send(ctx, chatID, text, markup)
	}
	return nil
}

// SendMenu sends a text message with an inline keyboard.
func (m *Messenger) SendMenu(ctx context.Context, chatID int64, text string, rows ...[]session.Button) error {
	return m.send(ctx, chatID, text, buildMarkup(rows))
}

// SendAudio transmits a downloaded audio artifact with its display metadata.
func (m *Messenger) SendAudio(ctx context.Context, chatID int64, audio delivery.Audio) error {
	a := &tele.Audio{
		File:      tele.FromDisk(audio.Path),
		FileName:  audio.FileName,
		Title:     audio.Title,
		Performer: audio.Performer,
		Caption:   audio.Caption,
	}
	_, err := m.bot.Send(tele.ChatID(chatID), a)
	if err != nil {
		logger.Warn(ctx, "tg", "send.audio.fail", slog.String("err", err.Error()))
	}
	return err
}

func (m *Messenger) send(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) error {
	var err error
	if markup != nil {
		_, err = m.bot.Send(tele.ChatID(chatID), text, markup)
	} else {
		_, err = m.bot.Send(tele.ChatID(chatID), text)
	}
	if err != nil {
		logger.Warn(ctx, "tg", "send.fail", slog.String("err", err.Error()))
	}
	return err
}
