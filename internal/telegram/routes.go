package telegram

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tunebot/internal/config"
	"github.com/m3rciful/tunebot/internal/logger"
	"github.com/m3rciful/tunebot/internal/session"
)

// Handlers binds telebot updates to the session state machine.
type Handlers struct {
	machine *session.Machine
	cfg     *config.Config
}

// NewHandlers builds the update handlers.
func NewHandlers(machine *session.Machine, cfg *config.Config) *Handlers {
	return &Handlers{machine: machine, cfg: cfg}
}

// Register attaches all routes to the bot.
func (h *Handlers) Register(bot *tele.Bot) {
	bot.Handle("/start", h.onStart)
	bot.Handle("/search", h.onSearch)
	bot.Handle("/stats", h.onStats, AdminOnlyMiddleware(h.cfg.Telegram))
	bot.Handle(tele.OnText, h.onText)
	bot.Handle(tele.OnCallback, h.onCallback)
}

func eventFrom(c tele.Context) session.Event {
	ev := session.Event{}
	if sender := c.Sender(); sender != nil {
		ev.UserID = strconv.FormatInt(sender.ID, 10)
		ev.FirstName = sender.FirstName
	}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	}
	return ev
}

func (h *Handlers) onStart(c tele.Context) error {
	ctx := BuildContext(c)
	h.machine.Greet(ctx, eventFrom(c))
	return nil
}

func (h *Handlers) onSearch(c tele.Context) error {
	ctx := BuildContext(c)
	h.machine.PromptSearch(ctx, eventFrom(c))
	return nil
}

func (h *Handlers) onStats(c tele.Context) error {
	users, downloads := h.machine.Stats()
	return c.Send(fmt.Sprintf("👥 Users: %d\n⬇️ Downloads: %d", users, downloads))
}

func (h *Handlers) onText(c tele.Context) error {
	ctx := BuildContext(c)
	h.machine.HandleText(ctx, eventFrom(c), c.Text())
	return nil
}

func (h *Handlers) onCallback(c tele.Context) error {
	// acknowledge first so the client stops its spinner
	_ = c.Respond()

	ctx := BuildContext(c)
	ev := eventFrom(c)
	action, payload := ParseCallbackData(c.Callback())

	switch action {
	case session.ActionStartSearch, session.ActionNewSearch:
		h.machine.PromptSearch(ctx, ev)
	case session.ActionRandomTrack:
		h.machine.Random(ctx, ev)
	case session.ActionDownload:
		idx, err := strconv.Atoi(payload)
		if err != nil {
			logger.Warn(ctx, "tg", "callback.bad_payload")
			return nil
		}
		h.machine.Select(ctx, ev, idx)
	default:
		logger.Debug(ctx, "tg", "callback.unknown")
	}
	return nil
}
