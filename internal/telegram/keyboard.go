package telegram

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tunebot/internal/session"
)

// buildMarkup converts session button rows into an inline keyboard.
// Returns nil when there are no rows so plain sends stay markup-free.
func buildMarkup(rows [][]session.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Label, btn.Action, btn.Payload).Inline()
		}
		inline[i] = r
	}
	markup.InlineKeyboard = inline
	return markup
}
