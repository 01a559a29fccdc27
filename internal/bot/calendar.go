package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bookmylawn/internal/ledger"
	"bookmylawn/internal/metrics"
	"bookmylawn/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbDay   = "cal:day:"
	cbNav   = "cal:nav:"
	cbBook  = "cal:book"
	cbClear = "cal:clear"
	cbNoop  = "noop"

	markReserved = "🔴"
	markSelected = "✅"
)

var weekdays = []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// calendarKeyboard draws one month. Reserved days are marked and do nothing
// but explain themselves; other days toggle the selection.
func calendarKeyboard(year int, month time.Month, reserved ledger.ReservedSet, selection []string) tgbotapi.InlineKeyboardMarkup {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)

	selected := make(map[string]bool, len(selection))
	for _, d := range selection {
		selected[d] = true
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("«", cbNav+prev.Format("2006-01")),
			tgbotapi.NewInlineKeyboardButtonData(first.Format("January 2006"), cbNoop),
			tgbotapi.NewInlineKeyboardButtonData("»", cbNav+next.Format("2006-01")),
		),
	}

	header := make([]tgbotapi.InlineKeyboardButton, 0, len(weekdays))
	for _, w := range weekdays {
		header = append(header, tgbotapi.NewInlineKeyboardButtonData(w, cbNoop))
	}
	rows = append(rows, header)

	// понедельник первый день недели
	offset := (int(first.Weekday()) + 6) % 7
	week := make([]tgbotapi.InlineKeyboardButton, 0, 7)
	for i := 0; i < offset; i++ {
		week = append(week, tgbotapi.NewInlineKeyboardButtonData(" ", cbNoop))
	}

	for day := first; day.Before(next); day = day.AddDate(0, 0, 1) {
		date := day.Format(models.DateLayout)
		label := strconv.Itoa(day.Day())
		switch {
		case ledger.IsDateReserved(reserved, date):
			label = markReserved + label
		case selected[date]:
			label = markSelected + label
		}
		week = append(week, tgbotapi.NewInlineKeyboardButtonData(label, cbDay+date))

		if len(week) == 7 {
			rows = append(rows, week)
			week = make([]tgbotapi.InlineKeyboardButton, 0, 7)
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, tgbotapi.NewInlineKeyboardButtonData(" ", cbNoop))
		}
		rows = append(rows, week)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🧹 Clear", cbClear),
		tgbotapi.NewInlineKeyboardButtonData("📝 Book selected", cbBook),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func calendarText(year int, month time.Month, reserved ledger.ReservedSet, selection []string) string {
	taken := ledger.ReservedInMonth(reserved, month, year)
	text := fmt.Sprintf("📅 <b>%s %d</b>\n%s reserved, %s selected\nBooked this month: %d",
		month, year, markReserved, markSelected, len(taken))
	if len(selection) > 0 {
		text += "\n\nSelected: " + formatDates(selection)
	}
	return text
}

// calendarState reads the month on screen and the selection from the state.
func (b *Bot) calendarState(ctx context.Context, userID int64) (int, time.Month, []string) {
	today := b.today()
	year, month := today.Year(), today.Month()

	state, err := b.state.GetUserState(ctx, userID)
	if err != nil || state == nil {
		return year, month, nil
	}
	if y := state.GetInt64(models.StateKeyYear); y > 0 {
		year = int(y)
	}
	if m := state.GetInt64(models.StateKeyMonth); m >= 1 && m <= 12 {
		month = time.Month(m)
	}
	return year, month, b.selection(ctx, userID)
}

func (b *Bot) selection(ctx context.Context, userID int64) []string {
	selection, err := b.state.Selection(ctx, userID)
	if err != nil {
		b.logger.Warn().Err(err).Int64("user_id", userID).Msg("Failed to read selection")
		return nil
	}
	return selection
}

func (b *Bot) saveSelection(ctx context.Context, userID int64, selection []string) {
	if err := b.state.SaveSelection(ctx, userID, selection); err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to save selection")
	}
}

func (b *Bot) saveCalendarState(ctx context.Context, userID int64, year int, month time.Month, selection []string) {
	err := b.state.SetUserState(ctx, userID, models.StateSelectDates, map[string]interface{}{
		models.StateKeyYear:      year,
		models.StateKeyMonth:     int(month),
		models.StateKeySelection: selection,
	})
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to save calendar state")
	}
}

func (b *Bot) showCalendar(ctx context.Context, chatID, userID int64, ownerKey string) {
	year, month, selection := b.calendarState(ctx, userID)
	reserved, err := b.bookings.Reserved(ctx, ownerKey)
	if err != nil {
		b.sendText(chatID, errorMessage(err))
		return
	}

	selection = ledger.Reconcile(selection, reserved)
	b.saveCalendarState(ctx, userID, year, month, selection)

	_, err = b.tg.SendWithInlineKeyboard(chatID, calendarText(year, month, reserved, selection), calendarKeyboard(year, month, reserved, selection))
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send calendar")
	}
}

// redrawCalendar edits the calendar message after a tap.
func (b *Bot) redrawCalendar(chatID int64, messageID int, year int, month time.Month, reserved ledger.ReservedSet, selection []string) {
	_, err := b.tg.EditKeyboard(chatID, messageID, calendarText(year, month, reserved, selection), calendarKeyboard(year, month, reserved, selection))
	if err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to redraw calendar")
	}
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery, ownerKey string) {
	data := callback.Data
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	switch {
	case data == cbNoop:
		b.answer(callback.ID, "", false)

	case strings.HasPrefix(data, cbDay):
		metrics.IncBotUpdate("calendar_day")
		date := strings.TrimPrefix(data, cbDay)
		year, month, selection := b.calendarState(ctx, userID)

		updated, err := b.bookings.ToggleSelection(ctx, ownerKey, selection, date)
		if err != nil {
			b.answer(callback.ID, stripTags(errorMessage(err)), true)
			return
		}
		b.answer(callback.ID, "", false)

		reserved, err := b.bookings.Reserved(ctx, ownerKey)
		if err != nil {
			b.sendText(chatID, errorMessage(err))
			return
		}
		b.saveSelection(ctx, userID, updated)
		b.redrawCalendar(chatID, messageID, year, month, reserved, updated)

	case strings.HasPrefix(data, cbNav):
		metrics.IncBotUpdate("calendar_nav")
		t, err := time.Parse("2006-01", strings.TrimPrefix(data, cbNav))
		if err != nil {
			b.answer(callback.ID, "", false)
			return
		}
		b.answer(callback.ID, "", false)

		_, _, selection := b.calendarState(ctx, userID)
		reserved, err := b.bookings.Reserved(ctx, ownerKey)
		if err != nil {
			b.sendText(chatID, errorMessage(err))
			return
		}
		b.saveCalendarState(ctx, userID, t.Year(), t.Month(), selection)
		b.redrawCalendar(chatID, messageID, t.Year(), t.Month(), reserved, selection)

	case data == cbClear:
		metrics.IncBotUpdate("calendar_clear")
		year, month, _ := b.calendarState(ctx, userID)
		b.answer(callback.ID, msgSelectionClear, false)

		reserved, err := b.bookings.Reserved(ctx, ownerKey)
		if err != nil {
			b.sendText(chatID, errorMessage(err))
			return
		}
		b.saveSelection(ctx, userID, nil)
		b.redrawCalendar(chatID, messageID, year, month, reserved, nil)

	case data == cbBook:
		metrics.IncBotUpdate("calendar_book")
		selection := b.selection(ctx, userID)
		if len(selection) == 0 {
			b.answer(callback.ID, msgEmptySelection, true)
			return
		}
		b.answer(callback.ID, "", false)

		err := b.state.SetUserState(ctx, userID, models.StateEnterDetails, map[string]interface{}{
			models.StateKeySelection: selection,
		})
		if err != nil {
			b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to save state")
			b.sendText(chatID, errorMessage(err))
			return
		}
		b.sendText(chatID, "📅 "+formatDates(selection)+"\n\n"+msgDetailsPrompt)

	default:
		b.answer(callback.ID, "", false)
	}
}

func stripTags(s string) string {
	for _, tag := range []string{"<b>", "</b>", "<code>", "</code>"} {
		s = strings.ReplaceAll(s, tag, "")
	}
	return s
}
