package bot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bookmylawn/internal/billing"
	"bookmylawn/internal/metrics"
	"bookmylawn/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message, ownerKey string) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if msg.IsCommand() {
		command := msg.Command()
		metrics.IncBotUpdate(command)

		switch command {
		case "start", "help":
			b.sendText(chatID, msgHelp)
		case "calendar", "book":
			b.showCalendar(ctx, chatID, userID, ownerKey)
		case "summary":
			b.handleSummary(ctx, chatID, ownerKey, msg.CommandArguments())
		case "upcoming", "dashboard":
			b.handleDashboard(ctx, chatID, ownerKey)
		case "export":
			b.handleExport(ctx, chatID, ownerKey, msg.CommandArguments())
		case "clear":
			if err := b.state.ClearUserState(ctx, userID); err != nil {
				b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to clear state")
			}
			b.sendText(chatID, msgSelectionClear)
		default:
			b.sendText(chatID, msgHelp)
		}
		return
	}

	state, err := b.state.GetUserState(ctx, userID)
	if err == nil && state != nil && state.CurrentStep == models.StateEnterDetails {
		metrics.IncBotUpdate("details")
		b.handleDetails(ctx, chatID, userID, ownerKey, msg.Text, b.selection(ctx, userID))
		return
	}

	b.sendText(chatID, msgHelp)
}

// parsePeriod reads optional "month year" arguments, defaulting to today.
func (b *Bot) parsePeriod(args string) (int, int, error) {
	today := b.today()
	fields := strings.Fields(args)
	switch len(fields) {
	case 0:
		return int(today.Month()), today.Year(), nil
	case 2:
		month, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, 0, fmt.Errorf("bad month %q", fields[0])
		}
		year, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, 0, fmt.Errorf("bad year %q", fields[1])
		}
		return month, year, nil
	default:
		return 0, 0, fmt.Errorf("expected: month year")
	}
}

func (b *Bot) handleSummary(ctx context.Context, chatID int64, ownerKey, args string) {
	month, year, err := b.parsePeriod(args)
	if err != nil {
		b.sendText(chatID, "⚠️ Usage: /summary 3 2025")
		return
	}

	summary, err := b.bookings.Summary(ctx, ownerKey, month, year)
	if err != nil {
		b.sendText(chatID, errorMessage(err))
		return
	}
	b.sendText(chatID, formatSummary(summary))
}

func (b *Bot) handleDashboard(ctx context.Context, chatID int64, ownerKey string) {
	dashboard, err := b.bookings.Dashboard(ctx, ownerKey)
	if err != nil {
		b.sendText(chatID, errorMessage(err))
		return
	}
	b.sendText(chatID, formatDashboard(dashboard))
}

func (b *Bot) handleExport(ctx context.Context, chatID int64, ownerKey, args string) {
	month, year, err := b.parsePeriod(args)
	if err != nil {
		b.sendText(chatID, "⚠️ Usage: /export 3 2025")
		return
	}

	summary, err := b.bookings.Summary(ctx, ownerKey, month, year)
	if err != nil {
		b.sendText(chatID, errorMessage(err))
		return
	}

	var buf bytes.Buffer
	if err := billing.ExportPeriod(&buf, summary); err != nil {
		b.logger.Error().Err(err).Msg("Failed to build billing workbook")
		b.sendText(chatID, errorMessage(err))
		return
	}
	if _, err := b.tg.SendDocument(chatID, billing.ExportFileName(summary), buf.Bytes()); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send workbook")
	}
}

func (b *Bot) handleDetails(ctx context.Context, chatID, userID int64, ownerKey, text string, selection []string) {
	draft, err := parseDetails(text, selection)
	if err != nil {
		b.sendText(chatID, errorMessage(err)+"\n\n"+msgDetailsPrompt)
		return
	}

	start := time.Now()
	booking, err := b.bookings.Create(ctx, ownerKey, draft)
	if err != nil {
		b.logger.Warn().Err(err).Int64("user_id", userID).Msg("Booking rejected")
		b.sendText(chatID, errorMessage(err))
		return
	}

	b.logger.Info().
		Str("booking_id", booking.ID).
		Dur("took", time.Since(start)).
		Msg("Booking created from bot")

	if err := b.state.ClearUserState(ctx, userID); err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to clear state")
	}
	b.sendText(chatID, formatCreated(booking))
}
