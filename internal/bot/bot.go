package bot

import (
	"context"
	"sync"
	"time"

	"bookmylawn/internal/billing"
	"bookmylawn/internal/config"
	"bookmylawn/internal/domain"
	"bookmylawn/internal/ledger"
	"bookmylawn/internal/logging"
	"bookmylawn/internal/metrics"
	"bookmylawn/internal/models"
	"bookmylawn/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Messenger is the Telegram side of the bot.
type Messenger interface {
	SendText(chatID int64, text string) (tgbotapi.Message, error)
	SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	EditKeyboard(chatID int64, messageID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	AnswerCallback(callbackID, text string, alert bool) error
	SendDocument(chatID int64, name string, data []byte) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// BookingService is what the bot needs from the booking core.
type BookingService interface {
	Create(ctx context.Context, ownerKey string, draft service.BookingDraft) (*models.Booking, error)
	Reserved(ctx context.Context, ownerKey string) (ledger.ReservedSet, error)
	ToggleSelection(ctx context.Context, ownerKey string, selection []string, date string) ([]string, error)
	Summary(ctx context.Context, ownerKey string, month, year int) (billing.PeriodSummary, error)
	Dashboard(ctx context.Context, ownerKey string) (billing.DashboardSummary, error)
}

// AccountResolver maps an operator email to the account partition.
type AccountResolver interface {
	OwnerKeyFor(ctx context.Context, email string) (string, error)
}

type Bot struct {
	tg        Messenger
	bookings  BookingService
	accounts  AccountResolver
	state     domain.StateManager
	config    config.BotConfig
	operators map[int64]string
	loc       *time.Location
	logger    *zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	owners map[int64]string
}

func NewBot(
	tg Messenger,
	bookings BookingService,
	accounts AccountResolver,
	state domain.StateManager,
	cfg config.BotConfig,
	loc *time.Location,
	logger *zerolog.Logger,
) *Bot {
	if loc == nil {
		loc = time.Local
	}
	operators := make(map[int64]string, len(cfg.Operators))
	for _, op := range cfg.Operators {
		operators[op.TelegramID] = op.Email
	}
	return &Bot{
		tg:        tg,
		bookings:  bookings,
		accounts:  accounts,
		state:     state,
		config:    cfg,
		operators: operators,
		loc:       loc,
		logger:    logging.Component(logger, "bot"),
		now:       time.Now,
		owners:    make(map[int64]string),
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates.
func (b *Bot) Stop() {
	b.tg.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	// Создаем контекст для обработки каждого обновления
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		var userID, chatID int64
		switch {
		case update.Message != nil && update.Message.From != nil:
			userID, chatID = update.Message.From.ID, update.Message.Chat.ID
		case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
			userID, chatID = update.CallbackQuery.From.ID, update.CallbackQuery.Message.Chat.ID
		default:
			return
		}

		ownerKey, ok := b.ownerFor(updateCtx, userID)
		if !ok {
			metrics.IncBotUpdate("unauthorized")
			if update.Message != nil {
				b.sendText(chatID, msgNotOperator)
			}
			return
		}

		allowed, err := b.state.CheckRateLimit(updateCtx, userID, b.config.RateLimitMessages, time.Duration(b.config.RateLimitWindow)*time.Second)
		if err != nil {
			l.Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
		} else if !allowed {
			l.Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
			if update.Message != nil {
				b.sendText(chatID, msgRateLimited)
			}
			return
		}

		updateCtx = service.WithActor(updateCtx, "telegram:"+userIDString(userID))
		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update.CallbackQuery, ownerKey)
			return
		}
		b.handleMessage(updateCtx, update.Message, ownerKey)
	})
}

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncBotUpdate("panic")
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// ownerFor resolves the account of an operator; the answer is cached.
func (b *Bot) ownerFor(ctx context.Context, userID int64) (string, bool) {
	email, ok := b.operators[userID]
	if !ok {
		return "", false
	}

	b.mu.Lock()
	ownerKey, cached := b.owners[userID]
	b.mu.Unlock()
	if cached {
		return ownerKey, true
	}

	ownerKey, err := b.accounts.OwnerKeyFor(ctx, email)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Operator has no account")
		return "", false
	}

	b.mu.Lock()
	b.owners[userID] = ownerKey
	b.mu.Unlock()
	return ownerKey, true
}

func (b *Bot) today() time.Time {
	return b.now().In(b.loc)
}

func (b *Bot) sendText(chatID int64, text string) {
	if _, err := b.tg.SendText(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) answer(callbackID, text string, alert bool) {
	if err := b.tg.AnswerCallback(callbackID, text, alert); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to answer callback")
	}
}
