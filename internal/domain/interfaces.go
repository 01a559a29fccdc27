package domain

import (
	"context"
	"time"

	"bookmylawn/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Subscription is a live registration on a partition's change channel.
type Subscription interface {
	// Unsubscribe stops deliveries. It must not be called from inside onChange.
	Unsubscribe()
	// Err yields one *SubscriptionError when the channel fails.
	Err() <-chan error
}

type RecordStore interface {
	Subscribe(ctx context.Context, partitionKey string, onChange func(models.Snapshot)) (Subscription, error)
	CreateRecord(ctx context.Context, partitionKey string, record *models.Booking) (string, error)
	UpdateRecord(ctx context.Context, partitionKey, id string, partial map[string]any) error
	DeleteRecord(ctx context.Context, partitionKey, id string) error
	GetRecord(ctx context.Context, partitionKey, id string) (*models.Booking, error)
}

type BookingRepository interface {
	InsertBooking(ctx context.Context, booking *models.Booking) error
	MergeBooking(ctx context.Context, ownerKey, id string, fields map[string]any) error
	GetBooking(ctx context.Context, ownerKey, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, ownerKey string) ([]*models.Booking, error)
	DeleteBooking(ctx context.Context, ownerKey, id string) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByOwnerKey(ctx context.Context, ownerKey string) (*models.User, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *models.Session, now time.Time) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	PurgeExpiredSessions(ctx context.Context, now time.Time) ([]string, error)
}

type StateRepository interface {
	GetState(ctx context.Context, userID int64) (*models.UserState, error)
	SetState(ctx context.Context, state *models.UserState) error
	ClearState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type StateManager interface {
	GetUserState(ctx context.Context, userID int64) (*models.UserState, error)
	SetUserState(ctx context.Context, userID int64, step string, data map[string]interface{}) error
	ClearUserState(ctx context.Context, userID int64) error
	Selection(ctx context.Context, userID int64) ([]string, error)
	SaveSelection(ctx context.Context, userID int64, selection []string) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}
