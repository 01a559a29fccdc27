package models

import "time"

// Статусы оплаты. В хранилище это свободный текст, выводится через billing.DerivePaymentStatus.
const (
	PaymentNotPaid       = "NotPaid"
	PaymentPartiallyPaid = "PartiallyPaid"
	PaymentFullyPaid     = "FullyPaid"
	PaymentOverPaid      = "OverPaid"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

// Шаги диалога бота
const (
	StateMainMenu     = "main_menu"
	StateSelectDates  = "select_dates"
	StateViewSummary  = "view_summary"
	StateViewUpcoming = "view_upcoming"
	StateEnterDetails = "enter_details"
)

// Ключи TempData состояния бота
const (
	StateKeySelection = "selection"
	StateKeyMonth     = "month"
	StateKeyYear      = "year"
)

const (
	NotifierMemory = "memory"
	NotifierRedis  = "redis"

	// DefaultChannelPrefix префикс каналов Redis для уведомлений об изменениях
	DefaultChannelPrefix = "bookmylawn:changes:"
)

const (
	// DefaultRedisTTL время жизни состояния пользователя в Redis
	DefaultRedisTTL = 24 * 60 * 60 // 24 часа в секундах

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений
	RateLimitWindow = 60 // 1 минута в секундах

	// ContactDigits длина номера телефона клиента
	ContactDigits = 10
)

const (
	// DefaultSessionTTL время жизни сессии
	DefaultSessionTTL = 12 * time.Hour

	// DefaultReadyTimeout ожидание первого снимка новой подписки
	DefaultReadyTimeout = 3 * time.Second
)
