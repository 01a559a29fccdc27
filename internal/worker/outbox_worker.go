package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookmylawn/internal/events"
	"bookmylawn/internal/metrics"
	"bookmylawn/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Sink delivers one event to the outside world (Kafka in production).
type Sink interface {
	Publish(ctx context.Context, eventType, key string, payload []byte) error
}

// OutboxStore persists events between enqueue and delivery.
type OutboxStore interface {
	CreateOutboxEvent(ctx context.Context, event *models.OutboxEvent) error
	GetPendingOutboxEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	ClaimOutboxEvent(ctx context.Context, id int64) (bool, error)
	UpdateOutboxStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// OutboxWorker ships booking events to a Sink. Events are persisted first,
// then scheduled via redis or the in-memory queue; the database is polled
// for anything those paths missed and for retries.
type OutboxWorker struct {
	store         OutboxStore
	sink          Sink
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.OutboxEvent
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewOutboxWorker builds a worker with sane defaults.
func NewOutboxWorker(store OutboxStore, sink Sink, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *OutboxWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &OutboxWorker{
		store:         store,
		sink:          sink,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.OutboxEvent, 128),
		redisQueueKey: "bookmylawn:outbox:queue",
		deadLetterKey: "bookmylawn:outbox:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// Attach forwards the given bus event types into the outbox.
func (w *OutboxWorker) Attach(bus *events.EventBus, eventTypes ...string) (detach func()) {
	unsubs := make([]func(), 0, len(eventTypes))
	for _, eventType := range eventTypes {
		unsubs = append(unsubs, bus.Subscribe(eventType, func(event *events.Event) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := w.Enqueue(ctx, event.Type, event.Payload); err != nil {
				w.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to enqueue outbox event")
				return err
			}
			return nil
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Enqueue persists the event and schedules it via redis or in-memory queue.
func (w *OutboxWorker) Enqueue(ctx context.Context, eventType string, payload []byte) error {
	if eventType == "" {
		return errors.New("event type is required")
	}

	var head struct {
		BookingID string `json:"booking_id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if head.BookingID == "" {
		return errors.New("booking id is required")
	}

	event := models.OutboxEvent{
		EventType:   eventType,
		AggregateID: head.BookingID,
		Payload:     string(payload),
		Status:      models.OutboxPending,
	}
	if err := w.store.CreateOutboxEvent(ctx, &event); err != nil {
		return fmt.Errorf("persist outbox event: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, event); err != nil {
			w.logger.Warn().Err(err).Msg("Outbox redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- event:
	default:
		w.logger.Warn().Int64("event_id", event.ID).Msg("Outbox memory queue full, event left to polling")
	}
	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Outbox worker started")
	defer w.logger.Info().Msg("Outbox worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if e, ok := w.tryLocalQueue(); ok {
			w.processEvent(ctx, &e)
			continue
		}

		if e, ok := w.tryRedis(ctx); ok {
			w.processEvent(ctx, &e)
			continue
		}

		pending, err := w.store.GetPendingOutboxEvents(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("Outbox fetch pending failed")
			w.sleep(ctx)
			continue
		}
		if len(pending) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range pending {
			w.processEvent(ctx, &pending[i])
		}
	}
}

func (w *OutboxWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *OutboxWorker) tryLocalQueue() (models.OutboxEvent, bool) {
	select {
	case e := <-w.queue:
		return e, true
	default:
		return models.OutboxEvent{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.OutboxEvent, bool) {
	if w.redis == nil {
		return models.OutboxEvent{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("Outbox redis BRPOP failed")
		}
		return models.OutboxEvent{}, false
	}
	if len(res) != 2 {
		return models.OutboxEvent{}, false
	}
	var e models.OutboxEvent
	if err := json.Unmarshal([]byte(res[1]), &e); err != nil {
		w.logger.Warn().Err(err).Msg("Outbox decode redis event failed")
		return models.OutboxEvent{}, false
	}
	return e, true
}

func (w *OutboxWorker) processEvent(ctx context.Context, e *models.OutboxEvent) {
	// одно и то же событие может прийти из очереди и из опроса БД
	claimed, err := w.store.ClaimOutboxEvent(ctx, e.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("event_id", e.ID).Msg("Failed to claim outbox event")
		return
	}
	if !claimed {
		return
	}

	if err := w.sink.Publish(ctx, e.EventType, e.AggregateID, []byte(e.Payload)); err != nil {
		w.retryOrFail(ctx, e, err)
		return
	}

	if err := w.store.UpdateOutboxStatus(ctx, e.ID, models.OutboxCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("event_id", e.ID).Msg("Failed to mark outbox event completed")
	}
	metrics.IncOutbox(models.OutboxCompleted)
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, e *models.OutboxEvent, cause error) {
	attempt := e.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		if err := w.store.UpdateOutboxStatus(ctx, e.ID, models.OutboxFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("event_id", e.ID).Msg("Failed to mark outbox event as failed")
		}
		w.logger.Error().Err(cause).Int64("event_id", e.ID).Msg("Outbox event moved to dead letter")
		metrics.IncOutbox(models.OutboxFailed)
		if w.redis != nil {
			if err := w.pushRedis(ctx, w.deadLetterKey, *e); err != nil {
				w.logger.Warn().Err(err).Int64("event_id", e.ID).Msg("Outbox dead letter push failed")
			}
		}
		return
	}

	next := time.Now().UTC().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateOutboxStatus(ctx, e.ID, models.OutboxRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("event_id", e.ID).Msg("Failed to schedule outbox retry")
	}
}

func (w *OutboxWorker) pushRedis(ctx context.Context, key string, e models.OutboxEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
