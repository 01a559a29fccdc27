package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookmylawn/internal/config"
	"bookmylawn/internal/database"
	"bookmylawn/internal/events"
	"bookmylawn/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeSink struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (f *fakeSink) Publish(_ context.Context, eventType, key string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, eventType+":"+key)
	return f.err
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func outboxStatus(t *testing.T, db *database.DB, id int64) (status string, retries int) {
	t.Helper()
	err := db.QueryRow(`SELECT status, retry_count FROM outbox WHERE id = ?`, id).Scan(&status, &retries)
	require.NoError(t, err)
	return status, retries
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(0))
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{MaxRetries: 3, InitialDelay: "100ms", MaxDelay: "1s", BackoffFactor: 2})
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, p.InitialDelay)
	assert.Equal(t, time.Second, p.MaxDelay)
}

func TestDo(t *testing.T) {
	fast := RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("SucceedsAfterRetries", func(t *testing.T) {
		calls := 0
		var retried []int
		err := Do(context.Background(), fast, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, func(attempt int, _ error) { retried = append(retried, attempt) })
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("GivesUp", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := Do(context.Background(), fast, func(context.Context) error {
			calls++
			return boom
		}, nil)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 4, calls)
	})

	t.Run("Permanent", func(t *testing.T) {
		calls := 0
		bad := errors.New("bad input")
		err := Do(context.Background(), fast, func(context.Context) error {
			calls++
			return Permanent(bad)
		}, nil)
		assert.Equal(t, bad, err)
		assert.Equal(t, 1, calls)
		assert.NoError(t, Permanent(nil))
	})

	t.Run("ContextCanceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour}
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := Do(ctx, slow, func(context.Context) error { return errors.New("down") }, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestOutboxWorker_Enqueue(t *testing.T) {
	db := newTestDB(t)
	w := NewOutboxWorker(db, &fakeSink{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, events.EventBookingCreated, []byte(`{"booking_id":"b1"}`)))
	e, ok := w.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, "b1", e.AggregateID)

	assert.Error(t, w.Enqueue(ctx, "", []byte(`{"booking_id":"b1"}`)))
	assert.Error(t, w.Enqueue(ctx, events.EventBookingCreated, []byte(`{}`)))
	assert.Error(t, w.Enqueue(ctx, events.EventBookingCreated, []byte(`not json`)))
}

func TestOutboxWorker_ProcessSuccess(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{}
	w := NewOutboxWorker(db, sink, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, events.EventBookingCreated, []byte(`{"booking_id":"b1"}`)))
	e, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processEvent(ctx, &e)

	status, retries := outboxStatus(t, db, e.ID)
	assert.Equal(t, models.OutboxCompleted, status)
	assert.Zero(t, retries)
	assert.Equal(t, []string{"booking_created:b1"}, sink.calls)
}

func TestOutboxWorker_RetryThenFail(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{err: errors.New("broker down")}
	w := NewOutboxWorker(db, sink, nil, RetryPolicy{MaxRetries: 2}, nil)
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, events.EventBookingUpdated, []byte(`{"booking_id":"b2"}`)))
	e, ok := w.tryLocalQueue()
	require.True(t, ok)

	w.processEvent(ctx, &e)
	status, retries := outboxStatus(t, db, e.ID)
	assert.Equal(t, models.OutboxRetry, status)
	assert.Equal(t, 1, retries)

	e.RetryCount = retries
	w.processEvent(ctx, &e)
	status, _ = outboxStatus(t, db, e.ID)
	assert.Equal(t, models.OutboxFailed, status)
}

func TestOutboxWorker_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	db := newTestDB(t)
	sink := &fakeSink{err: errors.New("down")}
	w := NewOutboxWorker(db, sink, client, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, events.EventBookingCreated, []byte(`{"booking_id":"b3"}`)))
	_, local := w.tryLocalQueue()
	assert.False(t, local, "redis path should be used")

	e, ok := w.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, "b3", e.AggregateID)

	w.processEvent(ctx, &e)
	dead, err := client.LLen(ctx, w.deadLetterKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestOutboxWorker_AttachAndStart(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{}
	w := NewOutboxWorker(db, sink, nil, RetryPolicy{}, nil)
	w.pollInterval = 10 * time.Millisecond

	bus := events.NewEventBus()
	detach := w.Attach(bus, events.EventBookingCreated)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.NoError(t, bus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{BookingID: "b4"}))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	detach()
	require.NoError(t, bus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{BookingID: "b5"}))
	cancel()
	<-done
	assert.Equal(t, 1, sink.count())
}
