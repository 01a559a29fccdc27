package store

import (
	"context"
	"testing"
	"time"

	"bookmylawn/internal/domain"
	"bookmylawn/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisNotifier(t *testing.T) (*RedisNotifier, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zerolog.Nop()
	return NewRedisNotifier(client, models.DefaultChannelPrefix, &logger), mr
}

func TestRedisNotifier_DeliversChanges(t *testing.T) {
	notifier, _ := setupRedisNotifier(t)
	s, _ := setupStore(t, notifier)
	ctx := context.Background()

	rec := &recorder{}
	sub, err := s.Subscribe(ctx, "owner-1", rec.onChange)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	id, err := s.CreateRecord(ctx, "owner-1", draft("Asha", "2024-05-10"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap := rec.last()
		return snap != nil && snap[id] != nil
	}, waitFor, 10*time.Millisecond)
}

func TestRedisNotifier_ChannelName(t *testing.T) {
	notifier, mr := setupRedisNotifier(t)
	l, err := notifier.Listen(context.Background(), "owner-9")
	require.NoError(t, err)
	defer l.Close()

	assert.Contains(t, mr.PubSubChannels(""), models.DefaultChannelPrefix+"owner-9")

	mr.Publish(models.DefaultChannelPrefix+"owner-9", "changed")
	select {
	case <-l.C():
	case <-time.After(waitFor):
		t.Fatal("expected change signal")
	}
}

func TestRedisNotifier_ConnectionLoss(t *testing.T) {
	notifier, mr := setupRedisNotifier(t)
	s, _ := setupStore(t, notifier)

	sub, err := s.Subscribe(context.Background(), "owner-1", func(models.Snapshot) {})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	mr.Close()

	select {
	case err := <-sub.Err():
		var subErr *domain.SubscriptionError
		assert.ErrorAs(t, err, &subErr)
	case <-time.After(waitFor):
		t.Fatal("expected subscription error after redis went away")
	}
}
