package repository

import (
	"context"
	"testing"
	"time"

	"bookmylawn/internal/config"
	"bookmylawn/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStateRepository(t *testing.T) {
	s := miniredis.RunT(t)
	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisStateRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("SetAndGetState", func(t *testing.T) {
		state := &models.UserState{
			UserID:      123,
			CurrentStep: models.StateSelectDates,
			TempData: map[string]interface{}{
				models.StateKeySelection: []string{"2024-03-05", "2024-03-06"},
			},
		}
		require.NoError(t, repo.SetState(ctx, state))

		got, err := repo.GetState(ctx, 123)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, state.UserID, got.UserID)
		assert.Equal(t, state.CurrentStep, got.CurrentStep)
		assert.Equal(t, []string{"2024-03-05", "2024-03-06"}, got.GetStrings(models.StateKeySelection))

		assert.True(t, s.Exists("bookmylawn:state:123"))
		assert.Equal(t, time.Hour, s.TTL("bookmylawn:state:123"))
	})

	t.Run("GetNonExistentState", func(t *testing.T) {
		got, err := repo.GetState(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CorruptedState", func(t *testing.T) {
		require.NoError(t, s.Set("bookmylawn:state:555", "{not json"))
		_, err := repo.GetState(ctx, 555)
		assert.Error(t, err)
	})

	t.Run("ClearState", func(t *testing.T) {
		require.NoError(t, repo.SetState(ctx, &models.UserState{UserID: 456, CurrentStep: models.StateMainMenu}))
		require.NoError(t, repo.ClearState(ctx, 456))

		got, err := repo.GetState(ctx, 456)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		userID := int64(789)
		limit := 2
		window := time.Second

		for i := 0; i < limit; i++ {
			allowed, err := repo.CheckRateLimit(ctx, userID, limit, window)
			require.NoError(t, err)
			assert.True(t, allowed)
		}

		allowed, err := repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisStateRepository(nil, time.Hour)
		_, err := repo.GetState(ctx, 123)
		assert.ErrorContains(t, err, "redis client is nil")
		_, err = repo.CheckRateLimit(ctx, 123, 1, time.Second)
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}

func TestRedisStateRepository_ServerDown(t *testing.T) {
	s := miniredis.RunT(t)
	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()
	repo := NewRedisStateRepository(client, time.Hour)

	s.Close()

	ctx := context.Background()
	assert.Error(t, Ping(ctx, client))
	_, err := repo.GetState(ctx, 1)
	assert.Error(t, err)
	assert.Error(t, repo.SetState(ctx, &models.UserState{UserID: 1}))
}
