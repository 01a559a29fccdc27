package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bookmylawn/internal/config"
	"bookmylawn/internal/models"
	"bookmylawn/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "data", "bookmylawn.db")},
		Auth:     config.AuthConfig{JWTSecret: "0123456789abcdef0123"},
		Store:    config.StoreConfig{Notifier: models.NotifierMemory, ChannelPrefix: models.DefaultChannelPrefix},
		Retry:    config.RetryConfig{MaxRetries: 2, InitialDelay: "1ms", MaxDelay: "5ms", BackoffFactor: 2},
		Bot:      config.BotConfig{StateTTL: 60},
	}
}

func createAndWait(t *testing.T, core *Core, owner string) {
	t.Helper()
	ctx := context.Background()
	_, err := core.Bookings.Create(ctx, owner, service.BookingDraft{
		CustomerName: "Asha Rao",
		Contact:      "9876543210",
		Dates:        []string{"2024-03-10"},
		TotalAmount:  decimal.NewFromInt(900),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		reserved, err := core.Bookings.Reserved(ctx, owner)
		return err == nil && reserved["2024-03-10"].Marked
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNew_MemoryNotifier(t *testing.T) {
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := New(ctx, testConfig(t), &logger)
	require.NoError(t, err)
	defer core.Close()
	core.Start(ctx)

	assert.Nil(t, core.Redis)
	createAndWait(t, core, "owner-1")

	require.NoError(t, core.State.SaveSelection(ctx, 7, []string{"2024-03-11"}))
	selection, err := core.State.Selection(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-11"}, selection)
}

func TestNew_RedisNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	cfg.Store.Notifier = models.NotifierRedis
	cfg.Redis.Address = mr.Addr()

	core, err := New(ctx, cfg, &logger)
	require.NoError(t, err)
	defer core.Close()

	createAndWait(t, core, "owner-1")

	require.NoError(t, core.State.SaveSelection(ctx, 7, []string{"2024-03-11"}))
	assert.True(t, mr.Exists("bookmylawn:state:7"), "bot state lives in redis")
}

func TestNew_SignOutReleasesViews(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()
	core, err := New(ctx, testConfig(t), &logger)
	require.NoError(t, err)
	defer core.Close()

	user, err := core.Auth.SignUp(ctx, "owner@example.com", "secret-pass", "")
	require.NoError(t, err)
	token, _, err := core.Auth.SignIn(ctx, "owner@example.com", "secret-pass")
	require.NoError(t, err)

	_, err = core.Bookings.List(ctx, user.OwnerKey)
	require.NoError(t, err)
	assert.Equal(t, 1, core.Views.Len())

	require.NoError(t, core.Auth.SignOut(ctx, token))
	assert.Equal(t, 0, core.Views.Len())
}
