package repository

import (
	"context"
	"sync/atomic"
	"time"

	"bookmylawn/internal/domain"
	"bookmylawn/internal/models"

	"github.com/rs/zerolog"
)

const defaultRecoveryInterval = time.Minute

// FailoverStateRepository serves bot state from the primary (Redis) and
// switches to the fallback (memory) while the primary keeps failing. After
// the recovery interval one call probes the primary again.
type FailoverStateRepository struct {
	primary  domain.StateRepository
	fallback domain.StateRepository
	logger   *zerolog.Logger

	isDown    atomic.Bool
	lastCheck atomic.Int64
	interval  time.Duration
	now       func() time.Time
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		interval: defaultRecoveryInterval,
		now:      time.Now,
	}
}

// Degraded reports whether calls currently go to the fallback.
func (r *FailoverStateRepository) Degraded() bool {
	return r.isDown.Load()
}

// shouldTryPrimary отвечает, идти ли в primary: либо он жив, либо пора пробовать восстановиться
func (r *FailoverStateRepository) shouldTryPrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := r.lastCheck.Load()
	if r.now().Sub(time.Unix(0, last)) < r.interval {
		return false
	}
	// только один вызов пробует primary за интервал
	return r.lastCheck.CompareAndSwap(last, r.now().UnixNano())
}

func (r *FailoverStateRepository) markDown(op string, err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary state repository failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverStateRepository) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary state repository recovered")
	}
}

func withFallback[T any](ctx context.Context, r *FailoverStateRepository, op string, call func(context.Context, domain.StateRepository) (T, error)) (T, error) {
	if r.shouldTryPrimary() {
		res, err := call(ctx, r.primary)
		if err == nil {
			r.markUp()
			return res, nil
		}
		r.markDown(op, err)
	}
	return call(ctx, r.fallback)
}

func (r *FailoverStateRepository) GetState(ctx context.Context, userID int64) (*models.UserState, error) {
	return withFallback(ctx, r, "get_state", func(ctx context.Context, repo domain.StateRepository) (*models.UserState, error) {
		return repo.GetState(ctx, userID)
	})
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.UserState) error {
	_, err := withFallback(ctx, r, "set_state", func(ctx context.Context, repo domain.StateRepository) (struct{}, error) {
		return struct{}{}, repo.SetState(ctx, state)
	})
	return err
}

func (r *FailoverStateRepository) ClearState(ctx context.Context, userID int64) error {
	_, err := withFallback(ctx, r, "clear_state", func(ctx context.Context, repo domain.StateRepository) (struct{}, error) {
		return struct{}{}, repo.ClearState(ctx, userID)
	})
	return err
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	return withFallback(ctx, r, "rate_limit", func(ctx context.Context, repo domain.StateRepository) (bool, error) {
		return repo.CheckRateLimit(ctx, userID, limit, window)
	})
}
