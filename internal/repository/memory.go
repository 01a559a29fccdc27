package repository

import (
	"context"
	"sync"
	"time"

	"bookmylawn/internal/models"
)

type memoryEntry struct {
	state     *models.UserState
	expiresAt time.Time
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// MemoryStateRepository keeps bot state in process. It is the fallback when
// Redis is unreachable and the default in single-process setups.
type MemoryStateRepository struct {
	mu     sync.Mutex
	states map[int64]memoryEntry
	limits map[int64]*rateWindow
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		states: make(map[int64]memoryEntry),
		limits: make(map[int64]*rateWindow),
		ttl:    ttl,
		now:    time.Now,
	}
}

// copyState отдает копию, чтобы вызывающий код не менял хранимое состояние
func copyState(s *models.UserState) *models.UserState {
	c := *s
	if s.TempData != nil {
		c.TempData = make(map[string]interface{}, len(s.TempData))
		for k, v := range s.TempData {
			c.TempData[k] = v
		}
	}
	return &c
}

func (r *MemoryStateRepository) GetState(_ context.Context, userID int64) (*models.UserState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.states[userID]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		delete(r.states, userID)
		return nil, nil
	}
	return copyState(entry.state), nil
}

func (r *MemoryStateRepository) SetState(_ context.Context, state *models.UserState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.UserID] = memoryEntry{state: copyState(state), expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemoryStateRepository) ClearState(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, userID)
	return nil
}

// CheckRateLimit counts messages in a fixed window.
func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.limits[userID]
	if !ok || !now.Before(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		r.limits[userID] = w
	}
	w.count++
	return w.count <= limit, nil
}
