package database

import (
	"context"
	"testing"
	"time"

	"bookmylawn/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createUser(t *testing.T, db *DB, id, email string) *models.User {
	t.Helper()
	u := &models.User{
		ID:           id,
		OwnerKey:     "owner-" + id,
		Email:        email,
		DisplayName:  "Lawn " + id,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func TestUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "u1", "owner@example.com")

	got, err := db.GetUserByEmail(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.OwnerKey, got.OwnerKey)
	assert.Equal(t, "Lawn u1", got.DisplayName)

	got, err = db.GetUserByOwnerKey(ctx, u.OwnerKey)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", got.Email)

	_, err = db.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	dup := &models.User{ID: "u2", OwnerKey: "other", Email: "owner@example.com", PasswordHash: "x", CreatedAt: time.Now()}
	assert.ErrorIs(t, db.CreateUser(ctx, dup), ErrDuplicateEmail)
}

func TestSessions_AtMostOneActive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "u1", "owner@example.com")

	first := &models.Session{ID: "s1", UserID: u.ID, OwnerKey: u.OwnerKey, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, db.CreateSession(ctx, first, time.Now()))

	second := &models.Session{ID: "s2", UserID: u.ID, OwnerKey: u.OwnerKey, ExpiresAt: time.Now().Add(time.Hour)}
	assert.ErrorIs(t, db.CreateSession(ctx, second, time.Now()), ErrSessionActive)

	got, err := db.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, u.OwnerKey, got.OwnerKey)

	require.NoError(t, db.DeleteSession(ctx, "s1"))
	assert.ErrorIs(t, db.DeleteSession(ctx, "s1"), ErrNotFound)
	_, err = db.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.CreateSession(ctx, second, time.Now()))
}

func TestSessions_ExpiredDoesNotBlock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "u1", "owner@example.com")

	expired := &models.Session{ID: "old", UserID: u.ID, OwnerKey: u.OwnerKey, ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, db.CreateSession(ctx, expired, time.Now()))

	fresh := &models.Session{ID: "new", UserID: u.ID, OwnerKey: u.OwnerKey, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, db.CreateSession(ctx, fresh, time.Now()))

	_, err := db.GetSession(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeExpiredSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	a := createUser(t, db, "a", "a@example.com")
	b := createUser(t, db, "b", "b@example.com")

	require.NoError(t, db.CreateSession(ctx, &models.Session{ID: "sa", UserID: a.ID, OwnerKey: a.OwnerKey, ExpiresAt: time.Now().Add(-time.Hour)}, time.Now()))
	require.NoError(t, db.CreateSession(ctx, &models.Session{ID: "sb", UserID: b.ID, OwnerKey: b.OwnerKey, ExpiresAt: time.Now().Add(time.Hour)}, time.Now()))

	owners, err := db.PurgeExpiredSessions(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{a.OwnerKey}, owners)

	_, err = db.GetSession(ctx, "sa")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetSession(ctx, "sb")
	assert.NoError(t, err)
}

func TestSessions_ActiveCheckUsesCallerClock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "u1", "owner@example.com")

	base := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	first := &models.Session{ID: "s1", UserID: u.ID, OwnerKey: u.OwnerKey, ExpiresAt: base.Add(time.Hour)}
	require.NoError(t, db.CreateSession(ctx, first, base))

	second := &models.Session{ID: "s2", UserID: u.ID, OwnerKey: u.OwnerKey, ExpiresAt: base.Add(3 * time.Hour)}
	assert.ErrorIs(t, db.CreateSession(ctx, second, base.Add(30*time.Minute)), ErrSessionActive)
	require.NoError(t, db.CreateSession(ctx, second, base.Add(2*time.Hour)))
}
