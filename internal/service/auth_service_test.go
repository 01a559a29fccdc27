package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"bookmylawn/internal/database"
	"bookmylawn/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const jwtSecret = "0123456789abcdef0123"

func newAuthService(t *testing.T, ttl time.Duration) *AuthService {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewAuthService(db, db, jwtSecret, ttl, &logger)
	svc.hashCost = bcrypt.MinCost
	return svc
}

func TestAuthService_SignUp(t *testing.T) {
	svc := newAuthService(t, time.Hour)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, "  Owner@Example.com ", "secret-pass", "Lawn Owner")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", user.Email)
	assert.NotEmpty(t, user.OwnerKey)
	assert.NotEqual(t, "secret-pass", user.PasswordHash)

	_, err = svc.SignUp(ctx, "owner@example.com", "secret-pass", "")
	assert.ErrorIs(t, err, database.ErrDuplicateEmail)

	var ve *domain.ValidationError
	_, err = svc.SignUp(ctx, "not-an-email", "secret-pass", "")
	assert.ErrorAs(t, err, &ve)
	_, err = svc.SignUp(ctx, "b@example.com", "short", "")
	assert.ErrorAs(t, err, &ve)

	key, err := svc.OwnerKeyFor(ctx, "OWNER@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.OwnerKey, key)
}

func TestAuthService_SingleActiveSession(t *testing.T) {
	svc := newAuthService(t, time.Hour)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, "owner@example.com", "secret-pass", "")
	require.NoError(t, err)

	var released []string
	svc.OnSignOut(func(ownerKey string) { released = append(released, ownerKey) })

	token, session, err := svc.SignIn(ctx, "owner@example.com", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, user.OwnerKey, session.OwnerKey)

	got, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	_, _, err = svc.SignIn(ctx, "owner@example.com", "secret-pass")
	assert.ErrorIs(t, err, database.ErrSessionActive)

	require.NoError(t, svc.SignOut(ctx, token))
	assert.Equal(t, []string{user.OwnerKey}, released)

	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, _, err = svc.SignIn(ctx, "owner@example.com", "secret-pass")
	assert.NoError(t, err, "sign-in works again after sign-out")
}

func TestAuthService_ExpiredSessionAllowsSignIn(t *testing.T) {
	svc := newAuthService(t, 20*time.Millisecond)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "owner@example.com", "secret-pass", "")
	require.NoError(t, err)

	_, _, err = svc.SignIn(ctx, "owner@example.com", "secret-pass")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, _, err = svc.SignIn(ctx, "owner@example.com", "secret-pass")
	assert.NoError(t, err)
}

func TestAuthService_InvalidCredentials(t *testing.T) {
	svc := newAuthService(t, time.Hour)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "owner@example.com", "secret-pass", "")
	require.NoError(t, err)

	_, _, err = svc.SignIn(ctx, "owner@example.com", "wrong-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, _, err = svc.SignIn(ctx, "nobody@example.com", "secret-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthService_RejectsForeignTokens(t *testing.T) {
	svc := newAuthService(t, time.Hour)
	other := newAuthService(t, time.Hour)
	other.secret = []byte("another-secret-of-20ch")
	ctx := context.Background()

	_, err := other.SignUp(ctx, "owner@example.com", "secret-pass", "")
	require.NoError(t, err)
	token, _, err := other.SignIn(ctx, "owner@example.com", "secret-pass")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthService_JanitorReleasesExpiredSessions(t *testing.T) {
	svc := newAuthService(t, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	user, err := svc.SignUp(ctx, "owner@example.com", "secret-pass", "")
	require.NoError(t, err)
	_, _, err = svc.SignIn(ctx, "owner@example.com", "secret-pass")
	require.NoError(t, err)

	var mu sync.Mutex
	var released []string
	svc.OnSignOut(func(ownerKey string) {
		mu.Lock()
		defer mu.Unlock()
		released = append(released, ownerKey)
	})

	go svc.RunJanitor(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(released) == 1 && released[0] == user.OwnerKey
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Len(t, released, 1, "a purged session is released once")
	mu.Unlock()
}

func TestAuthService_SessionClockIsInjected(t *testing.T) {
	svc := newAuthService(t, time.Hour)
	ctx := context.Background()

	now := time.Now()
	svc.now = func() time.Time { return now }

	_, err := svc.SignUp(ctx, "owner@example.com", "secret-pass", "")
	require.NoError(t, err)
	_, _, err = svc.SignIn(ctx, "owner@example.com", "secret-pass")
	require.NoError(t, err)

	_, _, err = svc.SignIn(ctx, "owner@example.com", "secret-pass")
	assert.ErrorIs(t, err, database.ErrSessionActive)

	now = now.Add(2 * time.Hour)
	_, _, err = svc.SignIn(ctx, "owner@example.com", "secret-pass")
	assert.NoError(t, err, "the service clock decides that the first session expired")
}
