package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"bookmylawn/internal/database"
	"bookmylawn/internal/domain"
	"bookmylawn/internal/logging"
	"bookmylawn/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// Claims is the payload of a session token. The token id is the session id.
type Claims struct {
	OwnerKey string `json:"owner_key"`
	jwt.RegisteredClaims
}

// AuthService signs accounts in and out. An account holds at most one
// active session; a second sign-in is refused until sign-out or expiry.
type AuthService struct {
	users     domain.UserRepository
	sessions  domain.SessionRepository
	secret    []byte
	ttl       time.Duration
	hashCost  int
	onSignOut func(ownerKey string)
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository, secret string, ttl time.Duration, logger *zerolog.Logger) *AuthService {
	if ttl <= 0 {
		ttl = models.DefaultSessionTTL
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		secret:   []byte(secret),
		ttl:      ttl,
		hashCost: bcrypt.DefaultCost,
		logger:   logging.Component(logger, "auth"),
		now:      time.Now,
	}
}

// OnSignOut registers a hook run after a session ends, e.g. to drop views.
func (s *AuthService) OnSignOut(fn func(ownerKey string)) {
	s.onSignOut = fn
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) SignUp(ctx context.Context, email, password, displayName string) (*models.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &domain.ValidationError{Field: "email", Message: "is not a valid address"}
	}
	if len(password) < minPasswordLength {
		return nil, &domain.ValidationError{Field: "password", Message: "must be at least 8 characters"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		OwnerKey:     uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Account created")
	return user, nil
}

// SignIn checks the password and opens the account's only session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (string, *models.Session, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, domain.ErrInvalidCredentials
	}

	now := s.now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		OwnerKey:  user.OwnerKey,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, session, now); err != nil {
		return "", nil, err
	}

	token, err := s.issueToken(session)
	if err != nil {
		_ = s.sessions.DeleteSession(ctx, session.ID)
		return "", nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Signed in")
	return token, session, nil
}

func (s *AuthService) issueToken(session *models.Session) (string, error) {
	claims := Claims{
		OwnerKey: session.OwnerKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Authenticate resolves a token to its live session.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	session, err := s.sessions.GetSession(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, domain.ErrUnauthorized
	}
	return session, nil
}

// SignOut ends the session behind token.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	session, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.DeleteSession(ctx, session.ID); err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}
	if s.onSignOut != nil {
		s.onSignOut(session.OwnerKey)
	}
	s.logger.Info().Str("user_id", session.UserID).Msg("Signed out")
	return nil
}

// OwnerKeyFor maps an account email to its partition key.
func (s *AuthService) OwnerKeyFor(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", err
	}
	return user.OwnerKey, nil
}

// RunJanitor purges expired sessions every interval until ctx ends. Each
// purged session is released through the sign-out hook.
func (s *AuthService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeExpired(ctx)
		}
	}
}

func (s *AuthService) purgeExpired(ctx context.Context) {
	owners, err := s.sessions.PurgeExpiredSessions(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to purge expired sessions")
		return
	}
	if s.onSignOut != nil {
		for _, ownerKey := range owners {
			s.onSignOut(ownerKey)
		}
	}
	if len(owners) > 0 {
		s.logger.Debug().Int("purged", len(owners)).Msg("Expired sessions purged")
	}
}
