package models

import "time"

// User is a Book My Lawn account. OwnerKey partitions its booking records.
type User struct {
	ID           string    `json:"id"`
	OwnerKey     string    `json:"owner_key"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is the single active sign-in of a user.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	OwnerKey  string    `json:"owner_key"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
