package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookmylawn/internal/models"
)

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, owner_key, email, display_name, password_hash, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		user.ID,
		user.OwnerKey,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, owner_key, email, display_name, password_hash, created_at
              FROM users WHERE email = ?`
	return db.queryUser(ctx, query, email)
}

func (db *DB) GetUserByOwnerKey(ctx context.Context, ownerKey string) (*models.User, error) {
	query := `SELECT id, owner_key, email, display_name, password_hash, created_at
              FROM users WHERE owner_key = ?`
	return db.queryUser(ctx, query, ownerKey)
}

func (db *DB) queryUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	var displayName sql.NullString
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.OwnerKey, &user.Email, &displayName, &user.PasswordHash, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.DisplayName = displayName.String
	return &user, nil
}
