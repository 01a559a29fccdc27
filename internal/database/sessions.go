package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookmylawn/internal/models"
)

// CreateSession stores a session unless the user already has one that has
// not expired at now; in that case ErrSessionActive is returned.
func (db *DB) CreateSession(ctx context.Context, session *models.Session, now time.Time) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now = now.UTC()
	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND expires_at > ?`,
		session.UserID, now,
	).Scan(&active)
	if err != nil {
		return fmt.Errorf("failed to check active sessions: %w", err)
	}
	if active > 0 {
		return ErrSessionActive
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, session.UserID); err != nil {
		return fmt.Errorf("failed to drop expired sessions: %w", err)
	}

	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, owner_key, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.OwnerKey, session.ExpiresAt.UTC(), session.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return tx.Commit()
}

func (db *DB) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := db.QueryRowContext(ctx,
		`SELECT id, user_id, owner_key, expires_at, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.OwnerKey, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

func (db *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredSessions removes sessions that expired at or before now and
// returns the owner keys they belonged to.
func (db *DB) PurgeExpiredSessions(ctx context.Context, now time.Time) ([]string, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	rows, err := db.QueryContext(ctx, `DELETE FROM sessions WHERE expires_at <= ? RETURNING owner_key`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to purge sessions: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var ownerKey string
		if err := rows.Scan(&ownerKey); err != nil {
			return nil, fmt.Errorf("failed to scan purged session: %w", err)
		}
		owners = append(owners, ownerKey)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return owners, nil
}
