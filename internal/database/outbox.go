package database

import (
	"context"
	"fmt"
	"time"

	"bookmylawn/internal/models"
)

func (db *DB) CreateOutboxEvent(ctx context.Context, event *models.OutboxEvent) error {
	query := `INSERT INTO outbox (event_type, aggregate_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if event.Status == "" {
		event.Status = models.OutboxPending
	}
	result, err := db.ExecContext(ctx, query,
		event.EventType,
		event.AggregateID,
		event.Payload,
		event.Status,
		event.RetryCount,
		event.LastError,
		now,
		event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	event.ID = id
	event.CreatedAt = now
	return nil
}

// GetPendingOutboxEvents returns events due for delivery, oldest first.
func (db *DB) GetPendingOutboxEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	query := `SELECT id, event_type, aggregate_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
              FROM outbox
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY id ASC LIMIT ?`
	return db.queryOutbox(ctx, query, models.OutboxPending, models.OutboxRetry, time.Now().UTC(), limit)
}

func (db *DB) GetFailedOutboxEvents(ctx context.Context) ([]models.OutboxEvent, error) {
	query := `SELECT id, event_type, aggregate_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
              FROM outbox WHERE status = ? ORDER BY id DESC`
	return db.queryOutbox(ctx, query, models.OutboxFailed)
}

// ClaimOutboxEvent moves a pending or retry event to processing. It reports
// false when another path already took the event.
func (db *DB) ClaimOutboxEvent(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE outbox SET status = ? WHERE id = ? AND status IN (?, ?)`,
		models.OutboxProcessing, id, models.OutboxPending, models.OutboxRetry,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim outbox event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (db *DB) UpdateOutboxStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()

	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}

	switch status {
	case models.OutboxRetry:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastError, nextRetryAt, id}
	case models.OutboxCompleted, models.OutboxFailed:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastError, now, id}
	default:
		return fmt.Errorf("unknown outbox status %q", status)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update outbox event: %w", err)
	}
	return nil
}

func (db *DB) queryOutbox(ctx context.Context, query string, args ...interface{}) ([]models.OutboxEvent, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		var e models.OutboxEvent
		err := rows.Scan(
			&e.ID, &e.EventType, &e.AggregateID, &e.Payload, &e.Status, &e.RetryCount,
			&e.LastError, &e.CreatedAt, &e.ProcessedAt, &e.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
