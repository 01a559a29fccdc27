package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bookmylawn/internal/models"
)

const bookingColumns = `id, owner_key, customer_name, contact, address, dates,
	total_amount, advance_amount, total_received_amount, remaining_amount,
	payment_status, created_at, updated_at`

func (db *DB) InsertBooking(ctx context.Context, booking *models.Booking) error {
	dates, err := json.Marshal(booking.Dates)
	if err != nil {
		return fmt.Errorf("failed to encode dates: %w", err)
	}

	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = time.Now().UTC()
	}

	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, query,
		booking.ID,
		booking.OwnerKey,
		booking.CustomerName,
		booking.Contact,
		booking.Address,
		string(dates),
		booking.TotalAmount.String(),
		booking.AdvanceAmount.String(),
		booking.TotalReceivedAmount.String(),
		booking.RemainingAmount.String(),
		booking.PaymentStatus,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// MergeBooking overwrites only the given fields of a record.
func (db *DB) MergeBooking(ctx context.Context, ownerKey, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+3)
	for _, name := range sortedKeys(fields) {
		if !models.MutableFields[name] {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidField, name)
		}
		value, err := columnValue(name, fields[name])
		if err != nil {
			return err
		}
		sets = append(sets, name+" = ?")
		args = append(args, value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id, ownerKey)

	query := `UPDATE bookings SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND owner_key = ?`
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
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

func (db *DB) GetBooking(ctx context.Context, ownerKey, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? AND owner_key = ?`
	booking, err := db.scanBooking(db.QueryRowContext(ctx, query, id, ownerKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (db *DB) ListBookings(ctx context.Context, ownerKey string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE owner_key = ? ORDER BY id`
	rows, err := db.QueryContext(ctx, query, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		booking, err := db.scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

func (db *DB) DeleteBooking(ctx context.Context, ownerKey, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ? AND owner_key = ?`, id, ownerKey)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (db *DB) scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var dates string
	var total, advance, received, remaining, status sql.NullString
	err := row.Scan(
		&b.ID, &b.OwnerKey, &b.CustomerName, &b.Contact, &b.Address, &dates,
		&total, &advance, &received, &remaining,
		&status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(dates), &b.Dates); err != nil {
		db.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("Malformed dates in booking, treating as empty")
		b.Dates = nil
	}

	b.TotalAmount = models.ParseAmount(total.String)
	b.AdvanceAmount = models.ParseAmount(advance.String)
	b.TotalReceivedAmount = models.ParseAmount(received.String)
	b.RemainingAmount = models.ParseAmount(remaining.String)
	b.PaymentStatus = status.String
	return &b, nil
}

func columnValue(field string, raw any) (interface{}, error) {
	switch field {
	case models.FieldDates:
		dates, ok := toStrings(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a list of dates", ErrInvalidField, field)
		}
		data, err := json.Marshal(dates)
		if err != nil {
			return nil, fmt.Errorf("failed to encode dates: %w", err)
		}
		return string(data), nil
	case models.FieldTotalAmount, models.FieldAdvanceAmount,
		models.FieldTotalReceivedAmount, models.FieldRemainingAmount:
		return models.ParseAmount(raw).String(), nil
	default:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a string", ErrInvalidField, field)
		}
		return s, nil
	}
}

func toStrings(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
