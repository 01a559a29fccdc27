package domain

import (
	"errors"
	"fmt"
)

// ValidationError means a booking field is missing or malformed. It is
// raised before any write and is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// AlreadyReservedError means the date belongs to an existing booking.
type AlreadyReservedError struct {
	Date string
}

func (e *AlreadyReservedError) Error() string {
	return fmt.Sprintf("date %s is already reserved", e.Date)
}

// InvalidDateFormatError means a date string is not YYYY-MM-DD.
type InvalidDateFormatError struct {
	Value string
	Err   error
}

func (e *InvalidDateFormatError) Error() string {
	return fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", e.Value)
}

func (e *InvalidDateFormatError) Unwrap() error { return e.Err }

// WriteError wraps a failed create, update or delete in the record store.
type WriteError struct {
	Op           string
	PartitionKey string
	RecordID     string
	Err          error
}

func (e *WriteError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("store %s %s/%s: %v", e.Op, e.PartitionKey, e.RecordID, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.PartitionKey, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SubscriptionError means the change channel of a subscription failed and
// no further snapshots will be delivered on it.
type SubscriptionError struct {
	PartitionKey string
	Err          error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s: %v", e.PartitionKey, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

var (
	// ErrUnauthorized means the caller presented no valid session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials means email or password did not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrViewUnavailable means no snapshot arrived in time to answer from a view.
	ErrViewUnavailable = errors.New("view is not ready")
)

// IsClientError reports whether err was caused by caller input.
func IsClientError(err error) bool {
	var ve *ValidationError
	var ar *AlreadyReservedError
	var df *InvalidDateFormatError
	return errors.As(err, &ve) || errors.As(err, &ar) || errors.As(err, &df)
}
