package service

import (
	"context"
	"errors"
	"time"

	"bookmylawn/internal/billing"
	"bookmylawn/internal/database"
	"bookmylawn/internal/domain"
	"bookmylawn/internal/events"
	"bookmylawn/internal/logging"
	"bookmylawn/internal/metrics"
	"bookmylawn/internal/models"
	"bookmylawn/internal/view"
	"bookmylawn/internal/worker"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BookingService validates booking changes and writes them to the record
// store. It keeps no local copy: callers observe results through the views.
type BookingService struct {
	store        domain.RecordStore
	views        *view.Registry
	eventBus     domain.EventPublisher
	policy       worker.RetryPolicy
	readyTimeout time.Duration
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewBookingService(
	store domain.RecordStore,
	views *view.Registry,
	eventBus domain.EventPublisher,
	policy worker.RetryPolicy,
	readyTimeout time.Duration,
	logger *zerolog.Logger,
) *BookingService {
	if readyTimeout <= 0 {
		readyTimeout = models.DefaultReadyTimeout
	}
	return &BookingService{
		store:        store,
		views:        views,
		eventBus:     eventBus,
		policy:       policy,
		readyTimeout: readyTimeout,
		logger:       logging.Component(logger, "booking_service"),
		now:          time.Now,
	}
}

// SetLocation makes "today" follow the business timezone.
func (s *BookingService) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.now = func() time.Time { return time.Now().In(loc) }
}

// Account returns the ready views of ownerKey.
func (s *BookingService) Account(ctx context.Context, ownerKey string) (*view.Account, error) {
	acc, err := s.views.Acquire(ownerKey)
	if err != nil {
		return nil, err
	}
	if err := acc.WaitReady(ctx, s.readyTimeout); err != nil {
		return nil, err
	}
	return acc, nil
}

// Create validates the draft, refuses reserved dates and stores the booking.
func (s *BookingService) Create(ctx context.Context, ownerKey string, draft BookingDraft) (*models.Booking, error) {
	b := draft.toBooking()
	if err := validateBooking(b); err != nil {
		return nil, err
	}

	acc, err := s.Account(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	for _, d := range b.Dates {
		if acc.Availability.IsReserved(d) {
			return nil, &domain.AlreadyReservedError{Date: d}
		}
	}

	derivePayment(b)
	b.OwnerKey = ownerKey
	b.CreatedAt = s.now().UTC().Format(time.RFC3339)

	err = s.write(ctx, "create", func(ctx context.Context) error {
		id, err := s.store.CreateRecord(ctx, ownerKey, b)
		if err == nil {
			b.ID = id
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("booking_id", b.ID).Strs("dates", b.Dates).Msg("Booking created")
	s.publishEvent(ctx, events.EventBookingCreated, b)
	return b, nil
}

// Update applies an edit. Dates newly added by the edit must not belong to
// another booking.
func (s *BookingService) Update(ctx context.Context, ownerKey, id string, patch BookingPatch) (*models.Booking, error) {
	current, err := s.store.GetRecord(ctx, ownerKey, id)
	if err != nil {
		return nil, err
	}

	updated := patch.apply(current)
	if err := validateBooking(updated); err != nil {
		return nil, err
	}

	if patch.Dates != nil {
		acc, err := s.Account(ctx, ownerKey)
		if err != nil {
			return nil, err
		}
		reserved := acc.Availability.Reserved()
		for _, d := range addedDates(current.Dates, updated.Dates) {
			if style, ok := reserved[d]; ok && style.OwnerID != id {
				return nil, &domain.AlreadyReservedError{Date: d}
			}
		}
	}

	derivePayment(updated)
	fields := patchFields(patch, updated)

	if err := s.write(ctx, "update", func(ctx context.Context) error {
		return s.store.UpdateRecord(ctx, ownerKey, id, fields)
	}); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.EventBookingUpdated, updated)
	return updated, nil
}

// RecordPayment adds amount to the received total.
func (s *BookingService) RecordPayment(ctx context.Context, ownerKey, id string, amount decimal.Decimal) (*models.Booking, error) {
	if !amount.IsPositive() {
		return nil, &domain.ValidationError{Field: "amount", Message: "must be positive"}
	}
	return s.setReceived(ctx, ownerKey, id, func(b *models.Booking) decimal.Decimal {
		return b.TotalReceivedAmount.Add(amount)
	})
}

// MarkFullyPaid sets the received total to the booking total.
func (s *BookingService) MarkFullyPaid(ctx context.Context, ownerKey, id string) (*models.Booking, error) {
	return s.setReceived(ctx, ownerKey, id, func(b *models.Booking) decimal.Decimal {
		return b.TotalAmount
	})
}

func (s *BookingService) setReceived(ctx context.Context, ownerKey, id string, received func(*models.Booking) decimal.Decimal) (*models.Booking, error) {
	b, err := s.store.GetRecord(ctx, ownerKey, id)
	if err != nil {
		return nil, err
	}

	b.TotalReceivedAmount = received(b)
	derivePayment(b)

	fields := map[string]any{
		models.FieldTotalReceivedAmount: b.TotalReceivedAmount.String(),
		models.FieldRemainingAmount:     b.RemainingAmount.String(),
		models.FieldPaymentStatus:       b.PaymentStatus,
	}
	if err := s.write(ctx, "update", func(ctx context.Context) error {
		return s.store.UpdateRecord(ctx, ownerKey, id, fields)
	}); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.EventPaymentRecorded, b)
	return b, nil
}

// Delete removes a booking.
func (s *BookingService) Delete(ctx context.Context, ownerKey, id string) error {
	if err := s.write(ctx, "delete", func(ctx context.Context) error {
		return s.store.DeleteRecord(ctx, ownerKey, id)
	}); err != nil {
		return err
	}
	s.publishEvent(ctx, events.EventBookingDeleted, &models.Booking{ID: id, OwnerKey: ownerKey})
	return nil
}

// addedDates returns the dates of next that prev did not have.
func addedDates(prev, next []string) []string {
	had := make(map[string]bool, len(prev))
	for _, d := range prev {
		had[d] = true
	}
	var added []string
	for _, d := range next {
		if !had[d] {
			added = append(added, d)
		}
	}
	return added
}

// write retries transient store failures with backoff. A missing record or
// a rejected field is not retried.
func (s *BookingService) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return worker.Do(ctx, s.policy, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrInvalidField) {
			return worker.Permanent(err)
		}
		return err
	}, func(attempt int, err error) {
		metrics.IncWriteRetry(op)
		s.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("Store write failed, retrying")
	})
}

func (s *BookingService) publishEvent(ctx context.Context, eventType string, b *models.Booking) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:           b.ID,
		OwnerKey:            b.OwnerKey,
		CustomerName:        b.CustomerName,
		Dates:               b.Dates,
		TotalAmount:         b.TotalAmount,
		TotalReceivedAmount: b.TotalReceivedAmount,
		PaymentStatus:       b.PaymentStatus,
		ChangedBy:           ActorFrom(ctx),
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", b.ID).Msg("publish event error")
	}
}

func derivePayment(b *models.Booking) {
	b.RemainingAmount = billing.RemainingAmount(b.TotalAmount, b.TotalReceivedAmount)
	b.PaymentStatus = billing.DerivePaymentStatus(b.TotalAmount, b.TotalReceivedAmount)
}

// patchFields lists the columns an edit touches plus the derived ones.
func patchFields(p BookingPatch, b *models.Booking) map[string]any {
	fields := map[string]any{
		models.FieldRemainingAmount: b.RemainingAmount.String(),
		models.FieldPaymentStatus:   b.PaymentStatus,
	}
	if p.CustomerName != nil {
		fields[models.FieldCustomerName] = b.CustomerName
	}
	if p.Contact != nil {
		fields[models.FieldContact] = b.Contact
	}
	if p.Address != nil {
		fields[models.FieldAddress] = b.Address
	}
	if p.Dates != nil {
		fields[models.FieldDates] = b.Dates
	}
	if p.TotalAmount != nil {
		fields[models.FieldTotalAmount] = b.TotalAmount.String()
	}
	if p.AdvanceAmount != nil {
		fields[models.FieldAdvanceAmount] = b.AdvanceAmount.String()
	}
	if p.TotalReceivedAmount != nil {
		fields[models.FieldTotalReceivedAmount] = b.TotalReceivedAmount.String()
	}
	return fields
}
