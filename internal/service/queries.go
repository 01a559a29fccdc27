package service

import (
	"context"
	"time"

	"bookmylawn/internal/billing"
	"bookmylawn/internal/ledger"
	"bookmylawn/internal/models"
)

// Read side. Every answer comes from the account's views, so it reflects the
// latest snapshot the subscription delivered.

func (s *BookingService) List(ctx context.Context, ownerKey string) ([]*models.Booking, error) {
	acc, err := s.Account(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	return acc.Billing.Records().Records(), nil
}

func (s *BookingService) Reserved(ctx context.Context, ownerKey string) (ledger.ReservedSet, error) {
	acc, err := s.Account(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	return acc.Availability.Reserved(), nil
}

// ToggleSelection adds or removes date from a tentative selection. Dates
// reserved meanwhile are dropped from the result.
func (s *BookingService) ToggleSelection(ctx context.Context, ownerKey string, selection []string, date string) ([]string, error) {
	reserved, err := s.Reserved(ctx, ownerKey)
	if err != nil {
		return selection, err
	}
	return ledger.ToggleSelection(ledger.Reconcile(selection, reserved), date, reserved)
}

func (s *BookingService) Summary(ctx context.Context, ownerKey string, month, year int) (billing.PeriodSummary, error) {
	if err := billing.ValidatePeriod(month, year); err != nil {
		return billing.PeriodSummary{}, err
	}
	acc, err := s.Account(ctx, ownerKey)
	if err != nil {
		return billing.PeriodSummary{}, err
	}
	return acc.Billing.Summary(month, year, s.now())
}

func (s *BookingService) Dashboard(ctx context.Context, ownerKey string) (billing.DashboardSummary, error) {
	acc, err := s.Account(ctx, ownerKey)
	if err != nil {
		return billing.DashboardSummary{}, err
	}
	return acc.Billing.Dashboard(s.now()), nil
}

func (s *BookingService) Upcoming(ctx context.Context, ownerKey string, reference time.Time) (int, error) {
	acc, err := s.Account(ctx, ownerKey)
	if err != nil {
		return 0, err
	}
	return acc.Billing.Upcoming(reference), nil
}
