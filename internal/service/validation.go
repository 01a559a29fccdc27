package service

import (
	"strings"

	"bookmylawn/internal/domain"
	"bookmylawn/internal/ledger"
	"bookmylawn/internal/models"

	"github.com/shopspring/decimal"
)

// BookingDraft is the user input of a new booking.
type BookingDraft struct {
	CustomerName        string          `json:"customer_name"`
	Contact             string          `json:"contact"`
	Address             string          `json:"address"`
	Dates               []string        `json:"dates"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	AdvanceAmount       decimal.Decimal `json:"advance_amount"`
	TotalReceivedAmount decimal.Decimal `json:"total_received_amount"`
}

// BookingPatch is an edit of an existing booking; nil fields stay as stored.
type BookingPatch struct {
	CustomerName        *string          `json:"customer_name,omitempty"`
	Contact             *string          `json:"contact,omitempty"`
	Address             *string          `json:"address,omitempty"`
	Dates               []string         `json:"dates,omitempty"`
	TotalAmount         *decimal.Decimal `json:"total_amount,omitempty"`
	AdvanceAmount       *decimal.Decimal `json:"advance_amount,omitempty"`
	TotalReceivedAmount *decimal.Decimal `json:"total_received_amount,omitempty"`
}

// NormalizeContact strips spaces and dashes and requires exactly ten digits.
func NormalizeContact(raw string) (string, error) {
	contact := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if len(contact) != models.ContactDigits {
		return "", &domain.ValidationError{Field: models.FieldContact, Message: "must contain exactly 10 digits"}
	}
	for _, r := range contact {
		if r < '0' || r > '9' {
			return "", &domain.ValidationError{Field: models.FieldContact, Message: "must contain exactly 10 digits"}
		}
	}
	return contact, nil
}

// NormalizeDates validates every date, rejects duplicates and sorts.
func NormalizeDates(dates []string) ([]string, error) {
	if len(dates) == 0 {
		return nil, &domain.ValidationError{Field: models.FieldDates, Message: "at least one date is required"}
	}
	seen := make(map[string]bool, len(dates))
	for _, d := range dates {
		if err := ledger.ValidateDate(d); err != nil {
			return nil, err
		}
		if seen[d] {
			return nil, &domain.ValidationError{Field: models.FieldDates, Message: "duplicate date " + d}
		}
		seen[d] = true
	}
	return ledger.SortDates(dates), nil
}

func validateAmount(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return &domain.ValidationError{Field: field, Message: "must not be negative"}
	}
	return nil
}

// validateBooking checks a complete record and normalizes it in place.
func validateBooking(b *models.Booking) error {
	b.CustomerName = strings.TrimSpace(b.CustomerName)
	if b.CustomerName == "" {
		return &domain.ValidationError{Field: models.FieldCustomerName, Message: "is required"}
	}

	contact, err := NormalizeContact(b.Contact)
	if err != nil {
		return err
	}
	b.Contact = contact
	b.Address = strings.TrimSpace(b.Address)

	dates, err := NormalizeDates(b.Dates)
	if err != nil {
		return err
	}
	b.Dates = dates

	if err := validateAmount(models.FieldTotalAmount, b.TotalAmount); err != nil {
		return err
	}
	if err := validateAmount(models.FieldAdvanceAmount, b.AdvanceAmount); err != nil {
		return err
	}
	return validateAmount(models.FieldTotalReceivedAmount, b.TotalReceivedAmount)
}

func (d BookingDraft) toBooking() *models.Booking {
	received := d.TotalReceivedAmount
	// аванс считается полученной суммой, если отдельно ничего не указано
	if received.IsZero() && d.AdvanceAmount.IsPositive() {
		received = d.AdvanceAmount
	}
	return &models.Booking{
		CustomerName:        d.CustomerName,
		Contact:             d.Contact,
		Address:             d.Address,
		Dates:               append([]string(nil), d.Dates...),
		TotalAmount:         d.TotalAmount,
		AdvanceAmount:       d.AdvanceAmount,
		TotalReceivedAmount: received,
	}
}

// apply returns a copy of b with the patch applied.
func (p BookingPatch) apply(b *models.Booking) *models.Booking {
	out := b.Clone()
	if p.CustomerName != nil {
		out.CustomerName = *p.CustomerName
	}
	if p.Contact != nil {
		out.Contact = *p.Contact
	}
	if p.Address != nil {
		out.Address = *p.Address
	}
	if p.Dates != nil {
		out.Dates = append([]string(nil), p.Dates...)
	}
	if p.TotalAmount != nil {
		out.TotalAmount = *p.TotalAmount
	}
	if p.AdvanceAmount != nil {
		out.AdvanceAmount = *p.AdvanceAmount
	}
	if p.TotalReceivedAmount != nil {
		out.TotalReceivedAmount = *p.TotalReceivedAmount
	}
	return out
}
