package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used in booking records.
const DateLayout = "2006-01-02"

// Booking is one reservation of the venue for one or more calendar dates.
type Booking struct {
	ID                  string          `json:"id"`
	OwnerKey            string          `json:"owner_key"`
	CustomerName        string          `json:"customer_name"`
	Contact             string          `json:"contact"`
	Address             string          `json:"address"`
	Dates               []string        `json:"dates"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	AdvanceAmount       decimal.Decimal `json:"advance_amount"`
	TotalReceivedAmount decimal.Decimal `json:"total_received_amount"`
	RemainingAmount     decimal.Decimal `json:"remaining_amount"`
	PaymentStatus       string          `json:"payment_status"` // NotPaid, PartiallyPaid, FullyPaid, OverPaid
	CreatedAt           string          `json:"created_at"`
	UpdatedAt           time.Time       `json:"-"`
}

// FirstDate parses the first reserved date. ok is false when the record has
// no dates or the first one is malformed.
func (b *Booking) FirstDate(loc *time.Location) (t time.Time, ok bool) {
	if b == nil || len(b.Dates) == 0 {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, b.Dates[0], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Clone returns a deep copy so snapshot consumers never share slices.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.Dates = append([]string(nil), b.Dates...)
	return &c
}

// Поля записи, которые можно менять частичным обновлением.
const (
	FieldCustomerName        = "customer_name"
	FieldContact             = "contact"
	FieldAddress             = "address"
	FieldDates               = "dates"
	FieldTotalAmount         = "total_amount"
	FieldAdvanceAmount       = "advance_amount"
	FieldTotalReceivedAmount = "total_received_amount"
	FieldRemainingAmount     = "remaining_amount"
	FieldPaymentStatus       = "payment_status"
)

// MutableFields lists the keys accepted by a partial update.
var MutableFields = map[string]bool{
	FieldCustomerName:        true,
	FieldContact:             true,
	FieldAddress:             true,
	FieldDates:               true,
	FieldTotalAmount:         true,
	FieldAdvanceAmount:       true,
	FieldTotalReceivedAmount: true,
	FieldRemainingAmount:     true,
	FieldPaymentStatus:       true,
}
