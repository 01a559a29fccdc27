// Package billing derives per-period financial summaries from booking records.
// Every function here is pure: the same input always yields the same output.
package billing

import (
	"sort"
	"time"

	"bookmylawn/internal/domain"
	"bookmylawn/internal/models"

	"github.com/shopspring/decimal"
)

// PeriodSummary is the billing view of one (month, year).
type PeriodSummary struct {
	Month            int               `json:"month"`
	Year             int               `json:"year"`
	FilteredRecords  []*models.Booking `json:"records"`
	TotalRemaining   decimal.Decimal   `json:"total_remaining"`
	TotalReceived    decimal.Decimal   `json:"total_received"`
	BookingCount     int               `json:"booking_count"`
	UpcomingInPeriod int               `json:"upcoming_in_period"`
}

// SummarizePeriod attributes every record to the month of its first date and
// sums the records of (month, year). BookingCount is the number of records in
// the period. Records without a parseable first date belong to no period.
func SummarizePeriod(records models.Snapshot, month, year int, now time.Time) (PeriodSummary, error) {
	if err := ValidatePeriod(month, year); err != nil {
		return PeriodSummary{}, err
	}

	summary := PeriodSummary{
		Month:           month,
		Year:            year,
		FilteredRecords: []*models.Booking{},
		TotalRemaining:  decimal.Zero,
		TotalReceived:   decimal.Zero,
	}

	for _, r := range records.Records() {
		if !inPeriod(r, month, year) {
			continue
		}
		summary.FilteredRecords = append(summary.FilteredRecords, r.Clone())
		summary.TotalReceived = summary.TotalReceived.Add(r.TotalReceivedAmount)
		summary.TotalRemaining = summary.TotalRemaining.Add(RemainingAmount(r.TotalAmount, r.TotalReceivedAmount))
	}

	sortByFirstDate(summary.FilteredRecords)
	summary.BookingCount = len(summary.FilteredRecords)
	summary.UpcomingInPeriod = CountUpcomingInPeriod(records, month, year, now)
	return summary, nil
}

// ValidatePeriod rejects months outside 1..12 and non-positive years.
func ValidatePeriod(month, year int) error {
	if month < 1 || month > 12 {
		return &domain.ValidationError{Field: "month", Message: "must be between 1 and 12"}
	}
	if year < 1 {
		return &domain.ValidationError{Field: "year", Message: "must be positive"}
	}
	return nil
}

// CountUpcoming counts records whose first date is strictly after the
// reference day. Time of day is ignored; days are taken in reference's location.
func CountUpcoming(records models.Snapshot, reference time.Time) int {
	today := dayOf(reference)
	n := 0
	for _, r := range records {
		first, ok := r.FirstDate(reference.Location())
		if ok && first.After(today) {
			n++
		}
	}
	return n
}

// CountUpcomingInPeriod counts records of (month, year) that are still ahead
// of the reference day.
func CountUpcomingInPeriod(records models.Snapshot, month, year int, reference time.Time) int {
	today := dayOf(reference)
	n := 0
	for _, r := range records {
		if !inPeriod(r, month, year) {
			continue
		}
		first, ok := r.FirstDate(reference.Location())
		if ok && first.After(today) {
			n++
		}
	}
	return n
}

// RemainingAmount is total minus received. It goes negative on over-payment.
func RemainingAmount(total, received decimal.Decimal) decimal.Decimal {
	return total.Sub(received)
}

// DerivePaymentStatus is the single rule mapping amounts to a payment status.
func DerivePaymentStatus(total, received decimal.Decimal) string {
	remaining := RemainingAmount(total, received)
	switch {
	case !received.IsPositive() && total.IsPositive():
		return models.PaymentNotPaid
	case remaining.IsPositive():
		return models.PaymentPartiallyPaid
	case remaining.IsZero():
		return models.PaymentFullyPaid
	default:
		return models.PaymentOverPaid
	}
}

func inPeriod(r *models.Booking, month, year int) bool {
	first, ok := r.FirstDate(time.UTC)
	return ok && int(first.Month()) == month && first.Year() == year
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sortByFirstDate(records []*models.Booking) {
	sort.SliceStable(records, func(i, j int) bool {
		fi, _ := records[i].FirstDate(time.UTC)
		fj, _ := records[j].FirstDate(time.UTC)
		if !fi.Equal(fj) {
			return fi.Before(fj)
		}
		return records[i].ID < records[j].ID
	})
}
