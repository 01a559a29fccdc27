// Package ledger derives reserved calendar dates from booking records and
// maintains the tentative date selection of a new booking.
package ledger

import (
	"sort"
	"time"

	"bookmylawn/internal/domain"
	"bookmylawn/internal/models"
)

// ReservedColor is the calendar mark of a date held by an existing booking.
const ReservedColor = "#d32f2f"

// DisplayStyle is how a reserved date is drawn on a calendar.
type DisplayStyle struct {
	Marked  bool   `json:"marked"`
	Color   string `json:"color"`
	OwnerID string `json:"booking_id"`
}

// ReservedSet maps a date string to its display style.
type ReservedSet map[string]DisplayStyle

// DeriveReservedDates returns the union of all dates across records. Records
// are visited in id order; when two records claim a date the later id wins
// the style.
func DeriveReservedDates(records models.Snapshot) ReservedSet {
	reserved := make(ReservedSet)
	for _, r := range records.Records() {
		for _, d := range r.Dates {
			reserved[d] = DisplayStyle{Marked: true, Color: ReservedColor, OwnerID: r.ID}
		}
	}
	return reserved
}

func IsDateReserved(reserved ReservedSet, date string) bool {
	_, ok := reserved[date]
	return ok
}

// ToggleSelection adds date to the selection or removes it when already
// selected. A reserved date is refused with *domain.AlreadyReservedError and
// the selection is returned unchanged. The input slice is never modified.
func ToggleSelection(selection []string, date string, reserved ReservedSet) ([]string, error) {
	out := append([]string(nil), selection...)
	if err := ValidateDate(date); err != nil {
		return out, err
	}

	for i, d := range out {
		if d == date {
			return append(out[:i], out[i+1:]...), nil
		}
	}

	if IsDateReserved(reserved, date) {
		return out, &domain.AlreadyReservedError{Date: date}
	}

	return SortDates(append(out, date)), nil
}

// Reconcile drops selected dates that have since become reserved.
func Reconcile(selection []string, reserved ReservedSet) []string {
	out := make([]string, 0, len(selection))
	for _, d := range selection {
		if !IsDateReserved(reserved, d) {
			out = append(out, d)
		}
	}
	return out
}

// ValidateDate checks the fixed YYYY-MM-DD layout.
func ValidateDate(date string) error {
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return &domain.InvalidDateFormatError{Value: date, Err: err}
	}
	if t.Format(models.DateLayout) != date {
		return &domain.InvalidDateFormatError{Value: date}
	}
	return nil
}

// SortDates returns a chronologically ordered copy. Unparseable strings go
// last, in lexical order.
func SortDates(dates []string) []string {
	out := append([]string(nil), dates...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, errI := time.Parse(models.DateLayout, out[i])
		tj, errJ := time.Parse(models.DateLayout, out[j])
		switch {
		case errI == nil && errJ == nil:
			return ti.Before(tj)
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// ReservedInMonth lists reserved dates of one month in chronological order.
func ReservedInMonth(reserved ReservedSet, month time.Month, year int) []string {
	var out []string
	for d := range reserved {
		t, err := time.Parse(models.DateLayout, d)
		if err != nil {
			continue
		}
		if t.Month() == month && t.Year() == year {
			out = append(out, d)
		}
	}
	return SortDates(out)
}
