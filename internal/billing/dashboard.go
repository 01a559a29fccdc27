package billing

import (
	"sort"
	"time"

	"bookmylawn/internal/models"

	"github.com/shopspring/decimal"
)

// MonthRevenue aggregates the records whose first date falls in one month.
type MonthRevenue struct {
	Year      int             `json:"year"`
	Month     int             `json:"month"`
	Bookings  int             `json:"bookings"`
	Total     decimal.Decimal `json:"total"`
	Received  decimal.Decimal `json:"received"`
	Remaining decimal.Decimal `json:"remaining"`
}

// DashboardSummary is the overview shown on the dashboard.
type DashboardSummary struct {
	CurrentMonth   PeriodSummary   `json:"current_month"`
	Upcoming       int             `json:"upcoming"`
	BookingCount   int             `json:"booking_count"`
	TotalBooked    decimal.Decimal `json:"total_booked"`
	TotalReceived  decimal.Decimal `json:"total_received"`
	TotalRemaining decimal.Decimal `json:"total_remaining"`
	ByStatus       map[string]int  `json:"by_status"`
	MonthlyRevenue []MonthRevenue  `json:"monthly_revenue"`
}

// Dashboard summarizes all records relative to now.
func Dashboard(records models.Snapshot, now time.Time) DashboardSummary {
	// текущий месяц всегда валиден, ошибки быть не может
	current, _ := SummarizePeriod(records, int(now.Month()), now.Year(), now)

	d := DashboardSummary{
		CurrentMonth:   current,
		Upcoming:       CountUpcoming(records, now),
		TotalBooked:    decimal.Zero,
		TotalReceived:  decimal.Zero,
		TotalRemaining: decimal.Zero,
		ByStatus:       make(map[string]int),
		MonthlyRevenue: []MonthRevenue{},
	}

	months := make(map[[2]int]*MonthRevenue)
	for _, r := range records.Records() {
		remaining := RemainingAmount(r.TotalAmount, r.TotalReceivedAmount)
		d.BookingCount++
		d.TotalBooked = d.TotalBooked.Add(r.TotalAmount)
		d.TotalReceived = d.TotalReceived.Add(r.TotalReceivedAmount)
		d.TotalRemaining = d.TotalRemaining.Add(remaining)
		d.ByStatus[DerivePaymentStatus(r.TotalAmount, r.TotalReceivedAmount)]++

		first, ok := r.FirstDate(time.UTC)
		if !ok {
			continue
		}
		key := [2]int{first.Year(), int(first.Month())}
		m, exists := months[key]
		if !exists {
			m = &MonthRevenue{Year: key[0], Month: key[1], Total: decimal.Zero, Received: decimal.Zero, Remaining: decimal.Zero}
			months[key] = m
		}
		m.Bookings++
		m.Total = m.Total.Add(r.TotalAmount)
		m.Received = m.Received.Add(r.TotalReceivedAmount)
		m.Remaining = m.Remaining.Add(remaining)
	}

	for _, m := range months {
		d.MonthlyRevenue = append(d.MonthlyRevenue, *m)
	}
	sort.Slice(d.MonthlyRevenue, func(i, j int) bool {
		a, b := d.MonthlyRevenue[i], d.MonthlyRevenue[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	return d
}
