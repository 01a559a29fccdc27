package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"bookmylawn/internal/billing"
	"bookmylawn/internal/domain"
	"bookmylawn/internal/models"

	"github.com/shopspring/decimal"
)

const (
	msgNotOperator = "⛔ This bot is only for Book My Lawn operators."
	msgRateLimited = "⚠️ You are sending messages too fast. Please wait a moment."
	msgHelp        = "🌿 <b>Book My Lawn</b>\n\n" +
		"/calendar - pick dates for a new booking\n" +
		"/summary [month year] - billing for a month\n" +
		"/upcoming - events still ahead\n" +
		"/export [month year] - billing workbook\n" +
		"/clear - drop the current selection"
	msgDetailsPrompt = "✍️ Send the booking details in one message, separated by <code>;</code>\n\n" +
		"<code>Name; Contact; Address; Total; Advance</code>\n\n" +
		"Example: <code>Asha Rao; 98765 43210; 12 Lake Road; 25000; 5000</code>"
	msgEmptySelection = "Pick at least one date first"
	msgSelectionClear = "🧹 Selection cleared."
)

func userIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func formatMoney(d decimal.Decimal) string {
	return "₹" + d.StringFixed(2)
}

// formatDate renders 2024-03-10 as "10 Mar 2024"; malformed input is echoed.
func formatDate(raw string) string {
	t, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return raw
	}
	return t.Format("2 Jan 2006")
}

func formatDates(dates []string) string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, formatDate(d))
	}
	return strings.Join(out, ", ")
}

func formatSummary(s billing.PeriodSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>%s %d</b>\n\n", time.Month(s.Month), s.Year)
	fmt.Fprintf(&sb, "Bookings: <b>%d</b>\n", s.BookingCount)
	fmt.Fprintf(&sb, "Received: <b>%s</b>\n", formatMoney(s.TotalReceived))
	fmt.Fprintf(&sb, "Remaining: <b>%s</b>\n", formatMoney(s.TotalRemaining))
	fmt.Fprintf(&sb, "Upcoming: <b>%d</b>\n", s.UpcomingInPeriod)

	if len(s.FilteredRecords) > 0 {
		sb.WriteString("\n")
	}
	for _, r := range s.FilteredRecords {
		fmt.Fprintf(&sb, "• %s, %s, %s (%s)\n",
			formatDates(r.Dates),
			html.EscapeString(r.CustomerName),
			formatMoney(billing.RemainingAmount(r.TotalAmount, r.TotalReceivedAmount)),
			r.PaymentStatus,
		)
	}
	return sb.String()
}

func formatDashboard(d billing.DashboardSummary) string {
	var sb strings.Builder
	sb.WriteString("📈 <b>Dashboard</b>\n\n")
	fmt.Fprintf(&sb, "Upcoming events: <b>%d</b>\n", d.Upcoming)
	fmt.Fprintf(&sb, "All bookings: <b>%d</b>\n", d.BookingCount)
	fmt.Fprintf(&sb, "Received to date: <b>%s</b>\n", formatMoney(d.TotalReceived))
	fmt.Fprintf(&sb, "Outstanding: <b>%s</b>\n", formatMoney(d.TotalRemaining))
	return sb.String()
}

func formatCreated(b *models.Booking) string {
	return fmt.Sprintf("✅ Booking saved for <b>%s</b>\n📅 %s\n💰 Total %s, remaining %s (%s)",
		html.EscapeString(b.CustomerName),
		formatDates(b.Dates),
		formatMoney(b.TotalAmount),
		formatMoney(b.RemainingAmount),
		b.PaymentStatus,
	)
}

// errorMessage turns a core error into something an operator can act on.
func errorMessage(err error) string {
	var ve *domain.ValidationError
	var ar *domain.AlreadyReservedError
	var df *domain.InvalidDateFormatError
	var we *domain.WriteError

	switch {
	case errors.As(err, &ar):
		return fmt.Sprintf("⚠️ %s is already booked.", formatDate(ar.Date))
	case errors.As(err, &df):
		return fmt.Sprintf("⚠️ %q is not a date, use YYYY-MM-DD.", df.Value)
	case errors.As(err, &ve):
		return "⚠️ " + html.EscapeString(ve.Error())
	case errors.Is(err, domain.ErrViewUnavailable):
		return "⏳ Bookings are still loading, try again in a few seconds."
	case errors.As(err, &we):
		return "❌ Could not save the booking. Please try again later."
	default:
		return "❌ Something went wrong. Please try again later."
	}
}
