package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"bookmylawn/internal/billing"
	"bookmylawn/internal/domain"
	"bookmylawn/internal/models"
	"bookmylawn/internal/service"

	"github.com/shopspring/decimal"
)

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.auth.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, session, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"owner_key":  session.OwnerKey,
		"expires_at": session.ExpiresAt,
	})
}

func (s *HTTPServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), tokenFrom(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bookingRequest carries amounts as raw JSON values; they go through
// models.ReadAmount so "1,500", 1500 and "₹1500" all read the same.
type bookingRequest struct {
	CustomerName        *string  `json:"customer_name"`
	Contact             *string  `json:"contact"`
	Address             *string  `json:"address"`
	Dates               []string `json:"dates"`
	TotalAmount         any      `json:"total_amount"`
	AdvanceAmount       any      `json:"advance_amount"`
	TotalReceivedAmount any      `json:"total_received_amount"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// amount reads a submitted amount; a value that is not a number is rejected.
func amount(field string, raw any) (decimal.Decimal, error) {
	d, ok := models.ReadAmount(raw)
	if !ok {
		return decimal.Zero, &domain.ValidationError{Field: field, Message: "must be a number"}
	}
	return d, nil
}

func optionalAmount(field string, raw any) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := amount(field, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r bookingRequest) draft() (service.BookingDraft, error) {
	draft := service.BookingDraft{
		CustomerName: deref(r.CustomerName),
		Contact:      deref(r.Contact),
		Address:      deref(r.Address),
		Dates:        r.Dates,
	}
	var err error
	if draft.TotalAmount, err = amount(models.FieldTotalAmount, r.TotalAmount); err != nil {
		return draft, err
	}
	if draft.AdvanceAmount, err = amount(models.FieldAdvanceAmount, r.AdvanceAmount); err != nil {
		return draft, err
	}
	if draft.TotalReceivedAmount, err = amount(models.FieldTotalReceivedAmount, r.TotalReceivedAmount); err != nil {
		return draft, err
	}
	return draft, nil
}

func (r bookingRequest) patch() (service.BookingPatch, error) {
	patch := service.BookingPatch{
		CustomerName: r.CustomerName,
		Contact:      r.Contact,
		Address:      r.Address,
		Dates:        r.Dates,
	}
	var err error
	if patch.TotalAmount, err = optionalAmount(models.FieldTotalAmount, r.TotalAmount); err != nil {
		return patch, err
	}
	if patch.AdvanceAmount, err = optionalAmount(models.FieldAdvanceAmount, r.AdvanceAmount); err != nil {
		return patch, err
	}
	if patch.TotalReceivedAmount, err = optionalAmount(models.FieldTotalReceivedAmount, r.TotalReceivedAmount); err != nil {
		return patch, err
	}
	return patch, nil
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	records, err := s.bookings.List(r.Context(), sessionFrom(r.Context()).OwnerKey)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": records})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	draft, err := req.draft()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	booking, err := s.bookings.Create(r.Context(), sessionFrom(r.Context()).OwnerKey, draft)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	booking, err := s.bookings.Update(r.Context(), sessionFrom(r.Context()).OwnerKey, r.PathValue("id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := s.bookings.Delete(r.Context(), sessionFrom(r.Context()).OwnerKey, r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount any `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	paid, err := amount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	booking, err := s.bookings.RecordPayment(r.Context(), sessionFrom(r.Context()).OwnerKey, r.PathValue("id"), paid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	booking, err := s.bookings.MarkFullyPaid(r.Context(), sessionFrom(r.Context()).OwnerKey, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// handleReserved lists reserved dates, optionally narrowed to one month.
func (s *HTTPServer) handleReserved(w http.ResponseWriter, r *http.Request) {
	reserved, err := s.bookings.Reserved(r.Context(), sessionFrom(r.Context()).OwnerKey)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	if q.Get("month") != "" || q.Get("year") != "" {
		month, year, err := s.period(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := billing.ValidatePeriod(month, year); err != nil {
			s.fail(w, r, err)
			return
		}
		prefix := fmt.Sprintf("%04d-%02d-", year, month)
		for date := range reserved {
			if !strings.HasPrefix(date, prefix) {
				delete(reserved, date)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reserved": reserved})
}

func (s *HTTPServer) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Selection []string `json:"selection"`
		Date      string   `json:"date"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Date == "" {
		s.fail(w, r, &domain.ValidationError{Field: "date", Message: "is required"})
		return
	}
	selection, err := s.bookings.ToggleSelection(r.Context(), sessionFrom(r.Context()).OwnerKey, req.Selection, req.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if selection == nil {
		selection = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"selection": selection})
}

func (s *HTTPServer) summary(r *http.Request) (billing.PeriodSummary, error) {
	month, year, err := s.period(r)
	if err != nil {
		return billing.PeriodSummary{}, err
	}
	return s.bookings.Summary(r.Context(), sessionFrom(r.Context()).OwnerKey, month, year)
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.summary(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	summary, err := s.summary(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := billing.ExportPeriod(&buf, summary); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+billing.ExportFileName(summary)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.bookings.Dashboard(r.Context(), sessionFrom(r.Context()).OwnerKey)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}
