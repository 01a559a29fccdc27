package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bookmylawn/internal/billing"
	"bookmylawn/internal/config"
	"bookmylawn/internal/database"
	"bookmylawn/internal/domain"
	"bookmylawn/internal/ledger"
	"bookmylawn/internal/models"
	"bookmylawn/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Authenticator is the identity provider behind /api/v1/auth.
type Authenticator interface {
	SignUp(ctx context.Context, email, password, displayName string) (*models.User, error)
	SignIn(ctx context.Context, email, password string) (string, *models.Session, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*models.Session, error)
}

// Bookings is the booking surface the HTTP API exposes.
type Bookings interface {
	List(ctx context.Context, ownerKey string) ([]*models.Booking, error)
	Create(ctx context.Context, ownerKey string, draft service.BookingDraft) (*models.Booking, error)
	Update(ctx context.Context, ownerKey, id string, patch service.BookingPatch) (*models.Booking, error)
	RecordPayment(ctx context.Context, ownerKey, id string, amount decimal.Decimal) (*models.Booking, error)
	MarkFullyPaid(ctx context.Context, ownerKey, id string) (*models.Booking, error)
	Delete(ctx context.Context, ownerKey, id string) error
	Reserved(ctx context.Context, ownerKey string) (ledger.ReservedSet, error)
	ToggleSelection(ctx context.Context, ownerKey string, selection []string, date string) ([]string, error)
	Summary(ctx context.Context, ownerKey string, month, year int) (billing.PeriodSummary, error)
	Dashboard(ctx context.Context, ownerKey string) (billing.DashboardSummary, error)
}

// Health reports whether any supervised subscription is failing.
type Health interface {
	Failing() bool
}

// HTTPServer is the JSON API of Book My Lawn.
type HTTPServer struct {
	cfg      config.APIConfig
	auth     Authenticator
	bookings Bookings
	health   Health
	limiter  *rateLimiter
	server   *http.Server
	logger   zerolog.Logger
	now      func() time.Time
}

func NewHTTPServer(cfg config.APIConfig, auth Authenticator, bookings Bookings, health Health, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		auth:     auth,
		bookings: bookings,
		health:   health,
		limiter:  newRateLimiter(&cfg),
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	if logger != nil {
		srv.logger = logger.With().Str("component", "http").Logger()
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/v1/auth/signin", s.handleSignIn)
	mux.Handle("POST /api/v1/auth/signout", s.requireSession(s.handleSignOut))

	mux.Handle("GET /api/v1/bookings", s.requireSession(s.handleListBookings))
	mux.Handle("POST /api/v1/bookings", s.requireSession(s.handleCreateBooking))
	mux.Handle("PATCH /api/v1/bookings/{id}", s.requireSession(s.handleUpdateBooking))
	mux.Handle("DELETE /api/v1/bookings/{id}", s.requireSession(s.handleDeleteBooking))
	mux.Handle("POST /api/v1/bookings/{id}/payments", s.requireSession(s.handleRecordPayment))
	mux.Handle("POST /api/v1/bookings/{id}/paid", s.requireSession(s.handleMarkPaid))

	mux.Handle("GET /api/v1/calendar/reserved", s.requireSession(s.handleReserved))
	mux.Handle("POST /api/v1/calendar/selection", s.requireSession(s.handleSelection))

	mux.Handle("GET /api/v1/billing/summary", s.requireSession(s.handleSummary))
	mux.Handle("GET /api/v1/billing/export", s.requireSession(s.handleExport))
	mux.Handle("GET /api/v1/dashboard", s.requireSession(s.handleDashboard))

	return s.withRequestID(s.withLogging(s.withRecovery(s.withRateLimit(mux))))
}

// Handler returns the routed handler, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.health != nil && s.health.Failing() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		validation *domain.ValidationError
		dateFormat *domain.InvalidDateFormatError
		reserved   *domain.AlreadyReservedError
		write      *domain.WriteError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &dateFormat):
		return http.StatusBadRequest
	case errors.As(err, &reserved),
		errors.Is(err, database.ErrSessionActive),
		errors.Is(err, database.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &write), errors.Is(err, domain.ErrViewUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Str("path", r.URL.Path).Msg("Request failed")
		msg = "internal error"
	}
	writeError(w, code, msg)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		return &domain.ValidationError{Field: "body", Message: "invalid JSON body"}
	}
	return nil
}

// period reads month and year from the query, defaulting to the current month.
func (s *HTTPServer) period(r *http.Request) (month, year int, err error) {
	now := s.now()
	month, year = int(now.Month()), now.Year()
	if raw := r.URL.Query().Get("month"); raw != "" {
		if month, err = strconv.Atoi(raw); err != nil {
			return 0, 0, &domain.ValidationError{Field: "month", Message: "must be a number"}
		}
	}
	if raw := r.URL.Query().Get("year"); raw != "" {
		if year, err = strconv.Atoi(raw); err != nil {
			return 0, 0, &domain.ValidationError{Field: "year", Message: "must be a number"}
		}
	}
	return month, year, nil
}
