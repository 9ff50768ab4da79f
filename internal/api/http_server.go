package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"maidlink/internal/auth"
	"maidlink/internal/config"
	"maidlink/internal/models"
	"maidlink/internal/service"

	"github.com/rs/zerolog"
)

// Services are the application services the HTTP API exposes.
type Services struct {
	Catalog    *service.CatalogService
	Bookings   *service.BookingService
	Payments   *service.PaymentService
	Onboarding *service.OnboardingService
	Ratings    *service.RatingService
}

// HTTPServer exposes the marketplace to customers, cleaners and operators.
type HTTPServer struct {
	svc       Services
	users     *auth.Manager
	keys      *keyRing
	limiter   *rateLimiter
	maxUpload int64
	server    *http.Server
	log       zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, users *auth.Manager, maxUpload int64, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		svc:       svc,
		users:     users,
		keys:      newKeyRing(cfg.Auth),
		limiter:   newRateLimiter(cfg.RateLimit),
		maxUpload: maxUpload,
		log:       zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}
	if srv.maxUpload <= 0 {
		srv.maxUpload = models.MaxUploadBytes
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           loggingMiddleware(srv.log, srv.routes()),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	const (
		customer = models.RoleCustomer
		cleaner  = models.RoleCleaner
	)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.Handle("GET /api/v1/services", s.limitByIP(s.handleListServices))
	mux.Handle("GET /api/v1/service-areas", s.limitByIP(s.handleListAreas))
	mux.Handle("GET /api/v1/cleaners", s.limitByIP(s.handleListCleaners))
	mux.Handle("GET /api/v1/cleaners/{id}", s.limitByIP(s.handleGetCleaner))

	mux.Handle("POST /api/v1/bookings", s.requireUser(s.handleCreateBooking, customer))
	mux.Handle("GET /api/v1/bookings", s.requireUser(s.handleListBookings))
	mux.Handle("GET /api/v1/bookings/{id}", s.requireUser(s.handleGetBooking))
	mux.Handle("POST /api/v1/bookings/{id}/cancel", s.requireUser(s.handleCancelBooking, customer))
	mux.Handle("POST /api/v1/bookings/{id}/response", s.requireUser(s.handleCleanerResponse, cleaner))
	mux.Handle("POST /api/v1/bookings/{id}/start", s.requireUser(s.handleStartBooking, cleaner))
	mux.Handle("POST /api/v1/bookings/{id}/complete", s.requireUser(s.handleCompleteBooking, cleaner))

	mux.Handle("POST /api/v1/checkout/sessions", s.requireUser(s.handleOpenSession, customer))
	mux.Handle("GET /api/v1/checkout/status/{session_id}", s.requireUser(s.handleCheckoutStatus, customer))
	mux.HandleFunc("POST /api/v1/webhooks/payments", s.handleWebhook)

	mux.Handle("POST /api/v1/applications", s.requireUser(s.handleApply, cleaner))
	mux.Handle("GET /api/v1/applications/me", s.requireUser(s.handleMyApplication, cleaner))
	mux.Handle("POST /api/v1/applications/{id}/documents", s.requireUser(s.handleUploadDocument, cleaner))

	mux.Handle("POST /api/v1/ratings", s.requireUser(s.handleSubmitRating, customer))

	mux.Handle("POST /api/v1/admin/bookings/{id}/assign", s.requireKey(s.handleAssignBooking, PermAssignBookings))
	mux.Handle("GET /api/v1/admin/applications", s.requireKey(s.handleListApplications, PermReadApplications))
	mux.Handle("POST /api/v1/admin/applications/{id}/background-check", s.requireKey(s.handleInitiateCheck, PermManageApplications))
	mux.Handle("GET /api/v1/admin/applications/{id}/background-check", s.requireKey(s.handlePollCheck, PermReadApplications))
	mux.Handle("POST /api/v1/admin/applications/{id}/suspend", s.requireKey(s.handleSuspend, PermManageApplications))
	mux.Handle("GET /api/v1/admin/reports/payments.xlsx", s.requireKey(s.handlePaymentsReport, PermReadReports))

	return mux
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
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

// fail writes err as a JSON error. Only 5xx responses are logged as errors.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, code, publicMessage(err, code))
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
