package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/models"
	"maidlink/internal/report"
	"maidlink/internal/service"
)

const (
	maxWebhookBytes = 64 << 10
	reportRowLimit  = 10000
	signatureHeader = "Stripe-Signature"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": s.svc.Catalog.ListServices()})
}

func (s *HTTPServer) handleListAreas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"service_areas": s.svc.Catalog.ListServiceAreas()})
}

func (s *HTTPServer) handleListCleaners(w http.ResponseWriter, r *http.Request) {
	onlyAvailable := r.URL.Query().Get("available") == "true"
	cleaners, err := s.svc.Catalog.ListCleaners(r.Context(), onlyAvailable)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleaners": cleaners})
}

func (s *HTTPServer) handleGetCleaner(w http.ResponseWriter, r *http.Request) {
	cleaner, err := s.svc.Catalog.GetCleaner(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cleaner)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req service.CreateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	booking, err := s.svc.Bookings.CreateBooking(r.Context(), actorFrom(r.Context()).ID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := models.BookingStatus(r.URL.Query().Get("status"))
	bookings, err := s.svc.Bookings.ListBookings(r.Context(), actorFrom(r.Context()), status, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.GetBooking(r.Context(), r.PathValue("id"), actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.CancelBooking(r.Context(), r.PathValue("id"), actorFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type cleanerResponseRequest struct {
	Accepted *bool  `json:"accepted"`
	Reason   string `json:"reason"`
}

func (s *HTTPServer) handleCleanerResponse(w http.ResponseWriter, r *http.Request) {
	var req cleanerResponseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Accepted == nil {
		writeError(w, http.StatusBadRequest, "accepted is required")
		return
	}
	booking, err := s.svc.Bookings.RecordCleanerResponse(r.Context(), r.PathValue("id"), actorFrom(r.Context()).ID, *req.Accepted, req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleStartBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.StartBooking(r.Context(), r.PathValue("id"), actorFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCompleteBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.CompleteBooking(r.Context(), r.PathValue("id"), actorFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type openSessionRequest struct {
	BookingID string `json:"booking_id"`
	OriginURL string `json:"origin_url"`
}

func (s *HTTPServer) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.svc.Payments.OpenSession(r.Context(), req.BookingID, actorFrom(r.Context()).ID, req.OriginURL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *HTTPServer) handleCheckoutStatus(w http.ResponseWriter, r *http.Request) {
	tx, err := s.svc.Payments.PollStatus(r.Context(), r.PathValue("session_id"), actorFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := s.svc.Payments.HandleWebhook(r.Context(), payload, r.Header.Get(signatureHeader)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *HTTPServer) handleApply(w http.ResponseWriter, r *http.Request) {
	var req service.ApplyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	app, err := s.svc.Onboarding.Apply(r.Context(), actorFrom(r.Context()).ID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app.Redacted())
}

func (s *HTTPServer) handleMyApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.svc.Onboarding.GetMyApplication(r.Context(), actorFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app.Redacted())
}

func (s *HTTPServer) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("file exceeds %d bytes", s.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(file, s.maxUpload+1)); err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}

	app, err := s.svc.Onboarding.UploadDocument(r.Context(), r.PathValue("id"), actorFrom(r.Context()).ID, service.UploadRequest{
		DocumentType: models.DocumentType(strings.TrimSpace(r.FormValue("document_type"))),
		FileName:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Data:         buf.Bytes(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app.Redacted())
}

func (s *HTTPServer) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRatingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rating, err := s.svc.Ratings.SubmitRating(r.Context(), actorFrom(r.Context()).ID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rating)
}

func (s *HTTPServer) handleAssignBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.RequestCleanerAcceptance(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleListApplications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apps, err := s.svc.Onboarding.ListApplications(r.Context(), models.ApplicationStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": redactAll(apps)})
}

func (s *HTTPServer) handleInitiateCheck(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Onboarding.InitiateBackgroundCheck(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redactView(view))
}

func (s *HTTPServer) handlePollCheck(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Onboarding.PollBackgroundCheck(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redactView(view))
}

func (s *HTTPServer) handleSuspend(w http.ResponseWriter, r *http.Request) {
	app, err := s.svc.Onboarding.SuspendApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app.Redacted())
}

func (s *HTTPServer) handlePaymentsReport(w http.ResponseWriter, r *http.Request) {
	payments, err := s.svc.Payments.ListPayments(r.Context(), models.PaymentFilter{Limit: reportRowLimit})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apps, err := s.svc.Onboarding.ListApplications(r.Context(), "", reportRowLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	now := time.Now().UTC()
	if err := report.WriteWorkbook(&buf, payments, apps, now); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="payments_%s.xlsx"`, now.Format("2006-01-02")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrInvalidInput)
	}
	return n, nil
}
