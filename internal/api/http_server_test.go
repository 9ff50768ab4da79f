package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"maidlink/internal/auth"
	"maidlink/internal/config"
	"maidlink/internal/database"
	"maidlink/internal/domain"
	"maidlink/internal/events"
	"maidlink/internal/gateway"
	"maidlink/internal/models"
	"maidlink/internal/repository"
	"maidlink/internal/service"
	"maidlink/internal/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWebhookSecret = "whsec_api_test"
	opsKey            = "ops-key"
	readOnlyKey       = "viewer-key"
)

type stubVerifier struct{}

func (stubVerifier) Initiate(_ context.Context, a models.Applicant) (*models.CheckInitiation, error) {
	return &models.CheckInitiation{CheckID: "chk_" + a.ApplicationID}, nil
}

func (stubVerifier) GetStatus(_ context.Context, checkID string) (*models.CheckResult, error) {
	return &models.CheckResult{CheckID: checkID, ProviderStatus: "clear", Status: models.VerificationCompleted, Verdict: models.VerdictClear}, nil
}

type testEnv struct {
	ts       *httptest.Server
	sandbox  *gateway.Sandbox
	users    *auth.Manager
	services Services
	ledger   *database.DB
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		HTTP: config.APIHTTPConfig{Enabled: true},
		GRPC: config.APIGRPCConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: opsKey, Name: "ops"},
				{Key: readOnlyKey, Name: "viewer", Permissions: []string{PermReadApplications}},
			},
		},
	}
}

func newTestServices(t *testing.T) (Services, *gateway.Sandbox, *database.DB) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertCleaner(ctx, &models.Cleaner{ID: "cl-maria", Name: "Maria Garcia", Rating: 4.9, Available: true}))

	bus := events.NewEventBus()
	catalog := models.NewCatalog(models.DefaultServicePackages(), models.DefaultServiceAreas(), "usd")
	sandbox := gateway.NewSandbox(config.SandboxConfig{WebhookSecret: testWebhookSecret}, 5*time.Minute, &logger)
	files, err := storage.NewLocalStore(t.TempDir(), &logger)
	require.NoError(t, err)

	return Services{
		Catalog:  service.NewCatalogService(db, catalog, &logger),
		Bookings: service.NewBookingService(db, catalog, bus, &logger),
		Payments: service.NewPaymentService(db, sandbox, bus, service.PaymentOptions{}, &logger),
		Onboarding: service.NewOnboardingService(db, stubVerifier{}, files, repository.NewMemoryStateRepository(),
			catalog, bus, service.UploadLimits{}, &logger),
		Ratings: service.NewRatingService(db, bus, &logger),
	}, sandbox, db
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()
	svc, sandbox, db := newTestServices(t)
	users := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", Issuer: "maidlink", TokenTTL: time.Hour})
	logger := zerolog.New(io.Discard)

	srv := NewHTTPServer(cfg, svc, users, 1<<20, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, sandbox: sandbox, users: users, services: svc, ledger: db}
}

func (e *testEnv) token(t *testing.T, subject, role string) string {
	t.Helper()
	tok, err := e.users.Issue(subject, role)
	require.NoError(t, err)
	return tok
}

type call struct {
	method, path string
	body         any
	token        string
	apiKey       string
	header       map[string]string
}

func (e *testEnv) do(t *testing.T, c call) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	switch b := c.body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	case string:
		body = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(c.method, e.ts.URL+c.path, body)
	require.NoError(t, err)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func decodeInto(t *testing.T, raw []byte, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v), string(raw))
}

func bookingBody() map[string]any {
	return map[string]any{
		"service_kind":   "regular_cleaning",
		"cleaner_id":     "cl-maria",
		"scheduled_at":   time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"hours":          2,
		"service_area":   "Tempe",
		"address":        "100 Mill Ave",
		"customer_name":  "Jane Doe",
		"customer_email": "jane@example.com",
		"customer_phone": "+14805550100",
	}
}

func (e *testEnv) paidBooking(t *testing.T, customerToken string) models.Booking {
	t.Helper()
	resp, raw := e.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: bookingBody(), token: customerToken})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var booking models.Booking
	decodeInto(t, raw, &booking)

	resp, raw = e.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/sessions", token: customerToken,
		body: map[string]string{"booking_id": booking.ID, "origin_url": "https://app.example.com/checkout"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var session models.CheckoutSession
	decodeInto(t, raw, &session)

	payload, sig, err := e.sandbox.Complete(session.SessionID)
	require.NoError(t, err)
	resp, raw = e.do(t, call{method: http.MethodPost, path: "/api/v1/webhooks/payments", body: payload,
		header: map[string]string{"Stripe-Signature": sig}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = e.do(t, call{method: http.MethodGet, path: "/api/v1/checkout/status/" + session.SessionID, token: customerToken})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var tx models.PaymentTransaction
	decodeInto(t, raw, &tx)
	require.Equal(t, models.PaymentPaid, tx.PaymentStatus)

	booking.PaymentStatus = tx.PaymentStatus
	return booking
}

func TestHTTP_PublicCatalog(t *testing.T) {
	env := newTestEnv(t, testAPIConfig())

	resp, _ := env.do(t, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := env.do(t, call{method: http.MethodGet, path: "/api/v1/services"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var services struct {
		Services []models.ServicePackage `json:"services"`
	}
	decodeInto(t, raw, &services)
	assert.Len(t, services.Services, 4)

	resp, raw = env.do(t, call{method: http.MethodGet, path: "/api/v1/cleaners/cl-maria"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cleaner models.Cleaner
	decodeInto(t, raw, &cleaner)
	assert.Equal(t, "Maria Garcia", cleaner.Name)

	resp, _ = env.do(t, call{method: http.MethodGet, path: "/api/v1/cleaners/nobody"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, call{method: http.MethodDelete, path: "/api/v1/services"})
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTP_BookingLifecycle(t *testing.T) {
	env := newTestEnv(t, testAPIConfig())
	customer := env.token(t, "cust-1", models.RoleCustomer)
	cleaner := env.token(t, "cl-maria", models.RoleCleaner)

	booking := env.paidBooking(t, customer)

	resp, raw := env.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/" + booking.ID + "/cancel", token: customer})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(raw))

	resp, raw = env.do(t, call{method: http.MethodPost, path: "/api/v1/admin/bookings/" + booking.ID + "/assign", apiKey: opsKey})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = env.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/" + booking.ID + "/response", token: cleaner,
		body: map[string]any{"accepted": true}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	for _, step := range []string{"start", "complete"} {
		resp, raw = env.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/" + booking.ID + "/" + step, token: cleaner})
		require.Equal(t, http.StatusOK, resp.StatusCode, step+": "+string(raw))
	}

	resp, raw = env.do(t, call{method: http.MethodGet, path: "/api/v1/bookings/" + booking.ID, token: customer})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Booking
	decodeInto(t, raw, &got)
	assert.Equal(t, models.BookingCompleted, got.Status)

	rating := map[string]any{"booking_id": booking.ID, "cleaner_id": "cl-maria", "score": 5, "review": "great"}
	resp, raw = env.do(t, call{method: http.MethodPost, path: "/api/v1/ratings", token: customer, body: rating})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	resp, _ = env.do(t, call{method: http.MethodPost, path: "/api/v1/ratings", token: customer, body: rating})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, raw = env.do(t, call{method: http.MethodGet, path: "/api/v1/bookings?status=completed", token: customer})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Bookings []models.Booking `json:"bookings"`
	}
	decodeInto(t, raw, &list)
	assert.Len(t, list.Bookings, 1)

	other := env.token(t, "cust-2", models.RoleCustomer)
	resp, _ = env.do(t, call{method: http.MethodGet, path: "/api/v1/bookings/" + booking.ID, token: other})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_AuthFailures(t *testing.T) {
	env := newTestEnv(t, testAPIConfig())
	cleaner := env.token(t, "cl-maria", models.RoleCleaner)

	tests := []struct {
		name string
		c    call
		want int
	}{
		{"no token", call{method: http.MethodPost, path: "/api/v1/bookings", body: bookingBody()}, http.StatusUnauthorized},
		{"garbage token", call{method: http.MethodPost, path: "/api/v1/bookings", body: bookingBody(), token: "abc.def.ghi"}, http.StatusUnauthorized},
		{"wrong role", call{method: http.MethodPost, path: "/api/v1/bookings", body: bookingBody(), token: cleaner}, http.StatusForbidden},
		{"no api key", call{method: http.MethodGet, path: "/api/v1/admin/applications"}, http.StatusUnauthorized},
		{"unknown api key", call{method: http.MethodGet, path: "/api/v1/admin/applications", apiKey: "nope"}, http.StatusUnauthorized},
		{"missing permission", call{method: http.MethodGet, path: "/api/v1/admin/reports/payments.xlsx", apiKey: readOnlyKey}, http.StatusForbidden},
		{"user token is not an api key", call{method: http.MethodGet, path: "/api/v1/admin/applications", token: cleaner}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := env.do(t, tt.c)
			assert.Equal(t, tt.want, resp.StatusCode, string(raw))
		})
	}

	resp, _ := env.do(t, call{method: http.MethodGet, path: "/api/v1/admin/applications", apiKey: readOnlyKey})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, testAPIConfig())
	customer := env.token(t, "cust-1", models.RoleCustomer)

	resp, _ := env.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: customer, body: "{not json"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := bookingBody()
	body["unexpected"] = true
	resp, _ = env.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: customer, body: body})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body = bookingBody()
	body["cleaner_id"] = "nobody"
	resp, _ = env.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: customer, body: body})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body = bookingBody()
	body["service_area"] = "Tucson"
	resp, _ = env.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", token: customer, body: body})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw := env.do(t, call{method: http.MethodPost, path: "/api/v1/webhooks/payments", body: `{"type":"checkout.session.completed"}`,
		header: map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(raw))

	resp, _ = env.do(t, call{method: http.MethodGet, path: "/api/v1/checkout/status/cs_test_missing", token: customer})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, call{method: http.MethodGet, path: "/api/v1/bookings?limit=-1", token: customer})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func uploadDocument(t *testing.T, env *testEnv, token, appID, docType string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("document_type", docType))
	part, err := mw.CreateFormFile("file", docType+".png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, raw := env.do(t, call{method: http.MethodPost, path: "/api/v1/applications/" + appID + "/documents", token: token,
		body: buf.Bytes(), header: map[string]string{"Content-Type": mw.FormDataContentType()}})
	if resp.StatusCode != http.StatusOK {
		t.Logf("upload %s: %s", docType, raw)
	}
	return resp
}

func TestHTTP_OnboardingFlow(t *testing.T) {
	env := newTestEnv(t, testAPIConfig())
	applicant := env.token(t, "user-ana", models.RoleCleaner)

	apply := map[string]any{
		"personal_info": map[string]any{
			"first_name": "Ana", "last_name": "Lopez", "email": "ana@example.com", "phone": "+14805550123",
			"ssn": "123456789", "date_of_birth": "1990-04-12", "address": "12 Elm St", "city": "Mesa",
			"state": "AZ", "zip_code": "85201", "emergency_contact_name": "Luis", "emergency_contact_phone": "+14805550124",
		},
		"hourly_rate":   3500,
		"service_areas": []string{"Mesa"},
	}
	resp, raw := env.do(t, call{method: http.MethodPost, path: "/api/v1/applications", token: applicant, body: apply})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var app models.CleanerApplication
	decodeInto(t, raw, &app)
	assert.Equal(t, "*****6789", app.PersonalInfo.SSN)
	assert.NotContains(t, string(raw), "123456789")

	resp, _ = env.do(t, call{method: http.MethodPost, path: "/api/v1/applications", token: applicant, body: apply})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = uploadDocument(t, env, applicant, app.ID, "passport")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	stranger := env.token(t, "user-other", models.RoleCleaner)
	resp = uploadDocument(t, env, stranger, app.ID, "id_front")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	for _, dt := range []string{"ssn_card", "id_back", "id_front"} {
		resp = uploadDocument(t, env, applicant, app.ID, dt)
		require.Equal(t, http.StatusOK, resp.StatusCode, dt)
	}

	resp, raw = env.do(t, call{method: http.MethodGet, path: "/api/v1/applications/me", token: applicant})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, raw, &app)
	assert.Equal(t, models.ApplicationDocumentsSubmitted, app.Status)

	checkPath := "/api/v1/admin/applications/" + app.ID + "/background-check"
	resp, _ = env.do(t, call{method: http.MethodPost, path: checkPath, apiKey: readOnlyKey})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw = env.do(t, call{method: http.MethodPost, path: checkPath, apiKey: opsKey})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = env.do(t, call{method: http.MethodGet, path: checkPath, apiKey: readOnlyKey})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var view service.CheckView
	decodeInto(t, raw, &view)
	assert.Equal(t, models.ApplicationApproved, view.Application.Status)
	assert.Equal(t, "*****6789", view.Application.PersonalInfo.SSN)

	resp, raw = env.do(t, call{method: http.MethodGet, path: "/api/v1/admin/applications?status=approved", apiKey: opsKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), app.ID)
	assert.NotContains(t, string(raw), "123456789")

	resp, raw = env.do(t, call{method: http.MethodPost, path: "/api/v1/admin/applications/" + app.ID + "/suspend", apiKey: opsKey})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = env.do(t, call{method: http.MethodGet, path: "/api/v1/admin/reports/payments.xlsx", apiKey: opsKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(raw, []byte("PK")), "xlsx is a zip archive")
}

func TestHTTP_RateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	env := newTestEnv(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, _ := env.do(t, call{method: http.MethodGet, path: "/api/v1/services"})
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	resp, _ := env.do(t, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health checks are not throttled")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{domain.ErrBookingNotFound, http.StatusNotFound},
		{domain.ErrDuplicateRating, http.StatusConflict},
		{domain.ErrInvalidSignature, http.StatusBadRequest},
		{domain.Collaborator("stripe", io.EOF), http.StatusBadGateway},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatus(tt.err), tt.err.Error())
	}
	assert.Equal(t, "internal error", publicMessage(io.ErrUnexpectedEOF, http.StatusInternalServerError))
	assert.Equal(t, domain.ErrCollaborator.Error(), publicMessage(domain.Collaborator("stripe", io.EOF), http.StatusBadGateway))
}

func applyRequestFixture() service.ApplyRequest {
	return service.ApplyRequest{
		PersonalInfo: models.PersonalInfo{
			FirstName: "Ana", LastName: "Lopez", Email: "ana@example.com", Phone: "+14805550123",
			SSN: "123456789", DateOfBirth: "1990-04-12", Address: "12 Elm St", City: "Mesa",
			State: "AZ", ZipCode: "85201", EmergencyContactName: "Luis", EmergencyContactPhone: "+14805550124",
		},
		HourlyRate:   3500,
		ServiceAreas: []string{"Mesa"},
	}
}

func uploadFixture(dt models.DocumentType) service.UploadRequest {
	return service.UploadRequest{DocumentType: dt, FileName: string(dt) + ".png", ContentType: "image/png", Data: []byte("\x89PNG fake")}
}
