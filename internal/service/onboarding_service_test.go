package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/events"
	"maidlink/internal/models"
	"maidlink/internal/repository"
	"maidlink/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Initiate(ctx context.Context, applicant models.Applicant) (*models.CheckInitiation, error) {
	args := m.Called(ctx, applicant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckInitiation), args.Error(1)
}

func (m *mockVerifier) GetStatus(ctx context.Context, checkID string) (*models.CheckResult, error) {
	args := m.Called(ctx, checkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckResult), args.Error(1)
}

type failingStore struct{}

func (failingStore) Store(context.Context, models.DocumentUpload) (*models.StoredDocument, error) {
	return nil, errors.New("bucket unreachable")
}

type onboardingFixture struct {
	*fixture
	verifier   *mockVerifier
	onboarding *OnboardingService
}

func newOnboardingFixture(t *testing.T, limits UploadLimits) *onboardingFixture {
	t.Helper()
	f := newFixture(t)
	files, err := storage.NewLocalStore(t.TempDir(), f.logger)
	require.NoError(t, err)
	verifier := &mockVerifier{}
	return &onboardingFixture{
		fixture:  f,
		verifier: verifier,
		onboarding: NewOnboardingService(f.ledger, verifier, files, repository.NewMemoryStateRepository(),
			f.catalog, f.bus, limits, f.logger),
	}
}

func applyRequest() ApplyRequest {
	return ApplyRequest{
		PersonalInfo: models.PersonalInfo{
			FirstName:             "Ana",
			LastName:              "Lopez",
			Email:                 "ana@example.com",
			Phone:                 "+14805550123",
			SSN:                   "123456789",
			DateOfBirth:           "1990-04-12",
			Address:               "12 Elm St",
			City:                  "Mesa",
			State:                 "AZ",
			ZipCode:               "85201",
			EmergencyContactName:  "Luis Lopez",
			EmergencyContactPhone: "+14805550124",
			HasCleaningExperience: true,
			YearsExperience:       4,
		},
		HourlyRate:   3500,
		ServiceAreas: []string{"mesa", "Tempe", "MESA"},
		Specialties:  []string{"deep cleaning"},
	}
}

func (f *onboardingFixture) apply(t *testing.T, userID string) *models.CleanerApplication {
	t.Helper()
	app, err := f.onboarding.Apply(context.Background(), userID, applyRequest())
	require.NoError(t, err)
	return app
}

func (f *onboardingFixture) upload(t *testing.T, app *models.CleanerApplication, dt models.DocumentType) *models.CleanerApplication {
	t.Helper()
	got, err := f.onboarding.UploadDocument(context.Background(), app.ID, app.UserID, UploadRequest{
		DocumentType: dt,
		FileName:     string(dt) + ".JPG",
		ContentType:  "image/jpeg",
		Data:         []byte("fake image bytes"),
	})
	require.NoError(t, err)
	return got
}

// submitted returns an application with all required documents on file.
func (f *onboardingFixture) submitted(t *testing.T, userID string) *models.CleanerApplication {
	t.Helper()
	app := f.apply(t, userID)
	for _, dt := range models.RequiredDocuments {
		app = f.upload(t, app, dt)
	}
	require.Equal(t, models.ApplicationDocumentsSubmitted, app.Status)
	return app
}

func (f *onboardingFixture) underCheck(t *testing.T, userID, checkID string) *models.CleanerApplication {
	t.Helper()
	app := f.submitted(t, userID)
	f.verifier.On("Initiate", mock.Anything, mock.MatchedBy(func(a models.Applicant) bool {
		return a.ApplicationID == app.ID
	})).Return(&models.CheckInitiation{CheckID: checkID}, nil).Once()
	view, err := f.onboarding.InitiateBackgroundCheck(context.Background(), app.ID)
	require.NoError(t, err)
	return view.Application
}

func TestApply(t *testing.T) {
	f := newOnboardingFixture(t, UploadLimits{})
	ctx := context.Background()

	app := f.apply(t, "user-1")
	assert.Equal(t, models.ApplicationDocumentsRequired, app.Status)
	assert.Equal(t, []string{"Mesa", "Tempe"}, app.ServiceAreas)
	assert.Empty(t, app.Documents)

	stored, err := f.onboarding.GetMyApplication(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, app.ID, stored.ID)
	assert.Equal(t, "123456789", stored.PersonalInfo.SSN)
	assert.Equal(t, 1, f.recorder.count(events.EventApplicationSubmitted))

	_, err = f.onboarding.Apply(ctx, "user-1", applyRequest())
	assert.ErrorIs(t, err, domain.ErrDuplicateApplication)

	_, err = f.onboarding.GetMyApplication(ctx, "user-nobody")
	assert.ErrorIs(t, err, domain.ErrApplicationNotFound)
}

func TestApply_ConcurrentDuplicates(t *testing.T) {
	f := newOnboardingFixture(t, UploadLimits{})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.onboarding.Apply(context.Background(), "user-race", applyRequest())
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrDuplicateApplication)
	}
	assert.Equal(t, 1, ok)
}

func TestApply_Validation(t *testing.T) {
	f := newOnboardingFixture(t, UploadLimits{})

	tests := []struct {
		name   string
		mutate func(*ApplyRequest)
		want   error
	}{
		{"short ssn", func(r *ApplyRequest) { r.PersonalInfo.SSN = "1234" }, domain.ErrInvalidInput},
		{"letters in ssn", func(r *ApplyRequest) { r.PersonalInfo.SSN = "12345678a" }, domain.ErrInvalidInput},
		{"bad birth date", func(r *ApplyRequest) { r.PersonalInfo.DateOfBirth = "12/04/1990" }, domain.ErrInvalidInput},
		{"missing email", func(r *ApplyRequest) { r.PersonalInfo.Email = "" }, domain.ErrInvalidInput},
		{"no areas", func(r *ApplyRequest) { r.ServiceAreas = nil }, domain.ErrInvalidInput},
		{"zero rate", func(r *ApplyRequest) { r.HourlyRate = 0 }, domain.ErrInvalidInput},
		{"area outside coverage", func(r *ApplyRequest) { r.ServiceAreas = []string{"Flagstaff"} }, domain.ErrUnsupportedServiceArea},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := applyRequest()
			tt.mutate(&req)
			_, err := f.onboarding.Apply(context.Background(), fmt.Sprintf("user-%d", i), req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUploadDocument_AnyOrder(t *testing.T) {
	orders := [][]models.DocumentType{
		{models.DocumentIDFront, models.DocumentIDBack, models.DocumentSSNCard},
		{models.DocumentIDFront, models.DocumentSSNCard, models.DocumentIDBack},
		{models.DocumentIDBack, models.DocumentIDFront, models.DocumentSSNCard},
		{models.DocumentIDBack, models.DocumentSSNCard, models.DocumentIDFront},
		{models.DocumentSSNCard, models.DocumentIDFront, models.DocumentIDBack},
		{models.DocumentSSNCard, models.DocumentIDBack, models.DocumentIDFront},
	}

	for i, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			f := newOnboardingFixture(t, UploadLimits{})
			app := f.apply(t, fmt.Sprintf("user-%d", i))

			app = f.upload(t, app, models.DocumentResume)
			assert.Equal(t, models.ApplicationDocumentsRequired, app.Status)

			for j, dt := range order {
				app = f.upload(t, app, dt)
				if j < len(order)-1 {
					assert.Equal(t, models.ApplicationDocumentsRequired, app.Status)
				}
			}
			assert.Equal(t, models.ApplicationDocumentsSubmitted, app.Status)
			assert.Len(t, app.Documents, 4)
			assert.Equal(t, 1, f.recorder.count(events.EventDocumentsSubmitted))
		})
	}
}

func TestUploadDocument_Concurrent(t *testing.T) {
	f := newOnboardingFixture(t, UploadLimits{})
	app := f.apply(t, "user-1")

	all := []models.DocumentType{
		models.DocumentIDFront, models.DocumentIDBack, models.DocumentSSNCard,
		models.DocumentWorkPermit, models.DocumentResume,
	}
	var wg sync.WaitGroup
	for _, dt := range all {
		wg.Add(1)
		go func(dt models.DocumentType) {
			defer wg.Done()
			_, err := f.onboarding.UploadDocument(context.Background(), app.ID, "user-1", UploadRequest{
				DocumentType: dt, FileName: string(dt) + ".pdf", Data: []byte("%PDF-1.4"),
			})
			assert.NoError(t, err)
		}(dt)
	}
	wg.Wait()

	got, err := f.onboarding.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Len(t, got.Documents, len(all))
	assert.Equal(t, models.ApplicationDocumentsSubmitted, got.Status)
	assert.Equal(t, 1, f.recorder.count(events.EventDocumentsSubmitted))

	doc := got.Documents[models.DocumentIDFront]
	assert.Equal(t, "id_front.pdf", doc.OriginalName)
	assert.Contains(t, doc.StoredName, app.ID+"_id_front_")
}

func TestUploadDocument_Rejections(t *testing.T) {
	f := newOnboardingFixture(t, UploadLimits{MaxBytes: 16, RateLimit: 3, RateWindow: time.Hour})
	ctx := context.Background()
	app := f.apply(t, "user-1")

	upload := func(userID string, dt models.DocumentType, data []byte) error {
		_, err := f.onboarding.UploadDocument(ctx, app.ID, userID, UploadRequest{DocumentType: dt, FileName: "x.png", Data: data})
		return err
	}

	assert.ErrorIs(t, upload("user-2", models.DocumentIDFront, []byte("x")), domain.ErrApplicationNotFound)
	assert.ErrorIs(t, upload("user-1", "passport", []byte("x")), domain.ErrInvalidInput)
	assert.ErrorIs(t, upload("user-1", models.DocumentIDFront, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, upload("user-1", models.DocumentIDFront, make([]byte, 17)), domain.ErrInvalidInput)

	_, err := f.onboarding.UploadDocument(ctx, "missing", "user-1", UploadRequest{DocumentType: models.DocumentIDFront, Data: []byte("x")})
	assert.ErrorIs(t, err, domain.ErrApplicationNotFound)

	require.NoError(t, upload("user-1", models.DocumentResume, []byte("a")))
	require.NoError(t, upload("user-1", models.DocumentResume, []byte("b")))
	require.NoError(t, upload("user-1", models.DocumentResume, []byte("c")))
	assert.ErrorIs(t, upload("user-1", models.DocumentResume, []byte("d")), domain.ErrRateLimited)
}

func TestUploadDocument_StorageFailure(t *testing.T) {
	f := newFixture(t)
	onboarding := NewOnboardingService(f.ledger, &mockVerifier{}, failingStore{}, repository.NewMemoryStateRepository(),
		f.catalog, f.bus, UploadLimits{}, f.logger)
	app, err := onboarding.Apply(context.Background(), "user-1", applyRequest())
	require.NoError(t, err)

	_, err = onboarding.UploadDocument(context.Background(), app.ID, "user-1", UploadRequest{
		DocumentType: models.DocumentIDFront, FileName: "id.png", Data: []byte("x"),
	})
	assert.ErrorIs(t, err, domain.ErrCollaborator)

	got, err := onboarding.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Documents)
}

func TestInitiateBackgroundCheck(t *testing.T) {
	f := newOnboardingFixture(t, UploadLimits{})
	ctx := context.Background()

	early := f.apply(t, "user-early")
	_, err := f.onboarding.InitiateBackgroundCheck(ctx, early.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.onboarding.InitiateBackgroundCheck(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrApplicationNotFound)

	app := f.submitted(t, "user-1")
	eta := time.Now().Add(10 * time.Minute).UTC()
	f.verifier.On("Initiate", mock.Anything, mock.MatchedBy(func(a models.Applicant) bool {
		return a.ApplicationID == app.ID && a.SSN == "123456789"
	})).Return(&models.CheckInitiation{CheckID: "chk_1", EstimatedCompletion: &eta}, nil).Once()

	view, err := f.onboarding.InitiateBackgroundCheck(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "chk_1", view.CheckID)
	assert.Equal(t, models.VerificationInProgress, view.Status)
	assert.Equal(t, &eta, view.EstimatedCompletion)
	assert.Equal(t, models.ApplicationBackgroundCheck, view.Application.Status)
	assert.Equal(t, "chk_1", view.Application.BackgroundCheckID)

	_, err = f.onboarding.InitiateBackgroundCheck(ctx, app.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	f.verifier.AssertExpectations(t)
}

func TestInitiateBackgroundCheck_ProviderDown(t *testing.T) {
	f := newOnboardingFixture(t, UploadLimits{})
	app := f.submitted(t, "user-1")
	f.verifier.On("Initiate", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

	_, err := f.onboarding.InitiateBackgroundCheck(context.Background(), app.ID)
	assert.ErrorIs(t, err, domain.ErrCollaborator)

	got, err := f.onboarding.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationDocumentsSubmitted, got.Status)
}

func TestPollBackgroundCheck_Outcomes(t *testing.T) {
	eta := time.Now().Add(time.Minute).UTC()
	tests := []struct {
		name       string
		result     models.CheckResult
		wantStatus models.ApplicationStatus
		wantCheck  models.VerificationStatus
		wantEvent  string
	}{
		{
			name:       "clear approves",
			result:     models.CheckResult{ProviderStatus: "clear", Status: models.VerificationCompleted, Verdict: models.VerdictClear, Results: map[string]any{"criminal_search": "clear"}},
			wantStatus: models.ApplicationApproved,
			wantCheck:  models.VerificationCompleted,
			wantEvent:  events.EventApplicationApproved,
		},
		{
			name:       "consider rejects",
			result:     models.CheckResult{ProviderStatus: "records_found", Status: models.VerificationCompleted, Verdict: models.VerdictConsider},
			wantStatus: models.ApplicationRejected,
			wantCheck:  models.VerificationCompleted,
			wantEvent:  events.EventApplicationRejected,
		},
		{
			name:       "provider failure waits for an operator",
			result:     models.CheckResult{ProviderStatus: "suspended", Status: models.VerificationFailed},
			wantStatus: models.ApplicationBackgroundCheck,
			wantCheck:  models.VerificationFailed,
			wantEvent:  events.EventCheckNeedsAttention,
		},
		{
			name:       "still running",
			result:     models.CheckResult{ProviderStatus: "pending", Status: models.VerificationInProgress, EstimatedCompletion: &eta},
			wantStatus: models.ApplicationBackgroundCheck,
			wantCheck:  models.VerificationInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOnboardingFixture(t, UploadLimits{})
			app := f.underCheck(t, "user-1", "chk_1")
			res := tt.result
			res.CheckID = "chk_1"
			f.verifier.On("GetStatus", mock.Anything, "chk_1").Return(&res, nil)

			view, err := f.onboarding.PollBackgroundCheck(context.Background(), app.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCheck, view.Status)
			assert.Equal(t, tt.wantStatus, view.Application.Status)

			// a second poll must not repeat side effects
			_, err = f.onboarding.PollBackgroundCheck(context.Background(), app.ID)
			require.NoError(t, err)

			got, err := f.onboarding.GetApplication(context.Background(), app.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantCheck, got.BackgroundCheckStatus)
			if tt.wantEvent != "" {
				assert.Equal(t, 1, f.recorder.count(tt.wantEvent))
			}
			if tt.wantCheck == models.VerificationInProgress {
				assert.Equal(t, &eta, view.EstimatedCompletion)
			}
		})
	}
}

func TestPollBackgroundCheck_DecidedSkipsProvider(t *testing.T) {
	f := newOnboardingFixture(t, UploadLimits{})
	app := f.underCheck(t, "user-1", "chk_1")
	f.verifier.On("GetStatus", mock.Anything, "chk_1").Return(&models.CheckResult{
		CheckID: "chk_1", ProviderStatus: "clear", Status: models.VerificationCompleted, Verdict: models.VerdictClear,
	}, nil).Once()

	_, err := f.onboarding.PollBackgroundCheck(context.Background(), app.ID)
	require.NoError(t, err)

	view, err := f.onboarding.PollBackgroundCheck(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictClear, view.Verdict)
	assert.Equal(t, models.ApplicationApproved, view.Application.Status)
	f.verifier.AssertNumberOfCalls(t, "GetStatus", 1)

	fresh := f.apply(t, "user-2")
	_, err = f.onboarding.PollBackgroundCheck(context.Background(), fresh.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestPollPendingChecks(t *testing.T) {
	f := newOnboardingFixture(t, UploadLimits{})
	ctx := context.Background()

	a1 := f.underCheck(t, "user-1", "chk_1")
	a2 := f.underCheck(t, "user-2", "chk_2")
	a3 := f.underCheck(t, "user-3", "chk_3")

	f.verifier.On("GetStatus", mock.Anything, "chk_1").Return(&models.CheckResult{CheckID: "chk_1", Status: models.VerificationCompleted, Verdict: models.VerdictClear}, nil)
	f.verifier.On("GetStatus", mock.Anything, "chk_2").Return(&models.CheckResult{CheckID: "chk_2", Status: models.VerificationInProgress}, nil)
	f.verifier.On("GetStatus", mock.Anything, "chk_3").Return(nil, errors.New("provider down"))

	decided, err := f.onboarding.PollPendingChecks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, decided)

	for id, want := range map[string]models.ApplicationStatus{
		a1.ID: models.ApplicationApproved,
		a2.ID: models.ApplicationBackgroundCheck,
		a3.ID: models.ApplicationBackgroundCheck,
	} {
		got, err := f.onboarding.GetApplication(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}
}

func TestSuspendApplication(t *testing.T) {
	f := newOnboardingFixture(t, UploadLimits{})
	ctx := context.Background()

	pending := f.apply(t, "user-2")
	_, err := f.onboarding.SuspendApplication(ctx, pending.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	app := f.underCheck(t, "user-1", "chk_1")
	f.verifier.On("GetStatus", mock.Anything, "chk_1").Return(&models.CheckResult{CheckID: "chk_1", Status: models.VerificationCompleted, Verdict: models.VerdictClear}, nil)
	_, err = f.onboarding.PollBackgroundCheck(ctx, app.ID)
	require.NoError(t, err)

	suspended, err := f.onboarding.SuspendApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationSuspended, suspended.Status)
	assert.Equal(t, 1, f.recorder.count(events.EventApplicationSuspended))

	list, err := f.onboarding.ListApplications(ctx, models.ApplicationSuspended, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, app.ID, list[0].ID)

	_, err = f.onboarding.ListApplications(ctx, "limbo", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
