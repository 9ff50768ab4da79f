package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/events"
	"maidlink/internal/metrics"
	"maidlink/internal/models"

	"github.com/rs/zerolog"
)

type ApplyRequest struct {
	PersonalInfo models.PersonalInfo `json:"personal_info" validate:"required"`
	HourlyRate   int64               `json:"hourly_rate" validate:"gt=0,lte=100000"`
	ServiceAreas []string            `json:"service_areas" validate:"required,min=1,dive,required"`
	Specialties  []string            `json:"specialties" validate:"max=20,dive,max=100"`
}

type UploadRequest struct {
	DocumentType models.DocumentType
	FileName     string
	ContentType  string
	Data         []byte
}

// CheckView is the state of an application's background check as reported to operators.
type CheckView struct {
	Application         *models.CleanerApplication `json:"application"`
	CheckID             string                     `json:"check_id"`
	Status              models.VerificationStatus  `json:"status"`
	ProviderStatus      string                     `json:"provider_status,omitempty"`
	Verdict             models.Verdict             `json:"verdict,omitempty"`
	EstimatedCompletion *time.Time                 `json:"estimated_completion,omitempty"`
}

type UploadLimits struct {
	MaxBytes   int64
	RateLimit  int
	RateWindow time.Duration
}

type OnboardingService struct {
	ledger   domain.Ledger
	verifier domain.VerificationProvider
	files    domain.FileStore
	state    domain.StateRepository
	catalog  *models.Catalog
	events   domain.EventPublisher
	limits   UploadLimits
	logger   *zerolog.Logger
	now      func() time.Time
	newID    func() string
}

func NewOnboardingService(
	ledger domain.Ledger,
	verifier domain.VerificationProvider,
	files domain.FileStore,
	state domain.StateRepository,
	catalog *models.Catalog,
	bus domain.EventPublisher,
	limits UploadLimits,
	logger *zerolog.Logger,
) *OnboardingService {
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = models.MaxUploadBytes
	}
	if limits.RateLimit <= 0 {
		limits.RateLimit = models.UploadRateLimit
	}
	if limits.RateWindow <= 0 {
		limits.RateWindow = models.UploadRateWindow
	}
	return &OnboardingService{
		ledger:   ledger,
		verifier: verifier,
		files:    files,
		state:    state,
		catalog:  catalog,
		events:   bus,
		limits:   limits,
		logger:   logger,
		now:      utcNow,
		newID:    newID,
	}
}

// Apply opens the user's single application, waiting for documents.
func (s *OnboardingService) Apply(ctx context.Context, userID string, req ApplyRequest) (*models.CleanerApplication, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	areas := make([]string, 0, len(req.ServiceAreas))
	seen := make(map[string]bool, len(req.ServiceAreas))
	for _, a := range req.ServiceAreas {
		canonical, ok := s.catalog.Area(a)
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedServiceArea, a)
		}
		if !seen[canonical] {
			seen[canonical] = true
			areas = append(areas, canonical)
		}
	}

	status, _ := models.NextApplicationStatus(models.ApplicationPending, models.ApplicationEventOpen)
	now := s.now()
	app := &models.CleanerApplication{
		ID:           s.newID(),
		UserID:       userID,
		Status:       status,
		PersonalInfo: req.PersonalInfo,
		HourlyRate:   req.HourlyRate,
		ServiceAreas: areas,
		Specialties:  req.Specialties,
		Documents:    map[models.DocumentType]models.StoredDocument{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if app.Specialties == nil {
		app.Specialties = []string{}
	}

	if err := s.ledger.CreateApplication(ctx, app); err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			return nil, domain.ErrDuplicateApplication
		}
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	metrics.IncTransition("application", string(app.Status))
	s.logger.Info().Str("application_id", app.ID).Str("user_id", userID).Msg("Cleaner application created")
	s.publish(events.EventApplicationSubmitted, app, nil)
	return app, nil
}

// UploadDocument stores one identity document and advances the application once every
// required document is on file. Uploads may arrive in any order and concurrently.
func (s *OnboardingService) UploadDocument(ctx context.Context, applicationID, userID string, req UploadRequest) (*models.CleanerApplication, error) {
	if !req.DocumentType.Valid() {
		return nil, fmt.Errorf("%w: unknown document type %q", domain.ErrInvalidInput, req.DocumentType)
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrInvalidInput)
	}
	if int64(len(req.Data)) > s.limits.MaxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidInput, s.limits.MaxBytes)
	}

	app, err := s.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrApplicationNotFound)
	}
	if app.UserID != userID {
		return nil, domain.ErrApplicationNotFound
	}
	if app.Status != models.ApplicationDocumentsRequired && app.Status != models.ApplicationDocumentsSubmitted {
		return nil, fmt.Errorf("%w: application is %s", domain.ErrInvalidState, app.Status)
	}

	allowed, err := s.state.CheckRateLimit(ctx, "uploads:"+userID, s.limits.RateLimit, s.limits.RateWindow)
	if err != nil {
		return nil, collaborator("state_store", err)
	}
	if !allowed {
		return nil, domain.ErrRateLimited
	}

	stored, err := s.files.Store(ctx, models.DocumentUpload{
		ApplicationID: applicationID,
		DocumentType:  req.DocumentType,
		FileName:      filepath.Base(strings.TrimSpace(req.FileName)),
		ContentType:   req.ContentType,
		Data:          req.Data,
	})
	if err != nil {
		return nil, collaborator("file_storage", err)
	}

	app, err = s.ledger.PutApplicationDocument(ctx, applicationID, *stored)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrApplicationNotFound)
	}
	s.logger.Info().
		Str("application_id", applicationID).
		Str("document_type", string(req.DocumentType)).
		Int64("size", stored.Size).
		Msg("Application document stored")

	if app.Status != models.ApplicationDocumentsRequired || !app.HasRequiredDocuments() {
		return app, nil
	}

	next := models.ApplicationTarget(models.ApplicationEventDocumentsComplete)
	applied, err := s.ledger.UpdateApplicationIf(ctx, applicationID,
		models.ApplicationGuard{Statuses: models.ApplicationSources(models.ApplicationEventDocumentsComplete)},
		models.ApplicationPatch{Status: &next})
	if err != nil {
		return nil, fmt.Errorf("failed to advance application: %w", err)
	}
	app, err = s.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload application: %w", err)
	}
	if applied {
		metrics.IncTransition("application", string(next))
		s.logger.Info().Str("application_id", applicationID).Msg("All required documents submitted")
		s.publish(events.EventDocumentsSubmitted, app, nil)
	}
	return app, nil
}

// InitiateBackgroundCheck submits the applicant to the verification provider.
func (s *OnboardingService) InitiateBackgroundCheck(ctx context.Context, applicationID string) (*CheckView, error) {
	app, err := s.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrApplicationNotFound)
	}
	if _, ok := models.NextApplicationStatus(app.Status, models.ApplicationEventStartCheck); !ok {
		return nil, fmt.Errorf("%w: application is %s", domain.ErrInvalidState, app.Status)
	}

	started, err := s.verifier.Initiate(ctx, models.ApplicantFrom(app))
	if err != nil {
		return nil, collaborator("verification", err)
	}

	next := models.ApplicationTarget(models.ApplicationEventStartCheck)
	inProgress := models.VerificationInProgress
	applied, err := s.ledger.UpdateApplicationIf(ctx, applicationID,
		models.ApplicationGuard{Statuses: models.ApplicationSources(models.ApplicationEventStartCheck)},
		models.ApplicationPatch{
			Status:                &next,
			BackgroundCheckID:     ptr(started.CheckID),
			BackgroundCheckStatus: &inProgress,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to record background check: %w", notFoundAs(err, domain.ErrApplicationNotFound))
	}
	if !applied {
		s.logger.Warn().Str("application_id", applicationID).Str("check_id", started.CheckID).
			Msg("Application moved on while starting a check, provider check left orphaned")
		return nil, fmt.Errorf("%w: application is no longer awaiting a check", domain.ErrInvalidState)
	}

	metrics.IncTransition("application", string(next))
	app, err = s.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload application: %w", err)
	}
	s.logger.Info().Str("application_id", applicationID).Str("check_id", started.CheckID).Msg("Background check started")
	s.publish(events.EventCheckStarted, app, nil)

	return &CheckView{
		Application:         app,
		CheckID:             started.CheckID,
		Status:              inProgress,
		EstimatedCompletion: started.EstimatedCompletion,
	}, nil
}

// PollBackgroundCheck refreshes a running check. Decided applications answer from the ledger.
func (s *OnboardingService) PollBackgroundCheck(ctx context.Context, applicationID string) (*CheckView, error) {
	app, err := s.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrApplicationNotFound)
	}

	switch app.Status {
	case models.ApplicationApproved, models.ApplicationRejected, models.ApplicationSuspended:
		return storedView(app), nil
	case models.ApplicationBackgroundCheck:
	default:
		return nil, fmt.Errorf("%w: no background check for an application in %s", domain.ErrInvalidState, app.Status)
	}
	if app.BackgroundCheckID == "" {
		return nil, fmt.Errorf("%w: application has no check id", domain.ErrInvalidState)
	}

	res, err := s.verifier.GetStatus(ctx, app.BackgroundCheckID)
	if err != nil {
		return nil, collaborator("verification", err)
	}
	metrics.IncBackgroundCheck(string(res.Status))

	view := &CheckView{
		Application:         app,
		CheckID:             app.BackgroundCheckID,
		Status:              res.Status,
		ProviderStatus:      res.ProviderStatus,
		Verdict:             res.Verdict,
		EstimatedCompletion: res.EstimatedCompletion,
	}

	switch res.Status {
	case models.VerificationCompleted:
		return s.decide(ctx, app, res, view)
	case models.VerificationFailed:
		return s.recordFailure(ctx, app, res, view)
	default:
		return view, nil
	}
}

func (s *OnboardingService) decide(ctx context.Context, app *models.CleanerApplication, res *models.CheckResult, view *CheckView) (*CheckView, error) {
	ev, eventType := models.ApplicationEventCheckConsider, events.EventApplicationRejected
	if res.Verdict == models.VerdictClear {
		ev, eventType = models.ApplicationEventCheckClear, events.EventApplicationApproved
	}
	next := models.ApplicationTarget(ev)
	completed := models.VerificationCompleted
	verdict := res.Verdict

	applied, err := s.ledger.UpdateApplicationIf(ctx, app.ID,
		models.ApplicationGuard{Statuses: models.ApplicationSources(ev)},
		models.ApplicationPatch{
			Status:                 &next,
			BackgroundCheckStatus:  &completed,
			BackgroundCheckVerdict: &verdict,
			BackgroundCheckResults: res.Results,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to record check outcome: %w", err)
	}

	updated, err := s.ledger.GetApplication(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload application: %w", err)
	}
	if !applied {
		return storedView(updated), nil
	}

	metrics.IncTransition("application", string(next))
	s.logger.Info().Str("application_id", app.ID).Str("verdict", string(verdict)).Msg("Background check decided")
	s.publish(eventType, updated, res)
	view.Application = updated
	return view, nil
}

// recordFailure keeps the application in background_check for an operator to handle.
func (s *OnboardingService) recordFailure(ctx context.Context, app *models.CleanerApplication, res *models.CheckResult, view *CheckView) (*CheckView, error) {
	if app.BackgroundCheckStatus == models.VerificationFailed {
		return view, nil
	}
	failed := models.VerificationFailed
	applied, err := s.ledger.UpdateApplicationIf(ctx, app.ID,
		models.ApplicationGuard{Statuses: []models.ApplicationStatus{models.ApplicationBackgroundCheck}},
		models.ApplicationPatch{BackgroundCheckStatus: &failed, BackgroundCheckResults: res.Results})
	if err != nil {
		return nil, fmt.Errorf("failed to record check failure: %w", err)
	}
	updated, err := s.ledger.GetApplication(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload application: %w", err)
	}
	view.Application = updated
	if applied {
		s.logger.Warn().Str("application_id", app.ID).Str("provider_status", res.ProviderStatus).Msg("Background check failed, operator attention needed")
		s.publish(events.EventCheckNeedsAttention, updated, res)
	}
	return view, nil
}

// PollPendingChecks polls every application waiting on its check. Checks already marked
// failed are left for operators. It returns the number of applications decided.
func (s *OnboardingService) PollPendingChecks(ctx context.Context) (int, error) {
	pending, err := s.ledger.ListApplications(ctx, models.ApplicationBackgroundCheck, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list applications under check: %w", err)
	}

	decided := 0
	for _, app := range pending {
		if ctx.Err() != nil {
			return decided, ctx.Err()
		}
		if app.BackgroundCheckStatus == models.VerificationFailed {
			continue
		}
		view, err := s.PollBackgroundCheck(ctx, app.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("application_id", app.ID).Msg("Background check poll failed")
			continue
		}
		if view.Status == models.VerificationCompleted {
			decided++
		}
	}
	return decided, nil
}

func (s *OnboardingService) SuspendApplication(ctx context.Context, applicationID string) (*models.CleanerApplication, error) {
	app, err := s.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrApplicationNotFound)
	}
	next := models.ApplicationTarget(models.ApplicationEventSuspend)
	applied, err := s.ledger.UpdateApplicationIf(ctx, applicationID,
		models.ApplicationGuard{Statuses: models.ApplicationSources(models.ApplicationEventSuspend)},
		models.ApplicationPatch{Status: &next})
	if err != nil {
		return nil, fmt.Errorf("failed to suspend application: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: application is %s", domain.ErrInvalidState, app.Status)
	}

	metrics.IncTransition("application", string(next))
	app, err = s.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload application: %w", err)
	}
	s.logger.Info().Str("application_id", applicationID).Msg("Application suspended")
	s.publish(events.EventApplicationSuspended, app, nil)
	return app, nil
}

func (s *OnboardingService) GetApplication(ctx context.Context, applicationID string) (*models.CleanerApplication, error) {
	app, err := s.ledger.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrApplicationNotFound)
	}
	return app, nil
}

func (s *OnboardingService) GetMyApplication(ctx context.Context, userID string) (*models.CleanerApplication, error) {
	app, err := s.ledger.GetApplicationByUser(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrApplicationNotFound)
	}
	return app, nil
}

func (s *OnboardingService) ListApplications(ctx context.Context, status models.ApplicationStatus, limit int) ([]*models.CleanerApplication, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown application status %q", domain.ErrInvalidInput, status)
	}
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	apps, err := s.ledger.ListApplications(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []*models.CleanerApplication{}
	}
	return apps, nil
}

func storedView(app *models.CleanerApplication) *CheckView {
	return &CheckView{
		Application: app,
		CheckID:     app.BackgroundCheckID,
		Status:      app.BackgroundCheckStatus,
		Verdict:     app.BackgroundCheckVerdict,
	}
}

func (s *OnboardingService) publish(eventType string, app *models.CleanerApplication, res *models.CheckResult) {
	payload := events.ApplicationEventPayload{
		ApplicationID: app.ID,
		UserID:        app.UserID,
		ApplicantName: strings.TrimSpace(app.PersonalInfo.FirstName + " " + app.PersonalInfo.LastName),
		Status:        string(app.Status),
		CheckID:       app.BackgroundCheckID,
		CheckStatus:   string(app.BackgroundCheckStatus),
		Verdict:       string(app.BackgroundCheckVerdict),
	}
	if res != nil {
		payload.ProviderStatus = res.ProviderStatus
	}
	publish(s.events, s.logger, eventType, payload)
}
