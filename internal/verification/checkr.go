package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"maidlink/internal/config"
	"maidlink/internal/models"

	"github.com/rs/zerolog"
)

// Checkr talks to the Checkr REST API: a candidate is created first,
// then a report against the configured package.
type Checkr struct {
	client  *http.Client
	baseURL string
	apiKey  string
	pkg     string
	logger  *zerolog.Logger
}

func NewCheckr(cfg config.CheckrConfig, logger *zerolog.Logger) *Checkr {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Checkr{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		pkg:     cfg.Package,
		logger:  logger,
	}
}

type checkrCandidate struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Zipcode   string `json:"zipcode"`
	DOB       string `json:"dob"`
	SSN       string `json:"ssn"`
}

type checkrReport struct {
	ID                      string           `json:"id"`
	Status                  string           `json:"status"`
	Adjudication            string           `json:"adjudication,omitempty"`
	ReportURL               string           `json:"report_url,omitempty"`
	CompletedAt             string           `json:"completed_at,omitempty"`
	EstimatedCompletionTime *time.Time       `json:"estimated_completion_time,omitempty"`
	Searches                []map[string]any `json:"searches,omitempty"`
}

func (c *Checkr) Initiate(ctx context.Context, applicant models.Applicant) (*models.CheckInitiation, error) {
	var candidate checkrCandidate
	err := c.do(ctx, http.MethodPost, "/candidates", checkrCandidate{
		FirstName: applicant.FirstName,
		LastName:  applicant.LastName,
		Email:     applicant.Email,
		Phone:     applicant.Phone,
		Zipcode:   applicant.ZipCode,
		DOB:       applicant.DateOfBirth,
		SSN:       applicant.SSN,
	}, &candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to create candidate: %w", err)
	}
	if candidate.ID == "" {
		return nil, fmt.Errorf("checkr returned candidate without id")
	}

	var report checkrReport
	err = c.do(ctx, http.MethodPost, "/reports", map[string]any{
		"candidate_id": candidate.ID,
		"package":      c.pkg,
		"tags":         []string{"application_" + applicant.ApplicationID},
	}, &report)
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	c.logger.Info().
		Str("check_id", report.ID).
		Str("application_id", applicant.ApplicationID).
		Msg("Checkr report created")

	return &models.CheckInitiation{CheckID: report.ID, EstimatedCompletion: report.EstimatedCompletionTime}, nil
}

func (c *Checkr) GetStatus(ctx context.Context, checkID string) (*models.CheckResult, error) {
	var report checkrReport
	if err := c.do(ctx, http.MethodGet, "/reports/"+checkID, nil, &report); err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	res := result(checkID, report.Status, nil)
	res.EstimatedCompletion = report.EstimatedCompletionTime
	if res.Status == models.VerificationCompleted {
		res.Results = map[string]any{
			"overall_status": report.Status,
			"adjudication":   report.Adjudication,
			"report_url":     report.ReportURL,
			"completed_at":   report.CompletedAt,
			"searches":       report.Searches,
		}
	}
	return res, nil
}

func (c *Checkr) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("checkr api error: %d %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
