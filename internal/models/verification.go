package models

import "time"

type VerificationStatus string

const (
	VerificationInProgress VerificationStatus = "in_progress"
	VerificationCompleted  VerificationStatus = "completed"
	VerificationFailed     VerificationStatus = "failed"
)

type Verdict string

const (
	VerdictClear    Verdict = "clear"
	VerdictConsider Verdict = "consider"
)

// Applicant is the subset of an application a verification provider sees.
type Applicant struct {
	ApplicationID string
	FirstName     string
	LastName      string
	Email         string
	Phone         string
	SSN           string
	DateOfBirth   string
	Address       string
	City          string
	State         string
	ZipCode       string
}

func ApplicantFrom(app *CleanerApplication) Applicant {
	p := app.PersonalInfo
	return Applicant{
		ApplicationID: app.ID,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Email:         p.Email,
		Phone:         p.Phone,
		SSN:           p.SSN,
		DateOfBirth:   p.DateOfBirth,
		Address:       p.Address,
		City:          p.City,
		State:         p.State,
		ZipCode:       p.ZipCode,
	}
}

type CheckInitiation struct {
	CheckID             string     `json:"check_id"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// CheckResult is a provider observation translated into our vocabulary.
type CheckResult struct {
	CheckID             string             `json:"check_id"`
	ProviderStatus      string             `json:"provider_status"`
	Status              VerificationStatus `json:"status"`
	Verdict             Verdict            `json:"verdict,omitempty"`
	Results             map[string]any     `json:"results,omitempty"`
	EstimatedCompletion *time.Time         `json:"estimated_completion,omitempty"`
}

// CheckRecord is the simulated provider's own bookkeeping for one check.
type CheckRecord struct {
	CheckID       string    `json:"check_id"`
	ApplicationID string    `json:"application_id"`
	State         string    `json:"state"`
	Clear         bool      `json:"clear"`
	CreatedAt     time.Time `json:"created_at"`
	CompletesAt   time.Time `json:"completes_at"`
}
