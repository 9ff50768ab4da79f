package models

import (
	"strings"
	"time"
)

type ApplicationStatus string

const (
	ApplicationPending            ApplicationStatus = "pending"
	ApplicationDocumentsRequired  ApplicationStatus = "documents_required"
	ApplicationDocumentsSubmitted ApplicationStatus = "documents_submitted"
	ApplicationBackgroundCheck    ApplicationStatus = "background_check"
	ApplicationApproved           ApplicationStatus = "approved"
	ApplicationRejected           ApplicationStatus = "rejected"
	ApplicationSuspended          ApplicationStatus = "suspended"
)

func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationPending, ApplicationDocumentsRequired, ApplicationDocumentsSubmitted,
		ApplicationBackgroundCheck, ApplicationApproved, ApplicationRejected, ApplicationSuspended:
		return true
	}
	return false
}

type DocumentType string

const (
	DocumentIDFront    DocumentType = "id_front"
	DocumentIDBack     DocumentType = "id_back"
	DocumentSSNCard    DocumentType = "ssn_card"
	DocumentWorkPermit DocumentType = "work_permit"
	DocumentResume     DocumentType = "resume"
)

// RequiredDocuments must all be on file before a background check can start.
var RequiredDocuments = []DocumentType{DocumentIDFront, DocumentIDBack, DocumentSSNCard}

func (d DocumentType) Valid() bool {
	switch d {
	case DocumentIDFront, DocumentIDBack, DocumentSSNCard, DocumentWorkPermit, DocumentResume:
		return true
	}
	return false
}

type PersonalInfo struct {
	FirstName             string `json:"first_name" bson:"first_name" validate:"required,max=100"`
	LastName              string `json:"last_name" bson:"last_name" validate:"required,max=100"`
	Email                 string `json:"email" bson:"email" validate:"required,email"`
	Phone                 string `json:"phone" bson:"phone" validate:"required,min=7,max=20"`
	SSN                   string `json:"ssn" bson:"ssn" validate:"required,len=9,numeric"`
	DateOfBirth           string `json:"date_of_birth" bson:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Address               string `json:"address" bson:"address" validate:"required"`
	City                  string `json:"city" bson:"city" validate:"required"`
	State                 string `json:"state" bson:"state" validate:"required,len=2"`
	ZipCode               string `json:"zip_code" bson:"zip_code" validate:"required,numeric,len=5"`
	EmergencyContactName  string `json:"emergency_contact_name" bson:"emergency_contact_name" validate:"required"`
	EmergencyContactPhone string `json:"emergency_contact_phone" bson:"emergency_contact_phone" validate:"required"`
	HasVehicle            bool   `json:"has_vehicle" bson:"has_vehicle"`
	HasCleaningExperience bool   `json:"has_cleaning_experience" bson:"has_cleaning_experience"`
	YearsExperience       int    `json:"years_experience" bson:"years_experience" validate:"gte=0,lte=60"`
}

type StoredDocument struct {
	FileID       string       `json:"file_id" bson:"file_id"`
	DocumentType DocumentType `json:"document_type" bson:"document_type"`
	OriginalName string       `json:"original_name" bson:"original_name"`
	StoredName   string       `json:"stored_name" bson:"stored_name"`
	Location     string       `json:"location" bson:"location"`
	Size         int64        `json:"size" bson:"size"`
	ContentType  string       `json:"content_type,omitempty" bson:"content_type,omitempty"`
	UploadedAt   time.Time    `json:"uploaded_at" bson:"uploaded_at"`
}

// DocumentUpload describes a file handed to a FileStore.
type DocumentUpload struct {
	ApplicationID string
	DocumentType  DocumentType
	FileName      string
	ContentType   string
	Data          []byte
}

type CleanerApplication struct {
	ID                     string                          `json:"id" bson:"_id"`
	UserID                 string                          `json:"user_id" bson:"user_id"`
	Status                 ApplicationStatus               `json:"status" bson:"status"`
	PersonalInfo           PersonalInfo                    `json:"personal_info" bson:"personal_info"`
	HourlyRate             int64                           `json:"hourly_rate" bson:"hourly_rate"`
	ServiceAreas           []string                        `json:"service_areas" bson:"service_areas"`
	Specialties            []string                        `json:"specialties" bson:"specialties"`
	Documents              map[DocumentType]StoredDocument `json:"documents" bson:"documents"`
	BackgroundCheckID      string                          `json:"background_check_id,omitempty" bson:"background_check_id,omitempty"`
	BackgroundCheckStatus  VerificationStatus              `json:"background_check_status,omitempty" bson:"background_check_status,omitempty"`
	BackgroundCheckVerdict Verdict                         `json:"background_check_verdict,omitempty" bson:"background_check_verdict,omitempty"`
	BackgroundCheckResults map[string]any                  `json:"background_check_results,omitempty" bson:"background_check_results,omitempty"`
	CreatedAt              time.Time                       `json:"created_at" bson:"created_at"`
	UpdatedAt              time.Time                       `json:"updated_at" bson:"updated_at"`
}

// HasRequiredDocuments reports whether every document in RequiredDocuments is on file.
func (a *CleanerApplication) HasRequiredDocuments() bool {
	for _, dt := range RequiredDocuments {
		if _, ok := a.Documents[dt]; !ok {
			return false
		}
	}
	return true
}

// Redacted returns a copy safe to hand back to clients: the SSN is masked to its last four digits.
func (a *CleanerApplication) Redacted() *CleanerApplication {
	cp := *a
	ssn := cp.PersonalInfo.SSN
	if len(ssn) > 4 {
		cp.PersonalInfo.SSN = strings.Repeat("*", len(ssn)-4) + ssn[len(ssn)-4:]
	}
	return &cp
}

type ApplicationGuard struct {
	Statuses []ApplicationStatus
}

type ApplicationPatch struct {
	Status                 *ApplicationStatus
	BackgroundCheckID      *string
	BackgroundCheckStatus  *VerificationStatus
	BackgroundCheckVerdict *Verdict
	BackgroundCheckResults map[string]any
}
