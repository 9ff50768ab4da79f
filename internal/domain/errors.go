package domain

import (
	"errors"
	"fmt"
)

// Store-level errors. Ledger implementations return these, services translate them.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidServiceKind     = errors.New("invalid service kind")
	ErrUnsupportedServiceArea = errors.New("unsupported service area")
	ErrCleanerNotFound        = errors.New("cleaner not found")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrTransactionNotFound    = errors.New("payment transaction not found")
	ErrApplicationNotFound    = errors.New("application not found")
	ErrInvalidState           = errors.New("invalid state for this operation")
	ErrAlreadyPaid            = errors.New("booking already paid")
	ErrDuplicateApplication   = errors.New("application already exists for user")
	ErrDuplicateRating        = errors.New("booking already rated")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrCollaborator           = errors.New("upstream service unavailable")
	ErrRateLimited            = errors.New("rate limit exceeded")
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindIntegrity    Kind = "integrity"
	KindCollaborator Kind = "collaborator"
	KindRateLimited  Kind = "rate_limited"
	KindInternal     Kind = "internal"
)

// KindOf classifies err for callers that map errors onto a transport.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidServiceKind),
		errors.Is(err, ErrUnsupportedServiceArea):
		return KindValidation
	case errors.Is(err, ErrCleanerNotFound),
		errors.Is(err, ErrBookingNotFound),
		errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrApplicationNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrAlreadyPaid),
		errors.Is(err, ErrDuplicateApplication),
		errors.Is(err, ErrDuplicateRating):
		return KindConflict
	case errors.Is(err, ErrInvalidSignature):
		return KindIntegrity
	case errors.Is(err, ErrCollaborator):
		return KindCollaborator
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}

// CollaboratorError marks a failure of an external system. It unwraps to both ErrCollaborator and the cause.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	return []error{ErrCollaborator, e.Err}
}

func Collaborator(name string, err error) error {
	if err == nil {
		return nil
	}
	return &CollaboratorError{Collaborator: name, Err: err}
}
