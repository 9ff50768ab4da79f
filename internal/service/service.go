package service

import (
	"errors"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/metrics"
	"maidlink/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

func utcNow() time.Time { return time.Now().UTC() }

func newID() string { return uuid.NewString() }

func ptr[T any](v T) *T { return &v }

// publish never fails the calling operation: events are notifications, the ledger is the truth.
func publish(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, payload any) {
	if bus == nil {
		return
	}
	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

// collaborator wraps an adapter failure unless it already carries a domain meaning.
func collaborator(name string, err error) error {
	if err == nil {
		return nil
	}
	var ce *domain.CollaboratorError
	if errors.As(err, &ce) {
		metrics.IncCollaboratorError(ce.Collaborator)
		return err
	}
	metrics.IncCollaboratorError(name)
	return domain.Collaborator(name, err)
}

func notFoundAs(err, target error) error {
	if errors.Is(err, domain.ErrRecordNotFound) {
		return target
	}
	return err
}
