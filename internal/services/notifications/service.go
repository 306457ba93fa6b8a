// Package notifications stores user notifications and pushes them to
// connected clients and registered devices.
package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/push"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

// Publisher fans a payload out to a user's live connections.
type Publisher interface {
	Publish(userID string, v interface{}) (int, error)
}

type Service struct {
	notes   repository.NotificationRepository
	users   repository.UserRepository
	hub     Publisher
	devices push.DeviceSender
	logger  *logging.Logger
}

func NewService(notes repository.NotificationRepository, users repository.UserRepository, hub Publisher, devices push.DeviceSender, logger *logging.Logger) *Service {
	return &Service{notes: notes, users: users, hub: hub, devices: devices, logger: logger}
}

// Event is the websocket payload.
type Event struct {
	Type         string              `json:"type"`
	Notification models.Notification `json:"notification"`
}

// Prepare fills in the id and creation time so the stored and pushed copies
// of a notification agree.
func Prepare(n models.Notification) models.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return n
}

// Notify stores n for userID and pushes it.
func (s *Service) Notify(ctx context.Context, userID string, n models.Notification) error {
	n = Prepare(n)
	if err := s.notes.Create(ctx, userID, n); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("user", userID)
		}
		return apperrors.Internal("Failed to store notification", err)
	}
	s.Push(ctx, userID, n)
	return nil
}

// Push delivers an already stored notification. Delivery failures are logged
// and never fail the caller.
func (s *Service) Push(ctx context.Context, userID string, n models.Notification) {
	log := s.logger.WithContext(ctx).WithField("recipient", userID)

	if s.hub != nil {
		if _, err := s.hub.Publish(userID, Event{Type: "notification", Notification: n}); err != nil {
			log.WithError(err).Warn("websocket publish failed")
		}
	}

	if s.devices == nil {
		return
	}
	tokens, err := s.users.DeviceTokens(ctx, userID)
	if err != nil {
		log.WithError(err).Warn("load device tokens failed")
		return
	}
	for _, token := range tokens {
		if err := s.devices.SendToDevice(ctx, token, n); err != nil {
			log.WithError(err).WithField("platform", token.Platform).Warn("device push failed")
		}
	}
}

func (s *Service) List(ctx context.Context, userID string) ([]models.Notification, error) {
	notes, err := s.notes.List(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list notifications", err)
	}
	return notes, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	n, err := s.notes.UnreadCount(ctx, userID)
	if err != nil {
		return 0, apperrors.Internal("Failed to count notifications", err)
	}
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.mapErr(s.notes.MarkRead(ctx, userID, id), id)
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.mapErr(s.notes.Delete(ctx, userID, id), id)
}

func (s *Service) mapErr(err error, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("notification", id)
	default:
		return apperrors.Internal("Failed to update notification", err)
	}
}
