// Package users serves profile reads and updates and a user's library of
// purchases and subscriptions.
package users

import (
	"context"
	"errors"
	"io"
	"strings"

	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/media"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

type Service struct {
	users repository.UserRepository
	posts repository.PostRepository
	subs  repository.SubscriptionRepository
	media media.Storage
}

func NewService(users repository.UserRepository, posts repository.PostRepository, subs repository.SubscriptionRepository, storage media.Storage) *Service {
	return &Service{users: users, posts: posts, subs: subs, media: storage}
}

func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	return u, nil
}

func (s *Service) Update(ctx context.Context, id string, update models.UserUpdate) (*models.User, error) {
	for _, v := range []*string{update.Name, update.UserName, update.Bio} {
		if v != nil {
			*v = strings.TrimSpace(*v)
		}
	}
	u, err := s.users.Update(ctx, id, update)
	if err != nil {
		return nil, notFound(err, id)
	}
	return u, nil
}

// UploadAvatar stores the image and points the profile at it.
func (s *Service) UploadAvatar(ctx context.Context, id string, image io.Reader) (*models.User, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	url, err := s.media.Save(ctx, "avatars/"+id, image)
	if err != nil {
		return nil, uploadError(err)
	}
	if err := s.users.SetAvatar(ctx, id, url); err != nil {
		return nil, notFound(err, id)
	}
	return s.Get(ctx, id)
}

// Deactivate soft-deletes the account; the user can no longer log in.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.users.Deactivate(ctx, id); err != nil {
		return notFound(err, id)
	}
	return nil
}

func (s *Service) Purchases(ctx context.Context, id string) ([]models.Post, error) {
	posts, err := s.posts.Purchases(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("Failed to list purchases", err)
	}
	return posts, nil
}

func (s *Service) Subscriptions(ctx context.Context, id string) ([]models.Subscription, error) {
	subs, err := s.subs.ListForUser(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("Failed to list subscriptions", err)
	}
	return subs, nil
}

func (s *Service) CheckPurchased(ctx context.Context, userID, albumID string) (bool, error) {
	ok, err := s.posts.CheckUserPurchased(ctx, userID, albumID)
	if err != nil {
		return false, apperrors.Internal("Failed to check purchase", err)
	}
	return ok, nil
}

func (s *Service) RegisterDevice(ctx context.Context, userID, token, platform string) error {
	err := s.users.AddDeviceToken(ctx, userID, models.DeviceToken{Token: token, Platform: platform})
	if err != nil {
		return notFound(err, userID)
	}
	return nil
}

func notFound(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("user", id)
	}
	return apperrors.Internal("User lookup failed", err)
}

func uploadError(err error) error {
	if errors.Is(err, media.ErrUnsupportedType) {
		return apperrors.BadRequest("Only JPEG, PNG, GIF or WebP images are accepted")
	}
	return apperrors.Internal("Failed to store image", err)
}
