// Package admin implements moderation and the dashboard.
package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
	"github.com/Mouaddiguoug/feetflight/internal/mailer"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

type Notifier interface {
	Notify(ctx context.Context, userID string, n models.Notification) error
}

type Mailer interface {
	Send(ctx context.Context, name, to string, data map[string]interface{}) error
}

type Service struct {
	admin      repository.AdminRepository
	sellers    repository.SellerRepository
	users      repository.UserRepository
	categories repository.CategoryRepository
	notifier   Notifier
	mail       Mailer
	logger     *logging.Logger
}

func NewService(stores *repository.Stores, notifier Notifier, mail Mailer, logger *logging.Logger) *Service {
	return &Service{
		admin:      stores.Admin,
		sellers:    stores.Sellers,
		users:      stores.Users,
		categories: stores.Categories,
		notifier:   notifier,
		mail:       mail,
		logger:     logger,
	}
}

func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	stats, err := s.admin.Stats(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to compute stats", err)
	}
	if stats.Categories, err = s.categories.Count(ctx); err != nil {
		return nil, apperrors.Internal("Failed to count categories", err)
	}
	return stats, nil
}

// PendingSellers lists sellers waiting for identity verification.
func (s *Service) PendingSellers(ctx context.Context, offset, limit int) ([]models.Seller, error) {
	unverified := false
	sellers, err := s.sellers.List(ctx, &unverified, offset, limit)
	if err != nil {
		return nil, apperrors.Internal("Failed to list sellers", err)
	}
	return sellers, nil
}

// VerifySeller approves a seller and tells them by notification and e-mail.
func (s *Service) VerifySeller(ctx context.Context, sellerID string) (*models.Seller, error) {
	seller, err := s.sellers.FindByID(ctx, sellerID)
	if err != nil {
		return nil, notFound(err, "seller", sellerID)
	}
	if seller.Verified {
		return seller, nil
	}
	if seller.IdentityCardFront == "" || seller.IdentityCardBack == "" {
		return nil, apperrors.Unprocessable("Seller has not uploaded identity documents")
	}
	if err := s.sellers.Verify(ctx, sellerID); err != nil {
		return nil, notFound(err, "seller", sellerID)
	}
	seller.Verified = true

	log := s.logger.WithContext(ctx).WithField("seller_id", sellerID)
	if err := s.notifier.Notify(ctx, seller.UserID, models.Notification{
		Title: "Account verified",
		Body:  "Your seller account has been verified.",
	}); err != nil {
		log.WithError(err).Warn("verification notification failed")
	}
	if err := s.mail.Send(ctx, mailer.SellerVerified, seller.Email, map[string]interface{}{"Name": seller.Name}); err != nil {
		log.WithError(err).Warn("verification mail failed")
	}
	return seller, nil
}

func (s *Service) DeactivateUser(ctx context.Context, userID string) error {
	if err := s.users.Deactivate(ctx, userID); err != nil {
		return notFound(err, "user", userID)
	}
	s.logger.LogSecurityEvent(ctx, "user_deactivated", map[string]interface{}{"target_user": userID})
	return nil
}

func (s *Service) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Unprocessable("Category name is required")
	}
	slug := models.CategorySlug(name)
	taken, err := s.categories.SlugTaken(ctx, slug)
	if err != nil {
		return nil, apperrors.Internal("Failed to look up category", err)
	}
	if taken {
		return nil, apperrors.Conflict("Category already exists")
	}
	c := &models.Category{ID: uuid.NewString(), Name: name, Slug: slug}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, apperrors.Internal("Failed to create category", err)
	}
	return c, nil
}

// DeleteCategory removes a category; its albums stay listed without one.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.categories.Delete(ctx, id); err != nil {
		return notFound(err, "category", id)
	}
	return nil
}

// UserGraph returns the user's neighbourhood in the graph for the explorer.
func (s *Service) UserGraph(ctx context.Context, userID string) (*graphdb.GraphResult, error) {
	g, err := s.admin.UserGraph(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user", userID)
	}
	return g, nil
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, id)
	}
	return apperrors.Internal("Failed to load "+resource, err)
}
