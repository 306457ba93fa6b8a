// Package sellers serves seller profiles, their plans, identity documents
// and subscribers.
package sellers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/media"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/payments"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

type Service struct {
	sellers   repository.SellerRepository
	posts     repository.PostRepository
	subs      repository.SubscriptionRepository
	processor payments.Processor
	media     media.Storage
}

func NewService(sellers repository.SellerRepository, posts repository.PostRepository, subs repository.SubscriptionRepository, processor payments.Processor, storage media.Storage) *Service {
	return &Service{sellers: sellers, posts: posts, subs: subs, processor: processor, media: storage}
}

func (s *Service) Get(ctx context.Context, id string) (*models.Seller, error) {
	seller, err := s.sellers.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "seller", id)
	}
	return seller, nil
}

func (s *Service) Albums(ctx context.Context, id string, offset, limit int) ([]models.Post, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	posts, err := s.posts.List(ctx, models.PostFilter{SellerID: id, Offset: offset, Limit: limit})
	if err != nil {
		return nil, apperrors.Internal("Failed to list albums", err)
	}
	return posts, nil
}

func (s *Service) Plans(ctx context.Context, id string) ([]models.Plan, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	plans, err := s.sellers.Plans(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("Failed to list plans", err)
	}
	return plans, nil
}

// AddPlan registers a recurring price with the processor and attaches the
// plan to the seller.
func (s *Service) AddPlan(ctx context.Context, id string, plan models.Plan) (*models.Plan, error) {
	if plan.Period != models.PeriodMonth && plan.Period != models.PeriodYear {
		return nil, apperrors.Unprocessable("Plan period must be month or year").WithDetails("period", plan.Period)
	}
	if plan.Price <= 0 {
		return nil, apperrors.Unprocessable("Plan price must be positive")
	}
	seller, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	priceID, err := s.processor.CreatePrice(ctx, payments.PriceRequest{
		ProductName: fmt.Sprintf("%s - %s", seller.Name, plan.Name),
		Amount:      plan.Price,
		Interval:    plan.Period,
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to create plan price", err)
	}
	plan.ID = uuid.NewString()
	plan.PriceID = priceID

	if err := s.sellers.AddPlan(ctx, id, plan); err != nil {
		return nil, notFound(err, "seller", id)
	}
	return &plan, nil
}

// UploadIdentity stores both sides of the identity card for admin review.
func (s *Service) UploadIdentity(ctx context.Context, id string, front, back io.Reader) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	frontURL, err := s.save(ctx, id, front)
	if err != nil {
		return err
	}
	backURL, err := s.save(ctx, id, back)
	if err != nil {
		return err
	}
	if err := s.sellers.SetIdentityDocuments(ctx, id, frontURL, backURL); err != nil {
		return notFound(err, "seller", id)
	}
	return nil
}

func (s *Service) save(ctx context.Context, id string, r io.Reader) (string, error) {
	url, err := s.media.Save(ctx, "identity/"+id, r)
	if errors.Is(err, media.ErrUnsupportedType) {
		return "", apperrors.BadRequest("Only JPEG, PNG, GIF or WebP images are accepted")
	}
	if err != nil {
		return "", apperrors.Internal("Failed to store identity document", err)
	}
	return url, nil
}

func (s *Service) Subscribers(ctx context.Context, id string) ([]models.Subscription, error) {
	subs, err := s.subs.ListForSeller(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("Failed to list subscribers", err)
	}
	return subs, nil
}

// Unsubscribe removes the caller's subscription to the seller.
func (s *Service) Unsubscribe(ctx context.Context, userID, sellerID string) error {
	if err := s.subs.Delete(ctx, userID, sellerID); err != nil {
		return notFound(err, "subscription", sellerID)
	}
	return nil
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, id)
	}
	return apperrors.Internal("Failed to load "+resource, err)
}
