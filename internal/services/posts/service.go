// Package posts implements albums: creation, listing, views, likes and
// access to the pictures behind the paywall.
package posts

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

// MaxPicturesPerUpload bounds one AddPictures call.
const MaxPicturesPerUpload = 20

type Service struct {
	posts      repository.PostRepository
	sellers    repository.SellerRepository
	subs       repository.SubscriptionRepository
	categories repository.CategoryRepository
	media      media.Storage
}

func NewService(
	posts repository.PostRepository,
	sellers repository.SellerRepository,
	subs repository.SubscriptionRepository,
	categories repository.CategoryRepository,
	storage media.Storage,
) *Service {
	return &Service{posts: posts, sellers: sellers, subs: subs, categories: categories, media: storage}
}

type CreateInput struct {
	Title       string
	Description string
	Price       int64
	CategoryID  string
}

// Create publishes an album for sellerID with zeroed counters.
func (s *Service) Create(ctx context.Context, sellerID string, in CreateInput) (*models.Post, error) {
	if in.Price < 0 {
		return nil, apperrors.Unprocessable("Price cannot be negative")
	}
	if in.CategoryID != "" {
		if _, err := s.categories.FindByID(ctx, in.CategoryID); err != nil {
			return nil, notFound(err, "category", in.CategoryID)
		}
	}

	post, err := s.posts.Create(ctx, sellerID, &models.Post{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
	}, in.CategoryID)
	if err != nil {
		return nil, notFound(err, "seller", sellerID)
	}
	return post, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "album", id)
	}
	return post, nil
}

func (s *Service) List(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	posts, err := s.posts.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal("Failed to list albums", err)
	}
	return posts, nil
}

// View counts one view and returns the new total.
func (s *Service) View(ctx context.Context, id string) (int64, error) {
	views, err := s.posts.IncrementViews(ctx, id)
	if err != nil {
		return 0, notFound(err, "album", id)
	}
	return views, nil
}

// Like toggles the caller's like.
func (s *Service) Like(ctx context.Context, userID, id string) (*models.LikeResult, error) {
	res, err := s.posts.Like(ctx, userID, id)
	if err != nil {
		return nil, notFound(err, "album", id)
	}
	return res, nil
}

// AddPictures stores the images and appends them to the album. Only the
// owning seller may add pictures.
func (s *Service) AddPictures(ctx context.Context, actor models.Actor, id string, images []io.Reader) ([]models.Picture, error) {
	if len(images) == 0 {
		return nil, apperrors.BadRequest("No pictures uploaded")
	}
	if len(images) > MaxPicturesPerUpload {
		return nil, apperrors.Unprocessable("Too many pictures in one upload").WithDetails("max", MaxPicturesPerUpload)
	}
	post, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	pictures := make([]models.Picture, 0, len(images))
	for _, img := range images {
		url, err := s.media.Save(ctx, "albums/"+post.ID, img)
		if err != nil {
			if errors.Is(err, media.ErrUnsupportedType) {
				return nil, apperrors.BadRequest("Only JPEG, PNG, GIF or WebP images are accepted")
			}
			return nil, apperrors.Internal("Failed to store picture", err)
		}
		pictures = append(pictures, models.Picture{URL: url})
	}

	added, err := s.posts.AddPictures(ctx, post.ID, pictures)
	if err != nil {
		return nil, notFound(err, "album", id)
	}
	return added, nil
}

// Pictures returns the album content to its owner, its buyers and the
// seller's active subscribers.
func (s *Service) Pictures(ctx context.Context, actor models.Actor, id string) ([]models.Picture, error) {
	post, err := s.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	pictures, err := s.posts.Pictures(ctx, post.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load pictures", err)
	}
	return pictures, nil
}

// AuthorizePictures reports whether actor may see the pictures of album id,
// without loading them.
func (s *Service) AuthorizePictures(ctx context.Context, actor models.Actor, id string) error {
	_, err := s.authorize(ctx, actor, id)
	return err
}

func (s *Service) authorize(ctx context.Context, actor models.Actor, id string) (*models.Post, error) {
	post, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed, err := s.canView(ctx, actor, post)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperrors.Forbidden("Buy this album or subscribe to the seller to see it")
	}
	return post, nil
}

func (s *Service) canView(ctx context.Context, actor models.Actor, post *models.Post) (bool, error) {
	if actor.Admin || actor.SellerID() == post.SellerID {
		return true, nil
	}
	bought, err := s.posts.CheckUserPurchased(ctx, actor.UserID, post.ID)
	if err != nil {
		return false, apperrors.Internal("Failed to check purchase", err)
	}
	if bought {
		return true, nil
	}
	subscribed, err := s.subs.Exists(ctx, actor.UserID, post.SellerID)
	if err != nil {
		return false, apperrors.Internal("Failed to check subscription", err)
	}
	return subscribed, nil
}

// Delete removes an album with its pictures. Owner or admin only.
func (s *Service) Delete(ctx context.Context, actor models.Actor, id string) error {
	post, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.posts.Delete(ctx, post.ID); err != nil {
		return notFound(err, "album", id)
	}
	return nil
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	cats, err := s.categories.List(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to list categories", err)
	}
	return cats, nil
}

func (s *Service) owned(ctx context.Context, actor models.Actor, id string) (*models.Post, error) {
	post, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && actor.SellerID() != post.SellerID {
		return nil, apperrors.Forbidden("Only the album owner can do this")
	}
	return post, nil
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, id)
	}
	return apperrors.Internal("Failed to load "+resource, err)
}
