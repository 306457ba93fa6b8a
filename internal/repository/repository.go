// Package repository defines the data-access contracts of the marketplace and
// their Neo4j implementations. Every method issues one parameterized Cypher
// statement, or one write transaction of them, and maps the records onto
// internal/models types.
package repository

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

// ErrNotFound is returned when the requested node or edge does not exist.
var ErrNotFound = graphdb.ErrNotFound

type PostRepository interface {
	Create(ctx context.Context, sellerID string, post *models.Post, categoryID string) (*models.Post, error)
	FindByID(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context, filter models.PostFilter) ([]models.Post, error)
	AddPictures(ctx context.Context, postID string, pictures []models.Picture) ([]models.Picture, error)
	Pictures(ctx context.Context, postID string) ([]models.Picture, error)
	Like(ctx context.Context, userID, postID string) (*models.LikeResult, error)
	IncrementViews(ctx context.Context, postID string) (int64, error)
	Delete(ctx context.Context, postID string) error
	CheckUserPurchased(ctx context.Context, userID, postID string) (bool, error)
	// RecordPurchase settles one album sale. It reports false when the user
	// already owned the album, in which case nothing is written.
	RecordPurchase(ctx context.Context, p models.Purchase) (bool, error)
	Purchases(ctx context.Context, userID string) ([]models.Post, error)
}

type UserRepository interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, id string, update models.UserUpdate) (*models.User, error)
	SetAvatar(ctx context.Context, id, url string) error
	SetPassword(ctx context.Context, id, hash string) error
	Confirm(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	AddDeviceToken(ctx context.Context, userID string, token models.DeviceToken) error
	DeviceTokens(ctx context.Context, userID string) ([]models.DeviceToken, error)
}

type SellerRepository interface {
	FindByID(ctx context.Context, id string) (*models.Seller, error)
	FindByUserID(ctx context.Context, userID string) (*models.Seller, error)
	// List returns sellers, optionally only those with the given verified flag.
	List(ctx context.Context, verified *bool, offset, limit int) ([]models.Seller, error)
	SetIdentityDocuments(ctx context.Context, sellerID, front, back string) error
	Verify(ctx context.Context, sellerID string) error
	Plans(ctx context.Context, sellerID string) ([]models.Plan, error)
	AddPlan(ctx context.Context, sellerID string, plan models.Plan) error
	FindPlan(ctx context.Context, sellerID, planID string) (*models.Plan, error)
}

type SubscriptionRepository interface {
	Exists(ctx context.Context, userID, sellerID string) (bool, error)
	// Create settles a subscription. It reports false when the user was
	// already subscribed, in which case nothing is written.
	Create(ctx context.Context, s models.NewSubscription) (bool, error)
	Renew(ctx context.Context, providerID string, expiresAt time.Time) error
	Delete(ctx context.Context, userID, sellerID string) error
	DeleteByProviderID(ctx context.Context, providerID string) (int64, error)
	ListForUser(ctx context.Context, userID string) ([]models.Subscription, error)
	ListForSeller(ctx context.Context, sellerID string) ([]models.Subscription, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type WalletRepository interface {
	FindBySeller(ctx context.Context, sellerID string) (*models.Wallet, error)
	Credit(ctx context.Context, sellerID string, amount int64) (*models.Wallet, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, userID string, n models.Notification) error
	List(ctx context.Context, userID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

type CategoryRepository interface {
	List(ctx context.Context) ([]models.Category, error)
	Create(ctx context.Context, c *models.Category) error
	FindByID(ctx context.Context, id string) (*models.Category, error)
	SlugTaken(ctx context.Context, slug string) (bool, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
}

type AdminRepository interface {
	Stats(ctx context.Context) (*models.Stats, error)
	UserGraph(ctx context.Context, userID string) (*graphdb.GraphResult, error)
}

// Stores bundles one implementation of every repository.
type Stores struct {
	Posts         PostRepository
	Users         UserRepository
	Sellers       SellerRepository
	Subscriptions SubscriptionRepository
	Wallets       WalletRepository
	Notifications NotificationRepository
	Categories    CategoryRepository
	Admin         AdminRepository
}

// NewNeo4jStores wires every repository to the same runner.
func NewNeo4jStores(runner graphdb.DBRunner) (*Stores, error) {
	pm := graphdb.NewPersistenceManager(runner)
	categories, err := NewCategoryRepository(pm)
	if err != nil {
		return nil, err
	}
	return &Stores{
		Posts:         NewPostRepository(runner),
		Users:         NewUserRepository(runner),
		Sellers:       NewSellerRepository(runner),
		Subscriptions: NewSubscriptionRepository(runner),
		Wallets:       NewWalletRepository(runner),
		Notifications: NewNotificationRepository(runner),
		Categories:    categories,
		Admin:         NewAdminRepository(pm),
	}, nil
}

// count reads an aggregate column that is present even when nothing matched.
func count(res *neo4j.EagerResult, key string) (int64, error) {
	if res == nil || len(res.Records) == 0 {
		return 0, nil
	}
	return graphdb.Value[int64](res, key)
}

// requireRow turns an empty result into ErrNotFound.
func requireRow(res *neo4j.EagerResult, err error) error {
	if err != nil {
		return err
	}
	if res == nil || len(res.Records) == 0 {
		return ErrNotFound
	}
	return nil
}

func page(offset, limit int) (int64, int64) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return int64(offset), int64(limit)
}

func now() time.Time {
	return time.Now().UTC()
}
