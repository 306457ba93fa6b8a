// Package memory implements every repository contract on in-process maps.
// It backs STORE_DRIVER=memory for local runs and the service tests. A
// single mutex serializes writes, so the uniqueness rules of the graph
// statements hold here too.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

type pair struct{ a, b string }

type role struct {
	name string
	id   string
}

type purchase struct {
	userID string
	postID string
	amount int64
	at     time.Time
}

type like struct{ at time.Time }

// Store holds the whole graph in memory.
type Store struct {
	mu    sync.RWMutex
	clock func() time.Time

	users      map[string]models.User
	roles      map[string]role // by user id
	sellers    map[string]models.Seller
	sellerUser map[string]string        // seller id -> user id
	wallets    map[string]models.Wallet // by seller id
	plans      map[string][]models.Plan // by seller id

	posts      map[string]models.Post
	pictures   map[string][]models.Picture // by post id
	categories map[string]models.Category
	likes      map[pair]like // (user, post)
	purchases  []purchase

	subs    map[pair]models.Subscription // (user, seller)
	notices map[string][]models.Notification
	devices map[string][]models.DeviceToken
}

func New() *Store {
	return &Store{
		users:      make(map[string]models.User),
		roles:      make(map[string]role),
		sellers:    make(map[string]models.Seller),
		sellerUser: make(map[string]string),
		wallets:    make(map[string]models.Wallet),
		plans:      make(map[string][]models.Plan),
		posts:      make(map[string]models.Post),
		pictures:   make(map[string][]models.Picture),
		categories: make(map[string]models.Category),
		likes:      make(map[pair]like),
		subs:       make(map[pair]models.Subscription),
		notices:    make(map[string][]models.Notification),
		devices:    make(map[string][]models.DeviceToken),
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = fn
}

// Stores exposes the store through the repository interfaces.
func (s *Store) Stores() *repository.Stores {
	return &repository.Stores{
		Posts:         &Posts{s},
		Users:         &Users{s},
		Sellers:       &Sellers{s},
		Subscriptions: &Subscriptions{s},
		Wallets:       &Wallets{s},
		Notifications: &Notifications{s},
		Categories:    &Categories{s},
		Admin:         &Admin{s},
	}
}

func (s *Store) sellerExists(id string) bool {
	_, ok := s.sellers[id]
	return ok
}

// credit adds amount to the seller's wallet. Callers hold the write lock.
func (s *Store) credit(sellerID string, amount int64) (models.Wallet, error) {
	w, ok := s.wallets[sellerID]
	if !ok {
		return models.Wallet{}, repository.ErrNotFound
	}
	w.Balance += amount
	w.UpdatedAt = s.clock()
	s.wallets[sellerID] = w
	return w, nil
}

// notify stores n for userID. Callers hold the write lock.
func (s *Store) notify(userID string, n models.Notification) {
	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock()
	}
	s.notices[userID] = append(s.notices[userID], n)
}

func newID() string {
	return uuid.NewString()
}
