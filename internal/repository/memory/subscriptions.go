package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

type Subscriptions struct{ s *Store }

var _ repository.SubscriptionRepository = (*Subscriptions)(nil)

func (r *Subscriptions) Exists(_ context.Context, userID, sellerID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.subs[pair{userID, sellerID}]
	return ok, nil
}

func (r *Subscriptions) Create(_ context.Context, ns models.NewSubscription) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := ns.Subscription
	key := pair{sub.UserID, sub.SellerID}
	if _, ok := s.users[sub.UserID]; !ok {
		return false, nil
	}
	if !s.sellerExists(sub.SellerID) {
		return false, nil
	}
	if _, ok := s.subs[key]; ok {
		return false, nil
	}
	if _, ok := s.wallets[sub.SellerID]; !ok {
		return false, repository.ErrNotFound
	}
	owner, ok := s.sellerUser[sub.SellerID]
	if !ok {
		return false, repository.ErrNotFound
	}

	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.clock()
	}
	s.subs[key] = sub
	s.bumpSubscribers(sub.SellerID, 1)
	if _, err := s.credit(sub.SellerID, sub.Price); err != nil {
		return false, err
	}
	s.notify(owner, ns.Notification)
	return true, nil
}

func (s *Store) bumpSubscribers(sellerID string, delta int64) {
	sl := s.sellers[sellerID]
	sl.Subscribers += delta
	if sl.Subscribers < 0 {
		sl.Subscribers = 0
	}
	s.sellers[sellerID] = sl
}

func (r *Subscriptions) Renew(_ context.Context, providerID string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, sub := range r.s.subs {
		if sub.ProviderSubscriptionID == providerID {
			sub.ExpiresAt = expiresAt
			r.s.subs[k] = sub
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *Subscriptions) Delete(_ context.Context, userID, sellerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pair{userID, sellerID}
	if _, ok := r.s.subs[key]; !ok {
		return repository.ErrNotFound
	}
	r.s.removeSub(key)
	return nil
}

func (s *Store) removeSub(key pair) {
	delete(s.subs, key)
	s.bumpSubscribers(key.b, -1)
}

func (r *Subscriptions) DeleteByProviderID(_ context.Context, providerID string) (int64, error) {
	return r.deleteWhere(func(sub models.Subscription) bool {
		return sub.ProviderSubscriptionID == providerID
	}), nil
}

func (r *Subscriptions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(func(sub models.Subscription) bool {
		return !sub.ExpiresAt.IsZero() && sub.ExpiresAt.Before(now)
	}), nil
}

func (r *Subscriptions) deleteWhere(match func(models.Subscription) bool) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, sub := range r.s.subs {
		if match(sub) {
			r.s.removeSub(k)
			n++
		}
	}
	return n
}

func (r *Subscriptions) ListForUser(_ context.Context, userID string) ([]models.Subscription, error) {
	return r.list(func(k pair) bool { return k.a == userID }), nil
}

func (r *Subscriptions) ListForSeller(_ context.Context, sellerID string) ([]models.Subscription, error) {
	return r.list(func(k pair) bool { return k.b == sellerID }), nil
}

func (r *Subscriptions) list(match func(pair) bool) []models.Subscription {
	r.s.mu.RLock()
	out := make([]models.Subscription, 0)
	for k, sub := range r.s.subs {
		if match(k) {
			out = append(out, sub)
		}
	}
	r.s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
