package memory

import (
	"context"
	"sort"

	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

type Sellers struct{ s *Store }

var _ repository.SellerRepository = (*Sellers)(nil)

func (r *Sellers) FindByID(_ context.Context, id string) (*models.Seller, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.seller(id)
}

func (r *Sellers) FindByUserID(_ context.Context, userID string) (*models.Seller, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rl, ok := r.s.roles[userID]
	if !ok || rl.name != models.RoleSeller {
		return nil, repository.ErrNotFound
	}
	return r.s.seller(rl.id)
}

// seller joins the seller node with its user. Callers hold the lock.
func (s *Store) seller(id string) (*models.Seller, error) {
	sl, ok := s.sellers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := s.users[s.sellerUser[id]]
	sl.UserID, sl.Name, sl.UserName, sl.Avatar, sl.Email = u.ID, u.Name, u.UserName, u.Avatar, u.Email
	return &sl, nil
}

func (r *Sellers) List(_ context.Context, verified *bool, offset, limit int) ([]models.Seller, error) {
	r.s.mu.RLock()
	out := make([]models.Seller, 0, len(r.s.sellers))
	created := make(map[string]int64, len(r.s.sellers))
	for id, sl := range r.s.sellers {
		if verified != nil && sl.Verified != *verified {
			continue
		}
		full, _ := r.s.seller(id)
		out = append(out, *full)
		created[id] = r.s.users[full.UserID].CreatedAt.UnixNano()
	}
	r.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if created[out[i].ID] == created[out[j].ID] {
			return out[i].ID < out[j].ID
		}
		return created[out[i].ID] > created[out[j].ID]
	})
	return paginate(out, offset, limit), nil
}

func (r *Sellers) SetIdentityDocuments(_ context.Context, sellerID, front, back string) error {
	return r.mutate(sellerID, func(sl *models.Seller) {
		sl.IdentityCardFront, sl.IdentityCardBack = front, back
	})
}

func (r *Sellers) Verify(_ context.Context, sellerID string) error {
	return r.mutate(sellerID, func(sl *models.Seller) { sl.Verified = true })
}

func (r *Sellers) mutate(id string, fn func(*models.Seller)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sl, ok := r.s.sellers[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&sl)
	r.s.sellers[id] = sl
	return nil
}

func (r *Sellers) Plans(_ context.Context, sellerID string) ([]models.Plan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := append([]models.Plan{}, r.s.plans[sellerID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

func (r *Sellers) AddPlan(_ context.Context, sellerID string, plan models.Plan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !r.s.sellerExists(sellerID) {
		return repository.ErrNotFound
	}
	if plan.ID == "" {
		plan.ID = newID()
	}
	r.s.plans[sellerID] = append(r.s.plans[sellerID], plan)
	return nil
}

func (r *Sellers) FindPlan(_ context.Context, sellerID, planID string) (*models.Plan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.plans[sellerID] {
		if p.ID == planID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}
