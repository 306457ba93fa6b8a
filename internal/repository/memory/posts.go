package memory

import (
	"context"
	"sort"

	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

type Posts struct{ s *Store }

var _ repository.PostRepository = (*Posts)(nil)

func (r *Posts) Create(_ context.Context, sellerID string, post *models.Post, categoryID string) (*models.Post, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sellerExists(sellerID) {
		return nil, repository.ErrNotFound
	}
	p := *post
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.clock()
	}
	p.Views, p.Likes = 0, 0
	p.SellerID = sellerID
	p.CategoryID, p.Category = "", ""
	if c, ok := s.categories[categoryID]; ok {
		p.CategoryID, p.Category = c.ID, c.Name
	}
	s.posts[p.ID] = p
	s.pictures[p.ID] = []models.Picture{}
	return &p, nil
}

func (r *Posts) FindByID(_ context.Context, id string) (*models.Post, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *Posts) List(_ context.Context, filter models.PostFilter) ([]models.Post, error) {
	r.s.mu.RLock()
	out := make([]models.Post, 0, len(r.s.posts))
	for _, p := range r.s.posts {
		if filter.SellerID != "" && p.SellerID != filter.SellerID {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		out = append(out, p)
	}
	r.s.mu.RUnlock()

	sortNewestFirst(out)
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (r *Posts) AddPictures(_ context.Context, postID string, pictures []models.Picture) ([]models.Picture, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.pictures[postID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	next := 0
	for _, p := range existing {
		if p.Position >= next {
			next = p.Position + 1
		}
	}
	added := make([]models.Picture, 0, len(pictures))
	for i, p := range pictures {
		if p.ID == "" {
			p.ID = newID()
		}
		p.Position = next + i
		added = append(added, p)
	}
	s.pictures[postID] = append(existing, added...)
	return added, nil
}

func (r *Posts) Pictures(_ context.Context, postID string) ([]models.Picture, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := append([]models.Picture(nil), r.s.pictures[postID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *Posts) Like(_ context.Context, userID, postID string) (*models.LikeResult, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if _, userOK := s.users[userID]; !ok || !userOK {
		return nil, repository.ErrNotFound
	}
	key := pair{userID, postID}
	_, liked := s.likes[key]
	if liked {
		delete(s.likes, key)
		p.Likes--
	} else {
		s.likes[key] = like{at: s.clock()}
		p.Likes++
	}
	s.posts[postID] = p
	return &models.LikeResult{Liked: !liked, Likes: p.Likes}, nil
}

func (r *Posts) IncrementViews(_ context.Context, postID string) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	p.Views++
	s.posts[postID] = p
	return p.Views, nil
}

func (r *Posts) Delete(_ context.Context, postID string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.posts, postID)
	delete(s.pictures, postID)
	for k := range s.likes {
		if k.b == postID {
			delete(s.likes, k)
		}
	}
	kept := s.purchases[:0]
	for _, p := range s.purchases {
		if p.postID != postID {
			kept = append(kept, p)
		}
	}
	s.purchases = kept
	return nil
}

func (r *Posts) CheckUserPurchased(_ context.Context, userID, postID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.purchased(userID, postID), nil
}

func (s *Store) purchased(userID, postID string) bool {
	for _, p := range s.purchases {
		if p.userID == userID && p.postID == postID {
			return true
		}
	}
	return false
}

func (r *Posts) RecordPurchase(_ context.Context, p models.Purchase) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[p.UserID]; !ok {
		return false, nil
	}
	if _, ok := s.posts[p.PostID]; !ok {
		return false, nil
	}
	if s.purchased(p.UserID, p.PostID) {
		return false, nil
	}
	if _, ok := s.wallets[p.SellerID]; !ok {
		return false, repository.ErrNotFound
	}
	owner, ok := s.sellerUser[p.SellerID]
	if !ok {
		return false, repository.ErrNotFound
	}

	s.purchases = append(s.purchases, purchase{userID: p.UserID, postID: p.PostID, amount: p.Amount, at: s.clock()})
	if _, err := s.credit(p.SellerID, p.Amount); err != nil {
		return false, err
	}
	s.notify(owner, p.Notification)
	return true, nil
}

func (r *Posts) Purchases(_ context.Context, userID string) ([]models.Post, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Post, 0)
	for i := len(r.s.purchases) - 1; i >= 0; i-- {
		p := r.s.purchases[i]
		if p.userID != userID {
			continue
		}
		if post, ok := r.s.posts[p.postID]; ok {
			out = append(out, post)
		}
	}
	return out, nil
}

func sortNewestFirst(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
