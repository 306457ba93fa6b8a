package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

type Wallets struct{ s *Store }

var _ repository.WalletRepository = (*Wallets)(nil)

func (r *Wallets) FindBySeller(_ context.Context, sellerID string) (*models.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.wallets[sellerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (r *Wallets) Credit(_ context.Context, sellerID string, amount int64) (*models.Wallet, error) {
	if amount < 0 {
		return nil, fmt.Errorf("negative credit %d for seller %s", amount, sellerID)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, err := r.s.credit(sellerID, amount)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

type Notifications struct{ s *Store }

var _ repository.NotificationRepository = (*Notifications)(nil)

func (r *Notifications) Create(_ context.Context, userID string, n models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return repository.ErrNotFound
	}
	r.s.notify(userID, n)
	return nil
}

func (r *Notifications) List(_ context.Context, userID string) ([]models.Notification, error) {
	r.s.mu.RLock()
	out := append([]models.Notification{}, r.s.notices[userID]...)
	r.s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Notifications) MarkRead(_ context.Context, userID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, n := range r.s.notices[userID] {
		if n.ID == id {
			r.s.notices[userID][i].Read = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *Notifications) Delete(_ context.Context, userID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := r.s.notices[userID]
	for i, n := range list {
		if n.ID == id {
			r.s.notices[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *Notifications) UnreadCount(_ context.Context, userID string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, note := range r.s.notices[userID] {
		if !note.Read {
			n++
		}
	}
	return n, nil
}

type Categories struct{ s *Store }

var _ repository.CategoryRepository = (*Categories)(nil)

func (r *Categories) List(_ context.Context) ([]models.Category, error) {
	r.s.mu.RLock()
	out := make([]models.Category, 0, len(r.s.categories))
	for _, c := range r.s.categories {
		out = append(out, c)
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Categories) Create(_ context.Context, c *models.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	if c.Slug == "" {
		c.Slug = models.CategorySlug(c.Name)
	}
	r.s.categories[c.ID] = *c
	return nil
}

func (r *Categories) FindByID(_ context.Context, id string) (*models.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.categories[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *Categories) SlugTaken(_ context.Context, slug string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.categories {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r *Categories) Count(_ context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.categories)), nil
}

func (r *Categories) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.categories, id)
	for pid, p := range r.s.posts {
		if p.CategoryID == id {
			p.CategoryID, p.Category = "", ""
			r.s.posts[pid] = p
		}
	}
	return nil
}

type Admin struct{ s *Store }

var _ repository.AdminRepository = (*Admin)(nil)

func (r *Admin) Stats(_ context.Context) (*models.Stats, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.Stats{
		Users:         int64(len(s.users)),
		Sellers:       int64(len(s.sellers)),
		Posts:         int64(len(s.posts)),
		Purchases:     int64(len(s.purchases)),
		Subscriptions: int64(len(s.subs)),
	}
	for _, sl := range s.sellers {
		if !sl.Verified {
			stats.PendingSellers++
		}
	}
	for _, p := range s.purchases {
		stats.Revenue += p.amount
	}
	for _, sub := range s.subs {
		stats.Revenue += sub.Price
	}
	return stats, nil
}

// UserGraph mirrors the graph shape of the Neo4j implementation: the user,
// the role node and their direct neighbours.
func (r *Admin) UserGraph(_ context.Context, userID string) (*graphdb.GraphResult, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, graphdb.ErrNotFound
	}
	g := &graphdb.GraphResult{Nodes: []*graphdb.GraphNode{}, Edges: []*graphdb.Edge{}}
	addNode := func(id, label string, props map[string]interface{}) {
		g.Nodes = append(g.Nodes, &graphdb.GraphNode{ID: id, Labels: []string{label}, Properties: props})
	}
	addEdge := func(from, to, typ string) {
		g.Edges = append(g.Edges, &graphdb.Edge{ID: from + "-" + typ + "-" + to, Source: from, Target: to, Type: typ, Properties: map[string]interface{}{}})
	}

	addNode(u.ID, "User", map[string]interface{}{"id": u.ID, "name": u.Name, "email": u.Email})
	if rl, ok := s.roles[userID]; ok {
		label := "Buyer"
		if rl.name == models.RoleSeller {
			label = "Seller"
		}
		addNode(rl.id, label, map[string]interface{}{"id": rl.id})
		addEdge(u.ID, rl.id, "IS_A")
		if w, ok := s.wallets[rl.id]; ok {
			addNode(w.ID, "Wallet", map[string]interface{}{"id": w.ID, "balance": w.Balance})
			addEdge(rl.id, w.ID, "HAS_A")
		}
	}
	for _, p := range s.purchases {
		if p.userID == userID {
			addNode(p.postID, "Post", map[string]interface{}{"id": p.postID})
			addEdge(u.ID, p.postID, "BOUGHT_A")
		}
	}
	for k := range s.subs {
		if k.a == userID {
			addNode(k.b, "Seller", map[string]interface{}{"id": k.b})
			addEdge(u.ID, k.b, "SUBSCRIBED_TO")
		}
	}
	return g, nil
}
