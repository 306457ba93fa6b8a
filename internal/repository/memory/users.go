package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

type Users struct{ s *Store }

var _ repository.UserRepository = (*Users)(nil)

// CreateAccount validates everything before the first write, so a failed
// signup leaves nothing behind.
func (r *Users) CreateAccount(_ context.Context, account *models.Account) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u := account.User
	u.Email = strings.ToLower(u.Email)
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s already exists", u.ID)
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email %s already exists", u.Email)
		}
	}
	if account.Role != models.RoleBuyer && account.Role != models.RoleSeller {
		return fmt.Errorf("unknown role %q", account.Role)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.clock()
	}
	u.Role, u.RoleID = "", ""

	s.users[u.ID] = u
	s.roles[u.ID] = role{name: account.Role, id: account.RoleID}
	if account.Role == models.RoleSeller {
		s.sellers[account.RoleID] = models.Seller{ID: account.RoleID}
		s.sellerUser[account.RoleID] = u.ID
		s.wallets[account.RoleID] = models.Wallet{ID: account.WalletID, UpdatedAt: u.CreatedAt}
		s.plans[account.RoleID] = append([]models.Plan(nil), account.Plans...)
	}
	return nil
}

func (r *Users) FindByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.s.withRole(u), nil
}

func (r *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range r.s.users {
		if u.Email == email {
			return r.s.withRole(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) withRole(u models.User) *models.User {
	if rl, ok := s.roles[u.ID]; ok {
		u.Role, u.RoleID = rl.name, rl.id
	}
	return &u
}

func (r *Users) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *Users) Update(ctx context.Context, id string, update models.UserUpdate) (*models.User, error) {
	err := r.mutate(id, func(u *models.User) {
		if update.Name != nil {
			u.Name = *update.Name
		}
		if update.UserName != nil {
			u.UserName = *update.UserName
		}
		if update.Bio != nil {
			u.Bio = *update.Bio
		}
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *Users) SetAvatar(_ context.Context, id, url string) error {
	return r.mutate(id, func(u *models.User) { u.Avatar = url })
}

func (r *Users) SetPassword(_ context.Context, id, hash string) error {
	return r.mutate(id, func(u *models.User) { u.Password = hash })
}

func (r *Users) Confirm(_ context.Context, id string) error {
	return r.mutate(id, func(u *models.User) { u.Confirmed = true })
}

func (r *Users) Deactivate(_ context.Context, id string) error {
	return r.mutate(id, func(u *models.User) { u.Deactivated = true })
}

func (r *Users) mutate(id string, fn func(u *models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&u)
	r.s.users[id] = u
	return nil
}

func (r *Users) AddDeviceToken(_ context.Context, userID string, token models.DeviceToken) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return repository.ErrNotFound
	}
	tokens := s.devices[userID]
	for i, t := range tokens {
		if t.Token == token.Token {
			tokens[i].Platform = token.Platform
			return nil
		}
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = s.clock()
	}
	s.devices[userID] = append(tokens, token)
	return nil
}

func (r *Users) DeviceTokens(_ context.Context, userID string) ([]models.DeviceToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := append([]models.DeviceToken(nil), r.s.devices[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
