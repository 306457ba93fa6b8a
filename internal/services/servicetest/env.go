// Package servicetest builds in-memory environments for service tests.
package servicetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/payments"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
	"github.com/Mouaddiguoug/feetflight/internal/repository/memory"
)

// Env is a memory store plus recording fakes for every external provider.
type Env struct {
	Store     *memory.Store
	Stores    *repository.Stores
	Processor *payments.LocalProcessor
	Mail      *Mailbox
	Hub       *Hub
}

func New() *Env {
	store := memory.New()
	return &Env{
		Store:     store,
		Stores:    store.Stores(),
		Processor: payments.NewLocalProcessor("http://pay.local"),
		Mail:      &Mailbox{},
		Hub:       &Hub{},
	}
}

// Seller creates a seller account with one monthly plan and returns it.
func (e *Env) Seller(t *testing.T, id string) models.Account {
	t.Helper()
	account := models.Account{
		User:     models.User{ID: id + "-user", Email: id + "@example.com", Name: "Seller " + id},
		Role:     models.RoleSeller,
		RoleID:   id,
		WalletID: id + "-wallet",
		Plans: []models.Plan{
			{ID: id + "-monthly", Name: "Monthly", Price: 999, Period: models.PeriodMonth, PriceID: "price_" + id},
		},
	}
	require.NoError(t, e.Stores.Users.CreateAccount(context.Background(), &account))
	return account
}

// Buyer creates a buyer account.
func (e *Env) Buyer(t *testing.T, id string) models.Account {
	t.Helper()
	account := models.Account{
		User:   models.User{ID: id, Email: id + "@example.com", Name: "Buyer " + id, CustomerID: "cus_" + id},
		Role:   models.RoleBuyer,
		RoleID: id + "-buyer",
	}
	require.NoError(t, e.Stores.Users.CreateAccount(context.Background(), &account))
	return account
}

// Album creates an album for sellerID.
func (e *Env) Album(t *testing.T, sellerID, title string, price int64) *models.Post {
	t.Helper()
	post, err := e.Stores.Posts.Create(context.Background(), sellerID, &models.Post{Title: title, Price: price}, "")
	require.NoError(t, err)
	return post
}

// Actor returns the caller identity of an account.
func Actor(a models.Account) models.Actor {
	return models.Actor{UserID: a.User.ID, Role: a.Role, RoleID: a.RoleID}
}

// Mail is one recorded message.
type Mail struct {
	Template string
	To       string
	Data     map[string]interface{}
}

// Mailbox records sent mail.
type Mailbox struct {
	mu   sync.Mutex
	Sent []Mail
}

func (m *Mailbox) Send(ctx context.Context, name, to string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, Mail{Template: name, To: to, Data: data})
	return nil
}

// Templates returns the template names sent to the given address.
func (m *Mailbox) Templates(to string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, mail := range m.Sent {
		if mail.To == to {
			out = append(out, mail.Template)
		}
	}
	return out
}

// Hub records websocket publications.
type Hub struct {
	mu        sync.Mutex
	Published map[string][]interface{}
}

func (h *Hub) Publish(userID string, v interface{}) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Published == nil {
		h.Published = make(map[string][]interface{})
	}
	h.Published[userID] = append(h.Published[userID], v)
	return 1, nil
}

func (h *Hub) Count(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Published[userID])
}
