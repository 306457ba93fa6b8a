package payments

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// LocalProcessor fakes the processor for development and tests. It hands out
// ids and returns checkout URLs under baseURL; no money moves.
type LocalProcessor struct {
	baseURL string

	mu       sync.Mutex
	sessions []CheckoutRequest
}

func NewLocalProcessor(baseURL string) *LocalProcessor {
	return &LocalProcessor{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *LocalProcessor) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	return "cus_" + compactID(), nil
}

func (p *LocalProcessor) CreatePrice(ctx context.Context, req PriceRequest) (string, error) {
	return "price_" + compactID(), nil
}

func (p *LocalProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	p.mu.Lock()
	p.sessions = append(p.sessions, req)
	p.mu.Unlock()

	id := "cs_" + compactID()
	return &CheckoutSession{ID: id, URL: p.baseURL + "/checkout/" + id}, nil
}

// Sessions returns the checkout requests received so far.
func (p *LocalProcessor) Sessions() []CheckoutRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CheckoutRequest(nil), p.sessions...)
}

func compactID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
