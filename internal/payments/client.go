// Package payments talks to the payment processor: customers, prices and
// hosted checkout sessions over its REST API, and verification and parsing of
// the webhook events it sends back.
package payments

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

// PriceRequest describes a recurring price for a subscription plan.
type PriceRequest struct {
	ProductName string
	Amount      int64
	// Interval is "month" or "year".
	Interval string
}

// LineItem is either a stored recurring price (PriceID) or an ad-hoc amount.
type LineItem struct {
	PriceID  string
	Name     string
	Amount   int64
	Quantity int64
}

type CheckoutRequest struct {
	Mode       string
	CustomerID string
	Items      []LineItem
	Metadata   map[string]string
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// Processor is the subset of the payment processor API the services use.
type Processor interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	CreatePrice(ctx context.Context, req PriceRequest) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

type ClientConfig struct {
	BaseURL   string
	SecretKey string
	Currency  string
	Timeout   time.Duration
}

// Client is the REST implementation of Processor. Requests are
// form-encoded and authenticated with the secret key as bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	currency   string
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "usd"
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		currency:   currency,
	}
}

// APIError is a non-2xx answer from the processor.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payments api: %d %s: %s", e.Status, e.Type, e.Message)
}

func (c *Client) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	form := url.Values{}
	form.Set("email", email)
	if name != "" {
		form.Set("name", name)
	}
	res, err := c.post(ctx, "/customers", form)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return res.Get("id").String(), nil
}

func (c *Client) CreatePrice(ctx context.Context, req PriceRequest) (string, error) {
	form := url.Values{}
	form.Set("currency", c.currency)
	form.Set("unit_amount", strconv.FormatInt(req.Amount, 10))
	form.Set("recurring[interval]", req.Interval)
	form.Set("product_data[name]", req.ProductName)
	res, err := c.post(ctx, "/prices", form)
	if err != nil {
		return "", fmt.Errorf("create price: %w", err)
	}
	return res.Get("id").String(), nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", req.Mode)
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	if req.CustomerID != "" {
		form.Set("customer", req.CustomerID)
	}
	for i, item := range req.Items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		form.Set(prefix+"[quantity]", strconv.FormatInt(qty, 10))
		if item.PriceID != "" {
			form.Set(prefix+"[price]", item.PriceID)
			continue
		}
		form.Set(prefix+"[price_data][currency]", c.currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.Amount, 10))
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
	}
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
		// Subscription events carry their own metadata copy.
		if req.Mode == ModeSubscription {
			form.Set("subscription_data[metadata]["+k+"]", v)
		}
	}

	res, err := c.post(ctx, "/checkout/sessions", form)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: res.Get("id").String(), URL: res.Get("url").String()}, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, &APIError{
			Status:  resp.StatusCode,
			Type:    gjson.GetBytes(body, "error.type").String(),
			Message: gjson.GetBytes(body, "error.message").String(),
		}
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON response")
	}
	return gjson.ParseBytes(body), nil
}
