package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" on every webhook call.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is how old a signed timestamp may be.
const DefaultTolerance = 5 * time.Minute

const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventChargeSucceeded     = "charge.succeeded"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.paid"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Sign computes the v1 signature of payload at timestamp t.
func Sign(payload []byte, secret string, t time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", t.Unix())
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds a header value for payload, as the processor
// would send it.
func SignatureHeaderValue(payload []byte, secret string, t time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", t.Unix(), Sign(payload, secret, t))
}

// VerifySignature checks header against payload. Any of the v1 entries may
// match; the timestamp must be within tolerance of now. An empty secret
// verifies nothing.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return ErrInvalidSignature
	}
	var (
		ts   int64
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrInvalidSignature
	}

	signedAt := time.Unix(ts, 0)
	if d := now.Sub(signedAt); d > tolerance || d < -tolerance {
		return ErrStaleTimestamp
	}

	expected := []byte(Sign(payload, secret, signedAt))
	for _, sig := range sigs {
		if hmac.Equal(expected, []byte(sig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Event is a parsed webhook event. Object is the event's data.object.
type Event struct {
	ID     string
	Type   string
	Object gjson.Result
}

func ParseEvent(payload []byte) (*Event, error) {
	if !gjson.ValidBytes(payload) {
		return nil, ErrMalformedEvent
	}
	root := gjson.ParseBytes(payload)
	ev := &Event{
		ID:     root.Get("id").String(),
		Type:   root.Get("type").String(),
		Object: root.Get("data.object"),
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, ErrMalformedEvent
	}
	return ev, nil
}

// Metadata returns data.object.metadata as a flat string map.
func (e *Event) Metadata() map[string]string {
	out := make(map[string]string)
	e.Object.Get("metadata").ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.String()
		return true
	})
	return out
}

// Mode is the checkout mode of a checkout.session.completed event.
func (e *Event) Mode() string {
	return e.Object.Get("mode").String()
}

// SubscriptionID returns the processor subscription the event refers to.
// Checkout sessions and invoices carry it in "subscription", subscription
// events are the subscription themselves.
func (e *Event) SubscriptionID() string {
	if id := e.Object.Get("subscription").String(); id != "" {
		return id
	}
	if e.Object.Get("object").String() == "subscription" {
		return e.Object.Get("id").String()
	}
	return ""
}

// PeriodEnd is the end of the billing period paid by an invoice.paid event,
// or the zero time.
func (e *Event) PeriodEnd() time.Time {
	end := e.Object.Get("lines.data.0.period.end").Int()
	if end == 0 {
		end = e.Object.Get("period_end").Int()
	}
	if end == 0 {
		return time.Time{}
	}
	return time.Unix(end, 0).UTC()
}
