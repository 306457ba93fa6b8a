package checkout

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/idempotency"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
	"github.com/Mouaddiguoug/feetflight/internal/mailer"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/payments"
	"github.com/Mouaddiguoug/feetflight/internal/services/notifications"
	"github.com/Mouaddiguoug/feetflight/internal/services/servicetest"
)

const secret = "whsec_test"

type recorder struct {
	mu       sync.Mutex
	outcomes []string
	credits  int64
}

func (r *recorder) RecordWebhookEvent(eventType, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recorder) RecordWalletCredit(source string, amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credits += amount
}

type fixture struct {
	env     *servicetest.Env
	svc     *Service
	metrics *recorder
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := servicetest.New()
	logger := logging.NewDiscard()
	rec := &recorder{}
	notes := notifications.NewService(env.Stores.Notifications, env.Stores.Users, env.Hub, nil, logger)
	svc := NewService(Deps{
		Stores:    env.Stores,
		Processor: env.Processor,
		Events:    idempotency.NewMemoryStore(),
		Pusher:    notes,
		Mail:      env.Mail,
		Metrics:   rec,
		Logger:    logger,
	}, Config{WebhookSecret: secret, SuccessURL: "http://app/ok", CancelURL: "http://app/cancel"})
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return &fixture{env: env, svc: svc, metrics: rec, now: now}
}

func (f *fixture) deliver(t *testing.T, id, eventType string, object map[string]interface{}) (*WebhookResult, error) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":   id,
		"type": eventType,
		"data": map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return f.svc.HandleWebhook(context.Background(), payload, payments.SignatureHeaderValue(payload, secret, f.now))
}

func TestAlbumCheckout(t *testing.T) {
	f := newFixture(t)
	seller := f.env.Seller(t, "s1")
	buyer := f.env.Buyer(t, "u1")
	a1 := f.env.Album(t, seller.RoleID, "Beach", 500)
	a2 := f.env.Album(t, seller.RoleID, "Sunset", 700)
	ctx := context.Background()

	session, err := f.svc.AlbumCheckout(ctx, servicetest.Actor(buyer), []string{a1.ID, a2.ID, a1.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.NotEmpty(t, session.URL)

	sent := f.env.Processor.Sessions()
	require.Len(t, sent, 1)
	req := sent[0]
	assert.Equal(t, payments.ModePayment, req.Mode)
	assert.Equal(t, "cus_u1", req.CustomerID)
	assert.Len(t, req.Items, 2)
	assert.Equal(t, buyer.User.ID, req.Metadata[payments.MetaUserID])
	items, err := payments.DecodeItems(req.Metadata[payments.MetaItems])
	require.NoError(t, err)
	assert.Equal(t, []payments.Item{
		{SellerID: seller.RoleID, PostID: a1.ID, Amount: 500},
		{SellerID: seller.RoleID, PostID: a2.ID, Amount: 700},
	}, items)
}

func TestAlbumCheckoutRefusals(t *testing.T) {
	f := newFixture(t)
	seller := f.env.Seller(t, "s1")
	buyer := f.env.Buyer(t, "u1")
	album := f.env.Album(t, seller.RoleID, "Beach", 500)
	ctx := context.Background()

	_, err := f.svc.AlbumCheckout(ctx, servicetest.Actor(buyer), nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBadRequest))

	_, err = f.svc.AlbumCheckout(ctx, servicetest.Actor(buyer), []string{"missing"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = f.svc.AlbumCheckout(ctx, servicetest.Actor(seller), []string{album.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnprocessable))

	created, err := f.env.Stores.Posts.RecordPurchase(ctx, models.Purchase{
		UserID: buyer.User.ID, SellerID: seller.RoleID, PostID: album.ID, Amount: 500,
	})
	require.NoError(t, err)
	require.True(t, created)
	_, err = f.svc.AlbumCheckout(ctx, servicetest.Actor(buyer), []string{album.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	assert.Empty(t, f.env.Processor.Sessions())
}

func TestPurchaseWebhookSettlesOnce(t *testing.T) {
	f := newFixture(t)
	seller := f.env.Seller(t, "s1")
	buyer := f.env.Buyer(t, "u1")
	album := f.env.Album(t, seller.RoleID, "Beach", 500)
	ctx := context.Background()

	object := map[string]interface{}{
		"object": "checkout.session",
		"mode":   payments.ModePayment,
		"metadata": map[string]string{
			payments.MetaUserID: buyer.User.ID,
			payments.MetaItems:  payments.EncodeItems([]payments.Item{{SellerID: seller.RoleID, PostID: album.ID, Amount: 500}}),
		},
	}

	res, err := f.deliver(t, "evt_1", payments.EventCheckoutCompleted, object)
	require.NoError(t, err)
	assert.True(t, res.Received)
	assert.False(t, res.Duplicate)

	bought, err := f.env.Stores.Posts.CheckUserPurchased(ctx, buyer.User.ID, album.ID)
	require.NoError(t, err)
	assert.True(t, bought)

	wallet, err := f.env.Stores.Wallets.FindBySeller(ctx, seller.RoleID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.Balance)
	assert.Equal(t, 1, f.env.Hub.Count(seller.User.ID))
	assert.Equal(t, []string{mailer.Receipt}, f.env.Mail.Templates(buyer.User.Email))

	// Redelivery of the same event.
	res, err = f.deliver(t, "evt_1", payments.EventCheckoutCompleted, object)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	// A different event for the same purchase.
	_, err = f.deliver(t, "evt_2", payments.EventCheckoutCompleted, object)
	require.NoError(t, err)

	wallet, err = f.env.Stores.Wallets.FindBySeller(ctx, seller.RoleID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.Balance)
	assert.Equal(t, int64(500), f.metrics.credits)
	assert.Equal(t, 1, f.env.Hub.Count(seller.User.ID))
	assert.Equal(t, []string{OutcomeProcessed, OutcomeDuplicate, OutcomeProcessed}, f.metrics.outcomes)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"id":"evt_1","type":"charge.succeeded","data":{"object":{}}}`)

	_, err := f.svc.HandleWebhook(context.Background(), payload, payments.SignatureHeaderValue(payload, "other", f.now))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBadRequest))

	_, err = f.svc.HandleWebhook(context.Background(), payload, payments.SignatureHeaderValue(payload, secret, f.now.Add(-time.Hour)))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBadRequest))

	garbage := []byte(`{"data":{}}`)
	_, err = f.svc.HandleWebhook(context.Background(), garbage, payments.SignatureHeaderValue(garbage, secret, f.now))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBadRequest))

	assert.Equal(t, []string{OutcomeRejected, OutcomeRejected, OutcomeRejected}, f.metrics.outcomes)
}

func TestWebhookWithoutSecretSettlesNothing(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.WebhookSecret = ""
	seller := f.env.Seller(t, "s1")
	buyer := f.env.Buyer(t, "u1")
	album := f.env.Album(t, seller.RoleID, "Beach", 500)
	ctx := context.Background()

	payload, err := json.Marshal(map[string]interface{}{
		"id":   "evt_forged",
		"type": payments.EventCheckoutCompleted,
		"data": map[string]interface{}{"object": map[string]interface{}{
			"object": "checkout.session",
			"mode":   payments.ModePayment,
			"metadata": map[string]string{
				payments.MetaUserID: buyer.User.ID,
				payments.MetaItems:  payments.EncodeItems([]payments.Item{{SellerID: seller.RoleID, PostID: album.ID, Amount: 99999999}}),
			},
		}},
	})
	require.NoError(t, err)

	_, err = f.svc.HandleWebhook(ctx, payload, payments.SignatureHeaderValue(payload, "", f.now))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnavailable))

	bought, err := f.env.Stores.Posts.CheckUserPurchased(ctx, buyer.User.ID, album.ID)
	require.NoError(t, err)
	assert.False(t, bought)
	wallet, err := f.env.Stores.Wallets.FindBySeller(ctx, seller.RoleID)
	require.NoError(t, err)
	assert.Zero(t, wallet.Balance)
	assert.Zero(t, f.metrics.credits)
	assert.Equal(t, []string{OutcomeRejected}, f.metrics.outcomes)
}

func TestFailedEventCanBeRetried(t *testing.T) {
	f := newFixture(t)
	object := map[string]interface{}{
		"mode":     payments.ModePayment,
		"metadata": map[string]string{payments.MetaUserID: "ghost", payments.MetaItems: "s|p|1"},
	}

	_, err := f.deliver(t, "evt_1", payments.EventCheckoutCompleted, object)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal))

	// The event id was released, so the retry is processed rather than
	// acknowledged as a duplicate.
	_, err = f.deliver(t, "evt_1", payments.EventCheckoutCompleted, object)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal))
	assert.Equal(t, []string{OutcomeFailed, OutcomeFailed}, f.metrics.outcomes)
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t)
	seller := f.env.Seller(t, "s1")
	buyer := f.env.Buyer(t, "u1")
	plan := seller.Plans[0]
	ctx := context.Background()

	session, err := f.svc.SubscriptionCheckout(ctx, servicetest.Actor(buyer), seller.RoleID, plan.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, session.URL)
	req := f.env.Processor.Sessions()[0]
	assert.Equal(t, payments.ModeSubscription, req.Mode)
	assert.Equal(t, "price_s1", req.Items[0].PriceID)
	assert.Equal(t, plan.ID, req.Metadata[payments.MetaPlanID])

	_, err = f.deliver(t, "evt_1", payments.EventCheckoutCompleted, map[string]interface{}{
		"mode":         payments.ModeSubscription,
		"subscription": "sub_1",
		"metadata":     req.Metadata,
	})
	require.NoError(t, err)

	subs, err := f.env.Stores.Subscriptions.ListForUser(ctx, buyer.User.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "sub_1", subs[0].ProviderSubscriptionID)
	assert.Equal(t, f.now.AddDate(0, 1, 0), subs[0].ExpiresAt)
	assert.Equal(t, []string{mailer.SubscriptionStarted}, f.env.Mail.Templates(buyer.User.Email))

	wallet, err := f.env.Stores.Wallets.FindBySeller(ctx, seller.RoleID)
	require.NoError(t, err)
	assert.Equal(t, int64(999), wallet.Balance)

	_, err = f.svc.SubscriptionCheckout(ctx, servicetest.Actor(buyer), seller.RoleID, plan.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	renewed := f.now.AddDate(0, 2, 0).Truncate(time.Second)
	_, err = f.deliver(t, "evt_2", payments.EventInvoicePaid, map[string]interface{}{
		"object":       "invoice",
		"subscription": "sub_1",
		"period_end":   renewed.Unix(),
	})
	require.NoError(t, err)
	subs, err = f.env.Stores.Subscriptions.ListForUser(ctx, buyer.User.ID)
	require.NoError(t, err)
	assert.True(t, renewed.Equal(subs[0].ExpiresAt))

	_, err = f.deliver(t, "evt_3", payments.EventSubscriptionDeleted, map[string]interface{}{
		"object": "subscription",
		"id":     "sub_1",
	})
	require.NoError(t, err)
	subs, err = f.env.Stores.Subscriptions.ListForUser(ctx, buyer.User.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubscriptionCheckoutRefusals(t *testing.T) {
	f := newFixture(t)
	seller := f.env.Seller(t, "s1")
	buyer := f.env.Buyer(t, "u1")
	ctx := context.Background()

	_, err := f.svc.SubscriptionCheckout(ctx, servicetest.Actor(buyer), seller.RoleID, "nope")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = f.svc.SubscriptionCheckout(ctx, servicetest.Actor(buyer), "ghost", "nope")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = f.svc.SubscriptionCheckout(ctx, servicetest.Actor(seller), seller.RoleID, seller.Plans[0].ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnprocessable))
}

func TestIgnoredEvents(t *testing.T) {
	f := newFixture(t)

	res, err := f.deliver(t, "evt_1", payments.EventChargeSucceeded, map[string]interface{}{"object": "charge"})
	require.NoError(t, err)
	assert.True(t, res.Received)

	_, err = f.deliver(t, "evt_2", "customer.created", map[string]interface{}{"object": "customer"})
	require.NoError(t, err)

	_, err = f.deliver(t, "evt_3", payments.EventInvoicePaid, map[string]interface{}{
		"subscription": "sub_unknown",
		"period_end":   f.now.Unix(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{OutcomeIgnored, OutcomeIgnored, OutcomeIgnored}, f.metrics.outcomes)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	seller := f.env.Seller(t, "s1")
	buyer := f.env.Buyer(t, "u1")
	ctx := context.Background()

	created, err := f.env.Stores.Subscriptions.Create(ctx, models.NewSubscription{Subscription: models.Subscription{
		UserID: buyer.User.ID, SellerID: seller.RoleID, PlanID: seller.Plans[0].ID,
		ExpiresAt: f.now.Add(-time.Hour),
	}})
	require.NoError(t, err)
	require.True(t, created)

	n, err := f.svc.SweepExpired(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
