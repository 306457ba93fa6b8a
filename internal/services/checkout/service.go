// Package checkout starts hosted payments for albums and subscriptions and
// settles them when the processor's webhook reports the outcome.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/idempotency"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
	"github.com/Mouaddiguoug/feetflight/internal/mailer"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/payments"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
	"github.com/Mouaddiguoug/feetflight/internal/services/notifications"
)

// Webhook outcomes, as recorded in metrics.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// MaxAlbumsPerCheckout bounds the size of one album checkout.
const MaxAlbumsPerCheckout = 20

// Pusher delivers an already stored notification.
type Pusher interface {
	Push(ctx context.Context, userID string, n models.Notification)
}

type Mailer interface {
	Send(ctx context.Context, name, to string, data map[string]interface{}) error
}

// Recorder is the part of metrics.Metrics the checkout flow reports to.
type Recorder interface {
	RecordWebhookEvent(eventType, outcome string)
	RecordWalletCredit(source string, amount int64)
}

type Config struct {
	WebhookSecret string
	// SuccessURL and CancelURL are where the hosted checkout returns to.
	SuccessURL string
	CancelURL  string
	// EventTTL is how long processed event ids are remembered.
	EventTTL  time.Duration
	Tolerance time.Duration
}

type Service struct {
	posts     repository.PostRepository
	sellers   repository.SellerRepository
	users     repository.UserRepository
	subs      repository.SubscriptionRepository
	processor payments.Processor
	events    idempotency.Store
	pusher    Pusher
	mail      Mailer
	metrics   Recorder
	logger    *logging.Logger
	cfg       Config
	now       func() time.Time
}

// Deps groups the collaborators of the service.
type Deps struct {
	Stores    *repository.Stores
	Processor payments.Processor
	Events    idempotency.Store
	Pusher    Pusher
	Mail      Mailer
	Metrics   Recorder
	Logger    *logging.Logger
}

func NewService(d Deps, cfg Config) *Service {
	if cfg.EventTTL == 0 {
		cfg.EventTTL = 72 * time.Hour
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = payments.DefaultTolerance
	}
	return &Service{
		posts:     d.Stores.Posts,
		sellers:   d.Stores.Sellers,
		users:     d.Stores.Users,
		subs:      d.Stores.Subscriptions,
		processor: d.Processor,
		events:    d.Events,
		pusher:    d.Pusher,
		mail:      d.Mail,
		metrics:   d.Metrics,
		logger:    d.Logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AlbumCheckout opens a payment session for the given albums. Albums the
// buyer already owns or sells are refused.
func (s *Service) AlbumCheckout(ctx context.Context, actor models.Actor, albumIDs []string) (*payments.CheckoutSession, error) {
	ids := unique(albumIDs)
	if len(ids) == 0 {
		return nil, apperrors.BadRequest("No albums selected")
	}
	if len(ids) > MaxAlbumsPerCheckout {
		return nil, apperrors.Unprocessable("Too many albums in one checkout").WithDetails("max", MaxAlbumsPerCheckout)
	}
	user, err := s.user(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	items := make([]payments.Item, 0, len(ids))
	lines := make([]payments.LineItem, 0, len(ids))
	for _, id := range ids {
		post, err := s.posts.FindByID(ctx, id)
		if err != nil {
			return nil, notFound(err, "album", id)
		}
		if post.SellerID == actor.SellerID() {
			return nil, apperrors.Unprocessable("You cannot buy your own album").WithDetails("id", id)
		}
		bought, err := s.posts.CheckUserPurchased(ctx, actor.UserID, id)
		if err != nil {
			return nil, apperrors.Internal("Failed to check purchase", err)
		}
		if bought {
			return nil, apperrors.Conflict("Album already purchased").WithDetails("id", id)
		}
		items = append(items, payments.Item{SellerID: post.SellerID, PostID: post.ID, Amount: post.Price})
		lines = append(lines, payments.LineItem{Name: post.Title, Amount: post.Price, Quantity: 1})
	}

	session, err := s.processor.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		Mode:       payments.ModePayment,
		CustomerID: user.CustomerID,
		Items:      lines,
		Metadata: map[string]string{
			payments.MetaUserID: actor.UserID,
			payments.MetaItems:  payments.EncodeItems(items),
		},
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to start checkout", err)
	}
	return session, nil
}

// SubscriptionCheckout opens a recurring payment session for one of the
// seller's plans.
func (s *Service) SubscriptionCheckout(ctx context.Context, actor models.Actor, sellerID, planID string) (*payments.CheckoutSession, error) {
	if actor.SellerID() == sellerID {
		return nil, apperrors.Unprocessable("You cannot subscribe to yourself")
	}
	user, err := s.user(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.sellers.FindByID(ctx, sellerID); err != nil {
		return nil, notFound(err, "seller", sellerID)
	}
	plan, err := s.sellers.FindPlan(ctx, sellerID, planID)
	if err != nil {
		return nil, notFound(err, "plan", planID)
	}
	exists, err := s.subs.Exists(ctx, actor.UserID, sellerID)
	if err != nil {
		return nil, apperrors.Internal("Failed to check subscription", err)
	}
	if exists {
		return nil, apperrors.Conflict("Already subscribed to this seller")
	}

	session, err := s.processor.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		Mode:       payments.ModeSubscription,
		CustomerID: user.CustomerID,
		Items:      []payments.LineItem{{PriceID: plan.PriceID, Quantity: 1}},
		Metadata: map[string]string{
			payments.MetaUserID:   actor.UserID,
			payments.MetaSellerID: sellerID,
			payments.MetaPlanID:   plan.ID,
		},
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to start checkout", err)
	}
	return session, nil
}

// WebhookResult is the acknowledgement returned to the processor.
type WebhookResult struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// HandleWebhook verifies, de-duplicates and applies one delivery. A failed
// delivery releases its event id so the processor's retry is applied.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if s.cfg.WebhookSecret == "" {
		s.metrics.RecordWebhookEvent("", OutcomeRejected)
		s.logger.WithContext(ctx).Error("webhook received but no webhook secret is configured")
		return nil, apperrors.Unavailable("Webhooks are not configured")
	}
	if err := payments.VerifySignature(payload, signature, s.cfg.WebhookSecret, s.cfg.Tolerance, s.now()); err != nil {
		s.metrics.RecordWebhookEvent("", OutcomeRejected)
		s.logger.LogSecurityEvent(ctx, "webhook_signature_rejected", map[string]interface{}{"reason": err.Error()})
		return nil, apperrors.BadRequest("Invalid webhook signature")
	}
	ev, err := payments.ParseEvent(payload)
	if err != nil {
		s.metrics.RecordWebhookEvent("", OutcomeRejected)
		return nil, apperrors.BadRequest("Malformed webhook event")
	}

	claimed, err := s.events.Claim(ctx, ev.ID, s.cfg.EventTTL)
	if err != nil {
		s.metrics.RecordWebhookEvent(ev.Type, OutcomeFailed)
		return nil, apperrors.Internal("Failed to record webhook event", err)
	}
	if !claimed {
		s.metrics.RecordWebhookEvent(ev.Type, OutcomeDuplicate)
		return &WebhookResult{Received: true, Duplicate: true}, nil
	}

	outcome, err := s.HandleEvent(ctx, ev)
	if err != nil {
		s.metrics.RecordWebhookEvent(ev.Type, OutcomeFailed)
		if relErr := s.events.Release(ctx, ev.ID); relErr != nil {
			s.logger.WithContext(ctx).WithError(relErr).WithField("event_id", ev.ID).Error("release webhook event")
		}
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"event_id":   ev.ID,
			"event_type": ev.Type,
		}).Error("webhook processing failed")
		return nil, apperrors.Internal("Failed to process webhook event", err)
	}
	s.metrics.RecordWebhookEvent(ev.Type, outcome)
	return &WebhookResult{Received: true}, nil
}

// HandleEvent applies a verified event and returns its outcome.
func (s *Service) HandleEvent(ctx context.Context, ev *payments.Event) (string, error) {
	log := s.logger.WithContext(ctx).WithFields(map[string]interface{}{"event_id": ev.ID, "event_type": ev.Type})

	switch ev.Type {
	case payments.EventChargeSucceeded:
		// The matching checkout.session.completed carries what was bought.
		return OutcomeIgnored, nil

	case payments.EventCheckoutCompleted:
		switch ev.Mode() {
		case payments.ModePayment:
			return OutcomeProcessed, s.settlePurchases(ctx, ev)
		case payments.ModeSubscription:
			return OutcomeProcessed, s.settleSubscription(ctx, ev)
		default:
			log.WithField("mode", ev.Mode()).Warn("checkout session with unknown mode")
			return OutcomeIgnored, nil
		}

	case payments.EventSubscriptionDeleted:
		n, err := s.subs.DeleteByProviderID(ctx, ev.SubscriptionID())
		if err != nil {
			return "", fmt.Errorf("delete subscription %s: %w", ev.SubscriptionID(), err)
		}
		log.WithField("removed", n).Info("subscription cancelled")
		return OutcomeProcessed, nil

	case payments.EventInvoicePaid:
		return s.renew(ctx, ev)

	default:
		log.Debug("ignoring webhook event")
		return OutcomeIgnored, nil
	}
}

func (s *Service) settlePurchases(ctx context.Context, ev *payments.Event) error {
	meta := ev.Metadata()
	userID := meta[payments.MetaUserID]
	items, err := payments.DecodeItems(meta[payments.MetaItems])
	if err != nil {
		return err
	}
	if userID == "" || len(items) == 0 {
		return fmt.Errorf("%w: payment checkout without user or items", payments.ErrMalformedEvent)
	}
	buyer, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load buyer %s: %w", userID, err)
	}

	for _, item := range items {
		bought, err := s.posts.CheckUserPurchased(ctx, userID, item.PostID)
		if err != nil {
			return fmt.Errorf("check purchase %s: %w", item.PostID, err)
		}
		if bought {
			continue
		}
		post, err := s.posts.FindByID(ctx, item.PostID)
		if err != nil {
			return fmt.Errorf("load album %s: %w", item.PostID, err)
		}
		seller, err := s.sellers.FindByID(ctx, item.SellerID)
		if err != nil {
			return fmt.Errorf("load seller %s: %w", item.SellerID, err)
		}

		note := notifications.Prepare(models.Notification{
			Title: "New sale",
			Body:  fmt.Sprintf("%s bought %q.", displayName(buyer), post.Title),
		})
		created, err := s.posts.RecordPurchase(ctx, models.Purchase{
			UserID:       userID,
			SellerID:     item.SellerID,
			PostID:       item.PostID,
			Amount:       item.Amount,
			Notification: note,
		})
		if err != nil {
			return fmt.Errorf("record purchase %s: %w", item.PostID, err)
		}
		if !created {
			continue
		}

		s.metrics.RecordWalletCredit("purchase", item.Amount)
		s.pusher.Push(ctx, seller.UserID, note)
		if err := s.mail.Send(ctx, mailer.Receipt, buyer.Email, map[string]interface{}{
			"Name":   displayName(buyer),
			"Title":  post.Title,
			"Amount": formatAmount(item.Amount),
		}); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("receipt mail failed")
		}
	}
	return nil
}

func (s *Service) settleSubscription(ctx context.Context, ev *payments.Event) error {
	meta := ev.Metadata()
	userID, sellerID, planID := meta[payments.MetaUserID], meta[payments.MetaSellerID], meta[payments.MetaPlanID]
	if userID == "" || sellerID == "" || planID == "" {
		return fmt.Errorf("%w: subscription checkout without user, seller or plan", payments.ErrMalformedEvent)
	}

	exists, err := s.subs.Exists(ctx, userID, sellerID)
	if err != nil {
		return fmt.Errorf("check subscription: %w", err)
	}
	if exists {
		return nil
	}

	buyer, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load subscriber %s: %w", userID, err)
	}
	seller, err := s.sellers.FindByID(ctx, sellerID)
	if err != nil {
		return fmt.Errorf("load seller %s: %w", sellerID, err)
	}
	plan, err := s.sellers.FindPlan(ctx, sellerID, planID)
	if err != nil {
		return fmt.Errorf("load plan %s: %w", planID, err)
	}

	now := s.now()
	sub := models.Subscription{
		UserID:                 userID,
		SellerID:               sellerID,
		PlanID:                 plan.ID,
		PlanName:               plan.Name,
		Price:                  plan.Price,
		Period:                 plan.Period,
		ProviderSubscriptionID: ev.SubscriptionID(),
		CreatedAt:              now,
		ExpiresAt:              periodEnd(now, plan.Period),
	}
	note := notifications.Prepare(models.Notification{
		Title: "New subscriber",
		Body:  fmt.Sprintf("%s subscribed to your %s plan.", displayName(buyer), plan.Name),
	})

	created, err := s.subs.Create(ctx, models.NewSubscription{Subscription: sub, Notification: note})
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	if !created {
		return nil
	}

	s.metrics.RecordWalletCredit("subscription", plan.Price)
	s.pusher.Push(ctx, seller.UserID, note)
	if err := s.mail.Send(ctx, mailer.SubscriptionStarted, buyer.Email, map[string]interface{}{
		"Name":      displayName(buyer),
		"Seller":    seller.Name,
		"Plan":      plan.Name,
		"ExpiresAt": sub.ExpiresAt.Format("2006-01-02"),
	}); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("subscription mail failed")
	}
	return nil
}

// renew extends a subscription to the end of the paid invoice period. The
// first invoice can arrive before the checkout completes, in which case
// there is nothing to extend yet.
func (s *Service) renew(ctx context.Context, ev *payments.Event) (string, error) {
	subID := ev.SubscriptionID()
	end := ev.PeriodEnd()
	if subID == "" || end.IsZero() {
		return OutcomeIgnored, nil
	}
	err := s.subs.Renew(ctx, subID, end)
	if errors.Is(err, repository.ErrNotFound) {
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("renew subscription %s: %w", subID, err)
	}
	return OutcomeProcessed, nil
}

// SweepExpired removes subscriptions whose paid period ended before now.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.subs.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired subscriptions: %w", err)
	}
	return n, nil
}

func (s *Service) user(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

func periodEnd(from time.Time, period string) time.Time {
	if period == models.PeriodYear {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	if u.UserName != "" {
		return u.UserName
	}
	return u.Email
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, id)
	}
	return apperrors.Internal("Failed to load "+resource, err)
}
