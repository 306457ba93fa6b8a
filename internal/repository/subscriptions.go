package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

const subscriptionColumns = `
RETURN r, u.id AS userId, s.id AS sellerId`

const (
	subscribedQuery = `
RETURN EXISTS { MATCH (:User {id: $userId})-[:SUBSCRIBED_TO]->(:Seller {id: $sellerId}) } AS subscribed`

	// The existence check and the write share one statement.
	subscribeQuery = `
MATCH (u:User {id: $userId}), (s:Seller {id: $sellerId})
WHERE NOT EXISTS { MATCH (u)-[:SUBSCRIBED_TO]->(s) }
CREATE (u)-[r:SUBSCRIBED_TO]->(s)
SET r = $props, s.subscribers = coalesce(s.subscribers, 0) + 1
RETURN count(r) AS created`

	renewQuery = `
MATCH (:User)-[r:SUBSCRIBED_TO {providerSubscriptionId: $providerId}]->(:Seller)
SET r.expiresAt = $expiresAt
RETURN count(r) AS renewed`

	unsubscribeQuery = `
MATCH (:User {id: $userId})-[r:SUBSCRIBED_TO]->(s:Seller {id: $sellerId})
DELETE r
SET s.subscribers = coalesce(s.subscribers, 1) - 1
RETURN count(*) AS deleted`

	unsubscribeProviderQuery = `
MATCH (:User)-[r:SUBSCRIBED_TO {providerSubscriptionId: $providerId}]->(s:Seller)
DELETE r
SET s.subscribers = coalesce(s.subscribers, 1) - 1
RETURN count(*) AS deleted`

	userSubscriptionsQuery = `
MATCH (u:User {id: $userId})-[r:SUBSCRIBED_TO]->(s:Seller)
WITH u, r, s
ORDER BY r.createdAt DESC` + subscriptionColumns

	sellerSubscriptionsQuery = `
MATCH (u:User)-[r:SUBSCRIBED_TO]->(s:Seller {id: $sellerId})
WITH u, r, s
ORDER BY r.createdAt DESC` + subscriptionColumns

	expireQuery = `
MATCH (:User)-[r:SUBSCRIBED_TO]->(s:Seller)
WHERE r.expiresAt < $now
DELETE r
SET s.subscribers = coalesce(s.subscribers, 1) - 1
RETURN count(*) AS deleted`
)

type Neo4jSubscriptionRepository struct {
	runner graphdb.DBRunner
}

func NewSubscriptionRepository(runner graphdb.DBRunner) *Neo4jSubscriptionRepository {
	return &Neo4jSubscriptionRepository{runner: runner}
}

func (r *Neo4jSubscriptionRepository) Exists(ctx context.Context, userID, sellerID string) (bool, error) {
	res, err := r.runner.Read(ctx, subscribedQuery, map[string]interface{}{"userId": userID, "sellerId": sellerID})
	if err != nil {
		return false, err
	}
	return graphdb.Value[bool](res, "subscribed")
}

// Create writes the SUBSCRIBED_TO edge, bumps the seller's subscriber count,
// credits the plan price to the wallet and stores the seller's notification
// in one write transaction.
func (r *Neo4jSubscriptionRepository) Create(ctx context.Context, ns models.NewSubscription) (bool, error) {
	sub := ns.Subscription
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now()
	}
	created := false
	err := r.runner.WriteTx(ctx, func(ctx context.Context, tx graphdb.Tx) error {
		res, err := tx.Run(ctx, subscribeQuery, map[string]interface{}{
			"userId":   sub.UserID,
			"sellerId": sub.SellerID,
			"props":    subscriptionProps(sub),
		})
		if err != nil {
			return err
		}
		n, err := count(res, "created")
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		created = true

		if _, err := creditWallet(ctx, tx, sub.SellerID, sub.Price); err != nil {
			return err
		}
		return notifySeller(ctx, tx, sub.SellerID, ns.Notification)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *Neo4jSubscriptionRepository) Renew(ctx context.Context, providerID string, expiresAt time.Time) error {
	res, err := r.runner.Write(ctx, renewQuery, map[string]interface{}{
		"providerId": providerID,
		"expiresAt":  expiresAt,
	})
	if err != nil {
		return err
	}
	n, err := count(res, "renewed")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Neo4jSubscriptionRepository) Delete(ctx context.Context, userID, sellerID string) error {
	res, err := r.runner.Write(ctx, unsubscribeQuery, map[string]interface{}{"userId": userID, "sellerId": sellerID})
	if err != nil {
		return err
	}
	n, err := count(res, "deleted")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Neo4jSubscriptionRepository) DeleteByProviderID(ctx context.Context, providerID string) (int64, error) {
	res, err := r.runner.Write(ctx, unsubscribeProviderQuery, map[string]interface{}{"providerId": providerID})
	if err != nil {
		return 0, err
	}
	return count(res, "deleted")
}

func (r *Neo4jSubscriptionRepository) ListForUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	return r.list(ctx, userSubscriptionsQuery, map[string]interface{}{"userId": userID})
}

func (r *Neo4jSubscriptionRepository) ListForSeller(ctx context.Context, sellerID string) ([]models.Subscription, error) {
	return r.list(ctx, sellerSubscriptionsQuery, map[string]interface{}{"sellerId": sellerID})
}

func (r *Neo4jSubscriptionRepository) list(ctx context.Context, query string, params map[string]interface{}) ([]models.Subscription, error) {
	res, err := r.runner.Read(ctx, query, params)
	if err != nil {
		return nil, err
	}
	out := make([]models.Subscription, 0, len(res.Records))
	for _, rec := range res.Records {
		sub, err := scanSubscription(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, nil
}

// DeleteExpired removes every subscription whose expiry is before now.
func (r *Neo4jSubscriptionRepository) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	res, err := r.runner.Write(ctx, expireQuery, map[string]interface{}{"now": at})
	if err != nil {
		return 0, err
	}
	return count(res, "deleted")
}

func scanSubscription(rec *neo4j.Record) (*models.Subscription, error) {
	props, err := graphdb.RecordValue[map[string]interface{}](rec, "r")
	if err != nil {
		return nil, err
	}
	var sub models.Subscription
	if err := graphdb.Decode(props, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	if sub.UserID, err = graphdb.RecordValue[string](rec, "userId"); err != nil {
		return nil, err
	}
	if sub.SellerID, err = graphdb.RecordValue[string](rec, "sellerId"); err != nil {
		return nil, err
	}
	return &sub, nil
}

func subscriptionProps(s models.Subscription) map[string]interface{} {
	return map[string]interface{}{
		"planId":                 s.PlanID,
		"planName":               s.PlanName,
		"price":                  s.Price,
		"period":                 s.Period,
		"providerSubscriptionId": s.ProviderSubscriptionID,
		"createdAt":              s.CreatedAt,
		"expiresAt":              s.ExpiresAt,
	}
}
