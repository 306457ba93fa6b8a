package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

const (
	createNotificationQuery = `
MATCH (u:User {id: $userId})
CREATE (u)-[:HAS_A]->(n:Notification)
SET n = $props
RETURN n.id AS id`

	notifySellerQuery = `
MATCH (u:User)-[:IS_A]->(:Seller {id: $sellerId})
CREATE (u)-[:HAS_A]->(n:Notification)
SET n = $props
RETURN n.id AS id`

	listNotificationsQuery = `
MATCH (:User {id: $userId})-[:HAS_A]->(n:Notification)
RETURN n
ORDER BY n.createdAt DESC`

	markReadQuery = `
MATCH (:User {id: $userId})-[:HAS_A]->(n:Notification {id: $id})
SET n.read = true
RETURN n.id AS id`

	deleteNotificationQuery = `
MATCH (:User {id: $userId})-[:HAS_A]->(n:Notification {id: $id})
DETACH DELETE n
RETURN true AS deleted`

	unreadQuery = `
MATCH (:User {id: $userId})-[:HAS_A]->(n:Notification)
WHERE NOT coalesce(n.read, false)
RETURN count(n) AS unread`
)

type Neo4jNotificationRepository struct {
	runner graphdb.DBRunner
}

func NewNotificationRepository(runner graphdb.DBRunner) *Neo4jNotificationRepository {
	return &Neo4jNotificationRepository{runner: runner}
}

func (r *Neo4jNotificationRepository) Create(ctx context.Context, userID string, n models.Notification) error {
	return requireRow(r.runner.Write(ctx, createNotificationQuery, map[string]interface{}{
		"userId": userID,
		"props":  notificationProps(n),
	}))
}

func (r *Neo4jNotificationRepository) List(ctx context.Context, userID string) ([]models.Notification, error) {
	res, err := r.runner.Read(ctx, listNotificationsQuery, map[string]interface{}{"userId": userID})
	if err != nil {
		return nil, err
	}
	return graphdb.ScanAll[models.Notification](res, "n")
}

func (r *Neo4jNotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	return requireRow(r.runner.Write(ctx, markReadQuery, map[string]interface{}{"userId": userID, "id": id}))
}

func (r *Neo4jNotificationRepository) Delete(ctx context.Context, userID, id string) error {
	return requireRow(r.runner.Write(ctx, deleteNotificationQuery, map[string]interface{}{"userId": userID, "id": id}))
}

func (r *Neo4jNotificationRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	res, err := r.runner.Read(ctx, unreadQuery, map[string]interface{}{"userId": userID})
	if err != nil {
		return 0, err
	}
	return count(res, "unread")
}

// notifySeller stores n for the user behind the seller role inside tx.
func notifySeller(ctx context.Context, tx graphdb.Tx, sellerID string, n models.Notification) error {
	res, err := tx.Run(ctx, notifySellerQuery, map[string]interface{}{
		"sellerId": sellerID,
		"props":    notificationProps(n),
	})
	return requireRow(res, err)
}

func notificationProps(n models.Notification) map[string]interface{} {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	return map[string]interface{}{
		"id":        n.ID,
		"title":     n.Title,
		"body":      n.Body,
		"read":      n.Read,
		"createdAt": n.CreatedAt,
	}
}
