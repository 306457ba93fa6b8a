package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

const sellerColumns = `
RETURN s, u.id AS userId, u.name AS name, u.userName AS userName, u.avatar AS avatar, u.email AS email`

const (
	findSellerQuery       = `MATCH (u:User)-[:IS_A]->(s:Seller {id: $id})` + sellerColumns
	findSellerByUserQuery = `MATCH (u:User {id: $userId})-[:IS_A]->(s:Seller)` + sellerColumns

	listSellersQuery = `
MATCH (u:User)-[:IS_A]->(s:Seller)
WHERE $verified IS NULL OR coalesce(s.verified, false) = $verified
WITH u, s
ORDER BY u.createdAt DESC
SKIP $offset LIMIT $limit` + sellerColumns

	identityQuery = `
MATCH (s:Seller {id: $id})
SET s.identityCardFront = $front, s.identityCardBack = $back
RETURN s.id AS id`

	verifySellerQuery = `
MATCH (s:Seller {id: $id})
SET s.verified = true
RETURN s.id AS id`

	plansQuery = `
MATCH (:Seller {id: $sellerId})-[:HAS_A]->(p:Plan)
RETURN p
ORDER BY p.price`

	addPlanQuery = `
MATCH (s:Seller {id: $sellerId})
CREATE (s)-[:HAS_A]->(p:Plan)
SET p = $plan
RETURN p`

	findPlanQuery = `
MATCH (:Seller {id: $sellerId})-[:HAS_A]->(p:Plan {id: $planId})
RETURN p`
)

type Neo4jSellerRepository struct {
	runner graphdb.DBRunner
}

func NewSellerRepository(runner graphdb.DBRunner) *Neo4jSellerRepository {
	return &Neo4jSellerRepository{runner: runner}
}

func (r *Neo4jSellerRepository) FindByID(ctx context.Context, id string) (*models.Seller, error) {
	return r.findOne(ctx, findSellerQuery, map[string]interface{}{"id": id})
}

func (r *Neo4jSellerRepository) FindByUserID(ctx context.Context, userID string) (*models.Seller, error) {
	return r.findOne(ctx, findSellerByUserQuery, map[string]interface{}{"userId": userID})
}

func (r *Neo4jSellerRepository) findOne(ctx context.Context, query string, params map[string]interface{}) (*models.Seller, error) {
	res, err := r.runner.Read(ctx, query, params)
	if err != nil {
		return nil, err
	}
	rec, err := graphdb.Single(res)
	if err != nil {
		return nil, err
	}
	return scanSeller(rec)
}

func (r *Neo4jSellerRepository) List(ctx context.Context, verified *bool, offset, limit int) ([]models.Seller, error) {
	off, lim := page(offset, limit)
	params := map[string]interface{}{"verified": nil, "offset": off, "limit": lim}
	if verified != nil {
		params["verified"] = *verified
	}
	res, err := r.runner.Read(ctx, listSellersQuery, params)
	if err != nil {
		return nil, err
	}
	out := make([]models.Seller, 0, len(res.Records))
	for _, rec := range res.Records {
		s, err := scanSeller(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *Neo4jSellerRepository) SetIdentityDocuments(ctx context.Context, sellerID, front, back string) error {
	return requireRow(r.runner.Write(ctx, identityQuery, map[string]interface{}{
		"id":    sellerID,
		"front": front,
		"back":  back,
	}))
}

func (r *Neo4jSellerRepository) Verify(ctx context.Context, sellerID string) error {
	return requireRow(r.runner.Write(ctx, verifySellerQuery, map[string]interface{}{"id": sellerID}))
}

func (r *Neo4jSellerRepository) Plans(ctx context.Context, sellerID string) ([]models.Plan, error) {
	res, err := r.runner.Read(ctx, plansQuery, map[string]interface{}{"sellerId": sellerID})
	if err != nil {
		return nil, err
	}
	return graphdb.ScanAll[models.Plan](res, "p")
}

func (r *Neo4jSellerRepository) AddPlan(ctx context.Context, sellerID string, plan models.Plan) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	return requireRow(r.runner.Write(ctx, addPlanQuery, map[string]interface{}{
		"sellerId": sellerID,
		"plan":     planProps(plan),
	}))
}

func (r *Neo4jSellerRepository) FindPlan(ctx context.Context, sellerID, planID string) (*models.Plan, error) {
	res, err := r.runner.Read(ctx, findPlanQuery, map[string]interface{}{"sellerId": sellerID, "planId": planID})
	if err != nil {
		return nil, err
	}
	return graphdb.Scan[models.Plan](res, "p")
}

func scanSeller(rec *neo4j.Record) (*models.Seller, error) {
	props, err := graphdb.RecordValue[map[string]interface{}](rec, "s")
	if err != nil {
		return nil, err
	}
	var s models.Seller
	if err := graphdb.Decode(props, &s); err != nil {
		return nil, fmt.Errorf("decode seller: %w", err)
	}
	for key, dst := range map[string]*string{
		"userId":   &s.UserID,
		"name":     &s.Name,
		"userName": &s.UserName,
		"avatar":   &s.Avatar,
		"email":    &s.Email,
	} {
		v, err := graphdb.RecordValue[string](rec, key)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return &s, nil
}
