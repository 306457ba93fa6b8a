package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

const postColumns = `RETURN p, s.id AS sellerId, c.id AS categoryId, c.name AS category`

const (
	createPostQuery = `
MATCH (s:Seller {id: $sellerId})
CREATE (s)-[:HAS_A]->(p:Post {
  id: $id, title: $title, description: $description, price: $price,
  views: 0, likes: 0, createdAt: $createdAt
})-[:HAS_A]->(:Collection {id: $collectionId})
WITH s, p
OPTIONAL MATCH (c:Category {id: $categoryId})
FOREACH (_ IN CASE WHEN c IS NULL THEN [] ELSE [1] END | CREATE (p)-[:BELONGS_TO]->(c))
` + postColumns

	findPostQuery = `
MATCH (s:Seller)-[:HAS_A]->(p:Post {id: $id})
OPTIONAL MATCH (p)-[:BELONGS_TO]->(c:Category)
` + postColumns

	listPostsQuery = `
MATCH (s:Seller)-[:HAS_A]->(p:Post)
WHERE $sellerId = '' OR s.id = $sellerId
OPTIONAL MATCH (p)-[:BELONGS_TO]->(c:Category)
WITH s, p, c
WHERE $categoryId = '' OR c.id = $categoryId
` + postColumns + `
ORDER BY p.createdAt DESC
SKIP $offset LIMIT $limit`

	addPicturesQuery = `
MATCH (:Post {id: $postId})-[:HAS_A]->(col:Collection)
OPTIONAL MATCH (col)-[:HAS_A]->(existing:Picture)
WITH col, coalesce(max(existing.position), -1) AS last
UNWIND range(0, size($pictures) - 1) AS i
CREATE (col)-[:HAS_A]->(pic:Picture {id: $pictures[i].id, url: $pictures[i].url, position: last + 1 + i})
RETURN pic
ORDER BY pic.position`

	picturesQuery = `
MATCH (:Post {id: $postId})-[:HAS_A]->(:Collection)-[:HAS_A]->(pic:Picture)
RETURN pic
ORDER BY pic.position`

	// Exactly one of the two FOREACH branches runs, so the edge and the
	// counter always move together.
	likeQuery = `
MATCH (u:User {id: $userId}), (p:Post {id: $postId})
OPTIONAL MATCH (u)-[l:LIKED]->(p)
WITH u, p, l, l IS NULL AS toLike
FOREACH (_ IN CASE WHEN toLike THEN [1] ELSE [] END |
  CREATE (u)-[:LIKED {createdAt: $createdAt}]->(p)
  SET p.likes = coalesce(p.likes, 0) + 1)
FOREACH (_ IN CASE WHEN toLike THEN [] ELSE [1] END |
  DELETE l
  SET p.likes = coalesce(p.likes, 1) - 1)
RETURN p.likes AS likes, toLike AS liked`

	viewQuery = `
MATCH (p:Post {id: $id})
SET p.views = coalesce(p.views, 0) + 1
RETURN p.views AS views`

	deletePostQuery = `
MATCH (p:Post {id: $id})
OPTIONAL MATCH (p)-[:HAS_A]->(col:Collection)
OPTIONAL MATCH (col)-[:HAS_A]->(pic:Picture)
WITH p, col, collect(pic) AS pics
FOREACH (x IN pics | DETACH DELETE x)
DETACH DELETE col, p
RETURN true AS deleted`

	purchasedQuery = `
RETURN EXISTS { MATCH (:User {id: $userId})-[:BOUGHT_A]->(:Post {id: $postId}) } AS purchased`

	// The existence check and the write share one statement.
	boughtQuery = `
MATCH (u:User {id: $userId}), (p:Post {id: $postId})
WHERE NOT EXISTS { MATCH (u)-[:BOUGHT_A]->(p) }
CREATE (u)-[b:BOUGHT_A {amount: $amount, createdAt: $createdAt}]->(p)
RETURN count(b) AS created`

	purchasesQuery = `
MATCH (:User {id: $userId})-[b:BOUGHT_A]->(p:Post)<-[:HAS_A]-(s:Seller)
OPTIONAL MATCH (p)-[:BELONGS_TO]->(c:Category)
WITH b, p, s, c
ORDER BY b.createdAt DESC
` + postColumns
)

type Neo4jPostRepository struct {
	runner graphdb.DBRunner
}

func NewPostRepository(runner graphdb.DBRunner) *Neo4jPostRepository {
	return &Neo4jPostRepository{runner: runner}
}

// Create stores a new album under the seller with zeroed counters and an
// empty picture collection. The category link is skipped when categoryID
// does not name a category.
func (r *Neo4jPostRepository) Create(ctx context.Context, sellerID string, post *models.Post, categoryID string) (*models.Post, error) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now()
	}
	res, err := r.runner.Write(ctx, createPostQuery, map[string]interface{}{
		"sellerId":     sellerID,
		"id":           post.ID,
		"title":        post.Title,
		"description":  post.Description,
		"price":        post.Price,
		"createdAt":    post.CreatedAt,
		"collectionId": uuid.NewString(),
		"categoryId":   categoryID,
	})
	if err != nil {
		return nil, err
	}
	rec, err := graphdb.Single(res)
	if err != nil {
		return nil, err
	}
	return scanPost(rec)
}

func (r *Neo4jPostRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	res, err := r.runner.Read(ctx, findPostQuery, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	rec, err := graphdb.Single(res)
	if err != nil {
		return nil, err
	}
	return scanPost(rec)
}

func (r *Neo4jPostRepository) List(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	offset, limit := page(filter.Offset, filter.Limit)
	res, err := r.runner.Read(ctx, listPostsQuery, map[string]interface{}{
		"sellerId":   filter.SellerID,
		"categoryId": filter.CategoryID,
		"offset":     offset,
		"limit":      limit,
	})
	if err != nil {
		return nil, err
	}
	return scanPosts(res)
}

// AddPictures appends pictures to the album's collection. Positions continue
// after the highest existing one.
func (r *Neo4jPostRepository) AddPictures(ctx context.Context, postID string, pictures []models.Picture) ([]models.Picture, error) {
	if len(pictures) == 0 {
		return []models.Picture{}, nil
	}
	rows := make([]map[string]interface{}, len(pictures))
	for i, p := range pictures {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		rows[i] = map[string]interface{}{"id": p.ID, "url": p.URL}
	}
	res, err := r.runner.Write(ctx, addPicturesQuery, map[string]interface{}{
		"postId":   postID,
		"pictures": rows,
	})
	if err := requireRow(res, err); err != nil {
		return nil, err
	}
	return graphdb.ScanAll[models.Picture](res, "pic")
}

func (r *Neo4jPostRepository) Pictures(ctx context.Context, postID string) ([]models.Picture, error) {
	res, err := r.runner.Read(ctx, picturesQuery, map[string]interface{}{"postId": postID})
	if err != nil {
		return nil, err
	}
	return graphdb.ScanAll[models.Picture](res, "pic")
}

// Like toggles the user's like on the album and returns the new state.
func (r *Neo4jPostRepository) Like(ctx context.Context, userID, postID string) (*models.LikeResult, error) {
	res, err := r.runner.Write(ctx, likeQuery, map[string]interface{}{
		"userId":    userID,
		"postId":    postID,
		"createdAt": now(),
	})
	if err != nil {
		return nil, err
	}
	rec, err := graphdb.Single(res)
	if err != nil {
		return nil, err
	}
	likes, err := graphdb.RecordValue[int64](rec, "likes")
	if err != nil {
		return nil, err
	}
	liked, err := graphdb.RecordValue[bool](rec, "liked")
	if err != nil {
		return nil, err
	}
	return &models.LikeResult{Liked: liked, Likes: likes}, nil
}

func (r *Neo4jPostRepository) IncrementViews(ctx context.Context, postID string) (int64, error) {
	res, err := r.runner.Write(ctx, viewQuery, map[string]interface{}{"id": postID})
	if err != nil {
		return 0, err
	}
	return graphdb.Value[int64](res, "views")
}

// Delete removes the album together with its collection and pictures.
func (r *Neo4jPostRepository) Delete(ctx context.Context, postID string) error {
	return requireRow(r.runner.Write(ctx, deletePostQuery, map[string]interface{}{"id": postID}))
}

func (r *Neo4jPostRepository) CheckUserPurchased(ctx context.Context, userID, postID string) (bool, error) {
	res, err := r.runner.Read(ctx, purchasedQuery, map[string]interface{}{"userId": userID, "postId": postID})
	if err != nil {
		return false, err
	}
	return graphdb.Value[bool](res, "purchased")
}

// RecordPurchase creates the BOUGHT_A edge, credits the seller's wallet and
// stores the seller's notification in one write transaction.
func (r *Neo4jPostRepository) RecordPurchase(ctx context.Context, p models.Purchase) (bool, error) {
	created := false
	err := r.runner.WriteTx(ctx, func(ctx context.Context, tx graphdb.Tx) error {
		res, err := tx.Run(ctx, boughtQuery, map[string]interface{}{
			"userId":    p.UserID,
			"postId":    p.PostID,
			"amount":    p.Amount,
			"createdAt": now(),
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

		if _, err := creditWallet(ctx, tx, p.SellerID, p.Amount); err != nil {
			return err
		}
		return notifySeller(ctx, tx, p.SellerID, p.Notification)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *Neo4jPostRepository) Purchases(ctx context.Context, userID string) ([]models.Post, error) {
	res, err := r.runner.Read(ctx, purchasesQuery, map[string]interface{}{"userId": userID})
	if err != nil {
		return nil, err
	}
	return scanPosts(res)
}

func scanPost(rec *neo4j.Record) (*models.Post, error) {
	props, err := graphdb.RecordValue[map[string]interface{}](rec, "p")
	if err != nil {
		return nil, err
	}
	if props == nil {
		return nil, ErrNotFound
	}
	var post models.Post
	if err := graphdb.Decode(props, &post); err != nil {
		return nil, fmt.Errorf("decode post: %w", err)
	}
	if post.SellerID, err = graphdb.RecordValue[string](rec, "sellerId"); err != nil {
		return nil, err
	}
	if post.CategoryID, err = graphdb.RecordValue[string](rec, "categoryId"); err != nil {
		return nil, err
	}
	if post.Category, err = graphdb.RecordValue[string](rec, "category"); err != nil {
		return nil, err
	}
	return &post, nil
}

func scanPosts(res *neo4j.EagerResult) ([]models.Post, error) {
	out := make([]models.Post, 0, len(res.Records))
	for _, rec := range res.Records {
		post, err := scanPost(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *post)
	}
	return out, nil
}
