package repository

import (
	"context"

	"github.com/saulfrancisco-ruizacevedo/gocypher"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

const (
	statsQuery = `
CALL { MATCH (u:User) RETURN count(u) AS users }
CALL { MATCH (s:Seller)
       RETURN count(s) AS sellers,
              count(CASE WHEN NOT coalesce(s.verified, false) THEN 1 END) AS pendingSellers }
CALL { MATCH (p:Post) RETURN count(p) AS posts }
CALL { MATCH (:User)-[b:BOUGHT_A]->(:Post)
       RETURN count(b) AS purchases, coalesce(sum(b.amount), 0) AS purchaseRevenue }
CALL { MATCH (:User)-[r:SUBSCRIBED_TO]->(:Seller)
       RETURN count(r) AS subscriptions, coalesce(sum(r.price), 0) AS subscriptionRevenue }
RETURN users, sellers, pendingSellers, posts, purchases, subscriptions,
       purchaseRevenue + subscriptionRevenue AS revenue`
)

type Neo4jAdminRepository struct {
	pm *graphdb.PersistenceManager
}

func NewAdminRepository(pm *graphdb.PersistenceManager) *Neo4jAdminRepository {
	return &Neo4jAdminRepository{pm: pm}
}

func (r *Neo4jAdminRepository) Stats(ctx context.Context) (*models.Stats, error) {
	res, err := r.pm.Runner().Read(ctx, statsQuery, nil)
	if err != nil {
		return nil, err
	}
	rec, err := graphdb.Single(res)
	if err != nil {
		return nil, err
	}
	var s models.Stats
	for key, dst := range map[string]*int64{
		"users":          &s.Users,
		"sellers":        &s.Sellers,
		"pendingSellers": &s.PendingSellers,
		"posts":          &s.Posts,
		"purchases":      &s.Purchases,
		"subscriptions":  &s.Subscriptions,
		"revenue":        &s.Revenue,
	} {
		v, err := graphdb.RecordValue[int64](rec, key)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return &s, nil
}

// UserGraph returns the user, their role node and everything one hop away
// from either, for the admin graph explorer.
func (r *Neo4jAdminRepository) UserGraph(ctx context.Context, userID string) (*graphdb.GraphResult, error) {
	qb := gocypher.NewQueryBuilder().
		Match(gocypher.N("u", "User").WithProperties(map[string]interface{}{"id": userID})).
		OptionalMatch(gocypher.NRef("u"), gocypher.R("r1", ""), gocypher.N("n1", "")).
		OptionalMatch(gocypher.NRef("u"), gocypher.R("", "IS_A").To(), gocypher.N("role", ""), gocypher.R("r2", ""), gocypher.N("n2", "")).
		Return("u",
			"collect(DISTINCT r1) AS r1", "collect(DISTINCT n1) AS n1",
			"collect(DISTINCT r2) AS r2", "collect(DISTINCT n2) AS n2")
	return r.pm.FindGraph(ctx, qb)
}
