package repository

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/graphdb/graphdbtest"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

func TestAdminStats(t *testing.T) {
	keys := []string{"users", "sellers", "pendingSellers", "posts", "purchases", "subscriptions", "revenue"}
	runner := (&graphdbtest.Runner{}).Returns(graphdbtest.Result(keys, []any{
		int64(10), int64(3), int64(1), int64(7), int64(4), int64(2), int64(9000),
	}))

	stats, err := NewAdminRepository(graphdb.NewPersistenceManager(runner)).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Users: 10, Sellers: 3, PendingSellers: 1, Posts: 7, Purchases: 4, Subscriptions: 2, Revenue: 9000}, *stats)
}

func TestAdminUserGraphCollectsNeighbours(t *testing.T) {
	user := graphdbtest.Node("u", []string{"User"}, map[string]interface{}{"id": "u1", "password": "hash"})
	seller := graphdbtest.Node("s", []string{"Seller"}, map[string]interface{}{"id": "s1"})
	wallet := graphdbtest.Node("w", []string{"Wallet"}, map[string]interface{}{"id": "w1"})
	isA := neo4j.Relationship{ElementId: "r1", StartElementId: "u", EndElementId: "s", Type: "IS_A"}
	hasA := neo4j.Relationship{ElementId: "r2", StartElementId: "s", EndElementId: "w", Type: "HAS_A"}

	runner := (&graphdbtest.Runner{}).Returns(graphdbtest.Result([]string{"u", "r1", "n1", "r2", "n2"}, []any{
		user, []any{isA}, []any{seller}, []any{isA, hasA}, []any{user, wallet},
	}))

	graph, err := NewAdminRepository(graphdb.NewPersistenceManager(runner)).UserGraph(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 3)
	assert.Len(t, graph.Edges, 2)
	assert.NotContains(t, graph.Nodes[0].Properties, "password")

	require.Len(t, runner.Calls, 1)
	q := runner.Calls[0].Query
	assert.Contains(t, q, "MATCH (u:User {id: $")
	assert.Contains(t, q, "OPTIONAL MATCH (u)-[:IS_A]->(role)-[r2]-(n2)")
	assert.Contains(t, q, "collect(DISTINCT n2) AS n2")
	assert.Contains(t, runner.Calls[0].Params, "pid_0")
}

func TestAdminUserGraphMissingUser(t *testing.T) {
	runner := (&graphdbtest.Runner{}).Returns(&neo4j.EagerResult{})
	_, err := NewAdminRepository(graphdb.NewPersistenceManager(runner)).UserGraph(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCategoryRepository(t *testing.T) {
	runner := (&graphdbtest.Runner{}).
		Returns(&neo4j.EagerResult{}).
		Returns(graphdbtest.Result([]string{"n"},
			[]any{graphdbtest.Node("c", []string{"Category"}, map[string]interface{}{"id": "c1", "name": "Beach"})},
		))
	repo, err := NewCategoryRepository(graphdb.NewPersistenceManager(runner))
	require.NoError(t, err)

	c := &models.Category{Name: "Sandy Beach"}
	require.NoError(t, repo.Create(context.Background(), c))
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "sandy-beach", c.Slug)

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Beach", all[0].Name)
}

func TestCategorySlugCountAndDelete(t *testing.T) {
	beach := graphdbtest.Node("c", []string{"Category"}, map[string]interface{}{"id": "c1", "name": "Beach", "slug": "beach"})
	runner := (&graphdbtest.Runner{}).
		Returns(graphdbtest.Result([]string{"n"}, []any{beach})).
		Returns(graphdbtest.Result([]string{"total"}, []any{int64(4)})).
		Returns(graphdbtest.Result([]string{"n"})).
		Returns(graphdbtest.Result([]string{"n"}, []any{beach})).
		Returns(&neo4j.EagerResult{})
	repo, err := NewCategoryRepository(graphdb.NewPersistenceManager(runner))
	require.NoError(t, err)
	ctx := context.Background()

	taken, err := repo.SlugTaken(ctx, "beach")
	require.NoError(t, err)
	assert.True(t, taken)
	assert.Contains(t, runner.Calls[0].Query, "slug: $")

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	assert.ErrorIs(t, repo.Delete(ctx, "ghost"), ErrNotFound)
	require.NoError(t, repo.Delete(ctx, "c1"))
	require.Len(t, runner.Calls, 5)
	assert.Equal(t, graphdb.ModeWrite, runner.Calls[4].Mode)
	assert.Contains(t, runner.Calls[4].Query, "DETACH DELETE n")
}
