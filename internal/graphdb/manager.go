package graphdb

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// hiddenProps never leave the database through FindGraph.
var hiddenProps = map[string]bool{
	"password":          true,
	"customerId":        true,
	"identityCardFront": true,
	"identityCardBack":  true,
	"token":             true,
}

// PersistenceManager is the central orchestrator for the generic persistence layer.
// It holds the query runner and provides access to repositories and cross-entity
// operations like creating relationships or extracting sub-graphs.
type PersistenceManager struct {
	runner DBRunner
}

// NewPersistenceManager creates a new instance of the PersistenceManager.
func NewPersistenceManager(runner DBRunner) *PersistenceManager {
	return &PersistenceManager{runner: runner}
}

// Runner returns the underlying query runner.
func (pm *PersistenceManager) Runner() DBRunner {
	return pm.runner
}

// RepositoryFor is a generic function that creates and returns a repository
// for a specific struct type T, managed by the given PersistenceManager.
func RepositoryFor[T any](pm *PersistenceManager) (*Repository[T], error) {
	return NewRepository[T](pm.runner)
}

// FindGraph executes a graph query defined by a gocypher.QueryBuilder and maps the result
// into a generic graph structure composed of nodes and edges.
//
// The caller is responsible for constructing a valid query via the QueryBuilder, including
// a RETURN clause that specifies which nodes and relationships should be included in the
// final graph. For example, `RETURN u, r, p`.
//
// Returns:
//   - A pointer to a GraphResult containing the de-duplicated nodes and edges from the query.
//   - An ErrNotFound error if the query executes successfully but returns zero records.
//   - Any other error encountered during query building or execution.
func (pm *PersistenceManager) FindGraph(ctx context.Context, qb *gocypher.QueryBuilder) (*GraphResult, error) {
	query, params, err := qb.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build query: %w", err)
	}
	return pm.FindGraphQuery(ctx, query, params)
}

// FindGraphQuery is FindGraph for a hand-written query. Null values (from
// OPTIONAL MATCH) are ignored, and a node or relationship returned in several
// rows appears only once in the result.
func (pm *PersistenceManager) FindGraphQuery(ctx context.Context, query string, params map[string]interface{}) (*GraphResult, error) {
	eagerResult, err := pm.runner.Read(ctx, query, params)
	if err != nil {
		return nil, err
	}

	if len(eagerResult.Records) == 0 {
		return nil, ErrNotFound
	}

	graph := &GraphResult{
		Nodes: make([]*GraphNode, 0),
		Edges: make([]*Edge, 0),
	}
	seenNodeIDs := make(map[string]bool)
	seenEdgeIDs := make(map[string]bool)

	var visit func(value any)
	visit = func(value any) {
		switch v := value.(type) {
		case neo4j.Node:
			if !seenNodeIDs[v.ElementId] {
				graph.Nodes = append(graph.Nodes, &GraphNode{
					ID:         v.ElementId,
					Labels:     v.Labels,
					Properties: visibleProps(v.Props),
				})
				seenNodeIDs[v.ElementId] = true
			}

		case neo4j.Relationship:
			if !seenEdgeIDs[v.ElementId] {
				graph.Edges = append(graph.Edges, &Edge{
					ID:         v.ElementId,
					Source:     v.StartElementId,
					Target:     v.EndElementId,
					Type:       v.Type,
					Properties: visibleProps(v.Props),
				})
				seenEdgeIDs[v.ElementId] = true
			}

		case []any:
			// collect(...) columns
			for _, item := range v {
				visit(item)
			}
		}
	}

	for _, record := range eagerResult.Records {
		for _, value := range record.Values {
			visit(value)
		}
	}

	return graph, nil
}

func visibleProps(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		if hiddenProps[k] {
			continue
		}
		out[k] = Normalize(v)
	}
	return out
}
