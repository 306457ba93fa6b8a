package graphdb

// GraphNode represents a generic node from a Neo4j graph.
// It is a domain-agnostic representation, capturing the essential components of any node:
// its unique internal ID, its labels, and its properties. Sensitive properties are
// stripped before a node is added to a GraphResult.
type GraphNode struct {
	// ID is the unique internal identifier assigned by Neo4j to the node (ElementId).
	ID string `json:"id"`

	// Labels is a slice of strings containing all the labels attached to the node (e.g., ["User"]).
	Labels []string `json:"labels"`

	// Properties is a map containing the key-value properties of the node.
	Properties map[string]interface{} `json:"properties"`
}

// Edge represents a generic relationship (or edge) between two nodes in a Neo4j graph.
// It includes the relationship's unique ID, its type, its properties, and the unique
// ElementIds of the source and target nodes it connects.
type Edge struct {
	// ID is the unique internal identifier assigned by Neo4j to the relationship (ElementId).
	ID string `json:"id"`

	// Source is the ElementId of the node where the relationship starts.
	Source string `json:"source"`

	// Target is the ElementId of the node where the relationship ends.
	Target string `json:"target"`

	// Type is the relationship's type (e.g., "HAS_A", "SUBSCRIBED_TO").
	Type string `json:"type"`

	// Properties is a map containing the key-value properties of the relationship.
	Properties map[string]interface{} `json:"properties"`
}

// GraphResult is a top-level container for a generic graph query result.
// It is composed of a list of nodes and a list of edges, the format consumed by the
// admin graph explorer.
type GraphResult struct {
	// Nodes contains all the unique nodes retrieved by the query.
	Nodes []*GraphNode `json:"nodes"`

	// Edges contains all the unique relationships retrieved by the query.
	Edges []*Edge `json:"edges"`
}
