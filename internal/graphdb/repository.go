package graphdb

import (
	"context"
	"fmt"
	"reflect"

	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// Repository provides a generic abstraction for CRUD operations for a specific
// entity type T. It relies on struct tags to map struct fields to node properties.
type Repository[T any] struct {
	runner DBRunner
	meta   *entityMetadata
}

// NewRepository creates a new generic repository for the type T.
// It parses the struct tags of T to understand its mapping to a Neo4j node.
//
// Parameters:
//   - runner: An instance of DBRunner, used to execute all Cypher queries.
//
// Returns:
//
//	A new Repository instance or an error if the struct tags are invalid.
func NewRepository[T any](runner DBRunner) (*Repository[T], error) {
	meta, err := parseTags[T]()
	if err != nil {
		return nil, err
	}
	if meta.PKField == "" {
		var instance T
		return nil, fmt.Errorf("no primary key ('pk') tag defined for struct %s", reflect.TypeOf(instance).Name())
	}
	return &Repository[T]{
		runner: runner,
		meta:   meta,
	}, nil
}

// Save creates a new node or updates an existing one.
// It uses a MERGE query based on the struct's primary key (`pk` tag).
// All other tagged fields are set on the node.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	val := reflect.ValueOf(entity).Elem()
	pkValue := val.FieldByName(r.meta.PKField).Interface()
	mergeProps := map[string]interface{}{r.meta.PKProp: pkValue}

	setProps := make(map[string]interface{})
	for fieldName, propName := range r.meta.Mappings {
		if fieldName != r.meta.PKField {
			// The property is prefixed with 'n.' for the SET clause.
			setProps["n."+propName] = val.FieldByName(fieldName).Interface()
		}
	}

	qb := gocypher.NewQueryBuilder().
		Merge(gocypher.N("n", r.meta.Label).WithProperties(mergeProps)).
		Set(setProps).
		Return("n")

	query, params, err := qb.Build()
	if err != nil {
		return err
	}
	_, err = r.runner.Write(ctx, query, params)
	return err
}

// FindByID retrieves a single entity from the database by its primary key.
//
// Returns:
//
//	A pointer to the found entity, ErrNotFound if no record is found, or another
//	error if the query or mapping fails.
func (r *Repository[T]) FindByID(ctx context.Context, id interface{}) (*T, error) {
	props := map[string]interface{}{r.meta.PKProp: id}
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", r.meta.Label).WithProperties(props)).
		Return("n").
		Build()
	if err != nil {
		return nil, err
	}

	eagerResult, err := r.runner.Read(ctx, query, params)
	if err != nil {
		return nil, err
	}

	if len(eagerResult.Records) > 1 {
		// This indicates a data integrity issue, as a primary key lookup should be unique.
		return nil, fmt.Errorf("expected 1 record but found %d", len(eagerResult.Records))
	}
	return Scan[T](eagerResult, "n")
}

// FindAll returns every node carrying the repository's label.
func (r *Repository[T]) FindAll(ctx context.Context) ([]*T, error) {
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", r.meta.Label)).
		Return("n").
		Build()
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, query, params)
}

// FindByProperty returns every node whose property equals value.
func (r *Repository[T]) FindByProperty(ctx context.Context, property string, value interface{}) ([]*T, error) {
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", r.meta.Label).WithProperties(map[string]interface{}{property: value})).
		Return("n").
		Build()
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, query, params)
}

// Find runs a read query returning the entity under the alias `n`.
func (r *Repository[T]) Find(ctx context.Context, query string, params map[string]interface{}) ([]*T, error) {
	eagerResult, err := r.runner.Read(ctx, query, params)
	if err != nil {
		return nil, err
	}
	items, err := ScanAll[T](eagerResult, "n")
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out, nil
}

// Count returns the number of nodes carrying the repository's label.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("MATCH (n:`%s`) RETURN count(n) AS total", r.meta.Label)
	res, err := r.runner.Read(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	return Value[int64](res, "total")
}

// Delete removes a node from the database by its primary key.
// It uses a DETACH DELETE query to also remove any relationships connected to the node.
func (r *Repository[T]) Delete(ctx context.Context, id interface{}) error {
	props := map[string]interface{}{r.meta.PKProp: id}
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", r.meta.Label).WithProperties(props)).
		DetachDelete("n").
		Build()
	if err != nil {
		return err
	}
	_, err = r.runner.Write(ctx, query, params)
	return err
}
