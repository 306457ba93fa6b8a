// Package graphdbtest provides a scripted graphdb.DBRunner for repository tests.
package graphdbtest

import (
	"context"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
)

// Call is one query seen by the Runner.
type Call struct {
	Mode   string
	Query  string
	Params map[string]interface{}
	InTx   bool
}

// Runner replays queued results in order and records every call.
// A queued error is returned instead of a result for that call.
type Runner struct {
	mu    sync.Mutex
	Calls []Call
	queue []step
	// Commits and Rollbacks count WriteTx outcomes.
	Commits   int
	Rollbacks int
}

type step struct {
	res *neo4j.EagerResult
	err error
}

var _ graphdb.DBRunner = (*Runner)(nil)

// Returns queues a result for the next call.
func (r *Runner) Returns(res *neo4j.EagerResult) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, step{res: res})
	return r
}

// Fails queues an error for the next call.
func (r *Runner) Fails(err error) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, step{err: err})
	return r
}

func (r *Runner) next(mode, query string, params map[string]interface{}, inTx bool) (*neo4j.EagerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, Call{Mode: mode, Query: query, Params: params, InTx: inTx})
	if len(r.queue) == 0 {
		return &neo4j.EagerResult{}, nil
	}
	s := r.queue[0]
	r.queue = r.queue[1:]
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func (r *Runner) Read(_ context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	return r.next(graphdb.ModeRead, query, params, false)
}

func (r *Runner) Write(_ context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	return r.next(graphdb.ModeWrite, query, params, false)
}

func (r *Runner) WriteTx(ctx context.Context, fn func(ctx context.Context, tx graphdb.Tx) error) error {
	err := fn(ctx, tx{r})
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.Rollbacks++
	} else {
		r.Commits++
	}
	return err
}

type tx struct{ r *Runner }

func (t tx) Run(_ context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	return t.r.next(graphdb.ModeWrite, query, params, true)
}

// Last returns the most recent call.
func (r *Runner) Last() Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Calls) == 0 {
		return Call{}
	}
	return r.Calls[len(r.Calls)-1]
}

// Ran reports whether any recorded query contains fragment.
func (r *Runner) Ran(fragment string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.Calls {
		if strings.Contains(c.Query, fragment) {
			return true
		}
	}
	return false
}

// Result builds an EagerResult with the given columns and rows.
func Result(keys []string, rows ...[]any) *neo4j.EagerResult {
	res := &neo4j.EagerResult{Keys: keys}
	for _, row := range rows {
		res.Records = append(res.Records, &neo4j.Record{Keys: keys, Values: row})
	}
	return res
}

// Node builds a driver node with the given properties.
func Node(id string, labels []string, props map[string]interface{}) neo4j.Node {
	return neo4j.Node{ElementId: id, Labels: labels, Props: props}
}
