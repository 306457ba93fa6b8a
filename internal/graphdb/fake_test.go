package graphdb

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type call struct {
	mode   string
	query  string
	params map[string]interface{}
}

// fakeRunner records every query and replays canned results in order.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	results []*neo4j.EagerResult
	err     error
}

func (f *fakeRunner) next(mode, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{mode: mode, query: query, params: params})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &neo4j.EagerResult{}, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func (f *fakeRunner) Read(_ context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	return f.next(ModeRead, query, params)
}

func (f *fakeRunner) Write(_ context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	return f.next(ModeWrite, query, params)
}

func (f *fakeRunner) WriteTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return fn(ctx, fakeTx{f})
}

type fakeTx struct{ f *fakeRunner }

func (t fakeTx) Run(_ context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	return t.f.next(ModeWrite, query, params)
}

func result(keys []string, rows ...[]any) *neo4j.EagerResult {
	res := &neo4j.EagerResult{Keys: keys}
	for _, row := range rows {
		res.Records = append(res.Records, &neo4j.Record{Keys: keys, Values: row})
	}
	return res
}
