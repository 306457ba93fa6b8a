// Package graphdb wraps the official Neo4j Go driver: it owns the driver,
// scopes sessions and transactions, and maps records onto typed values.
package graphdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/Mouaddiguoug/feetflight/internal/logging"
)

const (
	ModeRead  = "read"
	ModeWrite = "write"
)

// Tx runs statements inside an already open managed transaction.
type Tx interface {
	Run(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error)
}

// DBRunner defines the interface for a generic query executor.
// It abstracts the execution of a Cypher query, allowing for different implementations
// or mocking in tests.
type DBRunner interface {
	// Read executes a query in a managed read transaction and returns a fully-buffered result.
	Read(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error)
	// Write executes a query in a managed write transaction and returns a fully-buffered result.
	Write(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error)
	// WriteTx runs fn inside a single managed write transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	WriteTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ObserveFunc receives the duration and outcome of every query.
type ObserveFunc func(mode string, duration time.Duration, err error)

// Config holds the connection settings for NewNeo4jExecutor.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

//---

// Neo4jExecutor is a concrete implementation of the DBRunner interface that uses the
// official Neo4j Go driver. It owns the single long-lived driver (and its connection
// pool) for the process and the target database name.
type Neo4jExecutor struct {
	Driver  neo4j.DriverWithContext
	DBName  string
	log     *logging.Logger
	observe ObserveFunc
}

// NewNeo4jExecutor creates and initializes a new Neo4jExecutor.
// It establishes a connection driver with the provided credentials.
//
// Parameters:
//   - cfg: The connection URI (e.g., "neo4j://localhost:7687"), credentials and database name.
//   - log: Logger used to report failed queries. May be nil.
//
// Returns:
//
//	A pointer to the newly created Neo4jExecutor or an error if the driver creation fails.
func NewNeo4jExecutor(cfg Config, log *logging.Logger) (*Neo4jExecutor, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	if log == nil {
		log = logging.NewDefault("graphdb")
	}
	return &Neo4jExecutor{Driver: driver, DBName: cfg.Database, log: log}, nil
}

// OnQuery registers a hook called after every query.
func (e *Neo4jExecutor) OnQuery(fn ObserveFunc) {
	e.observe = fn
}

// Verify checks the connectivity to the Neo4j database.
func (e *Neo4jExecutor) Verify(ctx context.Context) error {
	return e.Driver.VerifyConnectivity(ctx)
}

// Close releases the driver and its connection pool.
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}

// WithSession opens a session in the given access mode, hands it to fn and
// closes it afterwards, whatever fn returns.
func (e *Neo4jExecutor) WithSession(ctx context.Context, mode neo4j.AccessMode, fn func(neo4j.SessionWithContext) error) error {
	session := e.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: e.DBName,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			e.log.WithContext(ctx).WithError(err).Warn("closing neo4j session")
		}
	}()
	return fn(session)
}

// Read executes a Cypher query inside a managed read transaction.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - query: The Cypher query string to execute.
//   - params: A map of parameters to be used in the query.
//
// Returns:
//
//	An EagerResult containing all buffered records from the query, or an error if
//	the execution fails.
func (e *Neo4jExecutor) Read(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	return e.run(ctx, neo4j.AccessModeRead, query, params)
}

// Write executes a Cypher query inside a managed write transaction.
func (e *Neo4jExecutor) Write(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	return e.run(ctx, neo4j.AccessModeWrite, query, params)
}

func (e *Neo4jExecutor) run(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	start := time.Now()
	var out *neo4j.EagerResult

	err := e.WithSession(ctx, mode, func(session neo4j.SessionWithContext) error {
		work := func(tx neo4j.ManagedTransaction) (any, error) {
			return collect(ctx, tx, query, params)
		}

		var (
			res any
			err error
		)
		if mode == neo4j.AccessModeRead {
			res, err = session.ExecuteRead(ctx, work)
		} else {
			res, err = session.ExecuteWrite(ctx, work)
		}
		if err != nil {
			return err
		}
		out = res.(*neo4j.EagerResult)
		return nil
	})

	e.record(modeName(mode), time.Since(start), err)
	if err != nil {
		e.logFailure(ctx, query, params, err)
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}
	return out, nil
}

// WriteTx runs fn inside a single managed write transaction. The driver may
// retry fn on transient failures, so fn must not have side effects outside
// the transaction.
func (e *Neo4jExecutor) WriteTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	start := time.Now()
	err := e.WithSession(ctx, neo4j.AccessModeWrite, func(session neo4j.SessionWithContext) error {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return nil, fn(ctx, &managedTx{tx: tx, exec: e})
		})
		return err
	})
	e.record(ModeWrite, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("error executing neo4j transaction: %w", err)
	}
	return nil
}

type managedTx struct {
	tx   neo4j.ManagedTransaction
	exec *Neo4jExecutor
}

func (t *managedTx) Run(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	res, err := collect(ctx, t.tx, query, params)
	if err != nil {
		t.exec.logFailure(ctx, query, params, err)
		return nil, err
	}
	return res, nil
}

func collect(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := result.Keys()
	if err != nil {
		return nil, err
	}
	return &neo4j.EagerResult{Keys: keys, Records: records}, nil
}

func (e *Neo4jExecutor) record(mode string, d time.Duration, err error) {
	if e.observe != nil {
		e.observe(mode, d, err)
	}
}

func (e *Neo4jExecutor) logFailure(ctx context.Context, query string, params map[string]interface{}, err error) {
	e.log.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
		"query":  compactQuery(query),
		"params": RedactParams(params),
	}).Error("neo4j query failed")
}

func modeName(mode neo4j.AccessMode) string {
	if mode == neo4j.AccessModeRead {
		return ModeRead
	}
	return ModeWrite
}

var sensitiveParams = []string{"password", "token", "secret"}

// RedactParams returns a copy of params with credential-like values masked.
func RedactParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		lower := strings.ToLower(k)
		masked := false
		for _, s := range sensitiveParams {
			if strings.Contains(lower, s) {
				masked = true
				break
			}
		}
		if masked {
			out[k] = "***"
			continue
		}
		out[k] = v
	}
	return out
}

func compactQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
