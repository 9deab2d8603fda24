// Package rawconn defines the contract for opening, validating, and
// destroying the underlying driver connections that the pool manages. The
// package never speaks a wire protocol itself — callers supply an Opener
// that does, the way database/sql callers supply a driver.Driver. This
// keeps the core pool/cache/proxy logic driver-agnostic.
package rawconn

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	poolerrors "github.com/vibur/vibur-dbcp-sub001/errors"
)

// Conn is the opaque handle to a live driver session. Implementations
// typically wrap a database/sql/driver.Conn or an equivalent native client
// connection.
type Conn interface {
	// Prepare creates a server-side prepared statement.
	Prepare(ctx context.Context, name, query string) (Stmt, error)
	// Exec runs query directly, without preparing it server-side.
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	// Query runs query directly and returns a cursor, without preparing it
	// server-side. Used by the direct-statement path, which has no fixed
	// SQL to cache a prepared statement against.
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	// Ping is used as the validation probe when no test query is configured.
	Ping(ctx context.Context) error
	Close() error
}

// Stmt is a prepared statement obtained from Conn.Prepare.
type Stmt interface {
	Exec(ctx context.Context, args ...any) (Result, error)
	Query(ctx context.Context, args ...any) (Rows, error)
	Close() error
}

// Rows is a forward-only cursor obtained from Stmt.Query.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Result reports the outcome of a non-query statement execution.
type Result interface {
	RowsAffected() (int64, error)
	LastInsertID() (int64, error)
}

// Isolation enumerates the supported default transaction isolation levels.
type Isolation int

const (
	IsolationDefault Isolation = iota
	IsolationNone
	IsolationReadUncommitted
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

// Defaults are applied to every connection Create opens, before InitSQL
// runs and before InitHooks fire.
type Defaults struct {
	AutoCommit bool
	ReadOnly   bool
	Isolation  Isolation
	Catalog    string
	InitSQL    string
}

// Opener opens one new physical connection. It is the only place a real
// wire protocol is involved; everything above this package is agnostic to
// it.
type Opener func(ctx context.Context) (Conn, error)

// InitHook runs once, immediately after a connection is opened and its
// Defaults applied, before the connection is handed to the pool.
type InitHook func(ctx context.Context, conn Conn) error

// Factory is the concrete RawConnectionFactory. It is safe for concurrent
// use; Create may be called from many pool-growth goroutines at once.
type Factory struct {
	Open             Opener
	Defaults         Defaults
	InitHooks        []InitHook
	TestQuery        string
	ValidateTimeout  time.Duration
	RetryAttempts    int
	RetryDelay       time.Duration
	// OnRetryableError, if set, is invoked with each non-final create
	// failure so the calling context's exception collector can record it.
	OnRetryableError func(err error)
	// OnInit, if set, fires once a new connection has passed Defaults,
	// InitSQL, and every InitHook, immediately before it is handed to the
	// caller. It is the production wiring point for the onInit lifecycle
	// hook family; callers pass a *hooks.Registry method value here.
	OnInit func(ctx context.Context, conn any)
}

// Create opens and configures a new connection, retrying up to
// RetryAttempts additional times separated by RetryDelay. On final failure
// it returns *errors.CreateConnectionError.
func (f *Factory) Create(ctx context.Context) (Conn, error) {
	attempts := 0
	var lastErr error

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.RetryDelay), uint64(maxInt(f.RetryAttempts, 0))),
		ctx,
	)

	var conn Conn
	err := backoff.Retry(func() error {
		attempts++
		c, err := f.createOnce(ctx)
		if err != nil {
			lastErr = err
			isLast := attempts > f.RetryAttempts
			if f.OnRetryableError != nil && !isLast {
				f.OnRetryableError(err)
			}
			return err
		}
		conn = c
		return nil
	}, policy)

	if err != nil {
		return nil, &poolerrors.CreateConnectionError{Attempts: attempts, Cause: lastErr}
	}
	return conn, nil
}

func (f *Factory) createOnce(ctx context.Context) (Conn, error) {
	conn, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}

	if err := f.applyDefaults(ctx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			return nil, poolerrors.Wrap(err, closeErr)
		}
		return nil, err
	}

	if f.Defaults.InitSQL != "" {
		if _, err := conn.Exec(ctx, f.Defaults.InitSQL); err != nil {
			if closeErr := conn.Close(); closeErr != nil {
				return nil, poolerrors.Wrap(err, closeErr)
			}
			return nil, err
		}
	}

	for _, hook := range f.InitHooks {
		if err := hook(ctx, conn); err != nil {
			if closeErr := conn.Close(); closeErr != nil {
				return nil, poolerrors.Wrap(err, closeErr)
			}
			return nil, err
		}
	}

	if f.OnInit != nil {
		f.OnInit(ctx, conn)
	}

	return conn, nil
}

// applyDefaults runs the session-level SQL implied by f.Defaults: autocommit
// mode, read-only mode, isolation level, and default catalog, via portable
// SQL session statements (the only thing Conn's driver-agnostic contract
// lets this package do; a concrete driver's Opener may apply these more
// natively and leave the corresponding Defaults field unset).
func (f *Factory) applyDefaults(ctx context.Context, conn Conn) error {
	if !f.Defaults.AutoCommit {
		if _, err := conn.Exec(ctx, "SET autocommit = 0"); err != nil {
			return err
		}
	}
	if f.Defaults.ReadOnly {
		if _, err := conn.Exec(ctx, "SET SESSION TRANSACTION READ ONLY"); err != nil {
			return err
		}
	}
	if stmt := isolationStatement(f.Defaults.Isolation); stmt != "" {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	if f.Defaults.Catalog != "" {
		if _, err := conn.Exec(ctx, "USE "+f.Defaults.Catalog); err != nil {
			return err
		}
	}
	return nil
}

func isolationStatement(level Isolation) string {
	switch level {
	case IsolationReadUncommitted:
		return "SET SESSION TRANSACTION ISOLATION LEVEL READ UNCOMMITTED"
	case IsolationReadCommitted:
		return "SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED"
	case IsolationRepeatableRead:
		return "SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ"
	case IsolationSerializable:
		return "SET SESSION TRANSACTION ISOLATION LEVEL SERIALIZABLE"
	default:
		return ""
	}
}

// Validate reports whether conn is usable within timeout, running
// TestQuery if configured, otherwise Conn.Ping.
func (f *Factory) Validate(ctx context.Context, conn Conn) bool {
	timeout := f.ValidateTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	if f.TestQuery != "" {
		_, err = conn.Exec(ctx, f.TestQuery)
	} else {
		err = conn.Ping(ctx)
	}
	return err == nil
}

// Destroy unconditionally closes conn, swallowing any error (quiet-close).
func (f *Factory) Destroy(conn Conn) {
	if conn == nil {
		return
	}
	_ = conn.Close()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
