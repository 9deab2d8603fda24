package proxy

import (
	"context"
	"sync/atomic"

	"github.com/vibur/vibur-dbcp-sub001/excollect"
	poolerrors "github.com/vibur/vibur-dbcp-sub001/errors"
	"github.com/vibur/vibur-dbcp-sub001/hooks"
	"github.com/vibur/vibur-dbcp-sub001/rawconn"
	"github.com/vibur/vibur-dbcp-sub001/respool"
	"github.com/vibur/vibur-dbcp-sub001/stmtcache"
)

// ReleaseFunc returns a handle to the pool with the given validity. The
// facade supplies it (closing over Pool.Restore) when constructing Conns, so
// a Conn never holds a *respool.Pool itself.
type ReleaseFunc func(ctx context.Context, handle *respool.Handle, valid bool)

// Conn is the connection proxy: the virtual handle returned by the
// facade's Get. It borrows a *respool.Handle for its lifetime, from
// construction to Close.
type Conn struct {
	handle  *respool.Handle
	release ReleaseFunc
	sever   func(*respool.Handle)

	cache       *stmtcache.Cache
	hooks       *hooks.Registry
	exceptions  *excollect.Collector
	restriction *Restriction
	clearWarn   func(rawconn.Conn) error

	closed atomic.Bool
}

// New wraps handle in a ConnectionProxy. release and sever are the pool
// operations the facade closes over; cache/hookRegistry/restriction may be
// nil.
func New(
	handle *respool.Handle,
	release ReleaseFunc,
	sever func(*respool.Handle),
	cache *stmtcache.Cache,
	hookRegistry *hooks.Registry,
	restriction *Restriction,
	clearWarnings func(rawconn.Conn) error,
) *Conn {
	if hookRegistry == nil {
		hookRegistry = hooks.NewBuilder().Build()
	}
	c := &Conn{
		handle:      handle,
		release:     release,
		sever:       sever,
		cache:       cache,
		hooks:       hookRegistry,
		exceptions:  excollect.New(excollect.ClassifierFunc(isNonTransient)),
		restriction: restriction,
		clearWarn:   clearWarnings,
	}
	c.hooks.FireOnGet(context.Background(), c)
	return c
}

func isNonTransient(err error) bool {
	if de, ok := err.(*poolerrors.DriverError); ok {
		return !de.Transient
	}
	return true
}

// IsClosed reports whether Close has already run.
func (c *Conn) IsClosed() bool { return c.closed.Load() }

func (c *Conn) checkOpen(what string) error {
	if c.closed.Load() {
		return &poolerrors.ClosedError{What: what}
	}
	return nil
}

// raw exposes the underlying rawconn.Conn for descendant proxies.
func (c *Conn) raw() rawconn.Conn { return c.handle.Raw }

// Connection returns c itself; descendant proxies (Stmt, Rows, Metadata)
// delegate GetConnection to this so callers always observe the current
// connection proxy, never the raw connection.
func (c *Conn) Connection() *Conn { return c }

// IsValid delegates to the raw connection's Ping unless c is closed.
func (c *Conn) IsValid(ctx context.Context) bool {
	if c.closed.Load() {
		return false
	}
	return c.handle.Raw.Ping(ctx) == nil
}

// CreateStatement returns an uncached Stmt bound to whatever SQL text its
// Execute* call supplies — no cache lookup, since the SQL is not yet known.
func (c *Conn) CreateStatement() (*Stmt, error) {
	if err := c.checkOpen("connection"); err != nil {
		return nil, err
	}
	return &Stmt{conn: c, direct: true}, nil
}

// PrepareStatement consults the statement cache and returns a Stmt
// wrapping whatever holder it returns (cached hit, fresh insert, or an
// uncached fallback).
func (c *Conn) PrepareStatement(ctx context.Context, sql string, args []any) (*Stmt, error) {
	return c.prepare(ctx, sql, args, stmtcache.MethodPrepareStatement)
}

// PrepareCall is PrepareStatement's callable-statement counterpart.
func (c *Conn) PrepareCall(ctx context.Context, sql string, args []any) (*Stmt, error) {
	return c.prepare(ctx, sql, args, stmtcache.MethodPrepareCall)
}

func (c *Conn) prepare(ctx context.Context, sql string, args []any, method stmtcache.Method) (*Stmt, error) {
	if err := c.checkOpen("connection"); err != nil {
		return nil, err
	}
	if c.restriction != nil {
		if err := c.restriction.Check(sql); err != nil {
			return nil, err
		}
	}
	c.hooks.FireInvocation(ctx, c, "prepareStatement", append([]any{sql}, args...))

	key := stmtcache.Key{Conn: c.handle.Raw, Method: method, Args: argsKey(args)}
	holder, err := c.cacheOrDirect(key, sql, func() (rawconn.Stmt, error) {
		return c.handle.Raw.Prepare(ctx, "", sql)
	})
	if err != nil {
		c.exceptions.Add(&poolerrors.DriverError{Cause: err})
		return nil, err
	}

	return &Stmt{conn: c, holder: holder, sql: sql}, nil
}

func (c *Conn) cacheOrDirect(key stmtcache.Key, sql string, produce func() (rawconn.Stmt, error)) (*stmtcache.Holder, error) {
	if c.cache == nil {
		raw, err := produce()
		if err != nil {
			return nil, err
		}
		h := &stmtcache.Holder{Raw: raw, SQLText: sql}
		return h, nil
	}
	return c.cache.Take(key, sql, produce)
}

// GetMetaData wraps c in a MetadataProxy.
func (c *Conn) GetMetaData() (*Metadata, error) {
	if err := c.checkOpen("connection"); err != nil {
		return nil, err
	}
	return &Metadata{conn: c}, nil
}

// Sever destroys the underlying raw connection immediately, bypassing the
// normal return-to-pool path. Used by the facade's SeverConnection.
func (c *Conn) Sever() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.cache != nil {
		c.cache.RemoveAll(c.handle.Raw)
	}
	c.sever(c.handle)
}

// Close is idempotent. On first call it returns the handle to the pool,
// valid iff the exception log is empty.
func (c *Conn) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.hooks.FireOnRestore(ctx, c)
	valid := c.exceptions.IsEmpty()
	if !valid && c.cache != nil {
		c.cache.RemoveAll(c.handle.Raw)
	}
	c.release(ctx, c.handle, valid)
	return nil
}

// Abort forwards to the raw connection's Close in addition to running the
// normal Close path.
func (c *Conn) Abort(ctx context.Context) error {
	err := c.Close(ctx)
	_ = c.handle.Raw.Close()
	return err
}

func argsKey(args []any) string {
	if len(args) == 0 {
		return ""
	}
	b := make([]byte, 0, 32)
	for i, a := range args {
		if i > 0 {
			b = append(b, '\x1f')
		}
		b = append(b, []byte(sprint(a))...)
	}
	return string(b)
}
