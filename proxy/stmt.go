package proxy

import (
	"context"
	"sync/atomic"
	"time"

	poolerrors "github.com/vibur/vibur-dbcp-sub001/errors"
	"github.com/vibur/vibur-dbcp-sub001/rawconn"
	"github.com/vibur/vibur-dbcp-sub001/stmtcache"
)

// Stmt is the statement proxy. It is either "direct" (produced by
// Conn.CreateStatement, no fixed SQL, no cache participation) or
// cache-backed (produced by Conn.PrepareStatement/PrepareCall, holding a
// *stmtcache.Holder that may or may not be an actual cache entry).
type Stmt struct {
	conn   *Conn
	holder *stmtcache.Holder // nil when direct
	sql    string            // fixed SQL for a prepared statement; empty when direct
	direct bool

	closed    atomic.Bool
	lastRows  *Rows
	setParams []any
	batch     []batchItem
}

// batchItem is one statement queued by AddBatch, awaiting ExecuteBatch.
type batchItem struct {
	sql  string
	args []any
}

func (s *Stmt) checkOpen() error {
	if s.closed.Load() {
		return &poolerrors.ClosedError{What: "statement"}
	}
	return s.conn.checkOpen("connection")
}

// Connection returns the owning connection proxy.
func (s *Stmt) Connection() *Conn { return s.conn }

// SetParam records a setter call (its name followed by its args) on the
// statement. The recorded history is kept on the Stmt only; it is not passed
// to any hook.
func (s *Stmt) SetParam(name string, args ...any) {
	s.setParams = append(s.setParams, name)
	s.setParams = append(s.setParams, args...)
}

// ExecuteQuery runs a query-returning execution. For a direct statement,
// sql is the text to run; for a prepared statement, sql is ignored (the
// fixed SQL recorded at prepare time is used) and should be passed as "".
func (s *Stmt) ExecuteQuery(ctx context.Context, sql string, args ...any) (*Rows, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	effectiveSQL, err := s.resolveSQL(sql)
	if err != nil {
		return nil, err
	}

	result, err := s.conn.hooks.Execute(ctx, effectiveSQL, args, func(ctx context.Context) (any, error) {
		return s.rawQuery(ctx, effectiveSQL, args)
	})
	if err != nil {
		s.conn.exceptions.Add(&poolerrors.DriverError{Cause: err})
		return nil, err
	}

	rows := &Rows{stmt: s, raw: result.(rawconn.Rows), sql: effectiveSQL, params: args, firstRowAt: time.Time{}}
	s.lastRows = rows
	return rows, nil
}

// ExecuteUpdate runs a non-query execution, returning the affected row
// count (0 when the driver returns no Result).
func (s *Stmt) ExecuteUpdate(ctx context.Context, sql string, args ...any) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	effectiveSQL, err := s.resolveSQL(sql)
	if err != nil {
		return 0, err
	}

	result, err := s.conn.hooks.Execute(ctx, effectiveSQL, args, func(ctx context.Context) (any, error) {
		return s.rawExec(ctx, effectiveSQL, args)
	})
	if err != nil {
		s.conn.exceptions.Add(&poolerrors.DriverError{Cause: err})
		return 0, err
	}
	res, _ := result.(rawconn.Result)
	if res == nil {
		return 0, nil
	}
	return res.RowsAffected()
}

// AddBatch queues sql (with args) for later execution by ExecuteBatch,
// subject to the same restriction check as a direct ExecuteUpdate. For a
// prepared statement, sql is ignored and should be passed as "" — each
// queued item reuses the statement's fixed SQL and its own args, the way
// a JDBC PreparedStatement.addBatch() queues only the bound parameters.
func (s *Stmt) AddBatch(sql string, args ...any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	effectiveSQL, err := s.resolveSQL(sql)
	if err != nil {
		return err
	}
	s.batch = append(s.batch, batchItem{sql: effectiveSQL, args: args})
	return nil
}

// ClearBatch discards any statements queued by AddBatch without running them.
func (s *Stmt) ClearBatch() {
	s.batch = nil
}

// ExecuteBatch runs every statement queued by AddBatch, in queue order,
// each as its own execution-hook-wrapped exec. It stops at the first
// failure and returns the row counts gathered so far alongside the error,
// mirroring JDBC's BatchUpdateException partial-results contract.
func (s *Stmt) ExecuteBatch(ctx context.Context) ([]int64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	items := s.batch
	s.batch = nil

	counts := make([]int64, 0, len(items))
	for _, item := range items {
		result, err := s.conn.hooks.Execute(ctx, item.sql, item.args, func(ctx context.Context) (any, error) {
			return s.rawExec(ctx, item.sql, item.args)
		})
		if err != nil {
			s.conn.exceptions.Add(&poolerrors.DriverError{Cause: err})
			return counts, err
		}
		n, err := result.(rawconn.Result).RowsAffected()
		if err != nil {
			s.conn.exceptions.Add(&poolerrors.DriverError{Cause: err})
			return counts, err
		}
		counts = append(counts, n)
	}
	return counts, nil
}

func (s *Stmt) resolveSQL(sql string) (string, error) {
	if s.direct {
		if sql == "" {
			return "", &poolerrors.ClosedError{What: "statement (no SQL text supplied to direct statement)"}
		}
		if err := s.conn.restriction.Check(sql); err != nil {
			return "", err
		}
		return sql, nil
	}
	return s.sql, nil
}

func (s *Stmt) rawQuery(ctx context.Context, sql string, args []any) (any, error) {
	if s.direct {
		return s.conn.raw().Query(ctx, sql, args...)
	}
	return s.holder.Raw.Query(ctx, args...)
}

func (s *Stmt) rawExec(ctx context.Context, sql string, args []any) (any, error) {
	if s.direct {
		return s.conn.raw().Exec(ctx, sql, args...)
	}
	return s.holder.Raw.Exec(ctx, args...)
}

// Cancel removes this statement from the cache — a cancelled statement's
// server-side plan is no longer safe to reuse — and forwards the
// cancellation to the raw statement by closing it.
func (s *Stmt) Cancel() error {
	if s.direct || s.holder == nil {
		return nil
	}
	if s.conn.cache != nil {
		s.conn.cache.Remove(s.holder)
	}
	if s.holder.Raw != nil {
		return s.holder.Raw.Close()
	}
	return nil
}

// Close is idempotent. A cached statement is restored to the cache; if
// Restore reports the entry was evicted (or never cached), the raw
// statement is closed directly. A direct statement is always closed.
func (s *Stmt) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.lastRows != nil {
		_ = s.lastRows.Close(context.Background())
	}

	if s.direct {
		return nil
	}
	if s.conn.cache == nil || s.holder.Uncached() {
		return s.holder.Raw.Close()
	}
	if !s.conn.cache.Restore(s.holder, s.clearWarningsIfConfigured) {
		return s.holder.Raw.Close()
	}
	return nil
}

func (s *Stmt) clearWarningsIfConfigured() error {
	if s.conn.clearWarn == nil {
		return nil
	}
	return s.conn.clearWarn(s.conn.handle.Raw)
}

// GetResultSet returns the last result set produced by this statement's
// Execute* call, wrapped in a ResultSetProxy tied to it.
func (s *Stmt) GetResultSet() *Rows { return s.lastRows }
