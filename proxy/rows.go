package proxy

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vibur/vibur-dbcp-sub001/rawconn"
)

// Rows is the result-set proxy. Its lifetime is bounded by its parent
// Stmt's lifetime; on Close it fires the retrieval hooks with elapsed time
// and row count before forwarding the real close.
type Rows struct {
	stmt   *Stmt
	raw    rawconn.Rows
	sql    string
	params []any

	rowCount   atomic.Int64
	firstRowAt time.Time
	lastRowAt  time.Time
	closed     atomic.Bool
}

// Connection returns the owning connection proxy.
func (r *Rows) Connection() *Conn { return r.stmt.conn }

// Next advances the cursor, tracking first/last-row timestamps and a row
// counter for the retrieval hook.
func (r *Rows) Next() bool {
	ok := r.raw.Next()
	if ok {
		now := time.Now()
		if r.rowCount.Load() == 0 {
			r.firstRowAt = now
		}
		r.lastRowAt = now
		r.rowCount.Add(1)
	}
	return ok
}

// Scan delegates to the raw cursor.
func (r *Rows) Scan(dest ...any) error { return r.raw.Scan(dest...) }

// Err delegates to the raw cursor.
func (r *Rows) Err() error { return r.raw.Err() }

// IsClosed reports whether Close has already run.
func (r *Rows) IsClosed() bool { return r.closed.Load() }

// Close is idempotent: it fires ResultSetRetrieval hooks once, then
// forwards the real close.
func (r *Rows) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	var elapsed time.Duration
	if !r.firstRowAt.IsZero() {
		elapsed = r.lastRowAt.Sub(r.firstRowAt)
	}
	r.stmt.conn.hooks.FireRetrieval(ctx, r.sql, r.params, r.rowCount.Load(), elapsed)

	return r.raw.Close()
}
