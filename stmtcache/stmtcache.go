// Package stmtcache implements the statement cache: a bounded, LRU-evicting
// key→holder map whose values participate in a three-state protocol
// (AVAILABLE, IN_USE, EVICTED) guaranteeing at-most-one concurrent user per
// cached statement.
//
// The bound is delegated to github.com/hashicorp/golang-lru/v2, the same
// concrete concern the broader example pack reaches for (catherinevee's
// driftmgr pulls it in for its own bounded caches); only the state machine
// is hand-rolled, since the lifecycle transitions need to stay visible as
// explicit atomics rather than hide behind the LRU library's own locking.
package stmtcache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vibur/vibur-dbcp-sub001/rawconn"
)

// Method identifies the overload of prepareStatement/prepareCall that
// produced a cache entry, replacing reflection-based method identity with a
// cheap enum.
type Method int

const (
	MethodPrepareStatement Method = iota
	MethodPrepareCall
)

// state is the three-state lifecycle atom.
type state = int32

const (
	available state = iota
	inUse
	evicted
)

// Key identifies a cached statement: reference identity of the owning
// connection, the preparing method, and the immutable argument sequence
// (pre-serialized by the caller, since Go structs need comparable fields to
// be usable as a map key).
type Key struct {
	Conn   rawconn.Conn
	Method Method
	Args   string
}

// Holder wraps a raw prepared statement with its lifecycle atom. A Holder
// whose internal atom is nil is "uncached": it was never inserted into the
// cache map.
type Holder struct {
	Raw     rawconn.Stmt
	SQLText string

	key                Key
	state              *atomic.Int32
	suppressEvictClose atomic.Bool
}

// Uncached reports whether this holder bypassed the cache entirely.
func (h *Holder) Uncached() bool { return h.state == nil }

func newUncachedHolder(key Key, raw rawconn.Stmt, sql string) *Holder {
	return &Holder{Raw: raw, SQLText: sql, key: key}
}

// Cache is the StatementCache. A capacity of 0 disables caching: every Take
// behaves as if the cache were already closed.
type Cache struct {
	capacity int
	closed   atomic.Bool

	// insertMu serializes the absent-key check-then-insert sequence in
	// Take; golang-lru's own Cache is internally synchronized for single
	// operations, but putIfAbsent is a compound operation that needs its
	// own short critical section, same as a ConcurrentHashMap bucket lock
	// would provide in the reference implementation.
	insertMu sync.Mutex
	lru      *lru.Cache[Key, *Holder]

	// onHit/onEvicted, if set, are invoked on a cache hit and on a genuine
	// LRU-capacity eviction respectively (monitoring surface instrumentation).
	onHit     func()
	onEvicted func()
}

// SetMetricsHooks wires optional instrumentation callbacks. Call before any
// concurrent Take; it is not itself synchronized against them.
func (c *Cache) SetMetricsHooks(onHit, onEvicted func()) {
	c.onHit = onHit
	c.onEvicted = onEvicted
}

// New creates a Cache bounded at capacity. capacity <= 0 disables caching.
func New(capacity int) *Cache {
	c := &Cache{capacity: capacity}
	if capacity <= 0 {
		c.closed.Store(true)
		return c
	}
	l, err := lru.NewWithEvict[Key, *Holder](capacity, c.onEvict)
	if err != nil {
		// Only returns an error for a non-positive size, already excluded above.
		panic(err)
	}
	c.lru = l
	return c
}

// onEvict is golang-lru's eviction callback. It fires for every removal
// from the underlying map, including the explicit ones driven by Remove,
// RemoveAll, and Close; those paths set suppressEvictClose first so this
// callback only performs the automatic-eviction close logic below for
// genuine LRU-capacity evictions.
func (c *Cache) onEvict(_ Key, h *Holder) {
	if h.suppressEvictClose.Load() {
		return
	}
	prev := h.state.Swap(evicted)
	if prev == available && h.Raw != nil {
		// No current user to close it at Restore, so this callback does
		// it directly.
		h.Raw.Close()
	}
	// prev == inUse: the current user closes it at Restore.
	if c.onEvicted != nil {
		c.onEvicted()
	}
}

// Take returns the cached holder for key if one is AVAILABLE, producing and
// wrapping a new raw statement otherwise. sql is recorded on the holder for
// diagnostics; produce performs the actual prepare against the driver.
func (c *Cache) Take(key Key, sql string, produce func() (rawconn.Stmt, error)) (*Holder, error) {
	if c.closed.Load() {
		raw, err := produce()
		if err != nil {
			return nil, err
		}
		return newUncachedHolder(key, raw, sql), nil
	}

	if h, ok := c.lru.Get(key); ok {
		if h.state.CompareAndSwap(available, inUse) {
			if c.onHit != nil {
				c.onHit()
			}
			return h, nil
		}
		// Another caller holds it, or it lost the race with a concurrent
		// eviction: fall back to an uncached holder.
		raw, err := produce()
		if err != nil {
			return nil, err
		}
		return newUncachedHolder(key, raw, sql), nil
	}

	raw, err := produce()
	if err != nil {
		return nil, err
	}

	h := &Holder{Raw: raw, SQLText: sql, key: key, state: new(atomic.Int32)}
	h.state.Store(inUse)

	c.insertMu.Lock()
	_, exists := c.lru.Peek(key)
	if !exists {
		c.lru.Add(key, h)
	}
	c.insertMu.Unlock()

	if exists {
		// Lost the race to insert: the caller still gets to use the
		// statement it just produced, but uncached — it must close it on
		// release.
		h.state = nil
	}
	return h, nil
}

// Restore releases holder back to AVAILABLE. clearWarnings, if non-nil, runs
// first; if it errors the entry is removed (not closed — the caller closes
// the raw statement) and Restore returns false. Restore also returns false
// for an uncached holder, or when the entry was concurrently evicted — in
// either case the caller must close the raw statement itself.
func (c *Cache) Restore(h *Holder, clearWarnings func() error) bool {
	if h.Uncached() {
		return false
	}

	if clearWarnings != nil {
		if err := clearWarnings(); err != nil {
			c.Remove(h)
			return false
		}
	}

	return h.state.CompareAndSwap(inUse, available)
}

// Remove drops holder's entry without closing the raw statement; the caller
// owns closing it.
func (c *Cache) Remove(h *Holder) {
	if h.Uncached() || c.lru == nil {
		return
	}
	h.suppressEvictClose.Store(true)
	c.lru.Remove(h.key)
}

// RemoveAll removes and closes every entry whose key references conn.
// Invoked when a connection is physically destroyed.
func (c *Cache) RemoveAll(conn rawconn.Conn) {
	if c.lru == nil {
		return
	}
	for _, key := range c.lru.Keys() {
		if key.Conn != conn {
			continue
		}
		if h, ok := c.lru.Peek(key); ok {
			h.suppressEvictClose.Store(true)
			c.lru.Remove(key)
			if h.Raw != nil {
				h.Raw.Close()
			}
		}
	}
}

// Close idempotently closes every cached raw statement and disables the
// cache: subsequent Take calls behave as if capacity were 0.
func (c *Cache) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.lru == nil {
		return
	}
	for _, key := range c.lru.Keys() {
		if h, ok := c.lru.Peek(key); ok {
			h.suppressEvictClose.Store(true)
			c.lru.Remove(key)
			if h.Raw != nil {
				h.Raw.Close()
			}
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Cap returns the configured capacity.
func (c *Cache) Cap() int { return c.capacity }
