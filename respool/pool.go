// Package respool implements the object pool and its background reducer:
// bounded, fair-capable, non-starving acquisition/release of pooled
// handles, built directly on
// golang.org/x/sync/semaphore the way sinhashubham95/alpha-sql/pool
// rewrote jackc/pgx's puddle-based pgxpool to expose its waiting
// discipline explicitly instead of hiding it behind another pooling
// library.
package respool

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	poolerrors "github.com/vibur/vibur-dbcp-sub001/errors"
	"github.com/vibur/vibur-dbcp-sub001/rawconn"
)

// TakenInfo captures diagnostics for a currently-issued handle, used by the
// monitoring surface's showTakenConnections().
type TakenInfo struct {
	Stack        string
	GoroutineID  string
	TakenAt      time.Time
	LastAccessAt time.Time
}

// Handle is the pool's ownership wrapper around a raw connection.
type Handle struct {
	ID         uuid.UUID
	Raw        rawconn.Conn
	CreatedAt  time.Time
	pooled     bool // false for a non-pooled handle issued after termination
	lastUsedAt atomic64
	version    atomic64
	taken      atomicTaken
}

// Pooled reports whether h counts against the pool's created set — false
// for handles issued by getNonPooled or after termination with
// AllowAcquireAfterTermination.
func (h *Handle) Pooled() bool { return h.pooled }

// LastUsedAt returns the time the handle was last returned to the pool.
func (h *Handle) LastUsedAt() time.Time { return h.lastUsedAt.load() }

// Version increments each time the handle is issued, so stale references to
// it are detectable.
func (h *Handle) Version() uint64 { return uint64(h.version.loadInt()) }

// TakenInfo returns the current taken diagnostics, or ok=false if the
// handle is not currently issued.
func (h *Handle) TakenInfo() (TakenInfo, bool) { return h.taken.load() }

// Pool is the ObjectPool. Pool.created is the authoritative set of live
// handles; the semaphore's permit count always equals maxSize, so
// acquiring a permit corresponds 1:1 to being allowed to hold one created
// (or about-to-be-created) handle.
type Pool struct {
	factory *rawconn.Factory

	mu      sync.Mutex
	created map[*Handle]struct{}
	avail   []*Handle // FIFO at index 0

	sem      *semaphore.Weighted
	maxSize  int64
	minSize  int64
	fair     bool
	tracking bool

	validateOnRestore bool

	closed atomicBool

	// allowAfterTerminate permits take() to hand back a non-pooled handle
	// once the pool has been terminated, instead of failing.
	allowAfterTerminate bool

	totalCreated atomic64

	// onCreate, if set, is invoked each time a new raw connection is
	// registered in the pool (monitoring surface instrumentation hook).
	onCreate func()

	// onDestroy, if set, fires the onDestroy lifecycle hook family just
	// before a raw connection is actually closed, on every destroy path:
	// destroy, Sever, Close, and the non-pooled restore/Sever shortcuts.
	onDestroy func(conn rawconn.Conn)
}

// Config collects the ObjectPool's construction parameters.
type Config struct {
	Factory                      *rawconn.Factory
	MaxSize                      int64
	MinSize                      int64
	Fair                         bool
	EnableConnectionTracking     bool
	ValidateOnRestore            bool
	AllowAcquireAfterTermination bool
	OnCreate                     func()
	OnDestroy                    func(conn rawconn.Conn)
}

// New creates a Pool. It does not eagerly create MinSize connections; call
// EnsureMinSize for that (the DataSource facade does, at Start).
func New(cfg Config) *Pool {
	return &Pool{
		factory:             cfg.Factory,
		created:             make(map[*Handle]struct{}, cfg.MaxSize),
		sem:                 semaphore.NewWeighted(cfg.MaxSize),
		maxSize:             cfg.MaxSize,
		minSize:             cfg.MinSize,
		fair:                cfg.Fair,
		tracking:            cfg.EnableConnectionTracking,
		validateOnRestore:   cfg.ValidateOnRestore,
		allowAfterTerminate: cfg.AllowAcquireAfterTermination,
		onCreate:            cfg.OnCreate,
		onDestroy:           cfg.OnDestroy,
	}
}

// destroyRaw fires onDestroy (if set) and then hands raw to the factory for
// real closure. Every path that permanently closes a raw connection funnels
// through here.
func (p *Pool) destroyRaw(raw rawconn.Conn) {
	if p.onDestroy != nil {
		p.onDestroy(raw)
	}
	p.factory.Destroy(raw)
}

// EnsureMinSize grows the created set (taken and idle handles together) up
// to MinSize, adding each new handle as idle.
func (p *Pool) EnsureMinSize(ctx context.Context) error {
	for {
		p.mu.Lock()
		short := p.minSize - int64(len(p.created))
		p.mu.Unlock()
		if short <= 0 {
			return nil
		}
		h, err := p.createAndPermit(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.avail = append(p.avail, h)
		p.mu.Unlock()
	}
}

// Take blocks until a handle is available or the pool is terminated or the
// context is cancelled.
func (p *Pool) Take(ctx context.Context) (*Handle, error) {
	return p.acquire(ctx, true)
}

// TryTake attempts to acquire a handle by deadline, failing with
// *errors.TimeoutError if it expires.
func (p *Pool) TryTake(ctx context.Context, deadline time.Time) (*Handle, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	h, err := p.acquire(ctx, false)
	if err != nil && ctx.Err() != nil {
		return nil, &poolerrors.TimeoutError{Deadline: deadline.String(), TakenSnapshot: p.takenSnapshotStrings()}
	}
	return h, err
}

func (p *Pool) acquire(ctx context.Context, blocking bool) (*Handle, error) {
	if p.closed.load() {
		if p.allowAfterTerminate {
			return p.nonPooledHandle(ctx)
		}
		return nil, &poolerrors.PoolClosedError{}
	}

	if p.fair || blocking {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			if ctx.Err() != nil && !blocking {
				return nil, err // caller (TryTake) maps to TimeoutError
			}
			return nil, &poolerrors.InterruptedError{Cause: err}
		}
	} else {
		// Non-fair mode permits barging: spin TryAcquire until the
		// deadline. No starvation bound is guaranteed in this mode.
		for {
			if p.sem.TryAcquire(1) {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
	}

	if p.closed.load() {
		p.sem.Release(1)
		if p.allowAfterTerminate {
			return p.nonPooledHandle(ctx)
		}
		return nil, &poolerrors.PoolClosedError{}
	}

	p.mu.Lock()
	var h *Handle
	if len(p.avail) > 0 {
		h = p.avail[0]
		p.avail = p.avail[1:]
	}
	p.mu.Unlock()

	if h == nil {
		created, err := p.createAndPermit(ctx)
		if err != nil {
			p.sem.Release(1)
			return nil, err
		}
		h = created
	}

	h.version.addInt(1)
	info := TakenInfo{TakenAt: time.Now(), LastAccessAt: time.Now(), GoroutineID: goroutineLabel()}
	if p.tracking {
		buf := make([]byte, 8192)
		info.Stack = string(buf[:runtime.Stack(buf, false)])
	}
	h.taken.store(info)
	return h, nil
}

// createAndPermit opens a brand-new connection and registers it in
// p.created. The caller must already hold (or intend to hold) a semaphore
// permit for it.
func (p *Pool) createAndPermit(ctx context.Context) (*Handle, error) {
	raw, err := p.factory.Create(ctx)
	if err != nil {
		return nil, err
	}
	h := &Handle{ID: uuid.New(), Raw: raw, CreatedAt: time.Now(), pooled: true}
	p.mu.Lock()
	p.created[h] = struct{}{}
	p.mu.Unlock()
	p.totalCreated.addInt(1)
	if p.onCreate != nil {
		p.onCreate()
	}
	return h, nil
}

// TotalCreated returns the cumulative count of raw connections ever created
// by this pool (monotonic, unlike CreatedTotal which reflects the current
// live set).
func (p *Pool) TotalCreated() int64 { return p.totalCreated.loadInt() }

// NonPooled returns a freshly created handle that never counts against
// maxSize: the facade's getNonPooled() operation. Unlike Take, it is legal
// to call regardless of Pool state.
func (p *Pool) NonPooled(ctx context.Context) (*Handle, error) {
	return p.nonPooledHandle(ctx)
}

// nonPooledHandle returns a freshly created, uncounted handle used when
// AllowAcquireAfterTermination lets callers keep working after Close. It
// never touches the semaphore or the created set.
func (p *Pool) nonPooledHandle(ctx context.Context) (*Handle, error) {
	raw, err := p.factory.Create(ctx)
	if err != nil {
		return nil, err
	}
	return &Handle{ID: uuid.New(), Raw: raw, CreatedAt: time.Now(), pooled: false}, nil
}

// Restore returns h to the pool. If valid is false (or ValidateOnRestore
// fails), h is destroyed instead, and — to maintain MinSize — a
// replacement may be lazily created.
func (p *Pool) Restore(ctx context.Context, h *Handle, valid bool) {
	h.taken.clear()
	h.lastUsedAt.store(time.Now())

	if !h.pooled {
		// Never acquired a permit or entered created; just close it.
		p.destroyRaw(h.Raw)
		return
	}

	if p.closed.load() {
		p.destroy(h)
		p.sem.Release(1)
		return
	}

	if valid && p.validateOnRestore {
		valid = p.factory.Validate(ctx, h.Raw)
	}

	if !valid {
		p.destroy(h)
		p.sem.Release(1)
		go p.maybeReplenish(context.Background())
		return
	}

	p.mu.Lock()
	p.avail = append(p.avail, h)
	p.mu.Unlock()
	p.sem.Release(1)
}

func (p *Pool) maybeReplenish(ctx context.Context) {
	p.mu.Lock()
	short := p.minSize > int64(len(p.created))
	p.mu.Unlock()
	if !short || p.closed.load() {
		return
	}
	if !p.sem.TryAcquire(1) {
		return
	}
	h, err := p.createAndPermit(ctx)
	if err != nil {
		p.sem.Release(1)
		return
	}
	p.mu.Lock()
	p.avail = append(p.avail, h)
	p.mu.Unlock()
	p.sem.Release(1)
}

// Sever immediately destroys h outside the normal take/restore flow.
func (p *Pool) Sever(h *Handle) {
	if !h.pooled {
		p.destroyRaw(h.Raw)
		return
	}

	p.mu.Lock()
	_, wasCreated := p.created[h]
	if wasCreated {
		delete(p.created, h)
	}
	// remove from avail if present
	for i, a := range p.avail {
		if a == h {
			p.avail = append(p.avail[:i], p.avail[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	p.destroyRaw(h.Raw)
	if wasCreated {
		p.sem.Release(1)
	}
}

func (p *Pool) destroy(h *Handle) {
	p.mu.Lock()
	delete(p.created, h)
	p.mu.Unlock()
	p.destroyRaw(h.Raw)
}

// TakenHolders returns a newest-first snapshot of currently-issued handles.
// Only meaningful when connection tracking is enabled.
func (p *Pool) TakenHolders() []*Handle {
	if !p.tracking {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	avail := make(map[*Handle]struct{}, len(p.avail))
	for _, h := range p.avail {
		avail[h] = struct{}{}
	}

	var taken []*Handle
	for h := range p.created {
		if _, isAvail := avail[h]; !isAvail {
			taken = append(taken, h)
		}
	}
	sort.Slice(taken, func(i, j int) bool {
		ti, _ := taken[i].TakenInfo()
		tj, _ := taken[j].TakenInfo()
		return ti.TakenAt.After(tj.TakenAt)
	})
	return taken
}

func (p *Pool) takenSnapshotStrings() []string {
	taken := p.TakenHolders()
	out := make([]string, 0, len(taken))
	for _, h := range taken {
		info, _ := h.TakenInfo()
		out = append(out, info.Stack)
	}
	return out
}

// RemainingCreated returns maxSize minus the number of currently-created
// handles.
func (p *Pool) RemainingCreated() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxSize - int64(len(p.created))
}

// Taken returns the number of currently-issued handles.
func (p *Pool) Taken() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(len(p.created) - len(p.avail))
}

// CreatedTotal returns the number of handles currently tracked as created
// (taken + available).
func (p *Pool) CreatedTotal() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(len(p.created))
}

// Close terminates the pool: no further Take succeeds (unless
// AllowAcquireAfterTermination), and every created handle (taken or not) is
// destroyed. Idempotent.
func (p *Pool) Close() {
	if !p.closed.compareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	all := make([]*Handle, 0, len(p.created))
	for h := range p.created {
		all = append(all, h)
	}
	p.created = make(map[*Handle]struct{})
	p.avail = nil
	p.mu.Unlock()

	for _, h := range all {
		p.destroyRaw(h.Raw)
	}
}

func goroutineLabel() string {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
