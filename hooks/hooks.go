// Package hooks implements the hook registry: three append-only hook
// sequences frozen after configuration and read without synchronization
// thereafter, plus the simple (non-onion) connection lifecycle hook
// families.
package hooks

import (
	"context"
	"time"
)

// InvocationHook fires before a proxied method call. The proxy package fires
// it only from Conn.PrepareStatement and Conn.PrepareCall (with method name
// "prepareStatement" for both); no other proxied method fires it.
type InvocationHook func(ctx context.Context, proxy any, method string, args []any)

// ExecutionNext is the remaining chain in a StatementExecution onion; the
// innermost link performs the real driver call.
type ExecutionNext func(ctx context.Context) (any, error)

// ExecutionHook wraps an execute* call. Hooks compose as an onion: each
// hook calls next to chain to the one beneath it.
type ExecutionHook func(ctx context.Context, sql string, params []any, next ExecutionNext) (any, error)

// RetrievalHook fires once when a result set closes.
type RetrievalHook func(ctx context.Context, sql string, params []any, rowCount int64, elapsed time.Duration)

// LifecycleHook is one of OnInit/OnGet/OnRestore/OnDestroy: a plain
// sequence, not an onion.
type LifecycleHook func(ctx context.Context, conn any)

// Registry holds the frozen hook sequences. The zero value is usable and
// has no hooks registered; use a Builder to assemble one before Start.
type Registry struct {
	invocation []InvocationHook
	execution  []ExecutionHook
	retrieval  []RetrievalHook
	onInit     []LifecycleHook
	onGet      []LifecycleHook
	onRestore  []LifecycleHook
	onDestroy  []LifecycleHook
}

// Builder assembles a Registry. It is not safe for concurrent use; build the
// registry during configuration, before DataSource.Start, then discard the
// builder.
type Builder struct {
	r Registry
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) AddInvocation(h InvocationHook) *Builder {
	b.r.invocation = append(b.r.invocation, h)
	return b
}

func (b *Builder) AddExecution(h ExecutionHook) *Builder {
	b.r.execution = append(b.r.execution, h)
	return b
}

func (b *Builder) AddRetrieval(h RetrievalHook) *Builder {
	b.r.retrieval = append(b.r.retrieval, h)
	return b
}

func (b *Builder) AddOnInit(h LifecycleHook) *Builder {
	b.r.onInit = append(b.r.onInit, h)
	return b
}

func (b *Builder) AddOnGet(h LifecycleHook) *Builder {
	b.r.onGet = append(b.r.onGet, h)
	return b
}

func (b *Builder) AddOnRestore(h LifecycleHook) *Builder {
	b.r.onRestore = append(b.r.onRestore, h)
	return b
}

func (b *Builder) AddOnDestroy(h LifecycleHook) *Builder {
	b.r.onDestroy = append(b.r.onDestroy, h)
	return b
}

// Build freezes and returns the Registry. Safe to call once.
func (b *Builder) Build() *Registry {
	r := b.r
	return &r
}

// FireInvocation runs every registered invocation hook in registration
// order.
func (r *Registry) FireInvocation(ctx context.Context, proxy any, method string, args []any) {
	for _, h := range r.invocation {
		h(ctx, proxy, method, args)
	}
}

// Execute builds the onion around terminal (the real driver call) and
// invokes it, outermost-hook-first.
func (r *Registry) Execute(ctx context.Context, sql string, params []any, terminal ExecutionNext) (any, error) {
	next := terminal
	for i := len(r.execution) - 1; i >= 0; i-- {
		hook := r.execution[i]
		prevNext := next
		next = func(ctx context.Context) (any, error) {
			return hook(ctx, sql, params, prevNext)
		}
	}
	return next(ctx)
}

// FireRetrieval runs every registered retrieval hook.
func (r *Registry) FireRetrieval(ctx context.Context, sql string, params []any, rowCount int64, elapsed time.Duration) {
	for _, h := range r.retrieval {
		h(ctx, sql, params, rowCount, elapsed)
	}
}

func (r *Registry) FireOnInit(ctx context.Context, conn any) {
	for _, h := range r.onInit {
		h(ctx, conn)
	}
}

func (r *Registry) FireOnGet(ctx context.Context, conn any) {
	for _, h := range r.onGet {
		h(ctx, conn)
	}
}

func (r *Registry) FireOnRestore(ctx context.Context, conn any) {
	for _, h := range r.onRestore {
		h(ctx, conn)
	}
}

func (r *Registry) FireOnDestroy(ctx context.Context, conn any) {
	for _, h := range r.onDestroy {
		h(ctx, conn)
	}
}
