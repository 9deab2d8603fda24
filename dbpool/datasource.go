// Package dbpool implements the DataSource facade: the single entry point
// that wires the raw connection factory, object pool, statement cache,
// hook registry, and invocation proxies into one configured unit with a
// NEW/WORKING/TERMINATED lifecycle.
package dbpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	poolerrors "github.com/vibur/vibur-dbcp-sub001/errors"
	"github.com/vibur/vibur-dbcp-sub001/hooks"
	"github.com/vibur/vibur-dbcp-sub001/proxy"
	"github.com/vibur/vibur-dbcp-sub001/rawconn"
	"github.com/vibur/vibur-dbcp-sub001/respool"
	"github.com/vibur/vibur-dbcp-sub001/stmtcache"
)

// State is the facade's lifecycle state: monotone
// NEW -> WORKING -> TERMINATED.
type State int32

const (
	StateNew State = iota
	StateWorking
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateWorking:
		return "WORKING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// DataSource is the facade. The zero value is not usable; construct with
// NewDataSource, call Start before Get, and Close when done.
type DataSource struct {
	cfg Config

	state atomic.Int32

	pool         *respool.Pool
	cache        *stmtcache.Cache
	hookRegistry *hooks.Registry
	reducer      *respool.Reducer
	metrics      *Metrics
}

// NewDataSource constructs a DataSource in state NEW. Call Start before any
// Get/GetNonPooled call.
func NewDataSource(cfg Config) *DataSource {
	return &DataSource{cfg: cfg}
}

// State returns the facade's current lifecycle state.
func (ds *DataSource) State() State { return State(ds.state.Load()) }

// Start validates cfg, builds the pool/cache/hooks/reducer, and registers
// the monitoring surface. It is not safe to call concurrently with itself,
// and must be called exactly once before any Get.
func (ds *DataSource) Start(ctx context.Context) error {
	if !ds.state.CompareAndSwap(int32(StateNew), int32(StateWorking)) {
		return &poolerrors.ConfigError{Field: "state", Cause: fmt.Errorf("Start called from state %s", ds.State())}
	}

	if err := ds.cfg.validate(); err != nil {
		ds.state.Store(int32(StateTerminated))
		return err
	}

	ds.cache = stmtcache.New(ds.cfg.StatementCacheMaxSize)
	ds.metrics = newMetrics(ds.cfg.MetricsNamespace)
	ds.cache.SetMetricsHooks(ds.metrics.incCacheHit, ds.metrics.incCacheEviction)

	// The hook registry must exist before the factory/pool below are built:
	// both wire FireOnInit/FireOnDestroy as callbacks, and EnsureMinSize
	// creates connections (firing onInit) synchronously within this call.
	builder := ds.cfg.Hooks
	if builder == nil {
		builder = hooks.NewBuilder()
	}
	if ds.cfg.LogQueryExecutionLongerThan > 0 {
		builder.AddExecution(ds.logSlowExecution)
	}
	if ds.cfg.LogLargeResultSet > 0 {
		builder.AddRetrieval(ds.logLargeResultSet)
	}
	ds.hookRegistry = builder.Build()

	factory := &rawconn.Factory{
		Open: ds.cfg.Opener,
		Defaults: rawconn.Defaults{
			AutoCommit: ds.cfg.DefaultAutoCommit,
			ReadOnly:   ds.cfg.DefaultReadOnly,
			Isolation:  ds.cfg.DefaultTransactionIsolation,
			Catalog:    ds.cfg.DefaultCatalog,
			InitSQL:    ds.cfg.InitSQL,
		},
		TestQuery:       ds.cfg.TestConnectionQuery,
		ValidateTimeout: ds.cfg.ValidateTimeout,
		RetryAttempts:   ds.cfg.AcquireRetryAttempts,
		RetryDelay:      ds.cfg.AcquireRetryDelay,
		OnInit:          ds.hookRegistry.FireOnInit,
	}

	ds.pool = respool.New(respool.Config{
		Factory:                      factory,
		MaxSize:                      ds.cfg.PoolMaxSize,
		MinSize:                      ds.cfg.PoolInitialSize,
		Fair:                         ds.cfg.PoolFair,
		EnableConnectionTracking:     ds.cfg.PoolEnableConnectionTracking,
		ValidateOnRestore:            ds.cfg.ConnectionIdleLimit > 0,
		AllowAcquireAfterTermination: ds.cfg.AllowConnectionAfterTermination,
		OnCreate:                     ds.metrics.incPoolCreated,
		OnDestroy: func(conn rawconn.Conn) {
			ds.hookRegistry.FireOnDestroy(context.Background(), conn)
		},
	})

	if err := ds.pool.EnsureMinSize(ctx); err != nil {
		ds.pool.Close()
		ds.cache.Close()
		ds.state.Store(int32(StateTerminated))
		return err
	}

	if err := ds.metrics.register(ds.cfg.Registerer); err != nil {
		ds.pool.Close()
		ds.cache.Close()
		ds.state.Store(int32(StateTerminated))
		return err
	}

	if ds.cfg.ReducerInterval > 0 {
		ds.reducer = respool.NewReducer(ds.pool, ds.cfg.ReducerInterval, ds.cfg.ReducerSamples, ds.cfg.ReducerFraction)
		ds.reducer.Start()
	}

	return nil
}

// Close is idempotent: it stops the reducer, closes the cache (closing
// every cached raw statement), and closes the pool (destroying every
// created handle), then unregisters the monitoring surface.
func (ds *DataSource) Close() error {
	prev := State(ds.state.Swap(int32(StateTerminated)))
	if prev == StateTerminated {
		return nil
	}
	if ds.reducer != nil {
		ds.reducer.Stop()
	}
	if ds.cache != nil {
		ds.cache.Close()
	}
	if ds.pool != nil {
		ds.pool.Close()
	}
	if ds.metrics != nil {
		ds.metrics.unregister(ds.cfg.Registerer)
	}
	return nil
}

// Get acquires a ConnectionProxy using the configured restriction, if any.
func (ds *DataSource) Get(ctx context.Context) (*proxy.Conn, error) {
	return ds.get(ctx, ds.cfg.Restriction)
}

// GetRestricted acquires a ConnectionProxy overriding the configured
// restriction with r for this call only.
func (ds *DataSource) GetRestricted(ctx context.Context, r *proxy.Restriction) (*proxy.Conn, error) {
	return ds.get(ctx, r)
}

func (ds *DataSource) get(ctx context.Context, restriction *proxy.Restriction) (*proxy.Conn, error) {
	switch ds.State() {
	case StateTerminated:
		if !ds.cfg.AllowConnectionAfterTermination {
			return nil, &poolerrors.PoolClosedError{}
		}
		return ds.getNonPooled(ctx, restriction)
	case StateWorking:
		// fall through
	default:
		return nil, &poolerrors.PoolClosedError{}
	}

	takenAt := time.Now()
	var (
		handle *respool.Handle
		err    error
	)
	if ds.cfg.ConnectionTimeout > 0 {
		handle, err = ds.pool.TryTake(ctx, takenAt.Add(ds.cfg.ConnectionTimeout))
	} else {
		handle, err = ds.pool.Take(ctx)
	}
	if err != nil {
		var timeoutErr *poolerrors.TimeoutError
		if !ds.cfg.LogTakenConnectionsOnTimeout && errors.As(err, &timeoutErr) {
			timeoutErr.TakenSnapshot = nil
		}
		return nil, err
	}
	ds.metrics.setPoolTaken(ds.pool.Taken())

	return proxy.New(handle, ds.releaseFunc(takenAt), ds.severFunc(), ds.cache, ds.hookRegistry, restriction, ds.clearWarningsFunc()), nil
}

// GetNonPooled returns a ConnectionProxy wrapping a raw connection that
// never counts against PoolMaxSize and is never returned to the pool; its
// Close always destroys it.
func (ds *DataSource) GetNonPooled(ctx context.Context) (*proxy.Conn, error) {
	return ds.getNonPooled(ctx, ds.cfg.Restriction)
}

func (ds *DataSource) getNonPooled(ctx context.Context, restriction *proxy.Restriction) (*proxy.Conn, error) {
	if ds.pool == nil {
		return nil, &poolerrors.ConfigError{Field: "state", Cause: fmt.Errorf("GetNonPooled called before Start")}
	}
	handle, err := ds.pool.NonPooled(ctx)
	if err != nil {
		return nil, err
	}
	return proxy.New(handle, ds.releaseFunc(time.Now()), ds.severFunc(), nil, ds.hookRegistry, restriction, nil), nil
}

// SeverConnection immediately destroys the raw connection backing c,
// bypassing the normal return-to-pool path.
func (ds *DataSource) SeverConnection(c *proxy.Conn) {
	c.Sever()
}

func (ds *DataSource) releaseFunc(takenAt time.Time) proxy.ReleaseFunc {
	return func(ctx context.Context, handle *respool.Handle, valid bool) {
		if ds.cfg.LogConnectionLongerThan > 0 {
			if elapsed := time.Since(takenAt); elapsed > ds.cfg.LogConnectionLongerThan {
				ds.cfg.Logger.Log(ctx, logLevelForStack(ds.cfg.LogStackTraceForLongConnection), "connection held longer than threshold", map[string]any{
					"elapsed": elapsed.String(),
				})
			}
		}
		ds.pool.Restore(ctx, handle, valid)
		ds.metrics.setPoolTaken(ds.pool.Taken())
	}
}

func (ds *DataSource) severFunc() func(*respool.Handle) {
	return func(handle *respool.Handle) {
		ds.pool.Sever(handle)
		ds.metrics.setPoolTaken(ds.pool.Taken())
	}
}

func (ds *DataSource) clearWarningsFunc() func(rawconn.Conn) error {
	if ds.cfg.ClearSQLWarnings == nil {
		return nil
	}
	return ds.cfg.ClearSQLWarnings
}

// PoolInitialSize returns the configured initial pool size (monitoring
// surface, read-only).
func (ds *DataSource) PoolInitialSize() int64 { return ds.cfg.PoolInitialSize }

// PoolMaxSize returns the configured maximum pool size.
func (ds *DataSource) PoolMaxSize() int64 { return ds.cfg.PoolMaxSize }

// Taken returns the number of currently-issued handles.
func (ds *DataSource) Taken() int64 { return ds.pool.Taken() }

// RemainingCreated returns how many more connections the pool may create
// before reaching PoolMaxSize.
func (ds *DataSource) RemainingCreated() int64 { return ds.pool.RemainingCreated() }

// ShowTakenConnections returns a formatted, newest-first list of currently
// issued handles with their taken time and captured stack, the monitoring
// surface's showTakenConnections().
func (ds *DataSource) ShowTakenConnections() []string {
	var out []string
	for _, h := range ds.pool.TakenHolders() {
		info, ok := h.TakenInfo()
		if !ok {
			continue
		}
		out = append(out, fmt.Sprintf("taken at %s:\n%s", info.TakenAt.Format(time.RFC3339), info.Stack))
	}
	return out
}

// SetLogQueryExecutionLongerThan dynamically updates the slow-execution
// logging threshold (monitoring surface dynamic setter).
func (ds *DataSource) SetLogQueryExecutionLongerThan(d time.Duration) { ds.cfg.LogQueryExecutionLongerThan = d }

// SetLogConnectionLongerThan dynamically updates the long-held-connection
// logging threshold.
func (ds *DataSource) SetLogConnectionLongerThan(d time.Duration) { ds.cfg.LogConnectionLongerThan = d }
