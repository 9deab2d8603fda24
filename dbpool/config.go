package dbpool

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vibur/vibur-dbcp-sub001/hooks"
	"github.com/vibur/vibur-dbcp-sub001/internal/logging"
	"github.com/vibur/vibur-dbcp-sub001/proxy"
	"github.com/vibur/vibur-dbcp-sub001/rawconn"
)

// Config collects every recognized configuration option. It is built by
// ParseConfig or by New (Option values applied over the defaults), then
// passed to NewDataSource.
type Config struct {
	// Connectivity.
	Opener rawconn.Opener // required; the externalDataSource equivalent
	DSN    string         // informational; recorded for diagnostics/logging only

	// Validation.
	ConnectionIdleLimit time.Duration
	ValidateTimeout     time.Duration
	TestConnectionQuery string
	InitSQL             string
	ClearSQLWarnings    func(rawconn.Conn) error

	// Pool shape.
	PoolInitialSize                 int64
	PoolMaxSize                     int64
	PoolFair                        bool
	PoolEnableConnectionTracking    bool
	AllowConnectionAfterTermination bool

	// Reducer.
	ReducerInterval time.Duration
	ReducerSamples  int
	ReducerFraction float64

	// Acquisition.
	ConnectionTimeout    time.Duration
	LoginTimeout         time.Duration
	AcquireRetryDelay    time.Duration
	AcquireRetryAttempts int

	// Cache. 0 disables, >0 enables bounded to this size.
	StatementCacheMaxSize int

	// Logging thresholds and behavior.
	LogConnectionLongerThan            time.Duration
	LogStackTraceForLongConnection     bool
	LogQueryExecutionLongerThan        time.Duration
	LogStackTraceForLongQueryExecution bool
	LogLargeResultSet                  int64
	LogStackTraceForLargeResultSet     bool
	LogTakenConnectionsOnTimeout       bool
	IncludeQueryParameters             bool

	// Defaults applied to every created connection.
	DefaultAutoCommit          bool
	DefaultReadOnly            bool
	DefaultTransactionIsolation rawconn.Isolation
	DefaultCatalog              string
	ResetDefaultsAfterUse       bool

	// Restrictions.
	Restriction *proxy.Restriction

	// Hooks, built during configuration and frozen at Start.
	Hooks *hooks.Builder

	// Ambient.
	Logger           logging.Logger
	MetricsNamespace string
	Registerer       prometheus.Registerer
}

// Option mutates a Config during construction, mirroring pgxpool's pattern
// of a Config value built up before Connect/New is called.
type Option func(*Config)

// defaultConfig sets sensible defaults where one is implied; fields with
// no natural default are left at their Go zero value.
func defaultConfig() Config {
	return Config{
		PoolMaxSize:           4,
		ValidateTimeout:       5 * time.Second,
		ReducerSamples:        1,
		ReducerFraction:       0.5,
		AcquireRetryAttempts:  0,
		StatementCacheMaxSize: 0,
		DefaultAutoCommit:     true,
		Logger:                logging.Noop{},
		MetricsNamespace:      "dbpool",
		Registerer:            prometheus.NewRegistry(),
	}
}

func WithOpener(o rawconn.Opener) Option { return func(c *Config) { c.Opener = o } }

func WithPoolSize(initial, max int64) Option {
	return func(c *Config) { c.PoolInitialSize = initial; c.PoolMaxSize = max }
}

func WithPoolFair(fair bool) Option { return func(c *Config) { c.PoolFair = fair } }

func WithConnectionTracking(enabled bool) Option {
	return func(c *Config) { c.PoolEnableConnectionTracking = enabled }
}

func WithAllowAcquireAfterTermination(allow bool) Option {
	return func(c *Config) { c.AllowConnectionAfterTermination = allow }
}

func WithStatementCacheMaxSize(n int) Option {
	return func(c *Config) { c.StatementCacheMaxSize = n }
}

func WithReducer(interval time.Duration, samples int, fraction float64) Option {
	return func(c *Config) { c.ReducerInterval = interval; c.ReducerSamples = samples; c.ReducerFraction = fraction }
}

func WithAcquireRetry(delay time.Duration, attempts int) Option {
	return func(c *Config) { c.AcquireRetryDelay = delay; c.AcquireRetryAttempts = attempts }
}

func WithConnectionTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectionTimeout = d }
}

func WithValidation(testQuery string, timeout time.Duration) Option {
	return func(c *Config) { c.TestConnectionQuery = testQuery; c.ValidateTimeout = timeout }
}

func WithRestriction(r *proxy.Restriction) Option { return func(c *Config) { c.Restriction = r } }

func WithLogger(l logging.Logger) Option { return func(c *Config) { c.Logger = l } }

func WithHooks(b *hooks.Builder) Option { return func(c *Config) { c.Hooks = b } }

func WithRegisterer(reg prometheus.Registerer) Option { return func(c *Config) { c.Registerer = reg } }

func WithLoggingThresholds(connLongerThan, queryLongerThan time.Duration, logStacks bool) Option {
	return func(c *Config) {
		c.LogConnectionLongerThan = connLongerThan
		c.LogQueryExecutionLongerThan = queryLongerThan
		c.LogStackTraceForLongConnection = logStacks
		c.LogStackTraceForLongQueryExecution = logStacks
	}
}

// New builds a Config from defaultConfig with opts applied, the way
// pgxpool.Config values are assembled before Connect.
func New(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ParseConfig recognizes the same option names as New's functional options,
// expressed as query parameters on a DSN, mirroring pgxpool.ParseConfig's
// URL/DSN recognition. The whole dsn, query included, is recorded verbatim
// in Config.DSN for diagnostics; the caller must still supply Opener.
func ParseConfig(dsn string) (Config, error) {
	cfg := defaultConfig()
	cfg.DSN = dsn

	u, err := url.Parse(dsn)
	if err != nil {
		return Config{}, &configParseError{Field: "dsn", Cause: err}
	}

	q := u.Query()
	for key := range q {
		v := q.Get(key)
		var err error
		switch key {
		case "poolInitialSize":
			cfg.PoolInitialSize, err = parseInt64(v)
		case "poolMaxSize":
			cfg.PoolMaxSize, err = parseInt64(v)
		case "poolFair":
			cfg.PoolFair, err = strconv.ParseBool(v)
		case "poolEnableConnectionTracking":
			cfg.PoolEnableConnectionTracking, err = strconv.ParseBool(v)
		case "allowConnectionAfterTermination":
			cfg.AllowConnectionAfterTermination, err = strconv.ParseBool(v)
		case "connectionIdleLimitSeconds":
			cfg.ConnectionIdleLimit, err = parseSeconds(v)
		case "validateTimeoutSeconds":
			cfg.ValidateTimeout, err = parseSeconds(v)
		case "testConnectionQuery":
			cfg.TestConnectionQuery = v
		case "initSQL":
			cfg.InitSQL = v
		case "reducerIntervalSeconds":
			cfg.ReducerInterval, err = parseSeconds(v)
		case "reducerSamples":
			var n int64
			n, err = parseInt64(v)
			cfg.ReducerSamples = int(n)
		case "connectionTimeoutMs":
			cfg.ConnectionTimeout, err = parseMillis(v)
		case "loginTimeoutSeconds":
			cfg.LoginTimeout, err = parseSeconds(v)
		case "acquireRetryDelayMs":
			cfg.AcquireRetryDelay, err = parseMillis(v)
		case "acquireRetryAttempts":
			var n int64
			n, err = parseInt64(v)
			cfg.AcquireRetryAttempts = int(n)
		case "statementCacheMaxSize":
			var n int64
			n, err = parseInt64(v)
			cfg.StatementCacheMaxSize = int(n)
		case "logConnectionLongerThanMs":
			cfg.LogConnectionLongerThan, err = parseMillis(v)
		case "logStackTraceForLongConnection":
			cfg.LogStackTraceForLongConnection, err = strconv.ParseBool(v)
		case "logQueryExecutionLongerThanMs":
			cfg.LogQueryExecutionLongerThan, err = parseMillis(v)
		case "logStackTraceForLongQueryExecution":
			cfg.LogStackTraceForLongQueryExecution, err = strconv.ParseBool(v)
		case "logTakenConnectionsOnTimeout":
			cfg.LogTakenConnectionsOnTimeout, err = strconv.ParseBool(v)
		case "includeQueryParameters":
			cfg.IncludeQueryParameters, err = strconv.ParseBool(v)
		case "defaultAutoCommit":
			cfg.DefaultAutoCommit, err = strconv.ParseBool(v)
		case "defaultReadOnly":
			cfg.DefaultReadOnly, err = strconv.ParseBool(v)
		case "defaultCatalog":
			cfg.DefaultCatalog = v
		case "resetDefaultsAfterUse":
			cfg.ResetDefaultsAfterUse, err = strconv.ParseBool(v)
		case "defaultTransactionIsolation":
			cfg.DefaultTransactionIsolation, err = parseIsolation(v)
		default:
			// Unrecognized keys are ignored, the way pgxpool.ParseConfig
			// ignores run-time parameters it doesn't special-case.
		}
		if err != nil {
			return Config{}, &configParseError{Field: key, Cause: err}
		}
	}

	return cfg, nil
}

func parseInt64(v string) (int64, error)  { return strconv.ParseInt(v, 10, 64) }
func parseSeconds(v string) (time.Duration, error) {
	n, err := strconv.Atoi(v)
	return time.Duration(n) * time.Second, err
}
func parseMillis(v string) (time.Duration, error) {
	n, err := strconv.Atoi(v)
	return time.Duration(n) * time.Millisecond, err
}

func parseIsolation(v string) (rawconn.Isolation, error) {
	switch strings.ToUpper(v) {
	case "", "NONE":
		return rawconn.IsolationNone, nil
	case "READ_UNCOMMITTED":
		return rawconn.IsolationReadUncommitted, nil
	case "READ_COMMITTED":
		return rawconn.IsolationReadCommitted, nil
	case "REPEATABLE_READ":
		return rawconn.IsolationRepeatableRead, nil
	case "SERIALIZABLE":
		return rawconn.IsolationSerializable, nil
	default:
		return rawconn.IsolationDefault, fmt.Errorf("unrecognized isolation level %q", v)
	}
}

type configParseError struct {
	Field string
	Cause error
}

func (e *configParseError) Error() string { return fmt.Sprintf("parse config %s: %v", e.Field, e.Cause) }
func (e *configParseError) Unwrap() error { return e.Cause }
