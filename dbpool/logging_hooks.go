package dbpool

import (
	"context"
	"time"

	"github.com/vibur/vibur-dbcp-sub001/hooks"
	"github.com/vibur/vibur-dbcp-sub001/internal/logging"
)

// logSlowExecution is registered as an ExecutionHook when
// LogQueryExecutionLongerThan is configured; it logs any execute* call
// whose wall-clock time exceeds the threshold.
func (ds *DataSource) logSlowExecution(ctx context.Context, sql string, params []any, next hooks.ExecutionNext) (any, error) {
	start := time.Now()
	result, err := next(ctx)
	elapsed := time.Since(start)
	if elapsed > ds.cfg.LogQueryExecutionLongerThan {
		data := map[string]any{"sql": sql, "elapsed": elapsed.String()}
		if ds.cfg.IncludeQueryParameters {
			data["params"] = params
		}
		ds.cfg.Logger.Log(ctx, logLevelForStack(ds.cfg.LogStackTraceForLongQueryExecution), "query execution longer than threshold", data)
	}
	return result, err
}

// logLargeResultSet is registered as a RetrievalHook when LogLargeResultSet
// is configured; it logs any result set whose row count exceeds the
// threshold.
func (ds *DataSource) logLargeResultSet(ctx context.Context, sql string, params []any, rowCount int64, elapsed time.Duration) {
	if rowCount <= ds.cfg.LogLargeResultSet {
		return
	}
	data := map[string]any{"sql": sql, "rowCount": rowCount, "elapsed": elapsed.String()}
	if ds.cfg.IncludeQueryParameters {
		data["params"] = params
	}
	ds.cfg.Logger.Log(ctx, logLevelForStack(ds.cfg.LogStackTraceForLargeResultSet), "large result set", data)
}

// logLevelForStack picks Warn when a stack trace was requested (callers
// configuring that flag want higher visibility), Info otherwise.
func logLevelForStack(wantStack bool) logging.Level {
	if wantStack {
		return logging.LevelWarn
	}
	return logging.LevelInfo
}
