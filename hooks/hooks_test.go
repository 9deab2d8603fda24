package hooks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibur/vibur-dbcp-sub001/hooks"
)

func TestZeroValueRegistryFiresNothing(t *testing.T) {
	var r hooks.Registry
	require.NotPanics(t, func() {
		r.FireInvocation(context.Background(), nil, "Query", nil)
		r.FireRetrieval(context.Background(), "select 1", nil, 0, 0)
		r.FireOnInit(context.Background(), nil)
		r.FireOnGet(context.Background(), nil)
		r.FireOnRestore(context.Background(), nil)
		r.FireOnDestroy(context.Background(), nil)
	})

	got, err := r.Execute(context.Background(), "select 1", nil, func(ctx context.Context) (any, error) {
		return "result", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "result", got)
}

func TestFireInvocationRunsInRegistrationOrder(t *testing.T) {
	var order []string
	r := hooks.NewBuilder().
		AddInvocation(func(ctx context.Context, proxy any, method string, args []any) {
			order = append(order, "first:"+method)
		}).
		AddInvocation(func(ctx context.Context, proxy any, method string, args []any) {
			order = append(order, "second:"+method)
		}).
		Build()

	r.FireInvocation(context.Background(), nil, "Query", nil)

	assert.Equal(t, []string{"first:Query", "second:Query"}, order)
}

func TestExecuteComposesOnionOutermostFirst(t *testing.T) {
	var order []string
	r := hooks.NewBuilder().
		AddExecution(func(ctx context.Context, sql string, params []any, next hooks.ExecutionNext) (any, error) {
			order = append(order, "outer-before")
			v, err := next(ctx)
			order = append(order, "outer-after")
			return v, err
		}).
		AddExecution(func(ctx context.Context, sql string, params []any, next hooks.ExecutionNext) (any, error) {
			order = append(order, "inner-before")
			v, err := next(ctx)
			order = append(order, "inner-after")
			return v, err
		}).
		Build()

	got, err := r.Execute(context.Background(), "select 1", nil, func(ctx context.Context) (any, error) {
		order = append(order, "terminal")
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []string{"outer-before", "inner-before", "terminal", "inner-after", "outer-after"}, order)
}

func TestExecutePropagatesTerminalError(t *testing.T) {
	r := hooks.NewBuilder().
		AddExecution(func(ctx context.Context, sql string, params []any, next hooks.ExecutionNext) (any, error) {
			return next(ctx)
		}).
		Build()

	wantErr := errors.New("driver failure")
	_, err := r.Execute(context.Background(), "select 1", nil, func(ctx context.Context) (any, error) {
		return nil, wantErr
	})

	assert.Same(t, wantErr, err)
}

func TestFireRetrievalReceivesRowCountAndElapsed(t *testing.T) {
	var gotRows int64
	var gotElapsed time.Duration

	r := hooks.NewBuilder().
		AddRetrieval(func(ctx context.Context, sql string, params []any, rowCount int64, elapsed time.Duration) {
			gotRows = rowCount
			gotElapsed = elapsed
		}).
		Build()

	r.FireRetrieval(context.Background(), "select * from t", nil, 7, 250*time.Millisecond)

	assert.EqualValues(t, 7, gotRows)
	assert.Equal(t, 250*time.Millisecond, gotElapsed)
}

func TestLifecycleHooksFireIndependently(t *testing.T) {
	var fired []string
	r := hooks.NewBuilder().
		AddOnInit(func(ctx context.Context, conn any) { fired = append(fired, "init") }).
		AddOnGet(func(ctx context.Context, conn any) { fired = append(fired, "get") }).
		AddOnRestore(func(ctx context.Context, conn any) { fired = append(fired, "restore") }).
		AddOnDestroy(func(ctx context.Context, conn any) { fired = append(fired, "destroy") }).
		Build()

	r.FireOnInit(context.Background(), nil)
	r.FireOnGet(context.Background(), nil)
	r.FireOnRestore(context.Background(), nil)
	r.FireOnDestroy(context.Background(), nil)

	assert.Equal(t, []string{"init", "get", "restore", "destroy"}, fired)
}
