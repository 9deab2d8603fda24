package proxy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibur/vibur-dbcp-sub001/hooks"
	"github.com/vibur/vibur-dbcp-sub001/proxy"
	"github.com/vibur/vibur-dbcp-sub001/respool"
)

func TestRowsCloseFiresRetrievalHookOnceWithRowCount(t *testing.T) {
	var gotRows int64
	var fireCount int
	registry := hooks.NewBuilder().
		AddRetrieval(func(ctx context.Context, sql string, params []any, rowCount int64, elapsed time.Duration) {
			fireCount++
			gotRows = rowCount
		}).
		Build()

	conn := &fakeConn{}
	handle := &respool.Handle{Raw: conn}
	c := proxy.New(handle, func(ctx context.Context, h *respool.Handle, valid bool) {}, func(h *respool.Handle) {}, nil, registry, nil, nil)

	stmt, err := c.CreateStatement()
	require.NoError(t, err)

	rows, err := stmt.ExecuteQuery(context.Background(), "select * from t")
	require.NoError(t, err)
	for rows.Next() {
	}

	require.NoError(t, rows.Close(context.Background()))
	require.NoError(t, rows.Close(context.Background())) // idempotent

	assert.Equal(t, 1, fireCount)
	assert.EqualValues(t, 1, gotRows)
}
