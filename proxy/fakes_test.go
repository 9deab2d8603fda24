package proxy_test

import (
	"context"

	"github.com/vibur/vibur-dbcp-sub001/rawconn"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }
func (r *fakeResult) LastInsertID() (int64, error)  { return 0, nil }

type fakeRows struct {
	rows   [][]any
	idx    int
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return nil }
func (r *fakeRows) Err() error              { return nil }
func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}

type fakeStmt struct {
	name   string
	closed bool
}

func (s *fakeStmt) Exec(ctx context.Context, args ...any) (rawconn.Result, error) {
	return &fakeResult{rowsAffected: 1}, nil
}

func (s *fakeStmt) Query(ctx context.Context, args ...any) (rawconn.Rows, error) {
	return &fakeRows{rows: [][]any{{1}, {2}}}, nil
}

func (s *fakeStmt) Close() error {
	s.closed = true
	return nil
}

type fakeConn struct {
	prepared   []string
	execed     []string
	queried    []string
	pingErr    error
	closed     bool
	nextStmt   *fakeStmt
	prepareErr error
}

func (c *fakeConn) Prepare(ctx context.Context, name, query string) (rawconn.Stmt, error) {
	c.prepared = append(c.prepared, query)
	if c.prepareErr != nil {
		return nil, c.prepareErr
	}
	if c.nextStmt != nil {
		return c.nextStmt, nil
	}
	return &fakeStmt{name: query}, nil
}

func (c *fakeConn) Exec(ctx context.Context, query string, args ...any) (rawconn.Result, error) {
	c.execed = append(c.execed, query)
	return &fakeResult{rowsAffected: 1}, nil
}

func (c *fakeConn) Query(ctx context.Context, query string, args ...any) (rawconn.Rows, error) {
	c.queried = append(c.queried, query)
	return &fakeRows{rows: [][]any{{1}}}, nil
}

func (c *fakeConn) Ping(ctx context.Context) error { return c.pingErr }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}
