//go:build integration

package dbpool_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/vibur/vibur-dbcp-sub001/dbpool"
	"github.com/vibur/vibur-dbcp-sub001/rawconn"
)

// sqlConn adapts a single database/sql connection to rawconn.Conn. One
// Opener call checks out one *sql.Conn, matching the one-Opener-call-per-
// physical-connection contract Factory.createOnce relies on.
type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) Prepare(ctx context.Context, name, query string) (rawconn.Stmt, error) {
	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &sqlStmt{stmt: stmt}, nil
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) (rawconn.Result, error) {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlResult{res: res}, nil
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (rawconn.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (c *sqlConn) Ping(ctx context.Context) error { return c.conn.PingContext(ctx) }
func (c *sqlConn) Close() error                   { return c.conn.Close() }

type sqlStmt struct{ stmt *sql.Stmt }

func (s *sqlStmt) Exec(ctx context.Context, args ...any) (rawconn.Result, error) {
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	return &sqlResult{res: res}, nil
}

func (s *sqlStmt) Query(ctx context.Context, args ...any) (rawconn.Rows, error) {
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (s *sqlStmt) Close() error { return s.stmt.Close() }

type sqlRows struct{ rows *sql.Rows }

func (r *sqlRows) Next() bool              { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error  { return r.rows.Scan(dest...) }
func (r *sqlRows) Err() error              { return r.rows.Err() }
func (r *sqlRows) Close() error            { return r.rows.Close() }

type sqlResult struct{ res sql.Result }

func (r *sqlResult) RowsAffected() (int64, error) { return r.res.RowsAffected() }
func (r *sqlResult) LastInsertID() (int64, error) { return r.res.LastInsertId() }

func newMySQLDataSource(t *testing.T) *dbpool.DataSource {
	t.Helper()
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("pooltest"),
		mysql.WithUsername("pooluser"),
		mysql.WithPassword("poolpass"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := dbpool.New(
		dbpool.WithOpener(func(ctx context.Context) (rawconn.Conn, error) {
			c, err := db.Conn(ctx)
			if err != nil {
				return nil, err
			}
			return &sqlConn{conn: c}, nil
		}),
		dbpool.WithPoolSize(1, 4),
		dbpool.WithValidation("select 1", 5*time.Second),
		dbpool.WithStatementCacheMaxSize(16),
	)
	ds := dbpool.NewDataSource(cfg)
	require.NoError(t, ds.Start(ctx))
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func TestIntegrationQueryAgainstRealMySQL(t *testing.T) {
	ds := newMySQLDataSource(t)

	conn, err := ds.Get(context.Background())
	require.NoError(t, err)
	defer conn.Close(context.Background())

	stmt, err := conn.CreateStatement()
	require.NoError(t, err)

	rows, err := stmt.ExecuteQuery(context.Background(), "select 1")
	require.NoError(t, err)
	defer rows.Close(context.Background())

	require.True(t, rows.Next())
	var got int
	require.NoError(t, rows.Scan(&got))
	require.Equal(t, 1, got)
}

func TestIntegrationPreparedStatementIsReusedAcrossAcquisitions(t *testing.T) {
	ds := newMySQLDataSource(t)

	conn, err := ds.Get(context.Background())
	require.NoError(t, err)

	stmt, err := conn.PrepareStatement(context.Background(), "select 1", nil)
	require.NoError(t, err)
	require.NoError(t, stmt.Close())
	require.NoError(t, conn.Close(context.Background()))

	conn2, err := ds.Get(context.Background())
	require.NoError(t, err)
	defer conn2.Close(context.Background())

	stmt2, err := conn2.PrepareStatement(context.Background(), "select 1", nil)
	require.NoError(t, err)
	require.NoError(t, stmt2.Close())
}
