// Package database owns the connection pool for the target PostgreSQL database and the
// short-lived administrative connections that bypass it.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrPoolExhausted is returned by Acquire when every connection stays checked out for longer
// than the configured acquire timeout.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ConnectionError reports that the database could not be reached.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection failed (%s): %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type PoolConfig struct {
	DSN      string
	MinConns int
	MaxConns int
	// AcquireTimeout bounds how long Acquire waits for a free connection. Zero waits until
	// the caller's context is done.
	AcquireTimeout time.Duration
}

// Pool is a bounded set of connections to the target database. Acquire blocks while all
// MaxConns connections are checked out; idle connections are kept without expiry.
type Pool struct {
	db             *sql.DB
	minConns       int
	acquireTimeout time.Duration
}

// Open builds the pool and warms MinConns connections. A warm-up failure is returned as a
// *ConnectionError together with a usable pool, so callers can decide whether an unreachable
// database is fatal.
func Open(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.MaxConns < 1 {
		return nil, fmt.Errorf("max conns must be at least 1")
	}
	if cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("min conns must be between 0 and %d", cfg.MaxConns)
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool := NewPool(db, cfg)
	if err := pool.warm(ctx); err != nil {
		return pool, err
	}
	return pool, nil
}

// NewPool wraps an existing *sql.DB and applies the pool bounds to it.
func NewPool(db *sql.DB, cfg PoolConfig) *Pool {
	maxConns := cfg.MaxConns
	if maxConns < 1 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)
	return &Pool{db: db, minConns: cfg.MinConns, acquireTimeout: cfg.AcquireTimeout}
}

func (p *Pool) warm(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conns := make([]*sql.Conn, 0, p.minConns)
	defer func() {
		for _, conn := range conns {
			p.Release(conn)
		}
	}()
	for i := 0; i < p.minConns; i++ {
		conn, err := p.db.Conn(pingCtx)
		if err != nil {
			return &ConnectionError{Op: "warm", Err: err}
		}
		conns = append(conns, conn)
		if err := conn.PingContext(pingCtx); err != nil {
			return &ConnectionError{Op: "warm", Err: err}
		}
	}
	return nil
}

// Acquire checks a connection out of the pool. The caller owns it exclusively until Release.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	acquireCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	waitsBefore := p.db.Stats().WaitCount
	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		if p.acquireTimeout > 0 && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && p.saturated(waitsBefore) {
			return nil, fmt.Errorf("%w: no connection freed within %s", ErrPoolExhausted, p.acquireTimeout)
		}
		return nil, &ConnectionError{Op: "acquire", Err: err}
	}
	return conn, nil
}

// saturated reports whether the last failed Acquire queued behind checked-out connections, as
// opposed to timing out while dialing with capacity to spare.
func (p *Pool) saturated(waitsBefore int64) bool {
	stats := p.db.Stats()
	return stats.WaitCount > waitsBefore || stats.InUse >= stats.MaxOpenConnections
}

// Release puts conn back into the idle set. Closing a *sql.Conn hands it back to the pool;
// the underlying network connection stays open.
func (p *Pool) Release(conn *sql.Conn) {
	if conn == nil {
		return
	}
	_ = conn.Close()
}

// Ping verifies that a connection can be checked out and reaches the server.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return &ConnectionError{Op: "ping", Err: err}
	}
	return nil
}

func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

// DB exposes the underlying handle for metrics collectors.
func (p *Pool) DB() *sql.DB {
	return p.db
}

func (p *Pool) Close() error {
	return p.db.Close()
}

type ServerInfo struct {
	Version  string
	Database string
	User     string
}

// ServerInfo runs a round trip on a pooled connection and reports what the server says
// about itself.
func (p *Pool) ServerInfo(ctx context.Context) (ServerInfo, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return ServerInfo{}, err
	}
	defer p.Release(conn)

	var info ServerInfo
	row := conn.QueryRowContext(ctx, `SELECT version(), current_database(), current_user`)
	if err := row.Scan(&info.Version, &info.Database, &info.User); err != nil {
		return ServerInfo{}, &ConnectionError{Op: "server info", Err: err}
	}
	return info, nil
}
