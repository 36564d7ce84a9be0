package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrPoolClosed is returned by Acquire once Close has been called.
	ErrPoolClosed = errors.New("database pool is closed")
	// ErrAcquireTimeout is returned by AcquireTimeout when no connection became idle in time.
	ErrAcquireTimeout = errors.New("timed out waiting for a database connection")
)

// Stats is a point-in-time view of the pool.
type Stats struct {
	TotalConnections     int `json:"total_connections"`
	AvailableConnections int `json:"available_connections"`
	InUseConnections     int `json:"in_use_connections"`
}

// Pool is a fixed-size pool of connections created eagerly at construction.
//
// Connections are handed out through Handles. A connection is checked with a
// liveness probe before every hand-out; a dead one is replaced once, and if the
// replacement fails the caller gets ErrConnectFailed and the pool shrinks by one.
type Pool struct {
	connector    Connector
	logger       *zap.Logger
	size         int
	probeTimeout time.Duration

	mu      sync.Mutex
	idle    chan Conn
	created int
	closed  bool
	done    chan struct{}

	acquires          atomic.Int64
	acquireTimeouts   atomic.Int64
	staleReplacements atomic.Int64
	connectFailures   atomic.Int64
}

// Option customizes a Pool.
type Option func(*Pool)

// WithConnector replaces the default pgx connector.
func WithConnector(c Connector) Option {
	return func(p *Pool) {
		p.connector = c
	}
}

// NewPool creates the pool and opens cfg.PoolSize connections. Individual failures
// are logged and skipped; the pool then serves fewer concurrent callers. A pool
// with no connections is valid and every Acquire waits until its context ends.
func NewPool(ctx context.Context, cfg PoolConfig, logger *zap.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := max(cfg.PoolSize, 0)

	p := &Pool{
		connector:    NewPgConnector(cfg),
		logger:       logger,
		size:         size,
		probeTimeout: cfg.probeTimeout(),
		idle:         make(chan Conn, size),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger.Info("Initializing database pool",
		zap.Int("pool_size", size),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database))

	for i := 0; i < size; i++ {
		conn, err := p.connector.Connect(ctx)
		if err != nil {
			p.connectFailures.Add(1)
			p.logger.Error("Failed to create database connection",
				zap.Int("slot", i+1),
				zap.Int("pool_size", size),
				zap.Error(err))
			continue
		}
		p.idle <- conn
		p.created++
	}

	p.logger.Info("Database pool initialized",
		zap.Int("connections", p.created),
		zap.Int("pool_size", size))

	return p
}

// Acquire waits for an idle connection, probes it and returns it wrapped in a
// Handle. The wait ends early only when ctx is done or the pool is closed; with
// context.Background it is unbounded.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	var conn Conn
	select {
	case conn = <-p.idle:
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.acquireTimeouts.Add(1)
			return nil, fmt.Errorf("%w: %w", ErrAcquireTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	}
	p.acquires.Add(1)

	conn, err := p.ensureAlive(ctx, conn)
	if err != nil {
		return nil, err
	}
	return &Handle{pool: p, conn: conn}, nil
}

// AcquireTimeout is Acquire with the wait bounded by d. It returns an error
// matching ErrAcquireTimeout when nothing became idle in time.
func (p *Pool) AcquireTimeout(ctx context.Context, d time.Duration) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return p.Acquire(ctx)
}

// WithConn acquires a connection, runs fn with it and returns the connection to
// the pool however fn exits.
func (p *Pool) WithConn(ctx context.Context, fn func(Conn) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h.Conn())
}

// ensureAlive probes conn and swaps it for a fresh one if the probe fails.
func (p *Pool) ensureAlive(ctx context.Context, conn Conn) (Conn, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	err := conn.Ping(probeCtx)
	cancel()
	if err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		// The caller gave up; the probe result says nothing about the connection
		// unless the interruption closed it, which release checks.
		p.release(conn)
		return nil, ctx.Err()
	}

	p.logger.Warn("Stale database connection detected, reconnecting", zap.Error(err))
	p.closeConn(conn)

	fresh, err := p.connector.Connect(ctx)
	if err != nil {
		p.connectFailures.Add(1)
		p.mu.Lock()
		p.created--
		p.mu.Unlock()
		p.logger.Error("Failed to reconnect to database", zap.Error(err))
		if !errors.Is(err, ErrConnectFailed) {
			err = fmt.Errorf("%w: %w", ErrConnectFailed, err)
		}
		return nil, err
	}
	p.staleReplacements.Add(1)
	return fresh, nil
}

// closedReporter is implemented by *pgx.Conn, which closes itself when an
// operation is interrupted mid-flight.
type closedReporter interface {
	IsClosed() bool
}

// release puts conn back and wakes one waiter. After Close, or when conn has
// already closed itself, the connection is dropped instead.
func (p *Pool) release(conn Conn) {
	if c, ok := conn.(closedReporter); ok && c.IsClosed() {
		p.logger.Debug("Dropping closed database connection")
		p.discard(conn)
		return
	}
	p.mu.Lock()
	if p.closed {
		p.created--
		p.mu.Unlock()
		p.closeConn(conn)
		return
	}
	// Capacity equals the pool size and at most created connections exist, so
	// this send never blocks.
	p.idle <- conn
	p.mu.Unlock()
}

// discard drops conn from the pool permanently.
func (p *Pool) discard(conn Conn) {
	p.mu.Lock()
	p.created--
	p.mu.Unlock()
	p.closeConn(conn)
}

func (p *Pool) closeConn(conn Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), p.probeTimeout)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		p.logger.Debug("Error closing database connection", zap.Error(err))
	}
}

// Stats returns the current connection counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	available := len(p.idle)
	return Stats{
		TotalConnections:     p.created,
		AvailableConnections: available,
		InUseConnections:     p.created - available,
	}
}

// Size returns the configured pool size.
func (p *Pool) Size() int {
	return p.size
}

// Close closes all idle connections and fails pending and future acquires with
// ErrPoolClosed. Handles still in flight close their connection on release.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)

	var drained []Conn
drain:
	for {
		select {
		case conn := <-p.idle:
			drained = append(drained, conn)
			p.created--
		default:
			break drain
		}
	}
	inFlight := p.created
	p.mu.Unlock()

	for _, conn := range drained {
		p.closeConn(conn)
	}
	if inFlight > 0 {
		p.logger.Warn("Database pool closed with connections still in use", zap.Int("in_use", inFlight))
	}
	p.logger.Info("Database pool closed", zap.Int("closed", len(drained)))
}
