package dbtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/yolo-detection/yolo-timeline/internal/db"
)

// ErrConnClosed is returned by a Conn used after Close.
var ErrConnClosed = errors.New("dbtest: connection closed")

// QueryFunc answers a statement with a result set or an error.
type QueryFunc func(sql string, args []any) (*Rows, error)

// Query is a statement recorded by a Conn.
type Query struct {
	SQL  string
	Args []any
}

// Conn is a fake db.Conn whose results come from a QueryFunc.
type Conn struct {
	ID int

	mu               sync.Mutex
	handler          QueryFunc
	pingErr          error
	onPing           func()
	closeOnInterrupt bool
	closed           bool
	queries          []Query
}

var _ db.Conn = (*Conn)(nil)

// NewConn returns a connection answering queries with handler. A nil handler
// answers every query with no rows.
func NewConn(handler QueryFunc) *Conn {
	return &Conn{handler: handler}
}

// SetPingErr makes the liveness probe fail with err (nil restores it).
func (c *Conn) SetPingErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}

// OnPing runs fn at the start of every Ping, before the context is checked.
func (c *Conn) OnPing(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPing = fn
}

// CloseOnInterrupt makes a Ping whose context is done close the connection, the
// way pgx closes a connection when an operation is interrupted.
func (c *Conn) CloseOnInterrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeOnInterrupt = true
}

// IsClosed mirrors (*pgx.Conn).IsClosed.
func (c *Conn) IsClosed() bool {
	return c.Closed()
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Queries returns the statements run so far.
func (c *Conn) Queries() []Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Query(nil), c.queries...)
}

func (c *Conn) run(ctx context.Context, sql string, args []any) (*Rows, error) {
	c.mu.Lock()
	closed, handler := c.closed, c.handler
	c.queries = append(c.queries, Query{SQL: sql, Args: args})
	c.mu.Unlock()

	if closed {
		return nil, ErrConnClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if handler == nil {
		return NewRows(), nil
	}
	rows, err := handler(sql, args)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = NewRows()
	}
	return rows, nil
}

func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := c.run(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	rows, err := c.run(ctx, sql, args)
	return &Row{rows: rows, err: err}
}

func (c *Conn) Ping(ctx context.Context) error {
	c.mu.Lock()
	onPing := c.onPing
	c.mu.Unlock()
	if onPing != nil {
		onPing()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		if c.closeOnInterrupt {
			c.closed = true
		}
		return err
	}
	if c.closed {
		return ErrConnClosed
	}
	return c.pingErr
}

func (c *Conn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Connector is a fake db.Connector handing out Conns that share one QueryFunc.
type Connector struct {
	mu       sync.Mutex
	handler  QueryFunc
	failNext int
	failErr  error
	attempts int
	conns    []*Conn
}

var _ db.Connector = (*Connector)(nil)

// NewConnector returns a connector whose connections answer with handler.
func NewConnector(handler QueryFunc) *Connector {
	return &Connector{handler: handler}
}

// FailNext makes the next n Connect calls fail with err. A negative n fails
// every call until FailNext is called again.
func (c *Connector) FailNext(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
	c.failErr = err
}

// Attempts returns how many times Connect was called.
func (c *Connector) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Conns returns every connection opened so far, in order.
func (c *Connector) Conns() []*Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Conn(nil), c.conns...)
}

func (c *Connector) Connect(ctx context.Context) (db.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++

	if c.failNext != 0 {
		if c.failNext > 0 {
			c.failNext--
		}
		return nil, fmt.Errorf("%w: %w", db.ErrConnectFailed, c.failErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", db.ErrConnectFailed, err)
	}

	conn := NewConn(c.handler)
	conn.ID = len(c.conns) + 1
	c.conns = append(c.conns, conn)
	return conn, nil
}

// Router dispatches statements to the first route whose fragment appears in the SQL.
type Router struct {
	mu     sync.Mutex
	routes []route
}

type route struct {
	fragment string
	fn       QueryFunc
}

// NewRouter returns an empty router. Unrouted statements fail.
func NewRouter() *Router {
	return &Router{}
}

// On registers fn for statements containing fragment.
func (r *Router) On(fragment string, fn QueryFunc) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{fragment: fragment, fn: fn})
	return r
}

// Handle is a QueryFunc.
func (r *Router) Handle(sql string, args []any) (*Rows, error) {
	r.mu.Lock()
	routes := r.routes
	r.mu.Unlock()

	for _, rt := range routes {
		if strings.Contains(sql, rt.fragment) {
			return rt.fn(sql, args)
		}
	}
	return nil, fmt.Errorf("dbtest: no route for statement %q", strings.Join(strings.Fields(sql), " "))
}

// Returning answers any statement with the same rows.
func Returning(rows ...[]any) QueryFunc {
	return func(string, []any) (*Rows, error) {
		return NewRows(rows...), nil
	}
}

// Failing answers any statement with err.
func Failing(err error) QueryFunc {
	return func(string, []any) (*Rows, error) {
		return nil, err
	}
}
