package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// noCopy lets go vet's copylocks check flag Handle values being copied.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle is exclusive ownership of one pooled connection. Release it exactly
// where it was acquired, usually with defer:
//
//	h, err := pool.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer h.Release()
//
// A Handle is not safe for concurrent use.
type Handle struct {
	_ noCopy

	pool *Pool
	conn Conn
}

// Conn returns the owned connection. It panics if the handle has been released,
// discarded or moved from.
func (h *Handle) Conn() Conn {
	if h == nil || h.conn == nil {
		panic("db: use of released connection handle")
	}
	return h.conn
}

// Query runs a query on the owned connection.
func (h *Handle) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return h.Conn().Query(ctx, sql, args...)
}

// QueryRow runs a single-row query on the owned connection.
func (h *Handle) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return h.Conn().QueryRow(ctx, sql, args...)
}

// Release returns the connection to the pool. Further calls are no-ops.
func (h *Handle) Release() {
	if h == nil || h.conn == nil {
		return
	}
	conn := h.conn
	h.conn = nil
	h.pool.release(conn)
}

// Discard closes the connection and removes it from the pool instead of
// returning it. Use it when the connection is known to be unusable.
func (h *Handle) Discard() {
	if h == nil || h.conn == nil {
		return
	}
	conn := h.conn
	h.conn = nil
	h.pool.discard(conn)
}

// Move transfers ownership to a new Handle. The receiver is left empty and its
// Release becomes a no-op.
func (h *Handle) Move() *Handle {
	moved := &Handle{pool: h.pool, conn: h.Conn()}
	h.conn = nil
	return moved
}

// Released reports whether the handle no longer owns a connection.
func (h *Handle) Released() bool {
	return h == nil || h.conn == nil
}
