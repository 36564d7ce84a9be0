// Package db provides the bounded connection pool and the event store built on it.
package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrConnectFailed is returned when the backing store cannot be reached or rejects
// the credentials. The underlying cause is wrapped alongside it.
var ErrConnectFailed = errors.New("database connect failed")

// Conn is a single session with the backing store. *pgx.Conn satisfies it.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Connector opens new connections. It never retries.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// PoolConfig holds the connection parameters and the fixed pool size.
type PoolConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// SSLMode is passed through as the sslmode parameter when set.
	SSLMode  string
	PoolSize int

	// ConnectTimeout bounds a single connection attempt. Zero means 10s.
	ConnectTimeout time.Duration
	// ProbeTimeout bounds the liveness probe run on acquire. Zero means 5s.
	ProbeTimeout time.Duration
}

const (
	defaultConnectTimeout = 10 * time.Second
	defaultProbeTimeout   = 5 * time.Second
	applicationName       = "yolo-timeline"
)

// URL returns the postgres connection URL for the config.
func (c PoolConfig) URL() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.User != "" || c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	q := u.Query()
	q.Set("application_name", applicationName)
	q.Set("connect_timeout", strconv.Itoa(int(c.connectTimeout().Seconds())))
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted returns the connection URL with the password masked, for logging.
func (c PoolConfig) Redacted() string {
	u, err := url.Parse(c.URL())
	if err != nil {
		return ""
	}
	return u.Redacted()
}

func (c PoolConfig) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return defaultConnectTimeout
}

func (c PoolConfig) probeTimeout() time.Duration {
	if c.ProbeTimeout > 0 {
		return c.ProbeTimeout
	}
	return defaultProbeTimeout
}

// PgConnector opens pgx connections from a PoolConfig.
type PgConnector struct {
	cfg PoolConfig
}

// NewPgConnector creates a connector for the given config.
func NewPgConnector(cfg PoolConfig) *PgConnector {
	return &PgConnector{cfg: cfg}
}

// Connect opens one connection and checks that the session is open.
func (c *PgConnector) Connect(ctx context.Context) (Conn, error) {
	connCfg, err := pgx.ParseConfig(c.cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("%w: parse connection string: %w", ErrConnectFailed, err)
	}
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = map[string]string{}
	}
	// Hour bucketing and timestamp rendering assume a UTC session.
	connCfg.RuntimeParams["TimeZone"] = "UTC"

	ctx, cancel := context.WithTimeout(ctx, c.cfg.connectTimeout())
	defer cancel()

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	if conn.IsClosed() {
		return nil, fmt.Errorf("%w: connection closed after open", ErrConnectFailed)
	}
	return conn, nil
}
