// Package dbpool owns the two PostgreSQL connection pools the daemon talks
// to: LOCAL (the edge database collecting readings) and REMOTE (the
// authoritative database). It exposes acquisition with a bounded deadline
// and health probes. Retry policy deliberately lives elsewhere — the pool
// reports failures, it never loops.
package dbpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metergrid/edgesync/internal/config"
)

// Role identifies which side of the sync a pool serves.
type Role string

const (
	RoleLocal  Role = "local"
	RoleRemote Role = "remote"
)

// Acquisition and probe deadlines.
const (
	acquireTimeout = 5 * time.Second
	probeTimeout   = 2 * time.Second
)

// Sentinel errors for callers that classify failures.
var (
	ErrConnectFailed = errors.New("dbpool: connect failed")
	ErrClosed        = errors.New("dbpool: manager closed")
)

// Health is a point-in-time connectivity snapshot.
type Health struct {
	LocalConnected  bool      `json:"local_connected"`
	RemoteConnected bool      `json:"remote_connected"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Manager holds both pools and gates access after shutdown begins.
type Manager struct {
	local  *pgxpool.Pool
	remote *pgxpool.Pool
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New builds both pools from the resolved configuration. Pool construction
// does not dial; the first acquire or probe does. That keeps daemon startup
// possible while either endpoint is down.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	local, err := newPool(ctx, cfg.Local)
	if err != nil {
		return nil, fmt.Errorf("dbpool: local pool: %w", err)
	}

	remote, err := newPool(ctx, cfg.Remote)
	if err != nil {
		local.Close()

		return nil, fmt.Errorf("dbpool: remote pool: %w", err)
	}

	logger.Info("connection pools configured",
		slog.String("local", cfg.Local.Host),
		slog.String("remote", cfg.Remote.Host),
		slog.Int("max_conns", cfg.Local.MaxConns),
	)

	return &Manager{local: local, remote: remote, logger: logger}, nil
}

func newPool(ctx context.Context, dc config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(dc.DSN())
	if err != nil {
		return nil, err
	}

	pc.MaxConns = int32(dc.MaxConns)
	pc.MaxConnIdleTime = dc.ConnIdle()
	pc.ConnConfig.ConnectTimeout = time.Duration(dc.ConnectTimeout) * time.Second

	return pgxpool.NewWithConfig(ctx, pc)
}

// Pool returns the raw pool for a role. Store constructors take this once at
// startup; runtime callers should prefer Acquire for the deadline behavior.
func (m *Manager) Pool(role Role) *pgxpool.Pool {
	if role == RoleRemote {
		return m.remote
	}

	return m.local
}

// Acquire checks out one connection, failing with ErrConnectFailed when the
// pool cannot produce a connection within the acquire deadline (saturation
// or endpoint down). The caller must Release the returned connection.
func (m *Manager) Acquire(ctx context.Context, role Role) (*pgxpool.Conn, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()

		return nil, ErrClosed
	}
	m.mu.Unlock()

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	conn, err := m.Pool(role).Acquire(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectFailed, role, err)
	}

	return conn, nil
}

// Health pings both endpoints with a short deadline and reports the result.
// A ping failure is a status fact, not an error.
func (m *Manager) Health(ctx context.Context) Health {
	h := Health{CheckedAt: time.Now()}

	h.LocalConnected = m.ping(ctx, RoleLocal)
	h.RemoteConnected = m.ping(ctx, RoleRemote)

	return h
}

func (m *Manager) ping(ctx context.Context, role Role) bool {
	pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := m.Pool(role).Ping(pingCtx); err != nil {
		m.logger.Debug("health probe failed",
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)

		return false
	}

	return true
}

// Close refuses new acquisitions and drains both pools. pgxpool.Close blocks
// until checked-out connections are released, which pairs with the
// scheduler's stop fence: the in-flight cycle finishes first.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()

		return
	}

	m.closed = true
	m.mu.Unlock()

	m.local.Close()
	m.remote.Close()
	m.logger.Info("connection pools closed")
}
