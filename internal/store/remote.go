package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Remote is the authoritative-side store. The daemon only ever inserts
// readings there and reads configuration back; it never mutates REMOTE
// meters or tenants.
type Remote struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRemote wraps the REMOTE pool.
func NewRemote(pool *pgxpool.Pool, logger *slog.Logger) *Remote {
	return &Remote{pool: pool, logger: logger}
}

// InsertReadings commits the batch in a single transaction using one
// multi-row insert. Rows whose id already exists on REMOTE are skipped by
// the conflict clause and excluded from the returned count.
func (s *Remote) InsertReadings(ctx context.Context, batch []Reading) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(batch)*len(replicatedColumns))
	for i := range batch {
		args = append(args, batch[i].replicatedArgs()...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: beginning remote insert: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, insertReadingsSQL(len(batch)), args...)
	if err != nil {
		return 0, fmt.Errorf("store: inserting %d readings: %w", len(batch), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: committing remote insert: %w", err)
	}

	s.logger.Debug("remote insert committed",
		slog.Int("batch", len(batch)),
		slog.Int64("inserted", tag.RowsAffected()),
	)

	return tag.RowsAffected(), nil
}

// ListMeters returns the authoritative meter configuration for one tenant,
// joined with its element designators.
func (s *Remote) ListMeters(ctx context.Context, tenantID int64) ([]Meter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.meter_id, m.tenant_id, m.name, m.device_id, m.ip, m.port,
		        m.active, COALESCE(e.element, ''), m.meter_element_id
		 FROM meter m
		 LEFT JOIN meter_element e ON e.meter_element_id = m.meter_element_id
		 WHERE m.tenant_id = $1
		 ORDER BY m.meter_id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing remote meters: %w", err)
	}
	defer rows.Close()

	return collectMeters(rows)
}

// ListTenants returns all authoritative tenant rows (replicated fields
// only; REMOTE does not carry the edge-side knobs).
func (s *Remote) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantReplicatedColumns+` FROM tenant ORDER BY tenant_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing remote tenants: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

// CountMeters returns the REMOTE meter count for one tenant.
func (s *Remote) CountMeters(ctx context.Context, tenantID int64) (int64, error) {
	var n int64

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM meter WHERE tenant_id = $1`, tenantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: counting remote meters: %w", err)
	}

	return n, nil
}

// CountTenants returns the REMOTE tenant count.
func (s *Remote) CountTenants(ctx context.Context) (int64, error) {
	var n int64

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenant`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: counting remote tenants: %w", err)
	}

	return n, nil
}
