package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUndefinedColumn is the PostgreSQL error code for a missing column,
// returned on LOCAL schemas that predate the batch-config migration.
const pgUndefinedColumn = "42703"

// Local is the edge-side store. The upload manager owns all reading writes;
// the download manager owns all meter and tenant writes; the sync log is
// append-only from everyone.
type Local struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLocal wraps the LOCAL pool.
func NewLocal(pool *pgxpool.Pool, logger *slog.Logger) *Local {
	return &Local{pool: pool, logger: logger}
}

// FetchUnsynchronized returns up to limit readings awaiting upload, oldest
// first. Rows rejected by validation (failed_* status) are excluded until a
// caller explicitly reconciles them.
func (s *Local) FetchUnsynchronized(ctx context.Context, limit int) ([]Reading, error) {
	q := fmt.Sprintf(
		`SELECT %s FROM meter_reading
		 WHERE is_synchronized = FALSE AND sync_status NOT LIKE 'failed_%%'
		 ORDER BY created_at ASC
		 LIMIT $1`,
		strings.Join(localColumns, ", "),
	)

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: fetching unsynchronized readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading

	for rows.Next() {
		var r Reading
		if err := rows.Scan(r.scanDest()...); err != nil {
			return nil, fmt.Errorf("store: scanning reading: %w", err)
		}

		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: reading rows: %w", err)
	}

	return readings, nil
}

// MarkSynchronized flips the batch to synchronized in one transaction.
// Called only after the REMOTE insert has committed; this ordering is the
// durability invariant the upload path is built on.
func (s *Local) MarkSynchronized(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE meter_reading
		 SET is_synchronized = TRUE, sync_status = $2
		 WHERE meter_reading_id = ANY($1)`,
		ids, StatusSynchronized,
	)
	if err != nil {
		return 0, fmt.Errorf("store: marking synchronized: %w", err)
	}

	return tag.RowsAffected(), nil
}

// MarkFailedValidation tags rejected rows so future batches skip them.
func (s *Local) MarkFailedValidation(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE meter_reading
		 SET sync_status = $2
		 WHERE meter_reading_id = ANY($1)`,
		ids, StatusFailedValidation,
	)
	if err != nil {
		return 0, fmt.Errorf("store: marking failed validation: %w", err)
	}

	return tag.RowsAffected(), nil
}

// IncrementRetry bumps the retry counter after a failed upload attempt.
func (s *Local) IncrementRetry(ctx context.Context, ids []uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE meter_reading
		 SET retry_count = retry_count + 1
		 WHERE meter_reading_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("store: incrementing retry count: %w", err)
	}

	return nil
}

// DeleteSynchronized removes the batch, restricted to rows already flagged
// synchronized so a delete can never outrun the REMOTE commit.
func (s *Local) DeleteSynchronized(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM meter_reading
		 WHERE meter_reading_id = ANY($1) AND is_synchronized = TRUE`,
		ids,
	)
	if err != nil {
		return 0, fmt.Errorf("store: deleting synchronized readings: %w", err)
	}

	return tag.RowsAffected(), nil
}

// SweepSynchronized deletes rows flagged synchronized in an earlier cycle
// whose delete did not complete (crash or LOCAL outage between flag and
// delete). Their REMOTE insert has committed, so removal is safe.
func (s *Local) SweepSynchronized(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM meter_reading WHERE is_synchronized = TRUE`,
	)
	if err != nil {
		return 0, fmt.Errorf("store: sweeping synchronized readings: %w", err)
	}

	return tag.RowsAffected(), nil
}

// CountBacklog returns the number of readings still awaiting upload.
func (s *Local) CountBacklog(ctx context.Context) (int64, error) {
	var n int64

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM meter_reading WHERE is_synchronized = FALSE`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: counting backlog: %w", err)
	}

	return n, nil
}

// meterColumns is the replicated meter select list.
const meterColumns = `meter_id, tenant_id, name, device_id, ip, port, active, element, meter_element_id`

// ListMeters returns the LOCAL meter image.
func (s *Local) ListMeters(ctx context.Context) ([]Meter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+meterColumns+` FROM meter ORDER BY meter_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing local meters: %w", err)
	}
	defer rows.Close()

	return collectMeters(rows)
}

func collectMeters(rows pgx.Rows) ([]Meter, error) {
	var meters []Meter

	for rows.Next() {
		var m Meter
		if err := rows.Scan(&m.MeterID, &m.TenantID, &m.Name, &m.DeviceID,
			&m.IP, &m.Port, &m.Active, &m.Element, &m.MeterElementID); err != nil {
			return nil, fmt.Errorf("store: scanning meter: %w", err)
		}

		meters = append(meters, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: meter rows: %w", err)
	}

	return meters, nil
}

// InsertMeter adds a meter to the LOCAL image. Conflict-ignoring on the
// natural key so a concurrent re-run of the same diff cannot fail.
func (s *Local) InsertMeter(ctx context.Context, m Meter) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO meter
		 (meter_id, tenant_id, name, device_id, ip, port, active, element, meter_element_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (meter_id, meter_element_id) DO NOTHING`,
		m.MeterID, m.TenantID, m.Name, m.DeviceID, m.IP, m.Port, m.Active, m.Element, m.MeterElementID,
	)
	if err != nil {
		return fmt.Errorf("store: inserting meter %d: %w", m.MeterID, err)
	}

	return nil
}

// UpdateMeter overwrites the replicated meter fields from REMOTE.
func (s *Local) UpdateMeter(ctx context.Context, m Meter) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE meter
		 SET tenant_id = $2, name = $3, device_id = $4, ip = $5, port = $6,
		     active = $7, element = $8
		 WHERE meter_id = $1 AND meter_element_id = $9`,
		m.MeterID, m.TenantID, m.Name, m.DeviceID, m.IP, m.Port, m.Active, m.Element, m.MeterElementID,
	)
	if err != nil {
		return fmt.Errorf("store: updating meter %d: %w", m.MeterID, err)
	}

	return nil
}

// tenantReplicatedColumns is the replicated tenant select list. The
// LOCAL-only knobs (batch sizes, api_key) are read separately and never
// written by the download path.
const tenantReplicatedColumns = `tenant_id, COALESCE(name, ''), COALESCE(url, ''),
	COALESCE(street, ''), COALESCE(street2, ''), COALESCE(city, ''),
	COALESCE(state, ''), COALESCE(zip, ''), COALESCE(country, ''), active`

// ListTenants returns the LOCAL tenant image (replicated fields only).
func (s *Local) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantReplicatedColumns+` FROM tenant ORDER BY tenant_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing local tenants: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

func collectTenants(rows pgx.Rows) ([]Tenant, error) {
	var tenants []Tenant

	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.TenantID, &t.Name, &t.URL, &t.Street, &t.Street2,
			&t.City, &t.State, &t.Zip, &t.Country, &t.Active); err != nil {
			return nil, fmt.Errorf("store: scanning tenant: %w", err)
		}

		tenants = append(tenants, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: tenant rows: %w", err)
	}

	return tenants, nil
}

// InsertTenant adds a tenant to the LOCAL image. Batch-size knobs stay at
// their column defaults; REMOTE never supplies them.
func (s *Local) InsertTenant(ctx context.Context, t Tenant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenant
		 (tenant_id, name, url, street, street2, city, state, zip, country, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (tenant_id) DO NOTHING`,
		t.TenantID, t.Name, t.URL, t.Street, t.Street2, t.City, t.State, t.Zip, t.Country, t.Active,
	)
	if err != nil {
		return fmt.Errorf("store: inserting tenant %d: %w", t.TenantID, err)
	}

	return nil
}

// UpdateTenantReplicated overwrites only the replicated tenant fields. The
// column list is pinned so the LOCAL-only knobs cannot be touched by a
// future edit to the Tenant struct alone.
func (s *Local) UpdateTenantReplicated(ctx context.Context, t Tenant) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenant
		 SET name = $2, url = $3, street = $4, street2 = $5, city = $6,
		     state = $7, zip = $8, country = $9, active = $10,
		     updated_at = NOW()
		 WHERE tenant_id = $1`,
		t.TenantID, t.Name, t.URL, t.Street, t.Street2, t.City, t.State, t.Zip, t.Country, t.Active,
	)
	if err != nil {
		return fmt.Errorf("store: updating tenant %d: %w", t.TenantID, err)
	}

	return nil
}

// FirstTenantID returns the tenant this edge deployment serves. One daemon
// serves one local tenant; the lowest id wins if an operator has seeded
// more than one.
func (s *Local) FirstTenantID(ctx context.Context) (int64, error) {
	var id int64

	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id FROM tenant ORDER BY tenant_id LIMIT 1`,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoTenant
	}

	if err != nil {
		return 0, fmt.Errorf("store: resolving local tenant: %w", err)
	}

	return id, nil
}

// TenantBatchConfig reads the per-tenant batch-size knobs. Nil values mean
// the column is NULL; ErrBatchConfigUnavailable means the columns do not
// exist yet. ErrNoTenant means the row is missing. Defaults are the
// caller's concern.
func (s *Local) TenantBatchConfig(ctx context.Context, tenantID int64) (download, upload *int, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT download_batch_size, upload_batch_size FROM tenant WHERE tenant_id = $1`,
		tenantID,
	).Scan(&download, &upload)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNoTenant
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedColumn {
		return nil, nil, ErrBatchConfigUnavailable
	}

	if err != nil {
		return nil, nil, fmt.Errorf("store: reading tenant batch config: %w", err)
	}

	return download, upload, nil
}

// SeedAPIKey stores the configured API key on the tenant row if none is set.
// Existing keys are never overwritten.
func (s *Local) SeedAPIKey(ctx context.Context, tenantID int64, key string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenant
		 SET api_key = $2
		 WHERE tenant_id = $1 AND (api_key IS NULL OR api_key = '')`,
		tenantID, key,
	)
	if err != nil {
		return fmt.Errorf("store: seeding api key: %w", err)
	}

	return nil
}

// AppendSyncLog records one sync operation for diagnostics. Failures here
// are logged, never fatal: losing a diagnostics row must not fail a cycle.
func (s *Local) AppendSyncLog(ctx context.Context, e SyncLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_log (operation_type, batch_size, success, error_message)
		 VALUES ($1, $2, $3, NULLIF($4, ''))`,
		e.OperationType, e.BatchSize, e.Success, e.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("store: appending sync log: %w", err)
	}

	return nil
}

// CountMeters returns the LOCAL meter count for status reporting.
func (s *Local) CountMeters(ctx context.Context) (int64, error) {
	return s.countRows(ctx, "meter")
}

// CountTenants returns the LOCAL tenant count for status reporting.
func (s *Local) CountTenants(ctx context.Context) (int64, error) {
	return s.countRows(ctx, "tenant")
}

func (s *Local) countRows(ctx context.Context, table string) (int64, error) {
	var n int64

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: counting %s rows: %w", table, err)
	}

	return n, nil
}
