package sync

import (
	"context"

	"github.com/google/uuid"

	"github.com/metergrid/edgesync/internal/dbpool"
	"github.com/metergrid/edgesync/internal/store"
)

// Consumer-side interfaces over the store layer. Satisfied by *store.Local
// and *store.Remote; tests inject fakes.

// ReadingSource is the LOCAL side of the upload pipeline.
type ReadingSource interface {
	FetchUnsynchronized(ctx context.Context, limit int) ([]store.Reading, error)
	MarkSynchronized(ctx context.Context, ids []uuid.UUID) (int64, error)
	MarkFailedValidation(ctx context.Context, ids []uuid.UUID) (int64, error)
	IncrementRetry(ctx context.Context, ids []uuid.UUID) error
	DeleteSynchronized(ctx context.Context, ids []uuid.UUID) (int64, error)
	SweepSynchronized(ctx context.Context) (int64, error)
}

// ReadingSink is the REMOTE side of the upload pipeline.
type ReadingSink interface {
	InsertReadings(ctx context.Context, batch []store.Reading) (int64, error)
}

// ConfigAuthority is the REMOTE side of the download pipeline.
type ConfigAuthority interface {
	ListMeters(ctx context.Context, tenantID int64) ([]store.Meter, error)
	ListTenants(ctx context.Context) ([]store.Tenant, error)
}

// ConfigReplica is the LOCAL image the download pipeline maintains.
type ConfigReplica interface {
	ListMeters(ctx context.Context) ([]store.Meter, error)
	InsertMeter(ctx context.Context, m store.Meter) error
	UpdateMeter(ctx context.Context, m store.Meter) error
	ListTenants(ctx context.Context) ([]store.Tenant, error)
	InsertTenant(ctx context.Context, t store.Tenant) error
	UpdateTenantReplicated(ctx context.Context, t store.Tenant) error
}

// TenantResolver reads which tenant this edge deployment serves and its
// batch-size knobs.
type TenantResolver interface {
	FirstTenantID(ctx context.Context) (int64, error)
	TenantBatchConfig(ctx context.Context, tenantID int64) (download, upload *int, err error)
}

// SyncLogAppender records per-operation diagnostics rows.
type SyncLogAppender interface {
	AppendSyncLog(ctx context.Context, e store.SyncLogEntry) error
}

// StatusCounts is the read-only surface the status reporter uses.
type StatusCounts interface {
	CountBacklog(ctx context.Context) (int64, error)
	CountMeters(ctx context.Context) (int64, error)
	CountTenants(ctx context.Context) (int64, error)
}

// RemoteCounts mirrors StatusCounts on the authoritative side.
type RemoteCounts interface {
	CountMeters(ctx context.Context, tenantID int64) (int64, error)
	CountTenants(ctx context.Context) (int64, error)
}

// HealthProber reports pool connectivity.
type HealthProber interface {
	Health(ctx context.Context) dbpool.Health
}
