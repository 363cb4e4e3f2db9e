package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/metergrid/edgesync/internal/store"
)

// Status is the operator-facing view: scheduler counters, backlog, table
// counts on both sides, and connectivity. Purely read-side; collecting it
// never retries and never mutates anything.
type Status struct {
	IsRunning          bool      `json:"is_running"`
	LastSyncTime       time.Time `json:"last_sync_time"`
	LastSyncSuccess    bool      `json:"last_sync_success"`
	LastSyncError      string    `json:"last_sync_error,omitempty"`
	QueueSize          int64     `json:"queue_size"`
	TotalRecordsSynced int64     `json:"total_records_synced"`
	LocalMeterCount    int64     `json:"local_meter_count"`
	RemoteMeterCount   int64     `json:"remote_meter_count"`
	LocalTenantCount   int64     `json:"local_tenant_count"`
	RemoteTenantCount  int64     `json:"remote_tenant_count"`
	LocalDBConnected   bool      `json:"local_db_connected"`
	RemoteDBConnected  bool      `json:"remote_db_connected"`
}

// counterSource lets the reporter read scheduler state without holding the
// scheduler itself; nil is valid for the one-shot CLI paths.
type counterSource interface {
	Snapshot() Counters
}

// StatusReporter composes Status from the scheduler, both stores, and the
// pool health probe. Individual count failures degrade to zeros with a
// logged warning; the report always comes back.
type StatusReporter struct {
	scheduler counterSource // nil when no scheduler is running
	local     StatusCounts
	remote    RemoteCounts
	tenants   TenantResolver
	health    HealthProber
	logger    *slog.Logger
}

// NewStatusReporter wires the reporter.
func NewStatusReporter(scheduler counterSource, local StatusCounts, remote RemoteCounts,
	tenants TenantResolver, health HealthProber, logger *slog.Logger,
) *StatusReporter {
	return &StatusReporter{
		scheduler: scheduler,
		local:     local,
		remote:    remote,
		tenants:   tenants,
		health:    health,
		logger:    logger,
	}
}

// Report gathers the status. Count queries fan out concurrently; each is
// independent and best-effort.
func (r *StatusReporter) Report(ctx context.Context) Status {
	var st Status

	if r.scheduler != nil {
		c := r.scheduler.Snapshot()
		st.IsRunning = c.IsRunning
		st.LastSyncTime = c.LastSyncTime
		st.LastSyncSuccess = c.LastSyncSuccess
		st.LastSyncError = c.LastSyncError
		st.TotalRecordsSynced = c.TotalRecordsSynced
	}

	h := r.health.Health(ctx)
	st.LocalDBConnected = h.LocalConnected
	st.RemoteDBConnected = h.RemoteConnected

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		st.QueueSize = r.count(gctx, "backlog", r.local.CountBacklog)

		return nil
	})
	g.Go(func() error {
		st.LocalMeterCount = r.count(gctx, "local meters", r.local.CountMeters)

		return nil
	})
	g.Go(func() error {
		st.LocalTenantCount = r.count(gctx, "local tenants", r.local.CountTenants)

		return nil
	})
	g.Go(func() error {
		st.RemoteTenantCount = r.count(gctx, "remote tenants", r.remote.CountTenants)

		return nil
	})
	g.Go(func() error {
		tenantID, err := r.tenants.FirstTenantID(gctx)
		if err != nil {
			if !errors.Is(err, store.ErrNoTenant) {
				r.logger.Warn("status: resolving tenant failed",
					slog.String("error", err.Error()))
			}

			return nil
		}

		st.RemoteMeterCount = r.count(gctx, "remote meters",
			func(ctx context.Context) (int64, error) {
				return r.remote.CountMeters(ctx, tenantID)
			})

		return nil
	})

	// The goroutines never return errors; Wait only synchronizes.
	_ = g.Wait()

	return st
}

// count runs one counter query, degrading to zero on failure.
func (r *StatusReporter) count(ctx context.Context, what string, fn func(context.Context) (int64, error)) int64 {
	n, err := fn(ctx)
	if err != nil {
		r.logger.Warn("status: count unavailable",
			slog.String("counter", what),
			slog.String("error", err.Error()))

		return 0
	}

	return n
}
