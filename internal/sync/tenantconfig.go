package sync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/metergrid/edgesync/internal/store"
)

// Default batch sizes, applied when the tenant row or its configuration
// columns are missing.
const (
	DefaultDownloadBatchSize = 1000
	DefaultUploadBatchSize   = 100
)

// BatchConfig is the effective per-tenant batch sizing. UploadBatchSize
// bounds each upload pass. DownloadBatchSize is carried and logged but does
// not limit the reconciliation fetches: meter and tenant download compares
// complete table listings, so a partial fetch could not tell "row missing
// locally" from "row beyond the batch window".
type BatchConfig struct {
	DownloadBatchSize int `json:"download_batch_size"`
	UploadBatchSize   int `json:"upload_batch_size"`
}

// DefaultBatchConfig returns the fallback sizing.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		DownloadBatchSize: DefaultDownloadBatchSize,
		UploadBatchSize:   DefaultUploadBatchSize,
	}
}

// TenantConfigLoader reads per-tenant batch sizes from LOCAL. It degrades
// to defaults in every failure mode — missing tenant, unmigrated schema,
// NULL columns, nonsense values — because batch sizing must never stop a
// sync cycle.
type TenantConfigLoader struct {
	store  TenantResolver
	logger *slog.Logger
}

// NewTenantConfigLoader wires the loader.
func NewTenantConfigLoader(store TenantResolver, logger *slog.Logger) *TenantConfigLoader {
	return &TenantConfigLoader{store: store, logger: logger}
}

// Load returns the batch configuration for a tenant.
func (l *TenantConfigLoader) Load(ctx context.Context, tenantID int64) BatchConfig {
	cfg := DefaultBatchConfig()

	download, upload, err := l.store.TenantBatchConfig(ctx, tenantID)

	switch {
	case errors.Is(err, store.ErrNoTenant):
		l.logger.Debug("no tenant row, using default batch sizes",
			slog.Int64("tenant_id", tenantID))

		return cfg

	case errors.Is(err, store.ErrBatchConfigUnavailable):
		l.logger.Warn("batch config columns missing (schema not migrated), using defaults",
			slog.Int64("tenant_id", tenantID))

		return cfg

	case err != nil:
		l.logger.Warn("reading batch config failed, using defaults",
			slog.Int64("tenant_id", tenantID),
			slog.String("error", err.Error()))

		return cfg
	}

	if download != nil && *download > 0 {
		cfg.DownloadBatchSize = *download
	}

	if upload != nil && *upload > 0 {
		cfg.UploadBatchSize = *upload
	}

	return cfg
}
