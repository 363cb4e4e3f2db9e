// Package sync implements the synchronization cycle: upload of collected
// readings to the authoritative database, download of meter and tenant
// configuration back to the edge, and the scheduler that runs both on a
// fixed cadence under mutual exclusion.
package sync

import (
	"time"
)

// UploadResult summarizes one upload pass. RecordsUploaded is the REMOTE
// insert row count, RecordsDeleted the LOCAL delete row count; the two can
// differ while the self-healing path drains rows flagged in a crashed
// earlier cycle.
type UploadResult struct {
	Success         bool          `json:"success"`
	RecordsUploaded int64         `json:"records_uploaded"`
	RecordsDeleted  int64         `json:"records_deleted"`
	RecordsRejected int64         `json:"records_rejected,omitempty"`
	Duration        time.Duration `json:"duration"`
	Err             error         `json:"-"`
}

// MeterSyncResult summarizes one meter reconciliation pass.
type MeterSyncResult struct {
	Success         bool          `json:"success"`
	NewMeters       int           `json:"new_meters"`
	UpdatedMeters   int           `json:"updated_meters"`
	TotalMeters     int           `json:"total_meters"`
	NewMeterIDs     []int64       `json:"new_meter_ids"`
	UpdatedMeterIDs []int64       `json:"updated_meter_ids"`
	Skipped         bool          `json:"skipped,omitempty"` // no local tenant yet
	Duration        time.Duration `json:"duration"`
	Err             error         `json:"-"`
}

// TenantChange records which replicated fields differed for one tenant.
type TenantChange struct {
	TenantID      int64    `json:"tenant_id"`
	ChangedFields []string `json:"changed_fields"`
}

// TenantSyncResult summarizes one tenant reconciliation pass.
type TenantSyncResult struct {
	Success          bool           `json:"success"`
	NewTenants       int            `json:"new_tenants"`
	UpdatedTenants   int            `json:"updated_tenants"`
	TotalTenants     int            `json:"total_tenants"`
	NewTenantIDs     []int64        `json:"new_tenant_ids"`
	UpdatedTenantIDs []int64        `json:"updated_tenant_ids"`
	TenantChanges    []TenantChange `json:"tenant_changes"`
	Duration         time.Duration  `json:"duration"`
	Err              error          `json:"-"`
}

// CycleResult aggregates the three phases of one sync cycle. Success is the
// conjunction of the sub-results (a skipped meter phase counts as success).
type CycleResult struct {
	Success   bool             `json:"success"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Upload    UploadResult     `json:"upload"`
	Meters    MeterSyncResult  `json:"meters"`
	Tenants   TenantSyncResult `json:"tenants"`
}

// FirstError returns the first phase error for status reporting, nil when
// the cycle succeeded.
func (c *CycleResult) FirstError() error {
	if c.Upload.Err != nil {
		return c.Upload.Err
	}

	if c.Meters.Err != nil {
		return c.Meters.Err
	}

	if c.Tenants.Err != nil {
		return c.Tenants.Err
	}

	return nil
}

// RecordsSynced counts the rows this cycle moved or reconciled, feeding the
// scheduler's monotonic total.
func (c *CycleResult) RecordsSynced() int64 {
	return c.Upload.RecordsUploaded +
		int64(c.Meters.NewMeters) + int64(c.Meters.UpdatedMeters) +
		int64(c.Tenants.NewTenants) + int64(c.Tenants.UpdatedTenants)
}
