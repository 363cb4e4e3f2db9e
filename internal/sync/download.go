package sync

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/metergrid/edgesync/internal/store"
	"github.com/metergrid/edgesync/internal/syncerr"
)

// DownloadManager reconciles meter and tenant configuration from REMOTE
// into LOCAL. REMOTE is the authority: missing rows are inserted, changed
// rows updated field-for-field. Rows present only on LOCAL are left alone —
// decommissioning propagates as active=false, never as row removal, so
// in-flight readings keep their foreign keys.
type DownloadManager struct {
	remote  ConfigAuthority
	local   ConfigReplica
	syncLog SyncLogAppender
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewDownloadManager wires the download pipeline.
func NewDownloadManager(remote ConfigAuthority, local ConfigReplica, syncLog SyncLogAppender,
	logger *slog.Logger,
) *DownloadManager {
	return &DownloadManager{
		remote:  remote,
		local:   local,
		syncLog: syncLog,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// meterKey identifies a meter row by its natural key.
type meterKey struct {
	meterID   int64
	elementID int64
}

// SyncMeterConfigurations reconciles the meter table for one tenant.
func (m *DownloadManager) SyncMeterConfigurations(ctx context.Context, tenantID int64) MeterSyncResult {
	start := m.nowFunc()

	res := MeterSyncResult{
		NewMeterIDs:     []int64{},
		UpdatedMeterIDs: []int64{},
	}
	defer func() { res.Duration = m.nowFunc().Sub(start) }()

	var remoteMeters, localMeters []store.Meter

	err := syncerr.DoQuery(ctx, "fetch remote meters", m.logger,
		func(ctx context.Context) error {
			var qErr error
			remoteMeters, qErr = m.remote.ListMeters(ctx, tenantID)

			return qErr
		})
	if err == nil {
		err = syncerr.DoQuery(ctx, "fetch local meters", m.logger,
			func(ctx context.Context) error {
				var qErr error
				localMeters, qErr = m.local.ListMeters(ctx)

				return qErr
			})
	}

	if err != nil {
		res.Err = syncerr.LogAndContinue(m.logger, syncerr.KindDownload, "sync meter configurations", err)
		m.appendLog(ctx, store.OpMeterDownload, 0, false, res.Err)

		return res
	}

	res.TotalMeters = len(remoteMeters)

	localByKey := make(map[meterKey]store.Meter, len(localMeters))
	for _, lm := range localMeters {
		localByKey[meterKey{lm.MeterID, lm.MeterElementID}] = lm
	}

	for _, rm := range remoteMeters {
		local, exists := localByKey[meterKey{rm.MeterID, rm.MeterElementID}]

		if !exists {
			if err := m.local.InsertMeter(ctx, rm); err != nil {
				res.Err = syncerr.LogAndContinue(m.logger, syncerr.KindDownload, "insert meter", err)
				m.appendLog(ctx, store.OpMeterDownload, res.NewMeters+res.UpdatedMeters, false, res.Err)

				return res
			}

			res.NewMeters++
			res.NewMeterIDs = append(res.NewMeterIDs, rm.MeterID)

			continue
		}

		changed := meterDiff(local, rm)
		if len(changed) == 0 {
			continue
		}

		if err := m.local.UpdateMeter(ctx, rm); err != nil {
			res.Err = syncerr.LogAndContinue(m.logger, syncerr.KindDownload, "update meter", err)
			m.appendLog(ctx, store.OpMeterDownload, res.NewMeters+res.UpdatedMeters, false, res.Err)

			return res
		}

		res.UpdatedMeters++
		res.UpdatedMeterIDs = append(res.UpdatedMeterIDs, rm.MeterID)

		m.logger.Info("meter configuration updated",
			slog.Int64("meter_id", rm.MeterID),
			slog.Any("changed_fields", changed),
		)
	}

	res.Success = true

	if res.NewMeters > 0 || res.UpdatedMeters > 0 {
		m.logger.Info("meter reconciliation complete",
			slog.Int("new", res.NewMeters),
			slog.Int("updated", res.UpdatedMeters),
			slog.Int("total", res.TotalMeters),
		)
	}

	m.appendLog(ctx, store.OpMeterDownload, res.NewMeters+res.UpdatedMeters, true, nil)

	return res
}

// SyncTenantData reconciles the tenant table. The LOCAL-only knobs
// (batch sizes, api_key) are outside the replicated field set and therefore
// untouched by construction: UpdateTenantReplicated pins its column list.
func (m *DownloadManager) SyncTenantData(ctx context.Context) TenantSyncResult {
	start := m.nowFunc()

	res := TenantSyncResult{
		NewTenantIDs:     []int64{},
		UpdatedTenantIDs: []int64{},
		TenantChanges:    []TenantChange{},
	}
	defer func() { res.Duration = m.nowFunc().Sub(start) }()

	var remoteTenants, localTenants []store.Tenant

	err := syncerr.DoQuery(ctx, "fetch remote tenants", m.logger,
		func(ctx context.Context) error {
			var qErr error
			remoteTenants, qErr = m.remote.ListTenants(ctx)

			return qErr
		})
	if err == nil {
		err = syncerr.DoQuery(ctx, "fetch local tenants", m.logger,
			func(ctx context.Context) error {
				var qErr error
				localTenants, qErr = m.local.ListTenants(ctx)

				return qErr
			})
	}

	if err != nil {
		res.Err = syncerr.LogAndContinue(m.logger, syncerr.KindDownload, "sync tenant data", err)
		m.appendLog(ctx, store.OpTenantDownload, 0, false, res.Err)

		return res
	}

	res.TotalTenants = len(remoteTenants)

	localByID := make(map[int64]store.Tenant, len(localTenants))
	for _, lt := range localTenants {
		localByID[lt.TenantID] = lt
	}

	for _, rt := range remoteTenants {
		local, exists := localByID[rt.TenantID]

		if !exists {
			if err := m.local.InsertTenant(ctx, rt); err != nil {
				res.Err = syncerr.LogAndContinue(m.logger, syncerr.KindDownload, "insert tenant", err)
				m.appendLog(ctx, store.OpTenantDownload, res.NewTenants+res.UpdatedTenants, false, res.Err)

				return res
			}

			res.NewTenants++
			res.NewTenantIDs = append(res.NewTenantIDs, rt.TenantID)

			continue
		}

		changed := tenantDiff(local, rt)
		if len(changed) == 0 {
			continue
		}

		if err := m.local.UpdateTenantReplicated(ctx, rt); err != nil {
			res.Err = syncerr.LogAndContinue(m.logger, syncerr.KindDownload, "update tenant", err)
			m.appendLog(ctx, store.OpTenantDownload, res.NewTenants+res.UpdatedTenants, false, res.Err)

			return res
		}

		res.UpdatedTenants++
		res.UpdatedTenantIDs = append(res.UpdatedTenantIDs, rt.TenantID)
		res.TenantChanges = append(res.TenantChanges, TenantChange{
			TenantID:      rt.TenantID,
			ChangedFields: changed,
		})

		m.logger.Info("tenant data updated",
			slog.Int64("tenant_id", rt.TenantID),
			slog.Any("changed_fields", changed),
		)
	}

	res.Success = true
	m.appendLog(ctx, store.OpTenantDownload, res.NewTenants+res.UpdatedTenants, true, nil)

	return res
}

// meterDiff returns the names of replicated meter fields that differ,
// sorted for stable logs.
func meterDiff(local, remote store.Meter) []string {
	var changed []string

	if local.DeviceID != remote.DeviceID {
		changed = append(changed, "device_id")
	}

	if local.IP != remote.IP {
		changed = append(changed, "ip")
	}

	if local.Port != remote.Port {
		changed = append(changed, "port")
	}

	if local.Active != remote.Active {
		changed = append(changed, "active")
	}

	if local.Element != remote.Element {
		changed = append(changed, "element")
	}

	sort.Strings(changed)

	return changed
}

// tenantDiff returns the names of replicated tenant fields that differ.
// The LOCAL-only knobs are deliberately not compared.
func tenantDiff(local, remote store.Tenant) []string {
	var changed []string

	if local.Name != remote.Name {
		changed = append(changed, "name")
	}

	if local.URL != remote.URL {
		changed = append(changed, "url")
	}

	if local.Street != remote.Street {
		changed = append(changed, "street")
	}

	if local.Street2 != remote.Street2 {
		changed = append(changed, "street2")
	}

	if local.City != remote.City {
		changed = append(changed, "city")
	}

	if local.State != remote.State {
		changed = append(changed, "state")
	}

	if local.Zip != remote.Zip {
		changed = append(changed, "zip")
	}

	if local.Country != remote.Country {
		changed = append(changed, "country")
	}

	if local.Active != remote.Active {
		changed = append(changed, "active")
	}

	sort.Strings(changed)

	return changed
}

func (m *DownloadManager) appendLog(ctx context.Context, op string, batchSize int, success bool, opErr error) {
	entry := store.SyncLogEntry{
		OperationType: op,
		BatchSize:     batchSize,
		Success:       success,
	}
	if opErr != nil {
		entry.ErrorMessage = opErr.Error()
	}

	if err := m.syncLog.AppendSyncLog(ctx, entry); err != nil {
		m.logger.Warn("sync log append failed", slog.String("error", err.Error()))
	}
}
