package sync

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/metergrid/edgesync/internal/dbpool"
	"github.com/metergrid/edgesync/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeReadingSource implements ReadingSource over an in-memory slice.
type fakeReadingSource struct {
	mu       sync.Mutex
	readings []store.Reading

	failFetch  error
	failMark   error
	failDelete error
	failSweep  error
	sweepCount int64

	markedIDs   []uuid.UUID
	deletedIDs  []uuid.UUID
	rejectedIDs []uuid.UUID
	retriedIDs  []uuid.UUID
	callOrder   []string
}

func (f *fakeReadingSource) FetchUnsynchronized(_ context.Context, limit int) ([]store.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callOrder = append(f.callOrder, "fetch")

	if f.failFetch != nil {
		return nil, f.failFetch
	}

	var out []store.Reading

	for _, r := range f.readings {
		if len(out) == limit {
			break
		}

		if !r.IsSynchronized && r.SyncStatus != store.StatusFailedValidation {
			out = append(out, r)
		}
	}

	return out, nil
}

func (f *fakeReadingSource) MarkSynchronized(_ context.Context, ids []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callOrder = append(f.callOrder, "mark")

	if f.failMark != nil {
		return 0, f.failMark
	}

	f.markedIDs = append(f.markedIDs, ids...)

	for i := range f.readings {
		for _, id := range ids {
			if f.readings[i].ID == id {
				f.readings[i].IsSynchronized = true
				f.readings[i].SyncStatus = store.StatusSynchronized
			}
		}
	}

	return int64(len(ids)), nil
}

func (f *fakeReadingSource) MarkFailedValidation(_ context.Context, ids []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rejectedIDs = append(f.rejectedIDs, ids...)

	for i := range f.readings {
		for _, id := range ids {
			if f.readings[i].ID == id {
				f.readings[i].SyncStatus = store.StatusFailedValidation
			}
		}
	}

	return int64(len(ids)), nil
}

func (f *fakeReadingSource) IncrementRetry(_ context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.retriedIDs = append(f.retriedIDs, ids...)

	return nil
}

func (f *fakeReadingSource) DeleteSynchronized(_ context.Context, ids []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callOrder = append(f.callOrder, "delete")

	if f.failDelete != nil {
		return 0, f.failDelete
	}

	var kept []store.Reading

	deleted := int64(0)

	for _, r := range f.readings {
		remove := false

		for _, id := range ids {
			if r.ID == id && r.IsSynchronized {
				remove = true
			}
		}

		if remove {
			deleted++

			f.deletedIDs = append(f.deletedIDs, r.ID)
		} else {
			kept = append(kept, r)
		}
	}

	f.readings = kept

	return deleted, nil
}

func (f *fakeReadingSource) SweepSynchronized(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSweep != nil {
		return 0, f.failSweep
	}

	return f.sweepCount, nil
}

func (f *fakeReadingSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.readings)
}

// fakeReadingSink implements ReadingSink, remembering every accepted batch.
type fakeReadingSink struct {
	mu       sync.Mutex
	failWith error
	accepted [][]store.Reading
	existing map[uuid.UUID]bool // simulates rows already present on REMOTE
}

func (f *fakeReadingSink) InsertReadings(_ context.Context, batch []store.Reading) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return 0, f.failWith
	}

	inserted := int64(0)

	for _, r := range batch {
		if f.existing[r.ID] {
			continue
		}

		inserted++
	}

	f.accepted = append(f.accepted, batch)

	return inserted, nil
}

func (f *fakeReadingSink) batches() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.accepted)
}

// fakeAuthority implements ConfigAuthority.
type fakeAuthority struct {
	meters  []store.Meter
	tenants []store.Tenant

	failMeters  error
	failTenants error
}

func (f *fakeAuthority) ListMeters(_ context.Context, tenantID int64) ([]store.Meter, error) {
	if f.failMeters != nil {
		return nil, f.failMeters
	}

	var out []store.Meter

	for _, m := range f.meters {
		if m.TenantID == tenantID {
			out = append(out, m)
		}
	}

	return out, nil
}

func (f *fakeAuthority) ListTenants(context.Context) ([]store.Tenant, error) {
	if f.failTenants != nil {
		return nil, f.failTenants
	}

	return f.tenants, nil
}

// fakeReplica implements ConfigReplica, applying writes to its in-memory
// image so idempotence can be asserted across passes.
type fakeReplica struct {
	mu      sync.Mutex
	meters  []store.Meter
	tenants []store.Tenant

	insertedMeters  []int64
	updatedMeters   []int64
	insertedTenants []int64
	updatedTenants  []store.Tenant

	failInsertMeter error
}

func (f *fakeReplica) ListMeters(context.Context) ([]store.Meter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]store.Meter{}, f.meters...), nil
}

func (f *fakeReplica) InsertMeter(_ context.Context, m store.Meter) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failInsertMeter != nil {
		return f.failInsertMeter
	}

	f.meters = append(f.meters, m)
	f.insertedMeters = append(f.insertedMeters, m.MeterID)

	return nil
}

func (f *fakeReplica) UpdateMeter(_ context.Context, m store.Meter) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.meters {
		if f.meters[i].MeterID == m.MeterID && f.meters[i].MeterElementID == m.MeterElementID {
			f.meters[i] = m
		}
	}

	f.updatedMeters = append(f.updatedMeters, m.MeterID)

	return nil
}

func (f *fakeReplica) ListTenants(context.Context) ([]store.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]store.Tenant{}, f.tenants...), nil
}

func (f *fakeReplica) InsertTenant(_ context.Context, t store.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tenants = append(f.tenants, t)
	f.insertedTenants = append(f.insertedTenants, t.TenantID)

	return nil
}

func (f *fakeReplica) UpdateTenantReplicated(_ context.Context, t store.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.tenants {
		if f.tenants[i].TenantID == t.TenantID {
			// Only the replicated fields change; the local knobs survive,
			// mirroring the pinned column list in the real store.
			knobsDownload := f.tenants[i].DownloadBatchSize
			knobsUpload := f.tenants[i].UploadBatchSize
			apiKey := f.tenants[i].APIKey

			f.tenants[i] = t
			f.tenants[i].DownloadBatchSize = knobsDownload
			f.tenants[i].UploadBatchSize = knobsUpload
			f.tenants[i].APIKey = apiKey
		}
	}

	f.updatedTenants = append(f.updatedTenants, t)

	return nil
}

// fakeResolver implements TenantResolver.
type fakeResolver struct {
	tenantID int64
	noTenant bool
	failWith error

	download *int
	upload   *int
	cfgErr   error
}

func (f *fakeResolver) FirstTenantID(context.Context) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}

	if f.noTenant {
		return 0, store.ErrNoTenant
	}

	return f.tenantID, nil
}

func (f *fakeResolver) TenantBatchConfig(context.Context, int64) (*int, *int, error) {
	if f.cfgErr != nil {
		return nil, nil, f.cfgErr
	}

	return f.download, f.upload, nil
}

// fakeSyncLog implements SyncLogAppender.
type fakeSyncLog struct {
	mu      sync.Mutex
	entries []store.SyncLogEntry
}

func (f *fakeSyncLog) AppendSyncLog(_ context.Context, e store.SyncLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, e)

	return nil
}

func (f *fakeSyncLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.entries)
}

func (f *fakeSyncLog) last() store.SyncLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.entries[len(f.entries)-1]
}

// fakeHealth implements HealthProber.
type fakeHealth struct {
	local, remote bool
}

func (f *fakeHealth) Health(context.Context) dbpool.Health {
	return dbpool.Health{LocalConnected: f.local, RemoteConnected: f.remote}
}

// intPtr and floatPtr keep test tables short.
func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }
