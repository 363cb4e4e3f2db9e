package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metergrid/edgesync/internal/store"
)

const testTenantID = int64(3)

func meter42() store.Meter {
	return store.Meter{
		MeterID: 42, TenantID: testTenantID, Name: "hall-a",
		DeviceID: 7, IP: "10.1.2.3", Port: "502",
		Active: true, Element: "L1", MeterElementID: 1,
	}
}

func tenantBerlin() store.Tenant {
	return store.Tenant{
		TenantID: testTenantID, Name: "Acme Metering", URL: "https://acme.example",
		Street: "Unter den Linden 5", City: "Berlin", Zip: "10117",
		Country: "DE", Active: true,
	}
}

func newDownloadFixture() (*DownloadManager, *fakeAuthority, *fakeReplica, *fakeSyncLog) {
	authority := &fakeAuthority{}
	replica := &fakeReplica{}
	logStore := &fakeSyncLog{}
	mgr := NewDownloadManager(authority, replica, logStore, testLogger())

	return mgr, authority, replica, logStore
}

func TestSyncMeterConfigurations_NewMeter(t *testing.T) {
	t.Parallel()

	mgr, authority, replica, _ := newDownloadFixture()
	authority.meters = []store.Meter{meter42()}

	res := mgr.SyncMeterConfigurations(context.Background(), testTenantID)

	require.True(t, res.Success)
	assert.Equal(t, 1, res.NewMeters)
	assert.Zero(t, res.UpdatedMeters)
	assert.Equal(t, 1, res.TotalMeters)
	assert.Equal(t, []int64{42}, res.NewMeterIDs)
	assert.Empty(t, res.UpdatedMeterIDs)

	require.Len(t, replica.meters, 1)
	assert.Equal(t, meter42(), replica.meters[0])
}

func TestSyncMeterConfigurations_UpdatedMeter(t *testing.T) {
	t.Parallel()

	mgr, authority, replica, _ := newDownloadFixture()

	stale := meter42()
	stale.IP = "10.9.9.9"
	stale.Active = false
	replica.meters = []store.Meter{stale}

	authority.meters = []store.Meter{meter42()}

	res := mgr.SyncMeterConfigurations(context.Background(), testTenantID)

	require.True(t, res.Success)
	assert.Zero(t, res.NewMeters)
	assert.Equal(t, 1, res.UpdatedMeters)
	assert.Equal(t, []int64{42}, res.UpdatedMeterIDs)

	assert.Equal(t, "10.1.2.3", replica.meters[0].IP)
	assert.True(t, replica.meters[0].Active)
}

func TestSyncMeterConfigurations_LocalOnlyMetersUntouched(t *testing.T) {
	t.Parallel()

	mgr, authority, replica, _ := newDownloadFixture()

	orphan := meter42()
	orphan.MeterID = 99
	replica.meters = []store.Meter{orphan}

	authority.meters = []store.Meter{meter42()}

	res := mgr.SyncMeterConfigurations(context.Background(), testTenantID)

	require.True(t, res.Success)
	assert.Equal(t, 1, res.NewMeters)

	// The orphan stays: deletions never propagate.
	assert.Len(t, replica.meters, 2)
	assert.Empty(t, replica.updatedMeters)
}

func TestSyncMeterConfigurations_Idempotent(t *testing.T) {
	t.Parallel()

	mgr, authority, replica, _ := newDownloadFixture()
	authority.meters = []store.Meter{meter42()}

	first := mgr.SyncMeterConfigurations(context.Background(), testTenantID)
	require.True(t, first.Success)
	require.Equal(t, 1, first.NewMeters)

	second := mgr.SyncMeterConfigurations(context.Background(), testTenantID)
	require.True(t, second.Success)
	assert.Zero(t, second.NewMeters)
	assert.Zero(t, second.UpdatedMeters)
	assert.Len(t, replica.insertedMeters, 1)
	assert.Empty(t, replica.updatedMeters)
}

func TestSyncMeterConfigurations_RemoteFailure(t *testing.T) {
	t.Parallel()

	mgr, authority, replica, logStore := newDownloadFixture()
	authority.failMeters = errors.New("timeout")

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // skip the query retry sleeps

	res := mgr.SyncMeterConfigurations(ctx, testTenantID)

	require.False(t, res.Success)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "download")
	assert.Empty(t, res.NewMeterIDs)
	assert.Empty(t, replica.insertedMeters)

	require.Equal(t, 1, logStore.count())
	assert.False(t, logStore.last().Success)
}

func TestSyncTenantData_NewTenant(t *testing.T) {
	t.Parallel()

	mgr, authority, replica, _ := newDownloadFixture()
	authority.tenants = []store.Tenant{tenantBerlin()}

	res := mgr.SyncTenantData(context.Background())

	require.True(t, res.Success)
	assert.Equal(t, 1, res.NewTenants)
	assert.Equal(t, []int64{testTenantID}, res.NewTenantIDs)
	assert.Empty(t, res.TenantChanges)
	assert.Len(t, replica.tenants, 1)
}

func TestSyncTenantData_FieldChangePreservesLocalKnobs(t *testing.T) {
	t.Parallel()

	mgr, authority, replica, _ := newDownloadFixture()

	local := tenantBerlin()
	local.City = "München"
	local.UploadBatchSize = intPtr(250)
	local.DownloadBatchSize = intPtr(500)
	replica.tenants = []store.Tenant{local}

	authority.tenants = []store.Tenant{tenantBerlin()}

	res := mgr.SyncTenantData(context.Background())

	require.True(t, res.Success)
	assert.Equal(t, 1, res.UpdatedTenants)
	require.Len(t, res.TenantChanges, 1)
	assert.Equal(t, testTenantID, res.TenantChanges[0].TenantID)
	assert.Equal(t, []string{"city"}, res.TenantChanges[0].ChangedFields)

	// Replicated field converged, LOCAL-only knobs preserved.
	assert.Equal(t, "Berlin", replica.tenants[0].City)
	require.NotNil(t, replica.tenants[0].UploadBatchSize)
	assert.Equal(t, 250, *replica.tenants[0].UploadBatchSize)
	require.NotNil(t, replica.tenants[0].DownloadBatchSize)
	assert.Equal(t, 500, *replica.tenants[0].DownloadBatchSize)
}

func TestSyncTenantData_Idempotent(t *testing.T) {
	t.Parallel()

	mgr, authority, _, _ := newDownloadFixture()
	authority.tenants = []store.Tenant{tenantBerlin()}

	first := mgr.SyncTenantData(context.Background())
	require.Equal(t, 1, first.NewTenants)

	second := mgr.SyncTenantData(context.Background())
	assert.Zero(t, second.NewTenants)
	assert.Zero(t, second.UpdatedTenants)
	assert.Empty(t, second.TenantChanges)
}

func TestMeterDiff(t *testing.T) {
	t.Parallel()

	base := meter42()

	changed := meter42()
	changed.DeviceID = 8
	changed.Port = "503"

	assert.Empty(t, meterDiff(base, base))
	assert.Equal(t, []string{"device_id", "port"}, meterDiff(base, changed))

	// Name changes alone do not trigger an update: only the replicated
	// operational fields are compared.
	renamed := meter42()
	renamed.Name = "hall-b"
	assert.Empty(t, meterDiff(base, renamed))
}

func TestTenantDiff_IgnoresLocalKnobs(t *testing.T) {
	t.Parallel()

	base := tenantBerlin()

	knobs := tenantBerlin()
	knobs.UploadBatchSize = intPtr(9)
	knobs.APIKey = func() *string { s := "k"; return &s }()

	assert.Empty(t, tenantDiff(base, knobs))

	moved := tenantBerlin()
	moved.City = "Hamburg"
	moved.Zip = "20095"
	assert.Equal(t, []string{"city", "zip"}, tenantDiff(base, moved))
}
