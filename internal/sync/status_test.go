package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/metergrid/edgesync/internal/store"
)

// fakeLocalCounts implements StatusCounts.
type fakeLocalCounts struct {
	backlog, meters, tenants int64
	failWith                 error
}

func (f *fakeLocalCounts) CountBacklog(context.Context) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}

	return f.backlog, nil
}

func (f *fakeLocalCounts) CountMeters(context.Context) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}

	return f.meters, nil
}

func (f *fakeLocalCounts) CountTenants(context.Context) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}

	return f.tenants, nil
}

// fakeRemoteCounts implements RemoteCounts.
type fakeRemoteCounts struct {
	meters, tenants int64
	failWith        error
}

func (f *fakeRemoteCounts) CountMeters(_ context.Context, _ int64) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}

	return f.meters, nil
}

func (f *fakeRemoteCounts) CountTenants(context.Context) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}

	return f.tenants, nil
}

// fakeCounters implements counterSource.
type fakeCounters struct {
	c Counters
}

func (f *fakeCounters) Snapshot() Counters { return f.c }

func TestStatusReporter_ComposesAllSources(t *testing.T) {
	t.Parallel()

	syncedAt := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)

	r := NewStatusReporter(
		&fakeCounters{c: Counters{
			IsRunning:          true,
			LastSyncTime:       syncedAt,
			LastSyncSuccess:    true,
			TotalRecordsSynced: 1234,
		}},
		&fakeLocalCounts{backlog: 17, meters: 4, tenants: 1},
		&fakeRemoteCounts{meters: 4, tenants: 9},
		&fakeResolver{tenantID: testTenantID},
		&fakeHealth{local: true, remote: true},
		testLogger(),
	)

	st := r.Report(context.Background())

	assert.True(t, st.IsRunning)
	assert.Equal(t, syncedAt, st.LastSyncTime)
	assert.True(t, st.LastSyncSuccess)
	assert.Empty(t, st.LastSyncError)
	assert.EqualValues(t, 17, st.QueueSize)
	assert.EqualValues(t, 1234, st.TotalRecordsSynced)
	assert.EqualValues(t, 4, st.LocalMeterCount)
	assert.EqualValues(t, 4, st.RemoteMeterCount)
	assert.EqualValues(t, 1, st.LocalTenantCount)
	assert.EqualValues(t, 9, st.RemoteTenantCount)
	assert.True(t, st.LocalDBConnected)
	assert.True(t, st.RemoteDBConnected)
}

func TestStatusReporter_CountFailuresDegradeToZero(t *testing.T) {
	t.Parallel()

	r := NewStatusReporter(
		&fakeCounters{c: Counters{IsRunning: true}},
		&fakeLocalCounts{failWith: assert.AnError},
		&fakeRemoteCounts{failWith: assert.AnError},
		&fakeResolver{tenantID: testTenantID},
		&fakeHealth{local: true, remote: false},
		testLogger(),
	)

	st := r.Report(context.Background())

	// The report still comes back; unavailable counters read zero.
	assert.True(t, st.IsRunning)
	assert.Zero(t, st.QueueSize)
	assert.Zero(t, st.LocalMeterCount)
	assert.Zero(t, st.RemoteMeterCount)
	assert.Zero(t, st.LocalTenantCount)
	assert.Zero(t, st.RemoteTenantCount)
	assert.True(t, st.LocalDBConnected)
	assert.False(t, st.RemoteDBConnected)
}

func TestStatusReporter_NoTenantSkipsRemoteMeterCount(t *testing.T) {
	t.Parallel()

	r := NewStatusReporter(
		nil, // one-shot path without a scheduler
		&fakeLocalCounts{backlog: 3},
		&fakeRemoteCounts{meters: 99, tenants: 2},
		&fakeResolver{noTenant: true},
		&fakeHealth{local: true, remote: true},
		testLogger(),
	)

	st := r.Report(context.Background())

	assert.False(t, st.IsRunning, "no scheduler means not running")
	assert.Zero(t, st.RemoteMeterCount, "no tenant to scope the remote meter count")
	assert.EqualValues(t, 2, st.RemoteTenantCount)
	assert.EqualValues(t, 3, st.QueueSize)
}

func TestStatusReporter_LastSyncErrorSurvives(t *testing.T) {
	t.Parallel()

	r := NewStatusReporter(
		&fakeCounters{c: Counters{
			LastSyncSuccess: false,
			LastSyncError:   "upload insert readings: connection refused",
		}},
		&fakeLocalCounts{},
		&fakeRemoteCounts{},
		&fakeResolver{failWith: store.ErrNoTenant},
		&fakeHealth{},
		testLogger(),
	)

	st := r.Report(context.Background())

	assert.False(t, st.LastSyncSuccess)
	assert.Contains(t, st.LastSyncError, "connection refused")
}
