package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/metergrid/edgesync/internal/store"
	"github.com/metergrid/edgesync/internal/syncerr"
)

// Shutdown fence: Stop waits this long for an in-flight cycle, polling at
// the given interval. The cycle is never aborted from outside; transactions
// always run to commit or rollback.
const (
	stopFence        = 5 * time.Minute
	stopPollInterval = 1 * time.Second
)

// uploader and downloader are the manager seams; tests inject fakes.
type uploader interface {
	SyncReadings(ctx context.Context, batchSize int) UploadResult
}

type downloader interface {
	SyncMeterConfigurations(ctx context.Context, tenantID int64) MeterSyncResult
	SyncTenantData(ctx context.Context) TenantSyncResult
}

type batchConfigLoader interface {
	Load(ctx context.Context, tenantID int64) BatchConfig
}

// Counters is the scheduler's exported state snapshot.
type Counters struct {
	IsRunning          bool
	LastSyncTime       time.Time
	LastSyncSuccess    bool
	LastSyncError      string
	TotalRecordsSynced int64
}

// Scheduler runs sync cycles on a fixed interval. One cycle runs
// immediately on Start; the ticker launches the rest. Mutual exclusion is a
// single in-progress flag: a tick that finds a cycle still running is
// skipped and logged, never queued.
type Scheduler struct {
	upload    uploader
	download  downloader
	tenants   TenantResolver
	batchCfg  batchConfigLoader
	interval  time.Duration
	logger    *slog.Logger
	nowFunc   func() time.Time
	pollEvery time.Duration
	fence     time.Duration

	inProgress atomic.Bool

	mu       sync.Mutex
	running  bool
	batch    BatchConfig
	counters Counters
	stopCh   chan struct{}
	loopDone chan struct{}
}

// NewScheduler assembles the scheduler. It does not start anything.
func NewScheduler(upload uploader, download downloader, tenants TenantResolver,
	batchCfg batchConfigLoader, interval time.Duration, logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		upload:    upload,
		download:  download,
		tenants:   tenants,
		batchCfg:  batchCfg,
		interval:  interval,
		logger:    logger,
		nowFunc:   time.Now,
		pollEvery: stopPollInterval,
		fence:     stopFence,
		batch:     DefaultBatchConfig(),
	}
}

// Start loads the batch configuration, runs one immediate cycle, and begins
// the ticker loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()

		return errors.New("sync: scheduler already running")
	}

	s.running = true
	s.counters.IsRunning = true
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	s.RefreshBatchConfig(ctx)

	s.logger.Info("sync scheduler starting",
		slog.Duration("interval", s.interval))

	s.launchCycle(ctx)

	go s.loop(ctx)

	return nil
}

// loop owns the ticker. Cycles run in their own goroutine so the timer can
// observe — and skip — an overlap instead of silently coalescing ticks.
func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.launchCycle(ctx)
		}
	}
}

// launchCycle starts one cycle unless one is already in flight. The cycle
// runs on a context detached from cancellation: a transaction mid-commit is
// never aborted by shutdown. Stop's fence bounds how long that grace lasts.
func (s *Scheduler) launchCycle(ctx context.Context) {
	if !s.inProgress.CompareAndSwap(false, true) {
		s.logger.Info("previous sync cycle still running, skipping tick")

		return
	}

	cycleCtx := context.WithoutCancel(ctx)

	go func() {
		defer s.inProgress.Store(false)

		s.runCycle(cycleCtx)
	}()
}

// Stop cancels the timer and waits for any in-flight cycle to finish, up to
// the fence. Returns once no cycle is running or the fence elapses.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()

		return
	}

	s.running = false
	s.counters.IsRunning = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.loopDone

	deadline := s.nowFunc().Add(s.fence)
	for s.inProgress.Load() {
		if s.nowFunc().After(deadline) {
			s.logger.Warn("sync cycle did not finish before shutdown fence",
				slog.Duration("fence", s.fence))

			break
		}

		s.logger.Debug("waiting for in-flight sync cycle")
		time.Sleep(s.pollEvery)
	}

	s.logger.Info("sync scheduler stopped")
}

// ErrCycleInProgress is returned by ExecuteSyncCycle when another cycle
// holds the mutual-exclusion flag.
var ErrCycleInProgress = errors.New("sync: another cycle is already in progress")

// ExecuteSyncCycle runs one cycle immediately under the same mutual
// exclusion as the ticker. Used by the one-shot CLI path; the result carries
// ErrCycleInProgress if a cycle is already in flight. Cancellation of ctx is
// honored here, unlike scheduled cycles: the one-shot caller owns it.
func (s *Scheduler) ExecuteSyncCycle(ctx context.Context) CycleResult {
	if !s.inProgress.CompareAndSwap(false, true) {
		s.logger.Warn("sync cycle already in progress")

		return CycleResult{
			StartedAt: s.nowFunc(),
			Upload:    UploadResult{Err: ErrCycleInProgress},
		}
	}
	defer s.inProgress.Store(false)

	return s.runCycle(ctx)
}

// runCycle executes upload → meter download → tenant download in strict
// sequence. Panics are sinked; the cycle is reported failed and the daemon
// lives on to the next tick.
func (s *Scheduler) runCycle(ctx context.Context) (res CycleResult) {
	started := s.nowFunc()
	res.StartedAt = started

	defer func() {
		if r := recover(); r != nil {
			err := syncerr.Recovered("sync cycle", r)
			syncerr.Sink(s.logger, "sync cycle", err)

			res.Success = false
			res.Upload.Err = err
		}

		res.Duration = s.nowFunc().Sub(started)
		s.recordCycle(&res)
	}()

	s.logger.Debug("sync cycle starting")

	batch := s.batchConfig()

	res.Upload = s.upload.SyncReadings(ctx, batch.UploadBatchSize)

	tenantID, err := s.tenants.FirstTenantID(ctx)

	switch {
	case errors.Is(err, store.ErrNoTenant):
		s.logger.Warn("no local tenant yet, skipping meter download")

		res.Meters = MeterSyncResult{Success: true, Skipped: true,
			NewMeterIDs: []int64{}, UpdatedMeterIDs: []int64{}}

	case err != nil:
		res.Meters = MeterSyncResult{
			Err:         syncerr.LogAndContinue(s.logger, syncerr.KindDownload, "resolve local tenant", err),
			NewMeterIDs: []int64{}, UpdatedMeterIDs: []int64{},
		}

	default:
		res.Meters = s.download.SyncMeterConfigurations(ctx, tenantID)
	}

	res.Tenants = s.download.SyncTenantData(ctx)

	res.Success = res.Upload.Success && res.Meters.Success && res.Tenants.Success

	s.logger.Info("sync cycle complete",
		slog.Bool("success", res.Success),
		slog.Int64("uploaded", res.Upload.RecordsUploaded),
		slog.Int("new_meters", res.Meters.NewMeters),
		slog.Int("updated_meters", res.Meters.UpdatedMeters),
		slog.Int("new_tenants", res.Tenants.NewTenants),
		slog.Int("updated_tenants", res.Tenants.UpdatedTenants),
		slog.Duration("duration", s.nowFunc().Sub(started)),
	)

	return res
}

// recordCycle folds a finished cycle into the counters.
func (s *Scheduler) recordCycle(res *CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters.LastSyncTime = res.StartedAt
	s.counters.LastSyncSuccess = res.Success
	s.counters.TotalRecordsSynced += res.RecordsSynced()

	s.counters.LastSyncError = ""
	if err := res.FirstError(); err != nil {
		s.counters.LastSyncError = err.Error()
	} else if !res.Success {
		s.counters.LastSyncError = "sync cycle failed"
	}
}

// RefreshBatchConfig re-reads the per-tenant batch sizes. Called at startup
// and on the configuration-changed signal (SIGHUP or config file write).
func (s *Scheduler) RefreshBatchConfig(ctx context.Context) {
	tenantID, err := s.tenants.FirstTenantID(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoTenant) {
			s.logger.Warn("resolving tenant for batch config failed",
				slog.String("error", err.Error()))
		}

		s.setBatchConfig(DefaultBatchConfig())

		return
	}

	cfg := s.batchCfg.Load(ctx, tenantID)
	s.setBatchConfig(cfg)

	s.logger.Info("batch configuration loaded",
		slog.Int64("tenant_id", tenantID),
		slog.Int("upload_batch_size", cfg.UploadBatchSize),
		slog.Int("download_batch_size", cfg.DownloadBatchSize),
	)
}

func (s *Scheduler) setBatchConfig(cfg BatchConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch = cfg
}

func (s *Scheduler) batchConfig() BatchConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.batch
}

// Snapshot returns the scheduler counters for status reporting.
func (s *Scheduler) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counters
}

// String implements fmt.Stringer for debug logs.
func (s *Scheduler) String() string {
	c := s.Snapshot()

	return fmt.Sprintf("scheduler(running=%t last=%s success=%t total=%d)",
		c.IsRunning, c.LastSyncTime.Format(time.RFC3339), c.LastSyncSuccess, c.TotalRecordsSynced)
}
