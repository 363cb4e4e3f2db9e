package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/metergrid/edgesync/internal/config"
	"github.com/metergrid/edgesync/internal/dbpool"
	"github.com/metergrid/edgesync/internal/store"
	"github.com/metergrid/edgesync/internal/sync"
	"github.com/metergrid/edgesync/internal/syncerr"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long: `Start the scheduler and sync readings, meters, and tenants on the
configured interval until interrupted. SIGHUP (or a config file write)
reloads the per-tenant batch configuration without a restart.`,
		RunE: runDaemon,
	}
}

// daemon groups the assembled components so the one-shot commands can share
// the wiring with the long-running path.
type daemon struct {
	pools     *dbpool.Manager
	local     *store.Local
	remote    *store.Remote
	scheduler *sync.Scheduler
}

// buildDaemon wires pools, stores, managers, and the scheduler from the
// resolved configuration. The caller owns pools.Close.
func buildDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	pools, err := dbpool.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	local := store.NewLocal(pools.Pool(dbpool.RoleLocal), logger)
	remote := store.NewRemote(pools.Pool(dbpool.RoleRemote), logger)

	uploader := sync.NewUploadManager(local, remote, local, sync.NewValidator(), logger)
	downloader := sync.NewDownloadManager(remote, local, local, logger)
	batchLoader := sync.NewTenantConfigLoader(local, logger)

	scheduler := sync.NewScheduler(uploader, downloader, local, batchLoader, cfg.Interval(), logger)

	return &daemon{
		pools:     pools,
		local:     local,
		remote:    remote,
		scheduler: scheduler,
	}, nil
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := buildLogger()

	cleanup, err := writePIDFile(pidFilePath(cfg))
	if err != nil {
		return err
	}
	defer cleanup()

	// The work context is NOT canceled on the first signal: an in-flight
	// cycle must keep a live context through its REMOTE commit and LOCAL
	// delete. Shutdown is requested over a channel; Stop waits for the
	// cycle (up to the fence) before we tear anything down.
	ctx := cmd.Context()
	stopRequested := shutdownSignal(logger)

	if err := store.Migrate(ctx, cfg.Local.DSN(), logger); err != nil {
		return fmt.Errorf("migrating local schema: %w", err)
	}

	d, err := buildDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.pools.Close()

	if err := awaitConnectivity(ctx, d.pools, logger); err != nil {
		return err
	}

	seedAPIKey(ctx, cfg, d.local, logger)

	if err := d.scheduler.Start(ctx); err != nil {
		return err
	}

	reloadCtx, cancelReloads := context.WithCancel(ctx)
	defer cancelReloads()

	go watchReloads(reloadCtx, cfg, d.scheduler, logger)

	logger.Info("edgesync daemon started",
		slog.String("version", version),
		slog.Duration("interval", cfg.Interval()),
	)

	select {
	case <-stopRequested:
	case <-ctx.Done():
	}

	d.scheduler.Stop()
	cancelReloads()

	return nil
}

// awaitConnectivity verifies both endpoints can hand out a connection,
// retrying under the connection backoff schedule. LOCAL is mandatory — a
// daemon that cannot reach its own edge database has nothing to do. REMOTE
// being down is survivable: upload passes fail and retry cycle by cycle.
func awaitConnectivity(ctx context.Context, pools *dbpool.Manager, logger *slog.Logger) error {
	probe := func(role dbpool.Role) func(context.Context) error {
		return func(ctx context.Context) error {
			conn, err := pools.Acquire(ctx, role)
			if err != nil {
				return err
			}
			conn.Release()

			return nil
		}
	}

	if err := syncerr.Do(ctx, syncerr.KindConnection, "connect local database", logger,
		probe(dbpool.RoleLocal)); err != nil {
		return fmt.Errorf("local database unreachable: %w", err)
	}

	if err := syncerr.Do(ctx, syncerr.KindConnection, "connect remote database", logger,
		probe(dbpool.RoleRemote)); err != nil {
		logger.Warn("remote database unreachable at startup, uploads will retry per cycle",
			slog.String("error", err.Error()))
	}

	return nil
}

// seedAPIKey pushes a configured API key onto the tenant row once it exists.
// Best-effort: the tenant may not have downloaded yet on a fresh install.
func seedAPIKey(ctx context.Context, cfg *config.Config, local *store.Local, logger *slog.Logger) {
	if cfg.Sync.APIKey == "" {
		return
	}

	tenantID, err := local.FirstTenantID(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoTenant) {
			logger.Warn("seeding API key failed", slog.String("error", err.Error()))
		}

		return
	}

	if err := local.SeedAPIKey(ctx, tenantID, cfg.Sync.APIKey); err != nil {
		logger.Warn("seeding API key failed", slog.String("error", err.Error()))
	}
}

// watchReloads refreshes the batch configuration on SIGHUP and on config
// file writes. Neither source is fatal; the daemon runs fine without them.
func watchReloads(ctx context.Context, cfg *config.Config, scheduler *sync.Scheduler, logger *slog.Logger) {
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

	defer signal.Stop(hupCh)

	go func() {
		path := flagConfigPath
		if path == "" {
			path = config.DefaultPath()
		}

		if err := config.Watch(ctx, path, logger, func() {
			scheduler.RefreshBatchConfig(ctx)
		}); err != nil {
			logger.Warn("config watcher unavailable, reload via SIGHUP only",
				slog.String("error", err.Error()))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hupCh:
			logger.Info("received SIGHUP, reloading batch configuration")
			scheduler.RefreshBatchConfig(ctx)
		}
	}
}

// pidFilePath returns the configured PID file location or the conventional
// runtime default.
func pidFilePath(cfg *config.Config) string {
	if cfg.Sync.PIDFile != "" {
		return cfg.Sync.PIDFile
	}

	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "edgesync.pid")
	}

	return "/var/run/edgesync.pid"
}
