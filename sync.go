package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/metergrid/edgesync/internal/store"
	"github.com/metergrid/edgesync/internal/sync"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and exit",
		Long: `Execute a single upload/download cycle immediately, outside the
scheduler. Useful for cron-style deployments and for verifying a new
installation end to end.`,
		RunE: runOneShotSync,
	}
}

func runOneShotSync(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	if err := store.Migrate(ctx, cfg.Local.DSN(), logger); err != nil {
		return fmt.Errorf("migrating local schema: %w", err)
	}

	d, err := buildDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.pools.Close()

	d.scheduler.RefreshBatchConfig(ctx)

	res := d.scheduler.ExecuteSyncCycle(ctx)

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}
	} else {
		printCycleText(&res)
	}

	if !res.Success {
		if err := res.FirstError(); err != nil {
			return err
		}

		return errors.New("sync cycle failed")
	}

	return nil
}

func printCycleText(res *sync.CycleResult) {
	fmt.Printf("Sync cycle %s in %s\n", successWord(res.Success), res.Duration)
	fmt.Printf("  Readings:  %d uploaded, %d deleted locally, %d rejected\n",
		res.Upload.RecordsUploaded, res.Upload.RecordsDeleted, res.Upload.RecordsRejected)

	if res.Meters.Skipped {
		fmt.Println("  Meters:    skipped (no local tenant yet)")
	} else {
		fmt.Printf("  Meters:    %d new, %d updated (%d total)\n",
			res.Meters.NewMeters, res.Meters.UpdatedMeters, res.Meters.TotalMeters)
	}

	fmt.Printf("  Tenants:   %d new, %d updated (%d total)\n",
		res.Tenants.NewTenants, res.Tenants.UpdatedTenants, res.Tenants.TotalTenants)
}

func successWord(ok bool) string {
	if ok {
		return "succeeded"
	}

	return "failed"
}
