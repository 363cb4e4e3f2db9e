package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/metergrid/edgesync/internal/sync"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync backlog, record counts, and connectivity",
		Long: `Display the current synchronization state: pending upload backlog,
meter and tenant counts on both databases, and connectivity to each.
Read-only — never modifies data and never triggers a sync.`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := buildLogger()
	ctx := cmd.Context()

	d, err := buildDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.pools.Close()

	reporter := sync.NewStatusReporter(nil, d.local, d.remote, d.local, d.pools, logger)
	st := reporter.Report(ctx)

	if flagJSON {
		return printStatusJSON(&st)
	}

	printStatusText(&st)

	return nil
}

func printStatusJSON(st *sync.Status) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printStatusText(st *sync.Status) {
	fmt.Printf("Local DB:   %s\n", connectedWord(st.LocalDBConnected))
	fmt.Printf("Remote DB:  %s\n", connectedWord(st.RemoteDBConnected))
	fmt.Println()

	fmt.Printf("Pending upload backlog: %d readings\n", st.QueueSize)
	fmt.Println()

	printTable(os.Stdout,
		[]string{"", "LOCAL", "REMOTE"},
		[][]string{
			{"Meters", fmt.Sprintf("%d", st.LocalMeterCount), fmt.Sprintf("%d", st.RemoteMeterCount)},
			{"Tenants", fmt.Sprintf("%d", st.LocalTenantCount), fmt.Sprintf("%d", st.RemoteTenantCount)},
		})

	if !st.LastSyncTime.IsZero() {
		fmt.Println()
		fmt.Printf("Last sync: %s (%s)\n", formatTime(st.LastSyncTime), successWord(st.LastSyncSuccess))

		if st.LastSyncError != "" {
			fmt.Printf("  Error: %s\n", st.LastSyncError)
		}
	}
}

func connectedWord(ok bool) string {
	if ok {
		return "connected"
	}

	return "unreachable"
}
