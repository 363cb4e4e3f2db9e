package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Tell a running daemon to reload its batch configuration",
		RunE: func(*cobra.Command, []string) error {
			path := pidFilePath(resolvedCfg)

			if err := sendSIGHUP(path); err != nil {
				return err
			}

			fmt.Println("Reload signal sent.")

			return nil
		},
	}
}
