package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Skufu/smarthealth/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "smarthealth %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
	},
}
