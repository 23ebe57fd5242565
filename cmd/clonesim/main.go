package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set by the release build.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clonesim",
		Short: "Stochastic aphid metapopulation simulator",
		Long: `clonesim simulates competing clonal aphid lines on a set of host-plant
patches. Each line has stage-structured projection matrices that depend on
plant age; patches are connected by alate dispersal and are cleared and
replanted when they reach a density cap, when the plant dies, or on schedule.

Results are long-format density tables written as CSV, Arrow IPC or
checksummed archives, or saved in a local SQLite store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides settings)")
	rootCmd.PersistentFlags().String("config", "", "Settings file (default ~/.clonesim/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newLeslieCmd(),
		newLogitCmd(),
		newInvLogitCmd(),
		newRunsCmd(),
		newSummarizeCmd(),
		newVerifyCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}
