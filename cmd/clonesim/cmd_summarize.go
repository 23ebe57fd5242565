package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/clonesim/internal/archive"
	"github.com/nvandessel/clonesim/internal/sim"
	"github.com/nvandessel/clonesim/internal/summary"
)

func newSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize <run-id | archive>",
		Short: "Summarize line totals across replicates",
		Long: `Print, for each snapshot time and line, the mean, standard deviation
and 10/50/90% quantiles of the line total across replicates, with the
fraction of replicates where the line persists and the mean fraction of
patches it occupies.

The argument is an archive file if one exists at that path, otherwise a
run ID (or prefix) in the run store.

Examples:
  clonesim summarize run.csar
  clonesim summarize 3f2a --final`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			final, _ := cmd.Flags().GetBool("final")
			dbPath, _ := cmd.Flags().GetString("db")

			var table *sim.Table
			if _, statErr := os.Stat(args[0]); statErr == nil {
				a, err := archive.Read(args[0])
				if err != nil {
					return err
				}
				table = a.Table
			} else {
				s, err := env.openStore(dbPath)
				if err != nil {
					return err
				}
				defer s.Close()
				if table, err = s.LoadTable(cmd.Context(), args[0]); err != nil {
					return err
				}
			}

			summaries := summary.Summarize(table)
			if final {
				summaries = summary.Final(summaries)
			}
			if summaries == nil {
				summaries = []summary.LineSummary{}
			}

			if env.jsonOut {
				return env.printJSON(map[string]any{"summaries": summaries})
			}
			printSummaries(env.stdout, summaries)
			return nil
		},
	}

	cmd.Flags().Bool("final", false, "Only the last snapshot time")
	cmd.Flags().String("db", "", "SQLite database (default from settings)")
	return cmd
}

func printSummaries(w io.Writer, summaries []summary.LineSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No densities recorded.")
		return
	}
	fmt.Fprintf(w, "%6s  %-12s  %12s  %12s  %12s  %12s  %12s  %7s  %7s\n",
		"TIME", "LINE", "MEAN", "SD", "Q10", "MEDIAN", "Q90", "PERSIST", "OCCUPY")
	for _, s := range summaries {
		fmt.Fprintf(w, "%6d  %-12s  %12.4g  %12.4g  %12.4g  %12.4g  %12.4g  %7.3f  %7.3f\n",
			s.Time, s.Line, s.Mean, s.SD, s.Q10, s.Median, s.Q90, s.Persistence, s.Occupancy)
	}
}
