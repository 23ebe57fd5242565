package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/clonesim/internal/archive"
	"github.com/nvandessel/clonesim/internal/summary"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage runs in the run store",
		Long: `List, inspect, delete and export runs saved with 'clonesim run --save'.

Runs are addressed by their ID or any unique prefix of it.`,
	}

	cmd.PersistentFlags().String("db", "", "SQLite database (default from settings)")

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
		newRunsExportCmd(),
	)
	return cmd
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			dbPath, _ := cmd.Flags().GetString("db")
			s, err := env.openStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context())
			if err != nil {
				return err
			}

			if env.jsonOut {
				return env.printJSON(map[string]any{"runs": runs, "count": len(runs)})
			}
			if len(runs) == 0 {
				fmt.Fprintln(env.stdout, "No runs stored.")
				return nil
			}
			fmt.Fprintf(env.stdout, "%-36s  %-20s  %6s  %6s  %s\n", "ID", "CREATED", "REPS", "MAX_T", "NAME")
			for _, r := range runs {
				fmt.Fprintf(env.stdout, "%-36s  %-20s  %6d  %6d  %s\n",
					r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Replicates, r.MaxT, r.Name)
			}
			return nil
		},
	}
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run's metadata, statistics and final summaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			dbPath, _ := cmd.Flags().GetString("db")
			s, err := env.openStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			table, err := s.LoadTable(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			final := summary.Final(summary.Summarize(table))

			if env.jsonOut {
				return env.printJSON(map[string]any{"run": run, "final": final})
			}
			fmt.Fprintf(env.stdout, "Run:        %s\n", run.ID)
			if run.Name != "" {
				fmt.Fprintf(env.stdout, "Name:       %s\n", run.Name)
			}
			fmt.Fprintf(env.stdout, "Created:    %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(env.stdout, "Seed:       %d\n", run.Seed)
			fmt.Fprintf(env.stdout, "Replicates: %d (max_t %d)\n", run.Replicates, run.MaxT)
			fmt.Fprintf(env.stdout, "Lines:      %s\n", strings.Join(run.Lines, ", "))
			fmt.Fprintf(env.stdout, "Rows:       %d\n", run.Rows)
			fmt.Fprintf(env.stdout, "Clears:     %d cap, %d death, %d scheduled\n",
				run.Stats.CapClears, run.Stats.DeathClears, run.Stats.ScheduledClears)
			fmt.Fprintf(env.stdout, "Early stops: %d  Line extinctions: %d\n",
				run.Stats.EarlyStops, run.Stats.LineExtinctions)
			fmt.Fprintln(env.stdout)
			printSummaries(env.stdout, final)
			return nil
		},
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a run and its densities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			dbPath, _ := cmd.Flags().GetString("db")
			s, err := env.openStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := s.DeleteRun(cmd.Context(), run.ID); err != nil {
				return err
			}

			if env.jsonOut {
				return env.printJSON(map[string]string{"status": "deleted", "id": run.ID})
			}
			fmt.Fprintf(env.stdout, "Deleted run %s\n", run.ID)
			return nil
		},
	}
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a stored run as CSV, Arrow or an archive",
		Long: `Write a stored run's density table to a file.

Examples:
  clonesim runs export 3f2a --out run.csv
  clonesim runs export 3f2a --out run.csar`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			outPath, _ := cmd.Flags().GetString("out")
			formatFlag, _ := cmd.Flags().GetString("format")
			format, err := resolveFormat(formatFlag, outPath)
			if err != nil {
				return err
			}

			dbPath, _ := cmd.Flags().GetString("db")
			s, err := env.openStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			table, err := s.LoadTable(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			if err := writeTable(outPath, format, table, archive.Header{
				RunID:      run.ID,
				Name:       run.Name,
				CreatedAt:  run.CreatedAt,
				Seed:       run.Seed,
				Replicates: run.Replicates,
				RunFile:    run.RunFile,
				Metadata:   map[string]string{"clonesim_version": version},
			}); err != nil {
				return err
			}

			if env.jsonOut {
				return env.printJSON(map[string]any{
					"id": run.ID, "out": outPath, "format": format, "rows": len(table.Rows),
				})
			}
			fmt.Fprintf(env.stdout, "Exported run %s to %s (%s, %d rows)\n", run.ID, outPath, format, len(table.Rows))
			return nil
		},
	}

	cmd.Flags().String("out", "", "Output file")
	cmd.Flags().String("format", "", "Output format: csv, arrow or archive (default from --out extension)")
	cmd.MarkFlagRequired("out")
	return cmd
}
