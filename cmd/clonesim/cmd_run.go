package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nvandessel/clonesim/internal/archive"
	"github.com/nvandessel/clonesim/internal/config"
	"github.com/nvandessel/clonesim/internal/constants"
	"github.com/nvandessel/clonesim/internal/output"
	"github.com/nvandessel/clonesim/internal/sim"
	"github.com/nvandessel/clonesim/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <run.yaml>",
		Short: "Run a simulation from a run file",
		Long: `Load a YAML run file, validate it and simulate every replicate.

The result table goes to --out (format from --format or the file
extension: .csv, .arrow, .csar) and/or into the run store with --save
or --db. Without either it is written to stdout as CSV.

SIGINT or SIGTERM stops dispatching replicates; nothing is written for an
interrupted run.

Examples:
  clonesim run two_lines.yaml --out results.csv
  clonesim run two_lines.yaml --out run.csar --seed 7 --reps 500
  clonesim run two_lines.yaml --save --threads 4`,
		Args: cobra.ExactArgs(1),
		RunE: runSimulation,
	}

	cmd.Flags().String("out", "", "Write the result table to this file")
	cmd.Flags().String("format", "", "Output format: csv, arrow or archive (default from --out extension)")
	cmd.Flags().Bool("save", false, "Save the run in the configured run store")
	cmd.Flags().String("db", "", "Save the run in this SQLite database")
	cmd.Flags().Uint64("seed", 0, "Override the run file seed")
	cmd.Flags().Int("threads", 0, "Worker goroutines (0 uses the run file or settings)")
	cmd.Flags().Int("reps", 0, "Override the replicate count")
	cmd.Flags().Bool("progress", false, "Report replicate progress on stderr")

	return cmd
}

func runSimulation(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	outPath, _ := cmd.Flags().GetString("out")
	formatFlag, _ := cmd.Flags().GetString("format")
	save, _ := cmd.Flags().GetBool("save")
	dbPath, _ := cmd.Flags().GetString("db")
	progress, _ := cmd.Flags().GetBool("progress")
	save = save || dbPath != ""

	format, err := resolveFormat(formatFlag, outPath)
	if err != nil {
		return err
	}
	if env.jsonOut && outPath == "" && !save {
		return errors.New("--json needs --out, --save or --db: stdout carries the run report")
	}

	rf, err := config.LoadRunFile(args[0])
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetUint64("seed")
		rf.Seed = &seed
	}
	if cmd.Flags().Changed("reps") {
		rf.NReps, _ = cmd.Flags().GetInt("reps")
	}
	cfg, err := rf.ToConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("threads") {
		cfg.NThreads, _ = cmd.Flags().GetInt("threads")
	} else if cfg.NThreads == 0 {
		cfg.NThreads = env.settings.Run.Threads
	}
	cfg.ShowProgress = cfg.ShowProgress || progress || env.settings.Run.ShowProgress

	runID := uuid.NewString()
	events := env.eventLogger()
	defer events.Close()
	events.SetRunID(runID)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	opts := sim.RunOptions{Logger: env.logger.With("run_id", runID)}
	if events != nil {
		opts.Events = events
	}
	if cfg.ShowProgress {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(env.stderr, "\rreplicates %d/%d", done, total)
			if done == total {
				fmt.Fprintln(env.stderr)
			}
		}
	}

	env.logger.Info("starting run", "run_id", runID, "file", args[0], "replicates", cfg.NReps, "max_t", cfg.MaxT)
	res, err := sim.Simulate(ctx, cfg, opts)
	if err != nil {
		return err
	}

	doc, err := rf.Marshal()
	if err != nil {
		return fmt.Errorf("encoding run document: %w", err)
	}

	report := runReport{
		RunID:           runID,
		Name:            rf.Name,
		Seed:            cfg.Seed,
		Replicates:      res.Stats.Replicates,
		Workers:         res.Stats.Workers,
		Rows:            len(res.Table.Rows),
		EarlyStops:      res.Stats.EarlyStops,
		CapClears:       res.Stats.CapClears,
		DeathClears:     res.Stats.DeathClears,
		ScheduledClears: res.Stats.ScheduledClears,
		LineExtinctions: res.Stats.LineExtinctions,
		ElapsedMs:       res.Stats.Elapsed.Milliseconds(),
	}

	switch {
	case outPath != "":
		if err := writeTable(outPath, format, res.Table, archive.Header{
			RunID:      runID,
			Name:       rf.Name,
			Seed:       cfg.Seed,
			Replicates: cfg.NReps,
			RunFile:    string(doc),
			Metadata:   map[string]string{"clonesim_version": version},
		}); err != nil {
			return err
		}
		report.Out = outPath
		report.Format = string(format)
	case !save:
		if err := output.WriteCSV(env.stdout, res.Table); err != nil {
			return err
		}
	}

	if save {
		s, err := env.openStore(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		if _, err := s.SaveRun(ctx, store.Run{
			ID:         runID,
			Name:       rf.Name,
			Seed:       cfg.Seed,
			Replicates: cfg.NReps,
			MaxT:       cfg.MaxT,
			RunFile:    string(doc),
			Stats:      res.Stats,
		}, res.Table); err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		report.DB = s.Path()
	}

	if env.jsonOut {
		return env.printJSON(report)
	}
	report.print(env.stderr)
	return nil
}

type runReport struct {
	RunID           string `json:"run_id"`
	Name            string `json:"name,omitempty"`
	Seed            uint64 `json:"seed"`
	Replicates      int    `json:"replicates"`
	Workers         int    `json:"workers"`
	Rows            int    `json:"rows"`
	EarlyStops      int    `json:"early_stops"`
	CapClears       int    `json:"cap_clears"`
	DeathClears     int    `json:"death_clears"`
	ScheduledClears int    `json:"scheduled_clears"`
	LineExtinctions int    `json:"line_extinctions"`
	ElapsedMs       int64  `json:"elapsed_ms"`
	Out             string `json:"out,omitempty"`
	Format          string `json:"format,omitempty"`
	DB              string `json:"db,omitempty"`
}

func (r runReport) print(w io.Writer) {
	fmt.Fprintf(w, "Run %s: %d replicates on %d workers in %s\n",
		r.RunID, r.Replicates, r.Workers, time.Duration(r.ElapsedMs)*time.Millisecond)
	fmt.Fprintf(w, "  Rows: %d  Early stops: %d  Line extinctions: %d\n", r.Rows, r.EarlyStops, r.LineExtinctions)
	fmt.Fprintf(w, "  Clears: %d cap, %d death, %d scheduled\n", r.CapClears, r.DeathClears, r.ScheduledClears)
	if r.Out != "" {
		fmt.Fprintf(w, "  Wrote %s (%s)\n", r.Out, r.Format)
	}
	if r.DB != "" {
		fmt.Fprintf(w, "  Saved to %s\n", r.DB)
	}
}

// resolveFormat picks the output format from the flag, falling back to the
// output file extension and then to CSV.
func resolveFormat(flag, outPath string) (constants.OutputFormat, error) {
	if flag != "" {
		f := constants.OutputFormat(strings.ToLower(flag))
		if !f.Valid() {
			return "", fmt.Errorf("invalid format %q: must be csv, arrow or archive", flag)
		}
		return f, nil
	}
	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".arrow", ".feather", ".ipc":
		return constants.FormatArrow, nil
	case archive.Ext:
		return constants.FormatArchive, nil
	default:
		return constants.FormatCSV, nil
	}
}

// writeTable writes table to path in the given format. hdr is used only
// for archives.
func writeTable(path string, format constants.OutputFormat, table *sim.Table, hdr archive.Header) error {
	if format == constants.FormatArchive {
		if _, err := archive.Write(path, hdr, table); err != nil {
			return fmt.Errorf("writing archive: %w", err)
		}
		return nil
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := output.Write(f, format, table); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", format, err)
	}
	return f.Close()
}
