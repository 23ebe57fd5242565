package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"gonum.org/v1/gonum/mat"

	"github.com/nvandessel/clonesim/internal/archive"
	"github.com/nvandessel/clonesim/internal/config"
	"github.com/nvandessel/clonesim/internal/leslie"
	"github.com/nvandessel/clonesim/internal/pathutil"
	"github.com/nvandessel/clonesim/internal/ratelimit"
	"github.com/nvandessel/clonesim/internal/sim"
	"github.com/nvandessel/clonesim/internal/store"
	"github.com/nvandessel/clonesim/internal/summary"
)

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolLeslie,
		Description: "Build a stage-structured projection matrix from instar durations, survival and reproduction, with its growth rate and stable stage distribution",
	}, s.handleLeslie)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolStableDistribution,
		Description: "Compute the dominant eigenvalue and stable stage distribution of a projection matrix",
	}, s.handleStableDistribution)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolLogit,
		Description: "Apply log(p/(1-p)) to probabilities strictly between 0 and 1",
	}, s.handleLogit)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolInvLogit,
		Description: "Apply 1/(1+exp(-a)) to real values",
	}, s.handleInvLogit)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolSimulate,
		Description: "Run a stochastic aphid metapopulation simulation from a YAML run document and return across-replicate summaries",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolRuns,
		Description: "List stored simulation runs, or show one run with its final summaries",
	}, s.handleRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolExport,
		Description: "Write a stored run as a checksummed archive inside the server's archive directory",
	}, s.handleExport)
}

func (s *Server) handleLeslie(ctx context.Context, req *sdk.CallToolRequest, args LeslieInput) (_ *sdk.CallToolResult, _ LeslieOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolLeslie, start, retErr, sanitizeToolParams(map[string]any{
			"instar_days": args.InstarDays, "surv_juv": args.SurvJuv,
			"surv_adult": args.SurvAdult, "repro": args.Repro,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolLeslie); err != nil {
		return nil, LeslieOutput{}, err
	}

	m, err := leslie.BuildProjection(args.InstarDays, args.SurvJuv, args.SurvAdult, args.Repro)
	if err != nil {
		return nil, LeslieOutput{}, err
	}
	lambda, err := leslie.DominantEigenvalue(m)
	if err != nil {
		return nil, LeslieOutput{}, err
	}
	dist, err := leslie.StableDistribution(m)
	if err != nil {
		return nil, LeslieOutput{}, err
	}

	n, _ := m.Dims()
	return nil, LeslieOutput{
		Stages:             n,
		Matrix:             config.RowsFromDense(m),
		Lambda:             lambda,
		StableDistribution: dist,
	}, nil
}

func (s *Server) handleStableDistribution(ctx context.Context, req *sdk.CallToolRequest, args StableDistributionInput) (_ *sdk.CallToolResult, _ StableDistributionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolStableDistribution, start, retErr, sanitizeToolParams(map[string]any{
			"matrix": args.Matrix,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolStableDistribution); err != nil {
		return nil, StableDistributionOutput{}, err
	}

	m, err := squareMatrix(args.Matrix)
	if err != nil {
		return nil, StableDistributionOutput{}, err
	}
	lambda, err := leslie.DominantEigenvalue(m)
	if err != nil {
		return nil, StableDistributionOutput{}, err
	}
	dist, err := leslie.StableDistribution(m)
	if err != nil {
		return nil, StableDistributionOutput{}, err
	}
	return nil, StableDistributionOutput{Lambda: lambda, Distribution: dist}, nil
}

func (s *Server) handleLogit(ctx context.Context, req *sdk.CallToolRequest, args LogitInput) (_ *sdk.CallToolResult, _ LogitOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolLogit, start, retErr, sanitizeToolParams(map[string]any{
			"values": args.Values, "count": len(args.Values),
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolLogit); err != nil {
		return nil, LogitOutput{}, err
	}

	// JSON has no infinities, so the endpoints are rejected.
	for i, p := range args.Values {
		if !(p > 0 && p < 1) {
			return nil, LogitOutput{}, fmt.Errorf("values[%d] = %g: logit needs a probability strictly between 0 and 1", i, p)
		}
	}
	return nil, LogitOutput{Values: leslie.Logit(args.Values)}, nil
}

func (s *Server) handleInvLogit(ctx context.Context, req *sdk.CallToolRequest, args LogitInput) (_ *sdk.CallToolResult, _ LogitOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolInvLogit, start, retErr, sanitizeToolParams(map[string]any{
			"values": args.Values, "count": len(args.Values),
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolInvLogit); err != nil {
		return nil, LogitOutput{}, err
	}
	return nil, LogitOutput{Values: leslie.InvLogit(args.Values)}, nil
}

func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	params := map[string]any{"run_file": args.RunFile, "save": args.Save, "all_times": args.AllTimes}
	if args.Seed != nil {
		params["seed"] = *args.Seed
	}
	defer func() {
		s.auditTool(ratelimit.ToolSimulate, start, retErr, sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolSimulate); err != nil {
		return nil, SimulateOutput{}, err
	}

	rf, err := config.ParseRunFile([]byte(args.RunFile))
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("parsing run_file: %w", err)
	}
	if args.Seed != nil {
		rf.Seed = args.Seed
	}
	cfg, err := rf.ToConfig()
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	capped := false
	if cfg.NReps > s.maxReplicates {
		s.logger.Info("capping replicates", "requested", cfg.NReps, "max", s.maxReplicates)
		cfg.NReps = s.maxReplicates
		capped = true
	}
	if cfg.NThreads == 0 {
		cfg.NThreads = s.threads
	}
	cfg.ShowProgress = false

	res, err := sim.Simulate(ctx, cfg, sim.RunOptions{Logger: s.logger, Events: s.events})
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	out := SimulateOutput{
		Replicates:      res.Stats.Replicates,
		Capped:          capped,
		Rows:            len(res.Table.Rows),
		EarlyStops:      res.Stats.EarlyStops,
		CapClears:       res.Stats.CapClears,
		DeathClears:     res.Stats.DeathClears,
		ScheduledClears: res.Stats.ScheduledClears,
		LineExtinctions: res.Stats.LineExtinctions,
		TotalDensity:    summary.TotalDensity(res.Table),
		Summaries:       summary.Summarize(res.Table),
	}
	if !args.AllTimes {
		out.Summaries = summary.Final(out.Summaries)
	}
	if out.Summaries == nil {
		out.Summaries = []summary.LineSummary{}
	}

	if args.Save {
		doc, err := rf.Marshal()
		if err != nil {
			return nil, SimulateOutput{}, fmt.Errorf("encoding run document: %w", err)
		}
		run, err := s.store.SaveRun(ctx, store.Run{
			Name:       rf.Name,
			Seed:       cfg.Seed,
			Replicates: cfg.NReps,
			MaxT:       cfg.MaxT,
			RunFile:    string(doc),
			Stats:      res.Stats,
		}, res.Table)
		if err != nil {
			return nil, SimulateOutput{}, fmt.Errorf("saving run: %w", err)
		}
		out.RunID = run.ID
	}
	return nil, out, nil
}

func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolRuns, start, retErr, sanitizeToolParams(map[string]any{"id": args.ID}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolRuns); err != nil {
		return nil, RunsOutput{}, err
	}

	if args.ID != "" {
		run, err := s.store.GetRun(ctx, args.ID)
		if err != nil {
			return nil, RunsOutput{}, err
		}
		table, err := s.store.LoadTable(ctx, run.ID)
		if err != nil {
			return nil, RunsOutput{}, err
		}
		return nil, RunsOutput{
			Runs:  []RunItem{runItem(*run)},
			Count: 1,
			Final: summary.Final(summary.Summarize(table)),
		}, nil
	}

	runs, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("listing runs: %w", err)
	}
	items := make([]RunItem, 0, len(runs))
	for _, r := range runs {
		items = append(items, runItem(r))
	}
	return nil, RunsOutput{Runs: items, Count: len(items)}, nil
}

var errExportDisabled = errors.New("exports are disabled: no archive directory configured")

func (s *Server) handleExport(ctx context.Context, req *sdk.CallToolRequest, args ExportInput) (_ *sdk.CallToolResult, _ ExportOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolExport, start, retErr, sanitizeToolParams(map[string]any{
			"id": args.ID, "output_path": args.OutputPath,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolExport); err != nil {
		return nil, ExportOutput{}, err
	}
	if s.archiveDir == "" {
		return nil, ExportOutput{}, errExportDisabled
	}
	if args.ID == "" {
		return nil, ExportOutput{}, errors.New("'id' parameter is required")
	}

	run, err := s.store.GetRun(ctx, args.ID)
	if err != nil {
		return nil, ExportOutput{}, err
	}

	outputPath := args.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(s.archiveDir, run.ID+archive.Ext)
	} else if err := pathutil.ValidatePath(outputPath, []string{s.archiveDir}); err != nil {
		return nil, ExportOutput{}, fmt.Errorf("export path rejected: %w", err)
	}

	table, err := s.store.LoadTable(ctx, run.ID)
	if err != nil {
		return nil, ExportOutput{}, err
	}
	hdr, err := archive.Write(outputPath, archive.Header{
		RunID:      run.ID,
		Name:       run.Name,
		CreatedAt:  run.CreatedAt,
		Seed:       run.Seed,
		Replicates: run.Replicates,
		RunFile:    run.RunFile,
	}, table)
	if err != nil {
		return nil, ExportOutput{}, fmt.Errorf("export failed: %w", err)
	}

	var size int64
	if info, err := os.Stat(outputPath); err == nil {
		size = info.Size()
	}
	s.logger.Info("run exported", "run_id", run.ID, "path", pathutil.RedactPath(outputPath))

	return nil, ExportOutput{
		Path:      outputPath,
		RunID:     run.ID,
		Rows:      hdr.Rows,
		Checksum:  hdr.Checksum,
		SizeBytes: size,
	}, nil
}

func runItem(r store.Run) RunItem {
	lines := r.Lines
	if lines == nil {
		lines = []string{}
	}
	return RunItem{
		ID:         r.ID,
		Name:       r.Name,
		CreatedAt:  r.CreatedAt,
		Seed:       r.Seed,
		Replicates: r.Replicates,
		MaxT:       r.MaxT,
		Lines:      lines,
		Rows:       r.Rows,
	}
}

var errNotSquare = errors.New("matrix must be square and non-empty")

func squareMatrix(rows [][]float64) (*mat.Dense, error) {
	n := len(rows)
	if n == 0 {
		return nil, errNotSquare
	}
	data := make([]float64, 0, n*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d entries, want %d", errNotSquare, i, len(row), n)
		}
		data = append(data, row...)
	}
	return mat.NewDense(n, n, data), nil
}
