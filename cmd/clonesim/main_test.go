package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/clonesim/internal/archive"
	"github.com/nvandessel/clonesim/internal/constants"
	"github.com/nvandessel/clonesim/internal/output"
	"github.com/nvandessel/clonesim/internal/store"
	"github.com/nvandessel/clonesim/internal/summary"
)

// fibRunFile has no noise: line totals follow the Fibonacci numbers, so
// every replicate holds 1, 3 and 13 aphids at t = 0, 3 and 6.
const fibRunFile = `
name: fib
seed: 5
n_reps: 2
max_t: 6
save_every: 3
max_N: 1e9
mean_K: .inf
shape1_death_mort: 1
shape2_death_mort: 1
extinct_N: 0
patches: 1
lines:
  - name: fib
    matrix: [[0, 1], [1, 1]]
    initial: [[1, 0]]
    alate_b0: 0
    alate_b1: 0
    disp_rate: 0
    disp_mort: 0
`

// isolateHome points HOME at a temp directory so settings and the default
// store never touch the real ~/.clonesim/.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CLONESIM_DB", "")
	t.Setenv("CLONESIM_LOG_LEVEL", "")
	return home
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeRunFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fib.yaml")
	if err := os.WriteFile(path, []byte(fibRunFile), 0600); err != nil {
		t.Fatalf("failed to write run file: %v", err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	isolateHome(t)

	stdout, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(stdout, "clonesim version "+version) {
		t.Errorf("unexpected version output %q", stdout)
	}

	stdout, _, err = execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decoding version JSON: %v", err)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"version", "run", "leslie", "logit", "inv-logit", "runs", "summarize", "verify", "mcp-server"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestLeslieCmd(t *testing.T) {
	isolateHome(t)

	stdout, _, err := execute(t, "leslie",
		"--instar-days", "2", "--surv-juv", "0.9", "--surv-adult", "0.8", "--repro", "3", "--json")
	if err != nil {
		t.Fatalf("leslie: %v", err)
	}

	var got struct {
		Stages             int         `json:"stages"`
		Matrix             [][]float64 `json:"matrix"`
		Lambda             float64     `json:"lambda"`
		StableDistribution []float64   `json:"stable_distribution"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decoding leslie JSON: %v\n%s", err, stdout)
	}
	if got.Stages != 3 {
		t.Fatalf("expected 3 stages, got %d", got.Stages)
	}
	if got.Matrix[0][2] != 3 || got.Matrix[1][0] != 0.9 || got.Matrix[2][2] != 0.8 {
		t.Errorf("unexpected matrix %v", got.Matrix)
	}
	if got.Lambda <= 1 {
		t.Errorf("expected a growing population, lambda %g", got.Lambda)
	}

	stdout, _, err = execute(t, "leslie",
		"--instar-days", "2", "--surv-juv", "0.9", "--surv-adult", "0.8", "--repro", "3")
	if err != nil {
		t.Fatalf("leslie text: %v", err)
	}
	for _, want := range []string{"Projection matrix (3 stages):", "Lambda:", "Stable distribution:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestLeslieCmd_DimensionMismatch(t *testing.T) {
	isolateHome(t)

	_, _, err := execute(t, "leslie",
		"--instar-days", "2", "--surv-juv", "0.9", "--surv-adult", "0.8,0.7", "--repro", "3")
	if err == nil || !strings.Contains(err.Error(), "dimension mismatch") {
		t.Errorf("expected a dimension mismatch, got %v", err)
	}
}

func TestLogitCmds(t *testing.T) {
	isolateHome(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"logit half", []string{"logit", "0.5"}, []string{"0"}},
		{"logit edges", []string{"logit", "0", "1"}, []string{"-Inf", "+Inf"}},
		{"inv-logit", []string{"inv-logit", "0"}, []string{"0.5"}},
		{"inv-logit saturates", []string{"inv-logit", "--", "-1000", "1000"}, []string{"0", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("%v: %v", tt.args, err)
			}
			got := strings.Fields(stdout)
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("%v = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}

func TestLogitCmd_JSONInfinity(t *testing.T) {
	isolateHome(t)

	stdout, _, err := execute(t, "logit", "1", "0.5", "--json")
	if err != nil {
		t.Fatalf("logit --json: %v", err)
	}
	var got struct {
		Values []any `json:"values"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decoding logit JSON: %v\n%s", err, stdout)
	}
	if got.Values[0] != "+Inf" || got.Values[1] != 0.0 {
		t.Errorf("unexpected values %v", got.Values)
	}
}

func TestLogitCmd_BadArgument(t *testing.T) {
	isolateHome(t)

	if _, _, err := execute(t, "logit", "half"); err == nil {
		t.Error("expected an error for a non-numeric argument")
	}
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		flag    string
		out     string
		want    constants.OutputFormat
		wantErr bool
	}{
		{"", "", constants.FormatCSV, false},
		{"", "results.csv", constants.FormatCSV, false},
		{"", "results.arrow", constants.FormatArrow, false},
		{"", "results.FEATHER", constants.FormatArrow, false},
		{"", "run.csar", constants.FormatArchive, false},
		{"arrow", "results.csv", constants.FormatArrow, false},
		{"Archive", "", constants.FormatArchive, false},
		{"parquet", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.flag+"|"+tt.out, func(t *testing.T) {
			got, err := resolveFormat(tt.flag, tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveFormat(%q, %q) error = %v, wantErr %v", tt.flag, tt.out, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveFormat(%q, %q) = %q, want %q", tt.flag, tt.out, got, tt.want)
			}
		})
	}
}

func TestRunCmd_CSVToStdout(t *testing.T) {
	isolateHome(t)
	runFile := writeRunFile(t, t.TempDir())

	stdout, stderr, err := execute(t, "run", runFile)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stderr)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	// 3 snapshots x 2 replicates x 2 stages, plus the header.
	if len(lines) != 13 {
		t.Fatalf("expected 13 CSV lines, got %d:\n%s", len(lines), stdout)
	}
	if lines[0] != "rep,time,patch,line,stage,density" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(stderr, "2 replicates") {
		t.Errorf("expected a run report on stderr, got:\n%s", stderr)
	}
}

func TestRunCmd_Formats(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	runFile := writeRunFile(t, dir)

	t.Run("arrow", func(t *testing.T) {
		out := filepath.Join(dir, "out", "fib.arrow")
		if _, _, err := execute(t, "run", runFile, "--out", out); err != nil {
			t.Fatalf("run: %v", err)
		}
		f, err := os.Open(out)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer f.Close()
		table, err := output.ReadArrow(f)
		if err != nil {
			t.Fatalf("ReadArrow: %v", err)
		}
		if len(table.Rows) != 12 || table.Lines[0] != "fib" {
			t.Errorf("unexpected table: %d rows, lines %v", len(table.Rows), table.Lines)
		}
	})

	t.Run("archive", func(t *testing.T) {
		out := filepath.Join(dir, "fib.csar")
		stdout, _, err := execute(t, "run", runFile, "--out", out, "--seed", "99", "--json")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		var report runReport
		if err := json.Unmarshal([]byte(stdout), &report); err != nil {
			t.Fatalf("decoding report: %v\n%s", err, stdout)
		}
		if report.Seed != 99 || report.Format != string(constants.FormatArchive) {
			t.Errorf("unexpected report %+v", report)
		}

		a, err := archive.Read(out)
		if err != nil {
			t.Fatalf("archive.Read: %v", err)
		}
		if a.Header.RunID != report.RunID || a.Header.Seed != 99 {
			t.Errorf("unexpected header %+v", a.Header)
		}
		if !strings.Contains(a.Header.RunFile, "seed: 99") {
			t.Errorf("expected the archived run file to carry the overridden seed:\n%s", a.Header.RunFile)
		}
		if a.Header.Metadata["clonesim_version"] != version {
			t.Errorf("expected version metadata, got %v", a.Header.Metadata)
		}
	})

	t.Run("reps override", func(t *testing.T) {
		out := filepath.Join(dir, "five.csv")
		if _, _, err := execute(t, "run", runFile, "--out", out, "--reps", "5"); err != nil {
			t.Fatalf("run: %v", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if n := len(strings.Split(strings.TrimSpace(string(data)), "\n")); n != 31 {
			t.Errorf("expected 30 rows plus header, got %d lines", n)
		}
	})
}

func TestRunCmd_Errors(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	runFile := writeRunFile(t, dir)

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("max_t: -1\nlines: []\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"invalid format", []string{"run", runFile, "--format", "xlsx"}, "invalid format"},
		{"json without destination", []string{"run", runFile, "--json"}, "--json needs"},
		{"missing run file", []string{"run", filepath.Join(dir, "missing.yaml")}, "missing.yaml"},
		{"invalid run file", []string{"run", bad}, ""},
		{"no arguments", []string{"run"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRunsLifecycle(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	runFile := writeRunFile(t, dir)
	db := filepath.Join(dir, "runs.db")

	stdout, _, err := execute(t, "run", runFile, "--db", db, "--json")
	if err != nil {
		t.Fatalf("run --db: %v", err)
	}
	var report runReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decoding report: %v\n%s", err, stdout)
	}
	if report.DB != db {
		t.Errorf("expected the run saved to %s, got %q", db, report.DB)
	}
	prefix := report.RunID[:8]

	// list
	stdout, _, err = execute(t, "runs", "list", "--db", db, "--json")
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	var listed struct {
		Runs  []store.Run `json:"runs"`
		Count int         `json:"count"`
	}
	if err := json.Unmarshal([]byte(stdout), &listed); err != nil {
		t.Fatalf("decoding list: %v\n%s", err, stdout)
	}
	if listed.Count != 1 || listed.Runs[0].ID != report.RunID || listed.Runs[0].Rows != 12 {
		t.Errorf("unexpected listing %+v", listed)
	}

	// show by prefix
	stdout, _, err = execute(t, "runs", "show", prefix, "--db", db)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	for _, want := range []string{report.RunID, "Name:       fib", "Replicates: 2 (max_t 6)"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in show output:\n%s", want, stdout)
		}
	}

	// export
	exported := filepath.Join(dir, "export.csar")
	if _, _, err := execute(t, "runs", "export", prefix, "--db", db, "--out", exported); err != nil {
		t.Fatalf("runs export: %v", err)
	}
	a, err := archive.Read(exported)
	if err != nil {
		t.Fatalf("archive.Read: %v", err)
	}
	if a.Header.RunID != report.RunID || a.Header.RunFile == "" || len(a.Table.Rows) != 12 {
		t.Errorf("unexpected export header %+v", a.Header)
	}

	// delete
	if _, _, err := execute(t, "runs", "delete", prefix, "--db", db); err != nil {
		t.Fatalf("runs delete: %v", err)
	}
	_, _, err = execute(t, "runs", "show", prefix, "--db", db)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	stdout, _, err = execute(t, "runs", "list", "--db", db)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if !strings.Contains(stdout, "No runs stored.") {
		t.Errorf("expected an empty listing, got:\n%s", stdout)
	}
}

func TestRunCmd_SaveUsesConfiguredStore(t *testing.T) {
	home := isolateHome(t)
	runFile := writeRunFile(t, t.TempDir())

	if _, _, err := execute(t, "run", runFile, "--save"); err != nil {
		t.Fatalf("run --save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".clonesim", "clonesim.db")); err != nil {
		t.Errorf("expected the default store under HOME: %v", err)
	}

	stdout, _, err := execute(t, "runs", "list")
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if !strings.Contains(stdout, "fib") {
		t.Errorf("expected the saved run in the listing:\n%s", stdout)
	}
}

func decodeSummaries(t *testing.T, stdout string) []summary.LineSummary {
	t.Helper()
	var got struct {
		Summaries []summary.LineSummary `json:"summaries"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decoding summaries: %v\n%s", err, stdout)
	}
	return got.Summaries
}

func TestSummarizeCmd(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	runFile := writeRunFile(t, dir)
	db := filepath.Join(dir, "runs.db")
	arch := filepath.Join(dir, "fib.csar")

	stdout, _, err := execute(t, "run", runFile, "--db", db, "--out", arch, "--json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var report runReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}

	t.Run("archive", func(t *testing.T) {
		stdout, _, err := execute(t, "summarize", arch, "--json")
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		got := decodeSummaries(t, stdout)
		if len(got) != 3 {
			t.Fatalf("expected 3 snapshot summaries, got %d", len(got))
		}
		wantMeans := []float64{1, 3, 13}
		for i, s := range got {
			if math.Abs(s.Mean-wantMeans[i]) > 1e-9 || s.SD != 0 {
				t.Errorf("t=%d: mean %g sd %g, want mean %g sd 0", s.Time, s.Mean, s.SD, wantMeans[i])
			}
			if s.Persistence != 1 || s.Occupancy != 1 {
				t.Errorf("t=%d: persistence %g occupancy %g, want 1", s.Time, s.Persistence, s.Occupancy)
			}
		}
	})

	t.Run("store final", func(t *testing.T) {
		stdout, _, err := execute(t, "summarize", report.RunID[:8], "--db", db, "--final", "--json")
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		got := decodeSummaries(t, stdout)
		if len(got) != 1 || got[0].Time != 6 || got[0].Median != 13 {
			t.Errorf("unexpected final summary %+v", got)
		}
	})

	t.Run("text", func(t *testing.T) {
		stdout, _, err := execute(t, "summarize", arch, "--final")
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		if !strings.Contains(stdout, "MEDIAN") || !strings.Contains(stdout, "fib") {
			t.Errorf("unexpected text summary:\n%s", stdout)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		_, _, err := execute(t, "summarize", "nope", "--db", db)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestVerifyCmd(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	runFile := writeRunFile(t, dir)
	arch := filepath.Join(dir, "fib.csar")

	if _, _, err := execute(t, "run", runFile, "--out", arch); err != nil {
		t.Fatalf("run: %v", err)
	}

	stdout, _, err := execute(t, "verify", arch)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.HasPrefix(stdout, "OK: checksum verified") {
		t.Errorf("unexpected verify output %q", stdout)
	}

	data, err := os.ReadFile(arch)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(arch, data, 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	stdout, _, err = execute(t, "verify", arch, "--json")
	if !errors.Is(err, archive.ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decoding verify JSON: %v\n%s", err, stdout)
	}
	if got["valid"] != false {
		t.Errorf("expected valid=false, got %v", got)
	}
}

func TestMCPServerCmd_Flags(t *testing.T) {
	cmd := newMCPServerCmd()
	if cmd.Use != "mcp-server" {
		t.Errorf("Use = %q, want %q", cmd.Use, "mcp-server")
	}
	for _, name := range []string{"memory", "db"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
}
