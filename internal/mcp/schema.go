package mcp

import (
	"time"

	"github.com/nvandessel/clonesim/internal/summary"
)

// LeslieInput defines the input for clonesim_leslie.
type LeslieInput struct {
	InstarDays []int     `json:"instar_days" jsonschema:"Days spent in each juvenile instar"`
	SurvJuv    float64   `json:"surv_juv" jsonschema:"Daily juvenile survival probability"`
	SurvAdult  []float64 `json:"surv_adult" jsonschema:"Daily survival of each adult stage; the last stage persists"`
	Repro      []float64 `json:"repro" jsonschema:"Daily offspring per individual of each adult stage"`
}

// LeslieOutput defines the output for clonesim_leslie.
type LeslieOutput struct {
	Stages             int         `json:"stages" jsonschema:"Number of stages"`
	Matrix             [][]float64 `json:"matrix" jsonschema:"Projection matrix, row-major"`
	Lambda             float64     `json:"lambda" jsonschema:"Dominant eigenvalue (daily growth rate)"`
	StableDistribution []float64   `json:"stable_distribution" jsonschema:"Stable stage distribution summing to one"`
}

// StableDistributionInput defines the input for clonesim_stable_distribution.
type StableDistributionInput struct {
	Matrix [][]float64 `json:"matrix" jsonschema:"Square projection matrix, row-major"`
}

// StableDistributionOutput defines the output for clonesim_stable_distribution.
type StableDistributionOutput struct {
	Lambda       float64   `json:"lambda" jsonschema:"Dominant eigenvalue"`
	Distribution []float64 `json:"distribution" jsonschema:"Stable stage distribution summing to one"`
}

// LogitInput defines the input for clonesim_logit and clonesim_inv_logit.
type LogitInput struct {
	Values []float64 `json:"values" jsonschema:"Values to transform"`
}

// LogitOutput defines the output for clonesim_logit and clonesim_inv_logit.
type LogitOutput struct {
	Values []float64 `json:"values" jsonschema:"Transformed values in input order"`
}

// SimulateInput defines the input for clonesim_simulate.
type SimulateInput struct {
	RunFile  string  `json:"run_file" jsonschema:"YAML run document"`
	Seed     *uint64 `json:"seed,omitempty" jsonschema:"Override the run document seed"`
	Save     bool    `json:"save,omitempty" jsonschema:"Store the run so clonesim_runs can list it"`
	AllTimes bool    `json:"all_times,omitempty" jsonschema:"Return summaries for every snapshot time instead of the last one"`
}

// SimulateOutput defines the output for clonesim_simulate.
type SimulateOutput struct {
	RunID           string                `json:"run_id,omitempty" jsonschema:"Identifier of the stored run when save is set"`
	Replicates      int                   `json:"replicates" jsonschema:"Replicates simulated"`
	Capped          bool                  `json:"capped" jsonschema:"Whether n_reps was reduced to the server limit"`
	Rows            int                   `json:"rows" jsonschema:"Rows in the result table"`
	EarlyStops      int                   `json:"early_stops" jsonschema:"Replicates in which every patch emptied"`
	CapClears       int                   `json:"cap_clears" jsonschema:"Patches cleared for reaching max_N"`
	DeathClears     int                   `json:"death_clears" jsonschema:"Patches cleared by plant death"`
	ScheduledClears int                   `json:"scheduled_clears" jsonschema:"Patches cleared on schedule"`
	LineExtinctions int                   `json:"line_extinctions" jsonschema:"Local line extinctions"`
	TotalDensity    float64               `json:"total_density" jsonschema:"Sum of all densities in the table"`
	Summaries       []summary.LineSummary `json:"summaries" jsonschema:"Across-replicate line summaries"`
}

// RunsInput defines the input for clonesim_runs.
type RunsInput struct {
	ID string `json:"id,omitempty" jsonschema:"Run identifier or unique prefix; omit to list all runs"`
}

// RunItem describes a stored run.
type RunItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Seed       uint64    `json:"seed"`
	Replicates int       `json:"replicates"`
	MaxT       int       `json:"max_t"`
	Lines      []string  `json:"lines"`
	Rows       int       `json:"rows"`
}

// RunsOutput defines the output for clonesim_runs.
type RunsOutput struct {
	Runs  []RunItem `json:"runs" jsonschema:"Stored runs, newest first"`
	Count int       `json:"count" jsonschema:"Number of runs listed"`

	// Final is set when a single run is requested.
	Final []summary.LineSummary `json:"final,omitempty" jsonschema:"Last-snapshot summaries of the requested run"`
}

// ExportInput defines the input for clonesim_export.
type ExportInput struct {
	ID         string `json:"id" jsonschema:"Run identifier or unique prefix"`
	OutputPath string `json:"output_path,omitempty" jsonschema:"Archive file inside the archive directory; defaults to <archive dir>/<run id>.csar"`
}

// ExportOutput defines the output for clonesim_export.
type ExportOutput struct {
	Path      string `json:"path" jsonschema:"Archive written"`
	RunID     string `json:"run_id" jsonschema:"Exported run"`
	Rows      int    `json:"rows" jsonschema:"Rows in the archived table"`
	Checksum  string `json:"checksum" jsonschema:"SHA-256 of the compressed payload"`
	SizeBytes int64  `json:"size_bytes" jsonschema:"Archive file size"`
}
