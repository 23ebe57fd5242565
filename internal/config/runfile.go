package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/clonesim/internal/constants"
	"github.com/nvandessel/clonesim/internal/leslie"
	"github.com/nvandessel/clonesim/internal/sim"
)

// RunFile is the YAML description of one simulation run.
type RunFile struct {
	// Name labels the run in the store and in archives.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Seed is the top-level seed. Omitted means constants.DefaultSeed.
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	NReps       int   `json:"n_reps,omitempty" yaml:"n_reps,omitempty"`
	MaxT        int   `json:"max_t" yaml:"max_t"`
	SaveEvery   int   `json:"save_every,omitempty" yaml:"save_every,omitempty"`
	MaxPlantAge int   `json:"max_plant_age,omitempty" yaml:"max_plant_age,omitempty"`
	NThreads    int   `json:"n_threads,omitempty" yaml:"n_threads,omitempty"`
	CheckClear  []int `json:"check_for_clear,omitempty" yaml:"check_for_clear,omitempty"`

	// Patches is the patch count used when lines give initial_total
	// instead of explicit per-patch densities.
	Patches int `json:"patches,omitempty" yaml:"patches,omitempty"`

	MaxN      float64  `json:"max_N" yaml:"max_N"`
	ClearMinN float64  `json:"clear_min_N,omitempty" yaml:"clear_min_N,omitempty"`
	MeanK     float64  `json:"mean_K" yaml:"mean_K"`
	SdK       float64  `json:"sd_K,omitempty" yaml:"sd_K,omitempty"`
	DeathProp *float64 `json:"death_prop,omitempty" yaml:"death_prop,omitempty"`
	Shape1    float64  `json:"shape1_death_mort" yaml:"shape1_death_mort"`
	Shape2    float64  `json:"shape2_death_mort" yaml:"shape2_death_mort"`
	ExtinctN  *float64 `json:"extinct_N,omitempty" yaml:"extinct_N,omitempty"`
	SigmaX    float64  `json:"sigma_x,omitempty" yaml:"sigma_x,omitempty"`
	Rho       float64  `json:"rho,omitempty" yaml:"rho,omitempty"`

	DispError    bool   `json:"disp_error,omitempty" yaml:"disp_error,omitempty"`
	DemogError   bool   `json:"demog_error,omitempty" yaml:"demog_error,omitempty"`
	ShowProgress bool   `json:"show_progress,omitempty" yaml:"show_progress,omitempty"`
	Reseed       string `json:"reseed,omitempty" yaml:"reseed,omitempty"`

	Lines []LineSpec `json:"lines" yaml:"lines"`
}

// LineSpec describes one clonal line. Exactly one of Matrices, Matrix and
// Leslie supplies its projection, and Initial or InitialTotal its starting
// densities.
type LineSpec struct {
	Name string `json:"name" yaml:"name"`

	// Matrices is one stage x stage matrix per plant age 0..max_plant_age.
	Matrices [][][]float64 `json:"matrices,omitempty" yaml:"matrices,omitempty"`

	// Matrix is a single matrix used at every plant age.
	Matrix [][]float64 `json:"matrix,omitempty" yaml:"matrix,omitempty"`

	// Leslie builds a single age-independent matrix from life-history rates.
	Leslie *LeslieSpec `json:"leslie,omitempty" yaml:"leslie,omitempty"`

	// Initial is the starting density per patch and stage.
	Initial [][]float64 `json:"initial,omitempty" yaml:"initial,omitempty"`

	// InitialTotal spreads this density over the stages by the stable stage
	// distribution of the age-0 matrix.
	InitialTotal float64 `json:"initial_total,omitempty" yaml:"initial_total,omitempty"`

	// InitialPatches limits InitialTotal to these patches; empty means all.
	InitialPatches []int `json:"initial_patches,omitempty" yaml:"initial_patches,omitempty"`

	AlateB0   float64 `json:"alate_b0" yaml:"alate_b0"`
	AlateB1   float64 `json:"alate_b1" yaml:"alate_b1"`
	DispRate  float64 `json:"disp_rate" yaml:"disp_rate"`
	DispMort  float64 `json:"disp_mort" yaml:"disp_mort"`
	DispStart int     `json:"disp_start,omitempty" yaml:"disp_start,omitempty"`
	PredRate  float64 `json:"pred_rate,omitempty" yaml:"pred_rate,omitempty"`
}

// LeslieSpec holds the arguments of leslie.BuildProjection.
type LeslieSpec struct {
	InstarDays []int     `json:"instar_days" yaml:"instar_days"`
	SurvJuv    float64   `json:"surv_juv" yaml:"surv_juv"`
	SurvAdult  []float64 `json:"surv_adult" yaml:"surv_adult"`
	Repro      []float64 `json:"repro" yaml:"repro"`
}

// LoadRunFile reads and parses a run file.
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run file: %w", err)
	}
	rf, err := ParseRunFile(data)
	if err != nil {
		return nil, fmt.Errorf("parsing run file %s: %w", path, err)
	}
	return rf, nil
}

// ParseRunFile parses a YAML run document. Unknown keys are rejected so a
// misspelled parameter is not silently replaced by its default.
func ParseRunFile(data []byte) (*RunFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var rf RunFile
	if err := dec.Decode(&rf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty run file")
		}
		return nil, err
	}
	return &rf, nil
}

// Marshal encodes the run file back to YAML.
func (rf *RunFile) Marshal() ([]byte, error) {
	return yaml.Marshal(rf)
}

// ToConfig converts the run file into a validated sim.Config, applying
// defaults for omitted fields.
func (rf *RunFile) ToConfig() (sim.Config, error) {
	cfg := sim.Config{
		NReps:           rf.NReps,
		MaxPlantAge:     rf.MaxPlantAge,
		MaxN:            rf.MaxN,
		CheckForClear:   rf.CheckClear,
		ClearMinN:       rf.ClearMinN,
		MaxT:            rf.MaxT,
		SaveEvery:       rf.SaveEvery,
		MeanK:           rf.MeanK,
		SdK:             rf.SdK,
		DeathProp:       1,
		Shape1DeathMort: rf.Shape1,
		Shape2DeathMort: rf.Shape2,
		DispError:       rf.DispError,
		DemogError:      rf.DemogError,
		SigmaX:          rf.SigmaX,
		Rho:             rf.Rho,
		ExtinctN:        constants.DefaultExtinctN,
		Reseed:          sim.ReseedMode(rf.Reseed),
		NThreads:        rf.NThreads,
		ShowProgress:    rf.ShowProgress,
		Seed:            constants.DefaultSeed,
	}
	if cfg.NReps == 0 {
		cfg.NReps = constants.DefaultReplicates
	}
	if cfg.SaveEvery == 0 {
		cfg.SaveEvery = constants.DefaultSaveEvery
	}
	if cfg.Reseed == "" {
		cfg.Reseed = sim.ReseedInitial
	}
	if rf.DeathProp != nil {
		cfg.DeathProp = *rf.DeathProp
	}
	if rf.ExtinctN != nil {
		cfg.ExtinctN = *rf.ExtinctN
	}
	if rf.Seed != nil {
		cfg.Seed = *rf.Seed
	}

	// Line conversion builds one matrix per plant age, so a bad age bound
	// must be caught first.
	if rf.MaxPlantAge < 0 {
		return sim.Config{}, &sim.ConfigError{
			Param:  "max_plant_age",
			Reason: fmt.Sprintf("must be non-negative, got %d", rf.MaxPlantAge),
		}
	}

	for i := range rf.Lines {
		line, err := rf.Lines[i].toLine(rf.MaxPlantAge, rf.Patches)
		if err != nil {
			return sim.Config{}, fmt.Errorf("lines[%d] (%s): %w", i, rf.Lines[i].Name, err)
		}
		cfg.Lines = append(cfg.Lines, line)
	}

	if err := cfg.Validate(); err != nil {
		return sim.Config{}, err
	}
	return cfg, nil
}

func (ls *LineSpec) toLine(maxPlantAge, patches int) (sim.Line, error) {
	matrices, err := ls.matrices(maxPlantAge)
	if err != nil {
		return sim.Line{}, err
	}
	if len(matrices) == 0 {
		return sim.Line{}, errors.New("no projection matrices")
	}
	initial, err := ls.initial(matrices[0], patches)
	if err != nil {
		return sim.Line{}, err
	}
	return sim.Line{
		Name:      ls.Name,
		Matrices:  matrices,
		Initial:   initial,
		AlateB0:   ls.AlateB0,
		AlateB1:   ls.AlateB1,
		DispRate:  ls.DispRate,
		DispMort:  ls.DispMort,
		DispStart: ls.DispStart,
		PredRate:  ls.PredRate,
	}, nil
}

func (ls *LineSpec) matrices(maxPlantAge int) ([]*mat.Dense, error) {
	sources := 0
	for _, set := range []bool{len(ls.Matrices) > 0, len(ls.Matrix) > 0, ls.Leslie != nil} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return nil, errors.New("exactly one of matrices, matrix or leslie is required")
	}

	switch {
	case len(ls.Matrices) > 0:
		out := make([]*mat.Dense, len(ls.Matrices))
		for a, rows := range ls.Matrices {
			m, err := denseFromRows(rows)
			if err != nil {
				return nil, fmt.Errorf("matrices[%d]: %w", a, err)
			}
			out[a] = m
		}
		return out, nil

	case len(ls.Matrix) > 0:
		m, err := denseFromRows(ls.Matrix)
		if err != nil {
			return nil, fmt.Errorf("matrix: %w", err)
		}
		return leslie.AgeStack(m, maxPlantAge), nil

	default:
		l := ls.Leslie
		m, err := leslie.BuildProjection(l.InstarDays, l.SurvJuv, l.SurvAdult, l.Repro)
		if err != nil {
			return nil, fmt.Errorf("leslie: %w", err)
		}
		return leslie.AgeStack(m, maxPlantAge), nil
	}
}

func (ls *LineSpec) initial(m *mat.Dense, patches int) ([][]float64, error) {
	if len(ls.Initial) > 0 {
		if ls.InitialTotal != 0 {
			return nil, errors.New("initial and initial_total are mutually exclusive")
		}
		return ls.Initial, nil
	}
	if patches <= 0 {
		return nil, errors.New("initial_total needs a positive run-level patches count")
	}

	dist, err := leslie.StableDistribution(m)
	if err != nil {
		return nil, fmt.Errorf("initial_total: %w", err)
	}

	seeded := make(map[int]bool, len(ls.InitialPatches))
	for _, p := range ls.InitialPatches {
		if p < 0 || p >= patches {
			return nil, fmt.Errorf("initial_patches: patch %d out of range [0,%d)", p, patches)
		}
		seeded[p] = true
	}

	out := make([][]float64, patches)
	for p := range out {
		out[p] = make([]float64, len(dist))
		if len(seeded) > 0 && !seeded[p] {
			continue
		}
		for s, w := range dist {
			out[p][s] = ls.InitialTotal * w
		}
	}
	return out, nil
}

// denseFromRows builds a square matrix from row slices.
func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	n := len(rows)
	if n == 0 {
		return nil, errors.New("matrix has no rows")
	}
	data := make([]float64, 0, n*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("row %d has %d entries, a %dx%d matrix needs %d", i, len(row), n, n, n)
		}
		data = append(data, row...)
	}
	return mat.NewDense(n, n, data), nil
}

// RowsFromDense converts a matrix back to row slices.
func RowsFromDense(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		for j := range rows[i] {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}
