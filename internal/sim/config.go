package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ReseedMode selects how a cleared patch is repopulated.
type ReseedMode string

const (
	// ReseedInitial restores each line's configured initial density.
	ReseedInitial ReseedMode = "initial"

	// ReseedEmpty leaves a replanted patch empty until dispersers arrive.
	ReseedEmpty ReseedMode = "empty"
)

// Valid returns true if the mode is a recognized value.
func (m ReseedMode) Valid() bool {
	switch m {
	case ReseedInitial, ReseedEmpty:
		return true
	}
	return false
}

// Line is one clonal genetic line.
type Line struct {
	// Name identifies the line in the output table.
	Name string

	// Matrices holds one stage x stage projection matrix per plant age,
	// indexed 0..MaxPlantAge. Patches older than MaxPlantAge reuse the last.
	Matrices []*mat.Dense

	// Initial holds the initial density per patch and stage: Initial[p][s].
	// Its length fixes the number of patches in the run.
	Initial [][]float64

	// AlateB0 and AlateB1 are the intercept and log-density slope of the
	// logistic winged-morph production model.
	AlateB0 float64
	AlateB1 float64

	// DispRate is the fraction of winged morphs that leave per step.
	DispRate float64

	// DispMort is the probability a disperser dies in transit.
	DispMort float64

	// DispStart is the plant age from which the line starts dispersing.
	DispStart int

	// PredRate is the per-step proportional removal by predators.
	PredRate float64
}

// Stages returns the number of stages in the line's projection matrices.
func (l Line) Stages() int {
	if len(l.Matrices) == 0 || l.Matrices[0] == nil {
		return 0
	}
	n, _ := l.Matrices[0].Dims()
	return n
}

// Config holds the immutable parameters of a simulation run.
// It is shared read-only by every replicate.
type Config struct {
	// NReps is the number of independent replicates.
	NReps int

	// MaxPlantAge is the oldest plant age with its own projection matrix.
	MaxPlantAge int

	// MaxN is the patch density cap; reaching it clears the patch.
	MaxN float64

	// CheckForClear lists the time steps at which sparse patches are cleared.
	CheckForClear []int

	// ClearMinN is the viability bound used at CheckForClear steps: a patch
	// whose total density is below it is cleared. It must be positive when
	// CheckForClear is non-empty.
	ClearMinN float64

	// MaxT is the number of time steps simulated.
	MaxT int

	// SaveEvery is the snapshot interval.
	SaveEvery int

	// MeanK and SdK are the natural-scale mean and standard deviation of the
	// log-normal carrying capacity drawn for each new plant. A finite K
	// regulates growth: each projection is scaled by 1/(1+N/K), so the plain
	// M(age)*density recurrence holds only when MeanK is +Inf.
	MeanK float64
	SdK   float64

	// DeathProp is the threshold a Beta(Shape1DeathMort, Shape2DeathMort)
	// draw must exceed for a plant to die.
	DeathProp       float64
	Shape1DeathMort float64
	Shape2DeathMort float64

	// DispError enables stochastic winged-morph production and splitting.
	DispError bool

	// DemogError enables demographic process noise in growth.
	DemogError bool

	// SigmaX scales the dispersal process noise and Rho is its cross-line
	// correlation within a patch.
	SigmaX float64
	Rho    float64

	// ExtinctN is the density floor; anything below it is set to zero.
	ExtinctN float64

	// Reseed selects how cleared patches are repopulated.
	Reseed ReseedMode

	// Lines are the clonal lines simulated on every patch.
	Lines []Line

	// NThreads bounds the worker count; values <= 0 mean one per CPU.
	NThreads int

	// ShowProgress enables RunOptions.Progress callbacks.
	ShowProgress bool

	// Seed is the top-level seed every replicate stream derives from.
	Seed uint64
}

// Patches returns the number of patches implied by the initial densities.
func (c *Config) Patches() int {
	if len(c.Lines) == 0 {
		return 0
	}
	return len(c.Lines[0].Initial)
}

// LineNames returns the line names in configuration order.
func (c *Config) LineNames() []string {
	names := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		names[i] = l.Name
	}
	return names
}

// Validate checks every parameter and reports the first offending one.
func (c *Config) Validate() error {
	if c.NReps <= 0 {
		return configErr("n_reps", "must be positive, got %d", c.NReps)
	}
	if c.MaxT <= 0 {
		return configErr("max_t", "must be positive, got %d", c.MaxT)
	}
	if c.SaveEvery <= 0 {
		return configErr("save_every", "must be positive, got %d", c.SaveEvery)
	}
	if c.MaxPlantAge < 0 {
		return configErr("max_plant_age", "must be non-negative, got %d", c.MaxPlantAge)
	}
	if !(c.MaxN > 0) {
		return configErr("max_N", "must be positive, got %g", c.MaxN)
	}
	if !(c.MeanK > 0) {
		return configErr("mean_K", "must be positive, got %g", c.MeanK)
	}
	if !finiteNonNeg(c.SdK) {
		return configErr("sd_K", "must be finite and non-negative, got %g", c.SdK)
	}
	if math.IsInf(c.MeanK, 1) && c.SdK != 0 {
		return configErr("sd_K", "must be 0 when mean_K is infinite")
	}
	if !(c.DeathProp >= 0 && c.DeathProp <= 1) {
		return configErr("death_prop", "must be in [0,1], got %g", c.DeathProp)
	}
	if !finitePos(c.Shape1DeathMort) {
		return configErr("shape1_death_mort", "must be finite and positive, got %g", c.Shape1DeathMort)
	}
	if !finitePos(c.Shape2DeathMort) {
		return configErr("shape2_death_mort", "must be finite and positive, got %g", c.Shape2DeathMort)
	}
	if !finiteNonNeg(c.SigmaX) {
		return configErr("sigma_x", "must be finite and non-negative, got %g", c.SigmaX)
	}
	if !(c.Rho >= 0 && c.Rho <= 1) {
		return configErr("rho", "must be in [0,1], got %g", c.Rho)
	}
	if !finiteNonNeg(c.ExtinctN) {
		return configErr("extinct_N", "must be finite and non-negative, got %g", c.ExtinctN)
	}
	if !finiteNonNeg(c.ClearMinN) {
		return configErr("clear_min_N", "must be finite and non-negative, got %g", c.ClearMinN)
	}
	if len(c.CheckForClear) > 0 && c.ClearMinN == 0 {
		return configErr("clear_min_N", "must be positive when check_for_clear is set")
	}
	for i, t := range c.CheckForClear {
		if t < 1 || t > c.MaxT {
			return configErr(fmt.Sprintf("check_for_clear[%d]", i), "must be in [1,%d], got %d", c.MaxT, t)
		}
	}
	if !c.Reseed.Valid() {
		return configErr("reseed", "must be %q or %q, got %q", ReseedInitial, ReseedEmpty, c.Reseed)
	}
	if len(c.Lines) == 0 {
		return configErr("lines", "at least one line is required")
	}

	seen := make(map[string]bool, len(c.Lines))
	patches := len(c.Lines[0].Initial)
	if patches == 0 {
		return configErr("lines[0].initial", "at least one patch is required")
	}
	for i := range c.Lines {
		if err := c.validateLine(i, patches); err != nil {
			return err
		}
		name := c.Lines[i].Name
		if seen[name] {
			return configErr(fmt.Sprintf("lines[%d].name", i), "duplicate line name %q", name)
		}
		seen[name] = true
	}

	for p := 0; p < patches; p++ {
		var total float64
		for _, l := range c.Lines {
			for _, v := range l.Initial[p] {
				total += v
			}
		}
		if total >= c.MaxN {
			return configErr("max_N", "patch %d starts at total density %g, at or above the cap %g", p, total, c.MaxN)
		}
	}
	return nil
}

func (c *Config) validateLine(i, patches int) error {
	l := &c.Lines[i]
	param := func(name string) string { return fmt.Sprintf("lines[%d].%s", i, name) }

	if l.Name == "" {
		return configErr(param("name"), "must not be empty")
	}
	if len(l.Matrices) != c.MaxPlantAge+1 {
		return configErr(param("matrices"), "need one matrix per plant age 0..%d (%d), got %d",
			c.MaxPlantAge, c.MaxPlantAge+1, len(l.Matrices))
	}
	n := l.Stages()
	if n == 0 {
		return configErr(param("matrices"), "matrix for age 0 is empty")
	}
	for a, m := range l.Matrices {
		if m == nil {
			return configErr(param(fmt.Sprintf("matrices[%d]", a)), "missing")
		}
		r, cols := m.Dims()
		if r != n || cols != n {
			return configErr(param(fmt.Sprintf("matrices[%d]", a)), "must be %dx%d, got %dx%d", n, n, r, cols)
		}
		for row := 0; row < n; row++ {
			for col := 0; col < n; col++ {
				if v := m.At(row, col); !finiteNonNeg(v) {
					return configErr(param(fmt.Sprintf("matrices[%d]", a)),
						"entry [%d][%d] must be finite and non-negative, got %g", row, col, v)
				}
			}
		}
	}

	if len(l.Initial) != patches {
		return configErr(param("initial"), "has %d patches, lines[0] has %d", len(l.Initial), patches)
	}
	for p, dens := range l.Initial {
		if len(dens) != n {
			return configErr(param(fmt.Sprintf("initial[%d]", p)), "has %d stages, matrices have %d", len(dens), n)
		}
		for s, v := range dens {
			if !finiteNonNeg(v) {
				return configErr(param(fmt.Sprintf("initial[%d][%d]", p, s)), "must be finite and non-negative, got %g", v)
			}
		}
	}

	if math.IsNaN(l.AlateB0) || math.IsInf(l.AlateB0, 0) {
		return configErr(param("alate_b0"), "must be finite, got %g", l.AlateB0)
	}
	if math.IsNaN(l.AlateB1) || math.IsInf(l.AlateB1, 0) {
		return configErr(param("alate_b1"), "must be finite, got %g", l.AlateB1)
	}
	if !(l.DispRate >= 0 && l.DispRate <= 1) {
		return configErr(param("disp_rate"), "must be in [0,1], got %g", l.DispRate)
	}
	if !(l.DispMort >= 0 && l.DispMort <= 1) {
		return configErr(param("disp_mort"), "must be in [0,1], got %g", l.DispMort)
	}
	if l.DispStart < 0 {
		return configErr(param("disp_start"), "must be non-negative, got %d", l.DispStart)
	}
	if !(l.PredRate >= 0 && l.PredRate <= 1) {
		return configErr(param("pred_rate"), "must be in [0,1], got %g", l.PredRate)
	}
	return nil
}

func finiteNonNeg(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

func finitePos(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
