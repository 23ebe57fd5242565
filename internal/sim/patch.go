package sim

// PatchState is the lifecycle state of a host plant.
type PatchState int

const (
	// Alive patches grow, disperse and age.
	Alive PatchState = iota

	// Cleared is the transient state between removal and replanting.
	Cleared
)

func (s PatchState) String() string {
	switch s {
	case Alive:
		return "alive"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Patch is one host plant instance. It is owned by a single replicate.
type Patch struct {
	Index int
	Age   int
	K     float64
	State PatchState

	// Density[l][s] is the density of stage s of line l.
	Density [][]float64

	// N is the patch total density, kept current by Total.
	N float64

	// Extinct[l] is set once line l fell below the extinction floor on this
	// plant. Immigrants of an extinct line do not establish until the patch
	// is replanted.
	Extinct []bool
}

func newPatch(index int, cfg *Config) *Patch {
	dens := make([][]float64, len(cfg.Lines))
	for l, line := range cfg.Lines {
		dens[l] = make([]float64, line.Stages())
	}
	return &Patch{
		Index:   index,
		State:   Alive,
		Density: dens,
		Extinct: make([]bool, len(cfg.Lines)),
	}
}

// Total recomputes and returns N.
func (p *Patch) Total() float64 {
	var n float64
	for _, row := range p.Density {
		for _, v := range row {
			n += v
		}
	}
	p.N = n
	return n
}

// LineTotal returns the summed density of line l across its stages.
func (p *Patch) LineTotal(l int) float64 {
	var n float64
	for _, v := range p.Density[l] {
		n += v
	}
	return n
}

// Empty reports whether every density in the patch is zero.
func (p *Patch) Empty() bool {
	for _, row := range p.Density {
		for _, v := range row {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// seed overwrites the densities with the configured initial values of the
// patch, or zeros.
func (p *Patch) seed(cfg *Config, zero bool) {
	clear(p.Extinct)
	for l, line := range cfg.Lines {
		if zero {
			clear(p.Density[l])
			continue
		}
		copy(p.Density[l], line.Initial[p.Index])
	}
}

// matrixAge clamps a plant age to the last configured matrix.
func matrixAge(age, maxPlantAge int) int {
	return min(age, maxPlantAge)
}
