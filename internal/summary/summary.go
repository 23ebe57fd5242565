// Package summary reduces a result table to across-replicate statistics of
// line totals.
package summary

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/nvandessel/clonesim/internal/sim"
)

// LineSummary describes one line at one snapshot time across replicates.
//
// Totals are summed over patches and stages. A replicate that stopped early
// because every patch emptied counts as zero at the times it did not reach.
type LineSummary struct {
	Time       int     `json:"time"`
	Line       string  `json:"line"`
	Replicates int     `json:"replicates"`
	Mean       float64 `json:"mean"`
	SD         float64 `json:"sd"`
	Q10        float64 `json:"q10"`
	Median     float64 `json:"median"`
	Q90        float64 `json:"q90"`

	// Persistence is the fraction of replicates in which the line is present.
	Persistence float64 `json:"persistence"`

	// Occupancy is the mean fraction of patches holding the line.
	Occupancy float64 `json:"occupancy"`
}

// Summarize returns one LineSummary per (time, line), ordered by time and
// then by line order in the table.
func Summarize(t *sim.Table) []LineSummary {
	if len(t.Rows) == 0 {
		return nil
	}

	var reps, patches int
	for _, r := range t.Rows {
		reps = max(reps, r.Rep+1)
		patches = max(patches, r.Patch+1)
	}
	nLines := len(t.Lines)

	// totals[time][rep*nLines+line] and per-patch presence counts.
	type cell struct {
		totals   []float64
		occupied []int
	}
	cells := make(map[int]*cell)
	patchTotals := make(map[[4]int]float64)
	for _, r := range t.Rows {
		c, ok := cells[r.Time]
		if !ok {
			c = &cell{
				totals:   make([]float64, reps*nLines),
				occupied: make([]int, reps*nLines),
			}
			cells[r.Time] = c
		}
		c.totals[r.Rep*nLines+r.Line] += r.Density
		patchTotals[[4]int{r.Time, r.Rep, r.Patch, r.Line}] += r.Density
	}
	for key, v := range patchTotals {
		if v > 0 {
			cells[key[0]].occupied[key[1]*nLines+key[3]]++
		}
	}

	times := t.Times()
	out := make([]LineSummary, 0, len(times)*nLines)
	x := make([]float64, reps)
	occ := make([]float64, reps)
	for _, tm := range times {
		c := cells[tm]
		for l := range nLines {
			present := 0
			for rep := range reps {
				x[rep] = c.totals[rep*nLines+l]
				occ[rep] = float64(c.occupied[rep*nLines+l]) / float64(patches)
				if x[rep] > 0 {
					present++
				}
			}
			out = append(out, summarizeLine(tm, t.Lines[l], x, present, stat.Mean(occ, nil)))
		}
	}
	return out
}

func summarizeLine(time int, line string, x []float64, present int, occupancy float64) LineSummary {
	mean, sd := stat.MeanStdDev(x, nil)
	if len(x) < 2 {
		sd = 0
	}
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	return LineSummary{
		Time:        time,
		Line:        line,
		Replicates:  len(x),
		Mean:        mean,
		SD:          sd,
		Q10:         stat.Quantile(0.1, stat.Empirical, sorted, nil),
		Median:      stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Q90:         stat.Quantile(0.9, stat.Empirical, sorted, nil),
		Persistence: float64(present) / float64(len(x)),
		Occupancy:   occupancy,
	}
}

// Final returns the summaries of the last snapshot time.
func Final(s []LineSummary) []LineSummary {
	if len(s) == 0 {
		return nil
	}
	last := slices.MaxFunc(s, func(a, b LineSummary) int { return cmp.Compare(a.Time, b.Time) }).Time
	var out []LineSummary
	for _, ls := range s {
		if ls.Time == last {
			out = append(out, ls)
		}
	}
	return out
}

// TotalDensity returns the summed density of the table.
func TotalDensity(t *sim.Table) float64 {
	d := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		d[i] = r.Density
	}
	return floats.Sum(d)
}
