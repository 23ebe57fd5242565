package sim

import (
	"cmp"
	"slices"
)

// Row is one (replicate, time, patch, line, stage) density observation.
// Line indexes Table.Lines.
type Row struct {
	Rep     int
	Time    int
	Patch   int
	Line    int
	Stage   int
	Density float64
}

// Table is the long-format result of a run.
type Table struct {
	// Lines holds the line names; Row.Line indexes it.
	Lines []string

	// Stages holds the stage count of each line.
	Stages []int

	Rows []Row
}

// LineName returns the name of the line a row refers to.
func (t *Table) LineName(r Row) string {
	return t.Lines[r.Line]
}

// Times returns the distinct snapshot times present in the table, ascending.
func (t *Table) Times() []int {
	seen := make(map[int]bool)
	var times []int
	for _, r := range t.Rows {
		if !seen[r.Time] {
			seen[r.Time] = true
			times = append(times, r.Time)
		}
	}
	slices.Sort(times)
	return times
}

// PatchTotals sums the densities of every (rep, time, patch) triple.
func (t *Table) PatchTotals() map[[3]int]float64 {
	totals := make(map[[3]int]float64)
	for _, r := range t.Rows {
		totals[[3]int{r.Rep, r.Time, r.Patch}] += r.Density
	}
	return totals
}

func compareRows(a, b Row) int {
	return cmp.Or(
		cmp.Compare(a.Rep, b.Rep),
		cmp.Compare(a.Time, b.Time),
		cmp.Compare(a.Patch, b.Patch),
		cmp.Compare(a.Line, b.Line),
		cmp.Compare(a.Stage, b.Stage),
	)
}

// sortRows orders rows by replicate, time, patch, line and stage.
func sortRows(rows []Row) {
	slices.SortStableFunc(rows, compareRows)
}
