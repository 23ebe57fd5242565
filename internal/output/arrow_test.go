package output

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/clonesim/internal/constants"
	"github.com/nvandessel/clonesim/internal/sim"
)

func sampleTable() *sim.Table {
	return &sim.Table{
		Lines:  []string{"red", "green"},
		Stages: []int{2, 1},
		Rows: []sim.Row{
			{Rep: 0, Time: 0, Patch: 0, Line: 0, Stage: 0, Density: 10},
			{Rep: 0, Time: 0, Patch: 0, Line: 0, Stage: 1, Density: 2.5},
			{Rep: 0, Time: 0, Patch: 0, Line: 1, Stage: 0, Density: 0},
			{Rep: 1, Time: 5, Patch: 3, Line: 1, Stage: 0, Density: 123.456},
		},
	}
}

func TestRecords(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	recs := Records(mem, sampleTable())
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()

	if len(recs) != 1 {
		t.Fatalf("expected 1 record batch, got %d", len(recs))
	}
	if recs[0].NumRows() != 4 || recs[0].NumCols() != 6 {
		t.Errorf("expected 4x6 record, got %dx%d", recs[0].NumRows(), recs[0].NumCols())
	}
	if !recs[0].Schema().Equal(Schema) {
		t.Errorf("unexpected schema %s", recs[0].Schema())
	}
}

func TestRecords_Batches(t *testing.T) {
	table := &sim.Table{Lines: []string{"a"}, Stages: []int{1}}
	for i := range BatchRows + 10 {
		table.Rows = append(table.Rows, sim.Row{Time: i, Density: float64(i)})
	}

	recs := Records(memory.NewGoAllocator(), table)
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()

	if len(recs) != 2 {
		t.Fatalf("expected 2 record batches, got %d", len(recs))
	}
	if recs[0].NumRows() != BatchRows || recs[1].NumRows() != 10 {
		t.Errorf("unexpected batch sizes %d and %d", recs[0].NumRows(), recs[1].NumRows())
	}
}

func TestArrowRoundTrip(t *testing.T) {
	in := sampleTable()

	var buf bytes.Buffer
	if err := WriteArrow(&buf, in); err != nil {
		t.Fatalf("WriteArrow: %v", err)
	}

	out, err := ReadArrow(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadArrow: %v", err)
	}

	if !slices.Equal(out.Lines, in.Lines) {
		t.Errorf("lines: got %v, want %v", out.Lines, in.Lines)
	}
	if !slices.Equal(out.Stages, in.Stages) {
		t.Errorf("stages: got %v, want %v", out.Stages, in.Stages)
	}
	if !slices.Equal(out.Rows, in.Rows) {
		t.Errorf("rows differ:\ngot  %v\nwant %v", out.Rows, in.Rows)
	}
}

func TestReadArrow_Garbage(t *testing.T) {
	if _, err := ReadArrow(bytes.NewReader([]byte("not an arrow file"))); err == nil {
		t.Error("expected an error for a non-arrow file")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleTable()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "rep,time,patch,line,stage,density" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "0,0,0,red,0,10" {
		t.Errorf("unexpected first row %q", lines[1])
	}
	if lines[4] != "1,5,3,green,0,123.456" {
		t.Errorf("unexpected last row %q", lines[4])
	}
}

func TestWriteCSV_EmptyTableHasHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, &sim.Table{}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "rep,time,patch,line,stage,density" {
		t.Errorf("expected only the header, got %q", got)
	}
}

func TestWrite_Dispatch(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, constants.FormatCSV, sampleTable()); err != nil {
		t.Fatalf("Write csv: %v", err)
	}
	if err := Write(&buf, constants.FormatArchive, sampleTable()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat for archives, got %v", err)
	}
}
