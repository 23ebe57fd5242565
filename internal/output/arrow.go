// Package output converts simulation result tables to Apache Arrow records
// and writes them as Arrow IPC files or CSV.
package output

import (
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/csv"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/clonesim/internal/constants"
	"github.com/nvandessel/clonesim/internal/sim"
)

// BatchRows is the number of table rows per Arrow record batch.
const BatchRows = 1 << 16

// ErrUnsupportedFormat is returned by Write for formats it does not handle.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Schema is the long-format result schema.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "rep", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "time", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "patch", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "line", Type: arrow.BinaryTypes.String},
	{Name: "stage", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "density", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Records converts the table into record batches of at most BatchRows rows.
// The caller must Release every record.
func Records(mem memory.Allocator, table *sim.Table) []arrow.Record {
	b := array.NewRecordBuilder(mem, Schema)
	defer b.Release()

	var recs []arrow.Record
	for start := 0; start < len(table.Rows); start += BatchRows {
		end := min(start+BatchRows, len(table.Rows))
		b.Reserve(end - start)

		rep := b.Field(0).(*array.Uint32Builder)
		tm := b.Field(1).(*array.Uint32Builder)
		patch := b.Field(2).(*array.Uint32Builder)
		line := b.Field(3).(*array.StringBuilder)
		stage := b.Field(4).(*array.Uint32Builder)
		dens := b.Field(5).(*array.Float64Builder)

		for _, r := range table.Rows[start:end] {
			rep.Append(uint32(r.Rep))
			tm.Append(uint32(r.Time))
			patch.Append(uint32(r.Patch))
			line.Append(table.LineName(r))
			stage.Append(uint32(r.Stage))
			dens.Append(r.Density)
		}
		recs = append(recs, b.NewRecord())
	}
	return recs
}

// WriteArrow writes the table as an Arrow IPC file.
func WriteArrow(w io.Writer, table *sim.Table) error {
	mem := memory.NewGoAllocator()
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(Schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}

	recs := Records(mem, table)
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()

	for i, rec := range recs {
		if err := fw.Write(rec); err != nil {
			fw.Close()
			return fmt.Errorf("writing record batch %d: %w", i, err)
		}
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}

// ReadArrow reads a table written by WriteArrow.
func ReadArrow(r ipc.ReadAtSeeker) (*sim.Table, error) {
	mem := memory.NewGoAllocator()
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("opening arrow file: %w", err)
	}
	defer fr.Close()

	if !fr.Schema().Equal(Schema) {
		return nil, fmt.Errorf("unexpected arrow schema: %s", fr.Schema())
	}

	tb := newTableBuilder()
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("reading record batch %d: %w", i, err)
		}
		if err := tb.addRecord(rec); err != nil {
			return nil, fmt.Errorf("record batch %d: %w", i, err)
		}
	}
	return tb.table(), nil
}

// WriteCSV writes the table as CSV with a header row.
func WriteCSV(w io.Writer, table *sim.Table) error {
	mem := memory.NewGoAllocator()
	cw := csv.NewWriter(w, Schema, csv.WithHeader(true))

	recs := Records(mem, table)
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()

	if len(recs) == 0 {
		// Emit the header for an empty table.
		b := array.NewRecordBuilder(mem, Schema)
		defer b.Release()
		empty := b.NewRecord()
		defer empty.Release()
		if err := cw.Write(empty); err != nil {
			return fmt.Errorf("writing csv header: %w", err)
		}
	}
	for i, rec := range recs {
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing csv batch %d: %w", i, err)
		}
	}
	if err := cw.Flush(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return cw.Error()
}

// Write writes the table in the given format. Archives are written by the
// archive package, which needs run metadata.
func Write(w io.Writer, format constants.OutputFormat, table *sim.Table) error {
	switch format {
	case constants.FormatCSV:
		return WriteCSV(w, table)
	case constants.FormatArrow:
		return WriteArrow(w, table)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// tableBuilder rebuilds a sim.Table from records, interning line names in
// first-seen order.
type tableBuilder struct {
	lines  map[string]int
	t      *sim.Table
	stages []int
}

func newTableBuilder() *tableBuilder {
	return &tableBuilder{lines: make(map[string]int), t: &sim.Table{}}
}

func (tb *tableBuilder) addRecord(rec arrow.Record) error {
	rep, ok0 := rec.Column(0).(*array.Uint32)
	tm, ok1 := rec.Column(1).(*array.Uint32)
	patch, ok2 := rec.Column(2).(*array.Uint32)
	line, ok3 := rec.Column(3).(*array.String)
	stage, ok4 := rec.Column(4).(*array.Uint32)
	dens, ok5 := rec.Column(5).(*array.Float64)
	if !(ok0 && ok1 && ok2 && ok3 && ok4 && ok5) {
		return errors.New("column types do not match the result schema")
	}

	for i := 0; i < int(rec.NumRows()); i++ {
		tb.add(int(rep.Value(i)), int(tm.Value(i)), int(patch.Value(i)),
			line.Value(i), int(stage.Value(i)), dens.Value(i))
	}
	return nil
}

func (tb *tableBuilder) add(rep, time, patch int, line string, stage int, density float64) {
	l, ok := tb.lines[line]
	if !ok {
		l = len(tb.t.Lines)
		tb.lines[line] = l
		tb.t.Lines = append(tb.t.Lines, line)
		tb.stages = append(tb.stages, 0)
	}
	tb.stages[l] = max(tb.stages[l], stage+1)
	tb.t.Rows = append(tb.t.Rows, sim.Row{
		Rep:     rep,
		Time:    time,
		Patch:   patch,
		Line:    l,
		Stage:   stage,
		Density: density,
	})
}

func (tb *tableBuilder) table() *sim.Table {
	tb.t.Stages = tb.stages
	return tb.t
}
