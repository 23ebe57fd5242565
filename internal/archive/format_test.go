package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nvandessel/clonesim/internal/sim"
)

func testTable() *sim.Table {
	return &sim.Table{
		Lines:  []string{"red", "green"},
		Stages: []int{2, 1},
		Rows: []sim.Row{
			{Rep: 0, Time: 0, Patch: 0, Line: 0, Stage: 0, Density: 12},
			{Rep: 0, Time: 0, Patch: 0, Line: 0, Stage: 1, Density: 3},
			{Rep: 0, Time: 0, Patch: 1, Line: 1, Stage: 0, Density: 7.25},
			{Rep: 1, Time: 10, Patch: 1, Line: 1, Stage: 0, Density: 0},
		},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "run.csar")

	hdr, err := Write(path, Header{
		RunID:      "abc-123",
		Name:       "smoke",
		Seed:       42,
		Replicates: 2,
		RunFile:    "max_t: 10\n",
		Metadata:   map[string]string{"host": "test"},
	}, testTable())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if hdr.Version != FormatV1 || hdr.Rows != 4 || !hdr.Compressed {
		t.Errorf("unexpected header %+v", hdr)
	}
	if !strings.HasPrefix(hdr.Checksum, "sha256:") {
		t.Errorf("checksum should be prefixed with sha256:, got %q", hdr.Checksum)
	}
	if hdr.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be filled in")
	}

	a, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if a.Header.RunID != "abc-123" || a.Header.Seed != 42 || a.Header.RunFile != "max_t: 10\n" {
		t.Errorf("header fields lost: %+v", a.Header)
	}
	if a.Header.Metadata["host"] != "test" {
		t.Errorf("metadata lost: %v", a.Header.Metadata)
	}
	want := testTable()
	if !slices.Equal(a.Table.Lines, want.Lines) {
		t.Errorf("lines: got %v, want %v", a.Table.Lines, want.Lines)
	}
	if !slices.Equal(a.Table.Rows, want.Rows) {
		t.Errorf("rows differ:\ngot  %v\nwant %v", a.Table.Rows, want.Rows)
	}
}

func TestWriteRead_EmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csar")

	if _, err := Write(path, Header{RunID: "e"}, &sim.Table{Lines: []string{"a", "b"}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	a, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(a.Table.Rows) != 0 {
		t.Errorf("expected no rows, got %d", len(a.Table.Rows))
	}
	if !slices.Equal(a.Table.Lines, []string{"a", "b"}) {
		t.Errorf("expected line names from the header, got %v", a.Table.Lines)
	}
}

func TestReadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csar")
	if _, err := Write(path, Header{RunID: "hdr", Replicates: 2}, testTable()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	hdr, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.RunID != "hdr" || hdr.Replicates != 2 || hdr.Rows != 4 {
		t.Errorf("unexpected header %+v", hdr)
	}
	if !slices.Equal(hdr.Lines, []string{"red", "green"}) {
		t.Errorf("expected line names in header, got %v", hdr.Lines)
	}
}

func TestVerify_CorruptedPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csar")
	if _, err := Write(path, Header{RunID: "x"}, testTable()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Verify(path); err != nil {
		t.Fatalf("Verify on an intact archive: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flip the last payload byte.
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	if err := Verify(path); !errors.Is(err, ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}
	if _, err := Read(path); !errors.Is(err, ErrChecksum) {
		t.Errorf("expected Read to fail with ErrChecksum, got %v", err)
	}
}

func TestReadHeader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		wantErr string
	}{
		{"no newline", []byte(`{"version":1}`), "reading header line"},
		{"not json", []byte("hello\npayload"), "parsing header"},
		{"future version", []byte(`{"version":9}` + "\n"), "unsupported archive version 9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.csar")
			if err := os.WriteFile(path, tt.content, 0600); err != nil {
				t.Fatal(err)
			}
			_, err := ReadHeader(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRead_NotFound(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "missing.csar")); err == nil {
		t.Error("expected error for a missing archive")
	}
}

func TestChecksum_Stable(t *testing.T) {
	a := checksum([]byte("aphids"))
	b := checksum(bytes.Clone([]byte("aphids")))
	if a != b {
		t.Errorf("checksum not deterministic: %s vs %s", a, b)
	}
}
