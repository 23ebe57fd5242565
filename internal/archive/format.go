// Package archive writes and reads portable run archives.
//
// An archive is a single file: one plain JSON header line followed by the
// gzip-compressed Arrow IPC encoding of the result table. The header carries
// the run metadata and a SHA-256 checksum of the compressed payload, so a
// file can be listed and verified without decompressing it.
package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/clonesim/internal/output"
	"github.com/nvandessel/clonesim/internal/sim"
)

// FormatV1 is the current archive format version.
const FormatV1 = 1

// Ext is the file extension of run archives.
const Ext = ".csar"

// MaxDecompressedSize is the maximum allowed size of a decompressed payload (1GB).
const MaxDecompressedSize = 1 << 30

// ErrChecksum is returned when the payload does not match the header checksum.
var ErrChecksum = errors.New("archive checksum mismatch")

// Header is the plain-text first line of an archive file.
type Header struct {
	Version    int               `json:"version"`
	RunID      string            `json:"run_id"`
	Name       string            `json:"name,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Checksum   string            `json:"checksum"`
	Seed       uint64            `json:"seed"`
	Replicates int               `json:"replicates"`
	Rows       int               `json:"rows"`
	Lines      []string          `json:"lines"`
	Compressed bool              `json:"compressed"`
	RunFile    string            `json:"run_file,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Archive is a decoded archive file.
type Archive struct {
	Header Header
	Table  *sim.Table
}

// Write stores table at path. Version, checksum, row count, line names and
// creation time (when zero) are filled into the returned header.
func Write(path string, hdr Header, table *sim.Table) (*Header, error) {
	var payload bytes.Buffer
	if err := output.WriteArrow(&payload, table); err != nil {
		return nil, fmt.Errorf("encoding table: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload.Bytes()); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	hdr.Version = FormatV1
	hdr.Checksum = checksum(compressed.Bytes())
	hdr.Rows = len(table.Rows)
	hdr.Lines = table.Lines
	hdr.Compressed = true
	if hdr.CreatedAt.IsZero() {
		hdr.CreatedAt = time.Now().UTC()
	}

	headerBytes, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("writing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}

	return &hdr, nil
}

// Read reads an archive, verifies its checksum and decodes the table.
func Read(path string) (*Archive, error) {
	hdr, compressed, err := readVerified(path)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	limited := io.LimitReader(gzr, MaxDecompressedSize+1)
	decompressed, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	table, err := output.ReadArrow(bytes.NewReader(decompressed))
	if err != nil {
		return nil, fmt.Errorf("decoding table: %w", err)
	}
	if len(table.Rows) != hdr.Rows {
		return nil, fmt.Errorf("archive header lists %d rows, payload has %d", hdr.Rows, len(table.Rows))
	}
	// An empty table carries no line names of its own.
	if len(table.Lines) == 0 {
		table.Lines = hdr.Lines
	}

	return &Archive{Header: *hdr, Table: table}, nil
}

// ReadHeader reads only the header line without decompressing.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	hdr, _, err := readHeader(bufio.NewReader(f))
	return hdr, err
}

// Verify checks the integrity of an archive without decompressing it.
func Verify(path string) error {
	_, _, err := readVerified(path)
	return err
}

func readVerified(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	hdr, _, err := readHeader(reader)
	if err != nil {
		return nil, nil, err
	}

	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}

	if actual := checksum(compressed); actual != hdr.Checksum {
		return nil, nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksum, hdr.Checksum, actual)
	}
	return hdr, compressed, nil
}

func readHeader(r *bufio.Reader) (*Header, int, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, 0, fmt.Errorf("reading header line: %w", err)
	}

	var hdr Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &hdr); err != nil {
		return nil, 0, fmt.Errorf("parsing header: %w", err)
	}
	if hdr.Version != FormatV1 {
		return nil, 0, fmt.Errorf("unsupported archive version %d", hdr.Version)
	}
	return &hdr, len(line), nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
