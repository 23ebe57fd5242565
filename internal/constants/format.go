package constants

// OutputFormat names a result file format written by the CLI.
type OutputFormat string

const (
	// FormatCSV writes the long-format table as CSV with a header row.
	FormatCSV OutputFormat = "csv"

	// FormatArrow writes the table as an Arrow IPC file.
	FormatArrow OutputFormat = "arrow"

	// FormatArchive writes a checksummed, gzip-compressed run archive.
	FormatArchive OutputFormat = "archive"
)

// Valid returns true if the format is a recognized value.
func (f OutputFormat) Valid() bool {
	switch f {
	case FormatCSV, FormatArrow, FormatArchive:
		return true
	}
	return false
}

// String returns the string representation of the format.
func (f OutputFormat) String() string {
	return string(f)
}
