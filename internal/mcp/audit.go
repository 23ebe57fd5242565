package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// AuditFile is the name of the tool audit log inside the audit directory.
const AuditFile = "audit.jsonl"

// AuditEntry is one line of the audit log.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends AuditEntry lines to a file. Methods on a nil
// AuditLogger do nothing.
type AuditLogger struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewAuditLogger opens dir/audit.jsonl for append, creating dir if needed.
// A directory or file that cannot be opened yields a warning on stderr and
// a nil logger; auditing never stops the server.
func NewAuditLogger(dir string) *AuditLogger {
	path := filepath.Join(dir, AuditFile)
	f, err := openAppend(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit log disabled: %v\n", err)
		return nil
	}
	return &AuditLogger{f: f, enc: json.NewEncoder(f)}
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// Log appends entry. Write errors are dropped.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f != nil {
		_ = a.enc.Encode(entry)
	}
}

// Close closes the log file. Later calls to Log are no-ops.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	f := a.f
	a.f, a.enc = nil, nil
	return f.Close()
}

type paramPolicy int

const (
	logValue paramPolicy = iota + 1
	logPresence
)

// auditParams says how each known tool argument is logged. Run documents,
// matrices and paths are reduced to "(set)"; keys not listed are dropped.
var auditParams = map[string]paramPolicy{
	"n_reps":      logValue,
	"max_t":       logValue,
	"seed":        logValue,
	"save":        logValue,
	"all_times":   logValue,
	"id":          logValue,
	"surv_juv":    logValue,
	"instar_days": logValue,
	"count":       logValue,

	"run_file":    logPresence,
	"matrix":      logPresence,
	"values":      logPresence,
	"surv_adult":  logPresence,
	"repro":       logPresence,
	"name":        logPresence,
	"output_path": logPresence,
}

// sanitizeToolParams applies auditParams and adds "_param_count".
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}
	out := map[string]string{"_param_count": strconv.Itoa(len(params))}
	for key, val := range params {
		switch auditParams[key] {
		case logValue:
			out[key] = fmt.Sprint(val)
		case logPresence:
			out[key] = "(set)"
		}
	}
	return out
}

// auditTool records a finished tool call that began at start.
func (s *Server) auditTool(tool string, start time.Time, err error, params map[string]string) {
	entry := AuditEntry{
		Timestamp:  start,
		Tool:       tool,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "success",
		Params:     params,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	s.auditLogger.Log(entry)
}
