// Package logging holds clonesim's two log outputs: a leveled slog.Logger
// for operational messages on stderr, and an EventLogger that records
// simulation lifecycle events as JSONL under the log directory.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/clonesim/internal/sim"
)

// LevelTrace sits below Debug and carries per-replicate output.
const LevelTrace = slog.LevelDebug - 4

// EventsFile is the name of the JSONL event log inside the log directory.
const EventsFile = "events.jsonl"

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"trace": LevelTrace,
}

// ParseLevel maps "info", "debug" or "trace" (any case) to a slog.Level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(s)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// NewLogger returns a text slog.Logger on w that prints LevelTrace as TRACE.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: labelTrace,
	}))
}

func labelTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// EventLogger appends simulation lifecycle events to a JSONL file and
// implements sim.EventSink. All methods are no-ops on a nil receiver, so
// callers need not check whether event logging is enabled.
type EventLogger struct {
	mu    sync.Mutex
	f     *os.File
	enc   *json.Encoder
	runID string
}

var _ sim.EventSink = (*EventLogger)(nil)

// NewEventLogger opens dir/events.jsonl for append when level is debug or
// trace. It returns nil at info level or when the file cannot be opened.
func NewEventLogger(dir string, level string) *EventLogger {
	if ParseLevel(level) >= slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, EventsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &EventLogger{f: f, enc: json.NewEncoder(f)}
}

// SetRunID tags every following event with id.
func (el *EventLogger) SetRunID(id string) {
	if el == nil {
		return
	}
	el.mu.Lock()
	el.runID = id
	el.mu.Unlock()
}

// Log writes event as one line, adding "time" and, once SetRunID has been
// called, "run_id". The caller's map is left as is.
func (el *EventLogger) Log(event map[string]any) {
	if el == nil {
		return
	}
	entry := maps.Clone(event)
	if entry == nil {
		entry = make(map[string]any, 2)
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	el.mu.Lock()
	defer el.mu.Unlock()
	if el.f == nil {
		return
	}
	if el.runID != "" {
		entry["run_id"] = el.runID
	}
	_ = el.enc.Encode(entry)
}

// PatchCleared records a patch being cleared and replanted.
func (el *EventLogger) PatchCleared(e sim.ClearEvent) {
	el.Log(map[string]any{
		"event":  "patch_cleared",
		"rep":    e.Rep,
		"t":      e.Time,
		"patch":  e.Patch,
		"age":    e.Age,
		"n":      e.N,
		"reason": e.Reason.String(),
		"new_k":  finiteOrString(e.NewK),
	})
}

// LineExtinct records a line falling below the extinction floor.
func (el *EventLogger) LineExtinct(e sim.ExtinctionEvent) {
	el.Log(map[string]any{
		"event": "line_extinct",
		"rep":   e.Rep,
		"t":     e.Time,
		"patch": e.Patch,
		"line":  e.Line,
		"n":     e.N,
	})
}

// ReplicateDone records a finished replicate with its counters.
func (el *EventLogger) ReplicateDone(e sim.ReplicateEvent) {
	el.Log(map[string]any{
		"event":            "replicate_done",
		"rep":              e.Rep,
		"steps":            e.Stats.Steps,
		"early_stop":       e.Stats.EarlyStop,
		"cap_clears":       e.Stats.CapClears,
		"death_clears":     e.Stats.DeathClears,
		"scheduled_clears": e.Stats.ScheduledClears,
		"line_extinctions": e.Stats.LineExtinctions,
	})
}

// Close closes the event file.
func (el *EventLogger) Close() {
	if el == nil {
		return
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.f != nil {
		_ = el.f.Close()
		el.f, el.enc = nil, nil
	}
}

// finiteOrString keeps infinite carrying capacities representable in JSON.
func finiteOrString(v float64) any {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}
