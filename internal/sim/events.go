package sim

// ClearReason records which lifecycle guard cleared a patch.
type ClearReason int

const (
	ClearNone ClearReason = iota
	ClearCap
	ClearDeath
	ClearScheduled
)

func (r ClearReason) String() string {
	switch r {
	case ClearNone:
		return "none"
	case ClearCap:
		return "cap"
	case ClearDeath:
		return "death"
	case ClearScheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// ClearEvent describes a patch being cleared and replanted.
type ClearEvent struct {
	Rep    int
	Time   int
	Patch  int
	Age    int
	N      float64
	Reason ClearReason
	NewK   float64
}

// ExtinctionEvent describes a line dropping below the extinction floor on a
// patch.
type ExtinctionEvent struct {
	Rep   int
	Time  int
	Patch int
	Line  string
	N     float64
}

// ReplicateEvent summarizes a finished replicate.
type ReplicateEvent struct {
	Rep   int
	Stats ReplicateStats
}

// EventSink receives lifecycle events as replicates run. Implementations are
// called from several workers at once and must be safe for concurrent use.
type EventSink interface {
	PatchCleared(ClearEvent)
	LineExtinct(ExtinctionEvent)
	ReplicateDone(ReplicateEvent)
}

type discardSink struct{}

func (discardSink) PatchCleared(ClearEvent)      {}
func (discardSink) LineExtinct(ExtinctionEvent)  {}
func (discardSink) ReplicateDone(ReplicateEvent) {}
