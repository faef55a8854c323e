package model

import "time"

// EventKind enumerates the handover trigger events the detector recognises.
type EventKind int

const (
	EventKindUnknown EventKind = iota
	EventA4                    // neighbour becomes better than threshold
	EventA5                    // serving below threshold1 and neighbour above threshold2
	EventD2                    // moving-reference-location distance crossing
)

// String returns the 3GPP-style event name.
func (k EventKind) String() string {
	switch k {
	case EventA4:
		return "A4"
	case EventA5:
		return "A5"
	case EventD2:
		return "D2"
	default:
		return "unknown"
	}
}

// EventMetrics captures the measurements that satisfied an entering or
// leaving condition at commit time. Only the fields relevant to the event
// kind are populated; the rest stay zero.
type EventMetrics struct {
	At                time.Time
	ServingRSRPDBm    float64
	CandidateRSRPDBm  float64
	ServingMRLDistM   float64
	CandidateMRLDistM float64
}

// HandoverEventRecord is one detected event instance. A record opens when a
// pair's state machine commits the entering condition and closes when the
// leaving condition commits; closed records are immutable.
type HandoverEventRecord struct {
	ID          string // uuid
	Kind        EventKind
	ServingID   uint32
	CandidateID uint32

	Start time.Time
	End   time.Time // zero while the event is still active

	Entry EventMetrics
	Exit  EventMetrics

	// Ongoing marks a record closed administratively because the series
	// ended while the event was still active.
	Ongoing bool
}

// Open reports whether the record has not been closed yet.
func (r HandoverEventRecord) Open() bool { return r.End.IsZero() }

// Duration is End minus Start for closed records and zero while open.
func (r HandoverEventRecord) Duration() time.Duration {
	if r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}
