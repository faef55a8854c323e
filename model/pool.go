package model

// PoolMember is one selected satellite together with the selection facts
// downstream consumers need (plane bucket, composite score).
type PoolMember struct {
	SatelliteID uint32
	PlaneKey    string
	Score       float64
}

// PhaseViolation records two pool members whose rise times ended up closer
// than the configured minimum after substitution was exhausted. Violations
// are accepted and reported rather than deadlocking the selector.
type PhaseViolation struct {
	EarlierID uint32
	LaterID   uint32
	GapS      float64
	MinGapS   float64
}

// SelectionPool is the chosen bounded subset for one constellation. Pools are
// immutable snapshots: the coverage feedback loop replaces a pool wholesale
// instead of patching members in place.
type SelectionPool struct {
	Constellation string
	TargetCount   int
	Members       []PoolMember

	AcceptedViolations []PhaseViolation

	// Round is the adjustment round that produced this pool; 0 for the
	// initial selection.
	Round int
}

// Size returns the number of members.
func (p SelectionPool) Size() int { return len(p.Members) }

// MemberIDs returns member satellite ids in pool order.
func (p SelectionPool) MemberIDs() []uint32 {
	ids := make([]uint32, 0, len(p.Members))
	for _, m := range p.Members {
		ids = append(ids, m.SatelliteID)
	}
	return ids
}

// Contains reports whether the pool holds the given satellite.
func (p SelectionPool) Contains(id uint32) bool {
	for _, m := range p.Members {
		if m.SatelliteID == id {
			return true
		}
	}
	return false
}
