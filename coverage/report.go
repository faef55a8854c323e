package coverage

import "time"

// Tier names one elevation threshold reported alongside the headline
// visibility statistics. Service planning distinguishes satellites that are
// merely above the horizon from those high enough to hand over to.
type Tier struct {
	Name            string
	MinElevationDeg float64
}

// DefaultTiers are the thresholds used when the options carry none.
var DefaultTiers = []Tier{
	{Name: "handover", MinElevationDeg: 15},
	{Name: "tracking", MinElevationDeg: 10},
	{Name: "prediction", MinElevationDeg: 5},
}

// TierStat aggregates the per-sample count of members at or above one tier's
// elevation across the validation window.
type TierStat struct {
	Tier Tier

	Min  int
	Mean float64
	Max  int
}

// Criteria are the pass thresholds a report is judged against. They are
// echoed into the report so a failing report is self-describing.
type Criteria struct {
	// VisibleFloor is the minimum acceptable visible count at any sample.
	VisibleFloor int

	// BandMin and BandMax bound the ideal mean visible count.
	BandMin float64
	BandMax float64

	// BelowTargetCap caps the fraction of samples whose visible count falls
	// under BandMin.
	BelowTargetCap float64

	// InBandFloor is the minimum fraction of samples whose visible count
	// lies within [BandMin, BandMax].
	InBandFloor float64
}

// DefaultCriteria per the generic constellation profile.
var DefaultCriteria = Criteria{
	VisibleFloor:   6,
	BandMin:        8,
	BandMax:        12,
	BelowTargetCap: 0.05,
	InBandFloor:    0.90,
}

// CoverageReport summarizes how many pool members were visible across a
// validation window. Reports are value snapshots; the adjustment loop reads
// them and produces new selector options, never mutates them.
type CoverageReport struct {
	Constellation string

	Start   time.Time
	Window  time.Duration
	Cadence time.Duration
	Samples int

	VisibleMin  int
	VisibleMean float64
	VisibleMax  int
	VisibleStd  float64

	// BelowTargetFraction is the share of samples with fewer visible
	// members than the band minimum; InBandFraction the share within the
	// band.
	BelowTargetFraction float64
	InBandFraction      float64

	Tiers []TierStat

	Criteria Criteria

	// MissingMembers lists pool members with no usable propagation in the
	// window. They contribute zero visibility.
	MissingMembers []uint32

	Passed  bool
	Reasons []string
}
