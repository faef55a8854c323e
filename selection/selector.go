package selection

import (
	"sort"

	"github.com/signalsfoundry/constellation-handover/model"
)

// Selector defaults. Config normally supplies per-constellation values; the
// zero options fall back to these.
const (
	DefaultTargetCount         = 25
	DefaultMinPlaneIntervalDeg = 15.0
	DefaultMinRiseIntervalS    = 60.0
	DefaultEventKindCap        = 3
)

// SelectorOptions bound and shape one selection run.
type SelectorOptions struct {
	// TargetCount is the pool size the selector aims for; MinTarget is the
	// floor below which selection is rejected; MaxTarget caps growth during
	// coverage adjustment.
	TargetCount int
	MinTarget   int
	MaxTarget   int

	// MinPlaneIntervalDeg is the minimum circular mean-anomaly separation
	// between members of the same orbital plane.
	MinPlaneIntervalDeg float64

	// MinRiseIntervalS is the minimum spacing between consecutive member
	// rise times.
	MinRiseIntervalS float64

	// EventKindCap bounds how many members the event-coverage pass may add
	// per event kind.
	EventKindCap int
}

// Normalized returns a copy with zero fields replaced by defaults.
func (o SelectorOptions) Normalized() SelectorOptions {
	if o.TargetCount <= 0 {
		o.TargetCount = DefaultTargetCount
	}
	if o.MinTarget <= 0 {
		o.MinTarget = 1
	}
	if o.MaxTarget <= 0 {
		o.MaxTarget = 2 * o.TargetCount
	}
	if o.TargetCount > o.MaxTarget {
		o.TargetCount = o.MaxTarget
	}
	if o.MinPlaneIntervalDeg <= 0 {
		o.MinPlaneIntervalDeg = DefaultMinPlaneIntervalDeg
	}
	if o.MinRiseIntervalS <= 0 {
		o.MinRiseIntervalS = DefaultMinRiseIntervalS
	}
	if o.EventKindCap <= 0 {
		o.EventKindCap = DefaultEventKindCap
	}
	return o
}

// Select picks a bounded pool from scored candidates. The algorithm runs in
// four ordered steps: plane grouping, intra-plane mean-anomaly sampling,
// rise-time phase distribution with bounded substitution, and an
// event-coverage fill. Identical inputs reproduce the identical pool.
//
// It fails with *UnderCoverageError when the final pool would be smaller
// than MinTarget.
func Select(candidates []SelectionCandidate, opts SelectorOptions) (model.SelectionPool, error) {
	opts = opts.Normalized()

	constellation := ""
	if len(candidates) > 0 {
		constellation = candidates[0].Elements.Constellation
	}

	// Step 1: bucket by discretized orbital plane.
	planes := make(map[string][]SelectionCandidate)
	for _, c := range candidates {
		planes[c.PlaneKey] = append(planes[c.PlaneKey], c)
	}
	planeKeys := make([]string, 0, len(planes))
	for key := range planes {
		sortCandidates(planes[key])
		planeKeys = append(planeKeys, key)
	}
	sort.Strings(planeKeys)

	if len(planes) == 0 {
		return model.SelectionPool{}, &UnderCoverageError{
			Constellation: constellation,
			Got:           0,
			MinTarget:     opts.MinTarget,
		}
	}

	// Step 2: within each plane keep the best-scored satellites that stay
	// clear of each other in mean anomaly, up to an even share of the
	// target.
	perPlaneCap := (opts.TargetCount + len(planes) - 1) / len(planes)
	if perPlaneCap < 1 {
		perPlaneCap = 1
	}

	kept := make(map[string][]SelectionCandidate, len(planes))
	var members []SelectionCandidate
	for _, key := range planeKeys {
		for _, c := range planes[key] {
			if len(kept[key]) >= perPlaneCap {
				break
			}
			if !anomalyClear(kept[key], c, opts.MinPlaneIntervalDeg) {
				continue
			}
			kept[key] = append(kept[key], c)
			members = append(members, c)
		}
	}

	// The even per-plane share can overshoot the target; trim the weakest
	// before distributing phases.
	sortCandidates(members)
	if len(members) > opts.TargetCount {
		for _, c := range members[opts.TargetCount:] {
			kept[c.PlaneKey] = removeCandidate(kept[c.PlaneKey], c.Elements.SatelliteID)
		}
		members = members[:opts.TargetCount]
	}

	// Step 3: spread rise times, substituting within the plane when two
	// members rise too close together.
	members, violations := distributePhases(members, planes, kept, opts)

	// Step 4: fill remaining capacity, preferring event-kind diversity.
	members = fillForEvents(members, candidates, kept, opts)

	if len(members) < opts.MinTarget {
		return model.SelectionPool{}, &UnderCoverageError{
			Constellation: constellation,
			Got:           len(members),
			MinTarget:     opts.MinTarget,
			Planes:        len(planes),
			Candidates:    len(candidates),
		}
	}

	sortCandidates(members)
	pool := model.SelectionPool{
		Constellation:      constellation,
		TargetCount:        opts.TargetCount,
		Members:            make([]model.PoolMember, 0, len(members)),
		AcceptedViolations: violations,
	}
	for _, c := range members {
		pool.Members = append(pool.Members, model.PoolMember{
			SatelliteID: c.Elements.SatelliteID,
			PlaneKey:    c.PlaneKey,
			Score:       c.Score,
		})
	}
	return pool, nil
}

// distributePhases orders members by next rise and substitutes same-plane
// alternatives when consecutive rises are closer than the minimum interval.
// Members that never rise are exempt and sort last. Substitution is bounded
// by the candidate count so the pass never deadlocks; unresolved gaps are
// recorded as accepted violations once the ordering settles.
func distributePhases(members []SelectionCandidate, planes, kept map[string][]SelectionCandidate, opts SelectorOptions) ([]SelectionCandidate, []model.PhaseViolation) {
	sortByRise(members)

	substitutions := 0
	maxSubstitutions := totalCandidates(planes)

	for changed := true; changed && substitutions < maxSubstitutions; {
		changed = false
		for i := 1; i < len(members); i++ {
			prev, cur := members[i-1], members[i]
			if prev.NextRise.IsZero() || cur.NextRise.IsZero() {
				break // never-risers are sorted last and exempt
			}
			if cur.NextRise.Sub(prev.NextRise).Seconds() >= opts.MinRiseIntervalS {
				continue
			}
			sub, ok := findSubstitute(cur, prev, members, planes, kept, opts)
			if !ok {
				continue
			}
			substitutions++
			kept[cur.PlaneKey] = removeCandidate(kept[cur.PlaneKey], cur.Elements.SatelliteID)
			kept[sub.PlaneKey] = append(kept[sub.PlaneKey], sub)
			members[i] = sub
			sortByRise(members)
			changed = true
			break
		}
	}

	var violations []model.PhaseViolation
	for i := 1; i < len(members); i++ {
		prev, cur := members[i-1], members[i]
		if prev.NextRise.IsZero() || cur.NextRise.IsZero() {
			break
		}
		gap := cur.NextRise.Sub(prev.NextRise).Seconds()
		if gap < opts.MinRiseIntervalS {
			violations = append(violations, model.PhaseViolation{
				EarlierID: prev.Elements.SatelliteID,
				LaterID:   cur.Elements.SatelliteID,
				GapS:      gap,
				MinGapS:   opts.MinRiseIntervalS,
			})
		}
	}
	return members, violations
}

// findSubstitute looks for the best-scored same-plane candidate, not already
// selected, that rises at least the minimum interval after prev and keeps
// mean-anomaly clearance with the rest of its plane.
func findSubstitute(cur, prev SelectionCandidate, members []SelectionCandidate, planes, kept map[string][]SelectionCandidate, opts SelectorOptions) (SelectionCandidate, bool) {
	chosen := make(map[uint32]bool, len(members))
	for _, m := range members {
		chosen[m.Elements.SatelliteID] = true
	}

	keptOthers := removeCandidate(kept[cur.PlaneKey], cur.Elements.SatelliteID)

	for _, alt := range planes[cur.PlaneKey] {
		if chosen[alt.Elements.SatelliteID] {
			continue
		}
		if alt.NextRise.IsZero() {
			continue
		}
		if alt.NextRise.Sub(prev.NextRise).Seconds() < opts.MinRiseIntervalS {
			continue
		}
		if !anomalyClear(keptOthers, alt, opts.MinPlaneIntervalDeg) {
			continue
		}
		return alt, true
	}
	return SelectionCandidate{}, false
}

// fillForEvents tops the pool up to the target count from unchosen
// candidates: first those whose potential flags cover an event kind the pool
// lacks (bounded per kind), then by score. Plane mean-anomaly clearance still
// applies to everything added here.
func fillForEvents(members []SelectionCandidate, candidates []SelectionCandidate, kept map[string][]SelectionCandidate, opts SelectorOptions) []SelectionCandidate {
	if len(members) >= opts.TargetCount {
		return members
	}

	chosen := make(map[uint32]bool, len(members))
	for _, m := range members {
		chosen[m.Elements.SatelliteID] = true
	}

	kindCounts := map[model.EventKind]int{}
	for _, m := range members {
		countPotential(kindCounts, m.Potential)
	}

	remaining := make([]SelectionCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !chosen[c.Elements.SatelliteID] {
			remaining = append(remaining, c)
		}
	}
	sortCandidates(remaining)

	add := func(c SelectionCandidate) {
		chosen[c.Elements.SatelliteID] = true
		kept[c.PlaneKey] = append(kept[c.PlaneKey], c)
		members = append(members, c)
		countPotential(kindCounts, c.Potential)
	}

	// Diversity pass: each kind in a fixed order, best score first, until the
	// pool carries EventKindCap members flagged for the kind.
	for _, kind := range []model.EventKind{model.EventA4, model.EventA5, model.EventD2} {
		for _, c := range remaining {
			if len(members) >= opts.TargetCount || kindCounts[kind] >= opts.EventKindCap {
				break
			}
			if chosen[c.Elements.SatelliteID] || !hasPotential(c.Potential, kind) {
				continue
			}
			if !anomalyClear(kept[c.PlaneKey], c, opts.MinPlaneIntervalDeg) {
				continue
			}
			add(c)
		}
	}

	// Score pass: best remaining regardless of flags.
	for _, c := range remaining {
		if len(members) >= opts.TargetCount {
			break
		}
		if chosen[c.Elements.SatelliteID] {
			continue
		}
		if !anomalyClear(kept[c.PlaneKey], c, opts.MinPlaneIntervalDeg) {
			continue
		}
		add(c)
	}
	return members
}

func countPotential(counts map[model.EventKind]int, p EventPotential) {
	if p.A4 {
		counts[model.EventA4]++
	}
	if p.A5Serving {
		counts[model.EventA5]++
	}
	if p.D2 {
		counts[model.EventD2]++
	}
}

func hasPotential(p EventPotential, kind model.EventKind) bool {
	switch kind {
	case model.EventA4:
		return p.A4
	case model.EventA5:
		return p.A5Serving
	case model.EventD2:
		return p.D2
	default:
		return false
	}
}

// sortByRise orders by next-rise time ascending with never-risers last;
// ties fall back to score descending, then ascending id.
func sortByRise(members []SelectionCandidate) {
	sort.SliceStable(members, func(i, j int) bool {
		ri, rj := members[i].NextRise, members[j].NextRise
		switch {
		case ri.IsZero() && rj.IsZero():
			if members[i].Score != members[j].Score {
				return members[i].Score > members[j].Score
			}
			return members[i].Elements.SatelliteID < members[j].Elements.SatelliteID
		case ri.IsZero():
			return false
		case rj.IsZero():
			return true
		case !ri.Equal(rj):
			return ri.Before(rj)
		default:
			return members[i].Elements.SatelliteID < members[j].Elements.SatelliteID
		}
	})
}

func removeCandidate(list []SelectionCandidate, id uint32) []SelectionCandidate {
	out := list[:0:0]
	for _, c := range list {
		if c.Elements.SatelliteID != id {
			out = append(out, c)
		}
	}
	return out
}

func totalCandidates(planes map[string][]SelectionCandidate) int {
	n := 0
	for _, plane := range planes {
		n += len(plane)
	}
	return n
}
