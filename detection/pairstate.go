package detection

import (
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/timegrid"
)

// phase of the per-pair trigger machine.
type phase int

const (
	phaseIdle phase = iota
	phaseConfirmingEnter
	phaseActive
	phaseConfirmingLeave
)

// pairState runs the entering/leaving condition machine for one
// (serving, candidate, kind) triple. It lives for a single detection run.
//
// A condition must hold for dwell consecutive samples before it commits;
// a confirming phase reverts to its prior stable phase the moment the
// condition breaks, dropping all accumulated credit. Silence longer than the
// gap budget likewise abandons a confirming phase, measured on timestamps
// rather than sample counts.
type pairState struct {
	pair Pair
	cond conditions

	dwell     int
	gapBudget time.Duration

	phase    phase
	held     int
	lastSeen time.Time

	open   *model.HandoverEventRecord
	closed []model.HandoverEventRecord
}

func newPairState(pair Pair, cond conditions, grid timegrid.Grid) *pairState {
	dwell := grid.SamplesFor(cond.ttt)
	return &pairState{
		pair:      pair,
		cond:      cond,
		dwell:     dwell,
		gapBudget: time.Duration(dwell) * grid.Cadence,
	}
}

// observe advances the machine by one good sample.
func (ps *pairState) observe(serving, cand model.PropagatedState, at time.Time) {
	if !ps.lastSeen.IsZero() && at.Sub(ps.lastSeen) > ps.gapBudget {
		ps.abandonConfirming()
	}
	ps.lastSeen = at

	switch ps.phase {
	case phaseIdle:
		if ps.cond.enter(serving, cand) {
			ps.phase = phaseConfirmingEnter
			ps.held = 1
			ps.commitEnter(serving, cand, at)
		}
	case phaseConfirmingEnter:
		if ps.cond.enter(serving, cand) {
			ps.held++
			ps.commitEnter(serving, cand, at)
		} else {
			ps.phase = phaseIdle
			ps.held = 0
		}
	case phaseActive:
		if ps.cond.leave(serving, cand) {
			ps.phase = phaseConfirmingLeave
			ps.held = 1
			ps.commitLeave(serving, cand, at)
		}
	case phaseConfirmingLeave:
		if ps.cond.leave(serving, cand) {
			ps.held++
			ps.commitLeave(serving, cand, at)
		} else {
			ps.phase = phaseActive
			ps.held = 0
		}
	}
}

func (ps *pairState) commitEnter(serving, cand model.PropagatedState, at time.Time) {
	if ps.held < ps.dwell {
		return
	}
	rec := model.HandoverEventRecord{
		ID:          uuid.NewString(),
		Kind:        ps.pair.Kind,
		ServingID:   ps.pair.ServingID,
		CandidateID: ps.pair.CandidateID,
		Start:       at,
		Entry:       metricsFor(ps.pair.Kind, serving, cand, at),
	}
	ps.open = &rec
	ps.phase = phaseActive
	ps.held = 0
}

func (ps *pairState) commitLeave(serving, cand model.PropagatedState, at time.Time) {
	if ps.held < ps.dwell {
		return
	}
	rec := *ps.open
	rec.End = at
	rec.Exit = metricsFor(ps.pair.Kind, serving, cand, at)
	ps.closed = append(ps.closed, rec)
	ps.open = nil
	ps.phase = phaseIdle
	ps.held = 0
}

func (ps *pairState) abandonConfirming() {
	switch ps.phase {
	case phaseConfirmingEnter:
		ps.phase = phaseIdle
		ps.held = 0
	case phaseConfirmingLeave:
		ps.phase = phaseActive
		ps.held = 0
	}
}

// finish closes a still-open record at the end of the series and returns
// everything committed during the run.
func (ps *pairState) finish(endAt time.Time) []model.HandoverEventRecord {
	if ps.open != nil {
		rec := *ps.open
		rec.End = endAt
		rec.Ongoing = true
		ps.closed = append(ps.closed, rec)
		ps.open = nil
	}
	return ps.closed
}
