package orbit

import (
	"sync"
	"sync/atomic"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/constellation-handover/model"
)

// Defaults applied when a constellation has no configured RF parameters.
const (
	DefaultCarrierGHz      = 12.5
	DefaultMinElevationDeg = 10.0
	DefaultMaxElementAge   = 7 * 24 * time.Hour
)

// futureEpochSlack is how far an element epoch may lie in the future before
// propagation at t is refused as stale.
const futureEpochSlack = 24 * time.Hour

// ConstellationRF carries the per-constellation parameters the propagator
// needs: downlink carrier and the visibility threshold.
type ConstellationRF struct {
	CarrierGHz      float64
	MinElevationDeg float64
}

// Options configures a Propagator.
type Options struct {
	// Observer is the fixed ground point look angles are computed against.
	Observer model.GeodeticPoint

	// Reference is the point MRL distances are measured from. The zero
	// value means "same as Observer".
	Reference model.GeodeticPoint

	Radio RadioProfile

	// MaxElementAge bounds how old an element set may be before Propagate
	// refuses it as stale. Zero means DefaultMaxElementAge.
	MaxElementAge time.Duration

	// Constellations maps constellation tags to RF parameters. Unknown tags
	// fall back to DefaultCarrierGHz/DefaultMinElevationDeg.
	Constellations map[string]ConstellationRF
}

// Propagator converts orbital element sets into observer-relative propagated
// states. It is safe for concurrent use; parsed SGP4 models are cached per
// satellite and rebuilt when a newer epoch appears.
type Propagator struct {
	observer  Observer
	reference Observer
	radio     RadioProfile
	maxAge    time.Duration
	rf        map[string]ConstellationRF

	cache   atomic.Pointer[sgp4Cache]
	cacheMu sync.Mutex
}

type sgp4Cache struct {
	sats map[uint32]sgp4Entry
}

type sgp4Entry struct {
	epoch time.Time
	sat   satellite.Satellite
}

// NewPropagator builds a Propagator from options.
func NewPropagator(opts Options) *Propagator {
	maxAge := opts.MaxElementAge
	if maxAge <= 0 {
		maxAge = DefaultMaxElementAge
	}

	reference := opts.Reference
	if reference == (model.GeodeticPoint{}) {
		reference = opts.Observer
	}

	p := &Propagator{
		observer:  NewObserver(opts.Observer),
		reference: NewObserver(reference),
		radio:     opts.Radio.normalized(),
		maxAge:    maxAge,
		rf:        opts.Constellations,
	}
	p.cache.Store(&sgp4Cache{sats: map[uint32]sgp4Entry{}})
	return p
}

// Observer returns the configured observer point.
func (p *Propagator) Observer() model.GeodeticPoint { return p.observer.Geodetic() }

// RF returns the RF parameters for a constellation tag, falling back to
// defaults for unknown tags.
func (p *Propagator) RF(constellation string) ConstellationRF {
	if rf, ok := p.rf[constellation]; ok {
		if rf.CarrierGHz <= 0 {
			rf.CarrierGHz = DefaultCarrierGHz
		}
		if rf.MinElevationDeg <= 0 {
			rf.MinElevationDeg = DefaultMinElevationDeg
		}
		return rf
	}
	return ConstellationRF{CarrierGHz: DefaultCarrierGHz, MinElevationDeg: DefaultMinElevationDeg}
}

// MaxElementAge returns the staleness bound applied by Propagate.
func (p *Propagator) MaxElementAge() time.Duration { return p.maxAge }

// Propagate computes the satellite's state at t against the configured
// observer. It is a pure function of its inputs: identical calls yield
// identical states.
//
// It fails with *StaleElementsError when the element age at t exceeds the
// configured maximum, and with *PropagationError when SGP4 output is
// unusable.
func (p *Propagator) Propagate(set model.OrbitalElementSet, t time.Time) (model.PropagatedState, error) {
	age := set.Age(t)
	if age > p.maxAge || age < -futureEpochSlack {
		return model.PropagatedState{}, &StaleElementsError{
			SatelliteID: set.SatelliteID,
			Epoch:       set.Epoch,
			Age:         age,
			MaxAge:      p.maxAge,
		}
	}

	sat, err := p.cachedSat(set)
	if err != nil {
		return model.PropagatedState{}, err
	}

	pos, vel, err := propagateECEF(sat, set.SatelliteID, t)
	if err != nil {
		return model.PropagatedState{}, err
	}

	subpoint := ecefToGeodetic(pos)
	mrl := model.GeodeticPoint{LatDeg: subpoint.LatDeg, LonDeg: subpoint.LonDeg}
	mrlDistM := HaversineM(p.reference.LatDeg, p.reference.LonDeg, mrl.LatDeg, mrl.LonDeg)

	azDeg, elDeg, rangeKm := lookAngles(p.observer, pos)

	rf := p.RF(set.Constellation)

	return model.PropagatedState{
		SatelliteID:    set.SatelliteID,
		At:             t.UTC(),
		Position:       model.ECEF{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity:       model.ECEF{X: vel.X, Y: vel.Y, Z: vel.Z},
		Subpoint:       subpoint,
		ElevationDeg:   elDeg,
		AzimuthDeg:     azDeg,
		RangeKm:        rangeKm,
		MRL:            mrl,
		MRLDistanceM:   mrlDistM,
		RSRPDBm:        EstimateRSRP(p.radio, rangeKm, elDeg, rf.CarrierGHz),
		DopplerShiftHz: dopplerShiftHz(p.observer, pos, vel, rf.CarrierGHz),
		Visible:        elDeg >= rf.MinElevationDeg,
	}, nil
}

// cachedSat returns the parsed SGP4 model for the element set, rebuilding the
// cache entry when the set's epoch superseded the cached one.
func (p *Propagator) cachedSat(set model.OrbitalElementSet) (satellite.Satellite, error) {
	if c := p.cache.Load(); c != nil {
		if e, ok := c.sats[set.SatelliteID]; ok && e.epoch.Equal(set.Epoch) {
			return e.sat, nil
		}
	}

	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	// Re-check under the lock: another goroutine may have rebuilt already.
	cur := p.cache.Load()
	if e, ok := cur.sats[set.SatelliteID]; ok && e.epoch.Equal(set.Epoch) {
		return e.sat, nil
	}

	sat, err := newSGP4(set)
	if err != nil {
		return satellite.Satellite{}, &PropagationError{
			SatelliteID: set.SatelliteID,
			At:          set.Epoch,
			Reason:      err.Error(),
		}
	}

	next := &sgp4Cache{sats: make(map[uint32]sgp4Entry, len(cur.sats)+1)}
	for id, e := range cur.sats {
		next.sats[id] = e
	}
	next.sats[set.SatelliteID] = sgp4Entry{epoch: set.Epoch, sat: sat}
	p.cache.Store(next)

	return sat, nil
}
