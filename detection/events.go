package detection

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/constellation-handover/model"
)

// Default trigger parameters. RSRP events follow common NTN measurement
// profiles; D2 distances are measured to the moving reference location.
const (
	DefaultRSRPThresholdDBm  = -106.0
	DefaultHysteresisDB      = 2.0
	DefaultRSRPTimeToTrigger = 160 * time.Millisecond

	DefaultD2Threshold1M   = 1_500_000.0
	DefaultD2Threshold2M   = 1_200_000.0
	DefaultD2HysteresisM   = 50_000.0
	DefaultD2TimeToTrigger = 320 * time.Millisecond
)

// A4Config parameterizes the "neighbour becomes better than threshold"
// event. Offsets are added to the neighbour measurement before comparison.
type A4Config struct {
	ThresholdDBm  float64
	OffsetFreqDB  float64
	OffsetCellDB  float64
	HysteresisDB  float64
	TimeToTrigger time.Duration
}

func (c A4Config) enter(_, cand model.PropagatedState) bool {
	return cand.RSRPDBm+c.OffsetFreqDB+c.OffsetCellDB-c.HysteresisDB > c.ThresholdDBm
}

func (c A4Config) leave(_, cand model.PropagatedState) bool {
	return cand.RSRPDBm+c.OffsetFreqDB+c.OffsetCellDB+c.HysteresisDB < c.ThresholdDBm
}

// A5Config parameterizes the "serving worse than threshold1 and neighbour
// better than threshold2" event.
type A5Config struct {
	Threshold1DBm float64
	Threshold2DBm float64
	OffsetFreqDB  float64
	OffsetCellDB  float64
	HysteresisDB  float64
	TimeToTrigger time.Duration
}

func (c A5Config) enter(serving, cand model.PropagatedState) bool {
	return serving.RSRPDBm+c.HysteresisDB < c.Threshold1DBm &&
		cand.RSRPDBm+c.OffsetFreqDB+c.OffsetCellDB-c.HysteresisDB > c.Threshold2DBm
}

func (c A5Config) leave(serving, cand model.PropagatedState) bool {
	return serving.RSRPDBm-c.HysteresisDB > c.Threshold1DBm ||
		cand.RSRPDBm+c.OffsetFreqDB+c.OffsetCellDB+c.HysteresisDB < c.Threshold2DBm
}

// D2Config parameterizes the distance-based event: serving moving reference
// location farther than threshold1 while the candidate's is nearer than
// threshold2.
type D2Config struct {
	Threshold1M   float64
	Threshold2M   float64
	HysteresisM   float64
	TimeToTrigger time.Duration
}

func (c D2Config) enter(serving, cand model.PropagatedState) bool {
	return serving.MRLDistanceM-c.HysteresisM > c.Threshold1M &&
		cand.MRLDistanceM+c.HysteresisM < c.Threshold2M
}

func (c D2Config) leave(serving, cand model.PropagatedState) bool {
	return serving.MRLDistanceM+c.HysteresisM < c.Threshold1M ||
		cand.MRLDistanceM-c.HysteresisM > c.Threshold2M
}

// Config bundles per-kind trigger parameters for one detection run.
type Config struct {
	A4 A4Config
	A5 A5Config
	D2 D2Config

	// Workers bounds the per-pair fan-out; zero picks a sensible width.
	Workers int
}

// DefaultConfig returns trigger parameters matching the default profiles.
func DefaultConfig() Config {
	return Config{
		A4: A4Config{
			ThresholdDBm:  DefaultRSRPThresholdDBm,
			HysteresisDB:  DefaultHysteresisDB,
			TimeToTrigger: DefaultRSRPTimeToTrigger,
		},
		A5: A5Config{
			Threshold1DBm: DefaultRSRPThresholdDBm,
			Threshold2DBm: DefaultRSRPThresholdDBm,
			HysteresisDB:  DefaultHysteresisDB,
			TimeToTrigger: DefaultRSRPTimeToTrigger,
		},
		D2: D2Config{
			Threshold1M:   DefaultD2Threshold1M,
			Threshold2M:   DefaultD2Threshold2M,
			HysteresisM:   DefaultD2HysteresisM,
			TimeToTrigger: DefaultD2TimeToTrigger,
		},
	}
}

// conditions is the kind-erased view the pair machine runs on.
type conditions struct {
	ttt   time.Duration
	enter func(serving, cand model.PropagatedState) bool
	leave func(serving, cand model.PropagatedState) bool
}

func (c Config) conditionsFor(kind model.EventKind) (conditions, error) {
	switch kind {
	case model.EventA4:
		return conditions{ttt: c.A4.TimeToTrigger, enter: c.A4.enter, leave: c.A4.leave}, nil
	case model.EventA5:
		return conditions{ttt: c.A5.TimeToTrigger, enter: c.A5.enter, leave: c.A5.leave}, nil
	case model.EventD2:
		return conditions{ttt: c.D2.TimeToTrigger, enter: c.D2.enter, leave: c.D2.leave}, nil
	default:
		return conditions{}, fmt.Errorf("detection: unknown event kind %d", kind)
	}
}

// metricsFor captures the measurements relevant to the kind at commit time.
// Fields irrelevant to the kind stay zero.
func metricsFor(kind model.EventKind, serving, cand model.PropagatedState, at time.Time) model.EventMetrics {
	m := model.EventMetrics{At: at}
	switch kind {
	case model.EventA4:
		m.CandidateRSRPDBm = cand.RSRPDBm
	case model.EventA5:
		m.ServingRSRPDBm = serving.RSRPDBm
		m.CandidateRSRPDBm = cand.RSRPDBm
	case model.EventD2:
		m.ServingMRLDistM = serving.MRLDistanceM
		m.CandidateMRLDistM = cand.MRLDistanceM
	}
	return m
}
