// Package config owns the runtime configuration tree for the pipeline
// binaries: struct defaults layered under an optional YAML file and
// HOPIPE_-prefixed environment overrides.
package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/signalsfoundry/constellation-handover/coverage"
	"github.com/signalsfoundry/constellation-handover/detection"
	"github.com/signalsfoundry/constellation-handover/internal/logging"
	"github.com/signalsfoundry/constellation-handover/internal/observability"
	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/orbit"
	"github.com/signalsfoundry/constellation-handover/pipeline"
	"github.com/signalsfoundry/constellation-handover/selection"
)

// Config is the full configuration tree.
type Config struct {
	Observer PointConfig `koanf:"observer"`

	// Reference is the point moving-reference-location distances are
	// measured from. The zero value means "same as observer".
	Reference PointConfig `koanf:"reference"`

	Sampling       SamplingConfig                 `koanf:"sampling"`
	Constellations map[string]ConstellationConfig `koanf:"constellations" validate:"required,dive"`
	Selection      SelectionConfig                `koanf:"selection"`
	Coverage       CoverageConfig                 `koanf:"coverage"`
	Link           LinkConfig                     `koanf:"link"`
	Propagation    PropagationConfig              `koanf:"propagation"`
	Events         EventsConfig                   `koanf:"events"`
	Logging        LoggingConfig                  `koanf:"logging"`
	Tracing        TracingConfig                  `koanf:"tracing"`
}

// PointConfig is a geodetic ground point.
type PointConfig struct {
	LatitudeDeg  float64 `koanf:"latitude_deg" validate:"gte=-90,lte=90"`
	LongitudeDeg float64 `koanf:"longitude_deg" validate:"gte=-180,lte=180"`
	AltitudeM    float64 `koanf:"altitude_m"`
}

// Point converts to the model coordinate type.
func (p PointConfig) Point() model.GeodeticPoint {
	return model.GeodeticPoint{LatDeg: p.LatitudeDeg, LonDeg: p.LongitudeDeg, AltM: p.AltitudeM}
}

// SamplingConfig shapes the shared time grids.
type SamplingConfig struct {
	Cadence          time.Duration `koanf:"cadence" validate:"gt=0"`
	ValidationWindow time.Duration `koanf:"validation_window" validate:"gt=0"`
	ScoringCadence   time.Duration `koanf:"scoring_cadence" validate:"gt=0"`
}

// TiersConfig names the per-constellation elevation tiers in degrees.
type TiersConfig struct {
	Handover   float64 `koanf:"handover" validate:"gte=0,lt=90"`
	Tracking   float64 `koanf:"tracking" validate:"gte=0,lt=90"`
	Prediction float64 `koanf:"prediction" validate:"gte=0,lt=90"`
}

// ConstellationConfig is the per-constellation tuning block.
type ConstellationConfig struct {
	TargetCount     int           `koanf:"target_count" validate:"gt=0"`
	MinTarget       int           `koanf:"min_target" validate:"gte=0"`
	MaxTarget       int           `koanf:"max_target" validate:"gte=0"`
	MinElevationDeg float64       `koanf:"min_elevation_deg" validate:"gte=0,lt=90"`
	TiersDeg        TiersConfig   `koanf:"tiers_deg"`
	OrbitalPeriod   time.Duration `koanf:"orbital_period" validate:"gt=0"`
	CarrierGHz      float64       `koanf:"carrier_ghz" validate:"gt=0"`
}

// SelectionConfig carries the spacing constraints shared by every
// constellation.
type SelectionConfig struct {
	MinPlaneIntervalDeg float64 `koanf:"min_plane_interval_deg" validate:"gte=0,lte=180"`
	MinRiseIntervalS    float64 `koanf:"min_rise_interval_s" validate:"gte=0"`
	EventKindCap        int     `koanf:"event_kind_cap" validate:"gte=0"`
}

// CoverageConfig carries the validation pass criteria.
type CoverageConfig struct {
	VisibleFloor    int     `koanf:"visible_floor" validate:"gte=0"`
	BandMin         float64 `koanf:"band_min" validate:"gte=0"`
	BandMax         float64 `koanf:"band_max" validate:"gte=0"`
	BelowTargetCap  float64 `koanf:"below_target_cap" validate:"gte=0,lte=1"`
	InBandFloor     float64 `koanf:"in_band_floor" validate:"gte=0,lte=1"`
	MaxAdjustRounds int     `koanf:"max_adjust_rounds" validate:"gte=0"`
}

// LinkConfig parameterizes the received-power estimator.
type LinkConfig struct {
	EIRPDBm              float64 `koanf:"eirp_dbm"`
	UEGainDBi            float64 `koanf:"ue_gain_dbi"`
	PolarizationLossDB   float64 `koanf:"polarization_loss_db" validate:"gte=0"`
	ImplementationLossDB float64 `koanf:"implementation_loss_db" validate:"gte=0"`
	Subcarriers          int     `koanf:"subcarriers" validate:"gt=0"`
	OptimalElevationDeg  float64 `koanf:"optimal_elevation_deg" validate:"gt=0,lte=90"`
	BeamwidthDeg         float64 `koanf:"beamwidth_deg" validate:"gt=0"`
}

// Profile converts to the orbit radio profile.
func (l LinkConfig) Profile() orbit.RadioProfile {
	return orbit.RadioProfile{
		EIRPDBm:              l.EIRPDBm,
		UEGainDBi:            l.UEGainDBi,
		PolarizationLossDB:   l.PolarizationLossDB,
		ImplementationLossDB: l.ImplementationLossDB,
		Subcarriers:          l.Subcarriers,
		OptimalElevationDeg:  l.OptimalElevationDeg,
		BeamwidthDeg:         l.BeamwidthDeg,
	}
}

// PropagationConfig bounds element freshness and worker fan-out.
type PropagationConfig struct {
	MaxElementAge time.Duration `koanf:"max_element_age" validate:"gt=0"`
	Workers       int           `koanf:"workers" validate:"gte=0"`
}

// EventsConfig groups the per-kind trigger parameters.
type EventsConfig struct {
	A4 A4EventConfig `koanf:"a4"`
	A5 A5EventConfig `koanf:"a5"`
	D2 D2EventConfig `koanf:"d2"`
}

type A4EventConfig struct {
	ThresholdDBm  float64       `koanf:"threshold_dbm"`
	OffsetFreqDB  float64       `koanf:"offset_freq_db"`
	OffsetCellDB  float64       `koanf:"offset_cell_db"`
	HysteresisDB  float64       `koanf:"hysteresis_db" validate:"gte=0"`
	TimeToTrigger time.Duration `koanf:"time_to_trigger" validate:"gte=0"`
}

type A5EventConfig struct {
	Threshold1DBm float64       `koanf:"threshold1_dbm"`
	Threshold2DBm float64       `koanf:"threshold2_dbm"`
	OffsetFreqDB  float64       `koanf:"offset_freq_db"`
	OffsetCellDB  float64       `koanf:"offset_cell_db"`
	HysteresisDB  float64       `koanf:"hysteresis_db" validate:"gte=0"`
	TimeToTrigger time.Duration `koanf:"time_to_trigger" validate:"gte=0"`
}

type D2EventConfig struct {
	Threshold1M   float64       `koanf:"threshold1_m" validate:"gte=0"`
	Threshold2M   float64       `koanf:"threshold2_m" validate:"gte=0"`
	HysteresisM   float64       `koanf:"hysteresis_m" validate:"gte=0"`
	TimeToTrigger time.Duration `koanf:"time_to_trigger" validate:"gte=0"`
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Exporter    string  `koanf:"exporter" validate:"oneof=stdout otlp otlpgrpc"`
	Endpoint    string  `koanf:"endpoint"`
	SampleRatio float64 `koanf:"sample_ratio" validate:"gte=0,lte=1"`
}

// Default returns the built-in configuration: a Taipei-area ground observer
// watching the Starlink and OneWeb shells.
func Default() *Config {
	return &Config{
		Observer: PointConfig{
			LatitudeDeg:  24.9441667,
			LongitudeDeg: 121.3713889,
			AltitudeM:    35,
		},
		Sampling: SamplingConfig{
			Cadence:          30 * time.Second,
			ValidationWindow: 24 * time.Hour,
			ScoringCadence:   30 * time.Second,
		},
		Constellations: map[string]ConstellationConfig{
			model.ConstellationStarlink: {
				TargetCount:     25,
				MinTarget:       20,
				MaxTarget:       30,
				MinElevationDeg: 10,
				TiersDeg:        TiersConfig{Handover: 15, Tracking: 10, Prediction: 5},
				OrbitalPeriod:   96 * time.Minute,
				CarrierGHz:      12.5,
			},
			model.ConstellationOneWeb: {
				TargetCount:     15,
				MinTarget:       10,
				MaxTarget:       20,
				MinElevationDeg: 8,
				TiersDeg:        TiersConfig{Handover: 10, Tracking: 7, Prediction: 4},
				OrbitalPeriod:   109 * time.Minute,
				CarrierGHz:      12.75,
			},
		},
		Selection: SelectionConfig{
			MinPlaneIntervalDeg: selection.DefaultMinPlaneIntervalDeg,
			MinRiseIntervalS:    selection.DefaultMinRiseIntervalS,
			EventKindCap:        selection.DefaultEventKindCap,
		},
		Coverage: CoverageConfig{
			VisibleFloor:    coverage.DefaultCriteria.VisibleFloor,
			BandMin:         coverage.DefaultCriteria.BandMin,
			BandMax:         coverage.DefaultCriteria.BandMax,
			BelowTargetCap:  coverage.DefaultCriteria.BelowTargetCap,
			InBandFloor:     coverage.DefaultCriteria.InBandFloor,
			MaxAdjustRounds: coverage.DefaultMaxAdjustRounds,
		},
		Link: LinkConfig{
			EIRPDBm:              78,
			UEGainDBi:            25,
			PolarizationLossDB:   0.5,
			ImplementationLossDB: 2,
			Subcarriers:          1200,
			OptimalElevationDeg:  90,
			BeamwidthDeg:         120,
		},
		Propagation: PropagationConfig{
			MaxElementAge: orbit.DefaultMaxElementAge,
		},
		Events: EventsConfig{
			A4: A4EventConfig{
				ThresholdDBm:  detection.DefaultRSRPThresholdDBm,
				HysteresisDB:  detection.DefaultHysteresisDB,
				TimeToTrigger: detection.DefaultRSRPTimeToTrigger,
			},
			A5: A5EventConfig{
				Threshold1DBm: detection.DefaultRSRPThresholdDBm,
				Threshold2DBm: detection.DefaultRSRPThresholdDBm,
				HysteresisDB:  detection.DefaultHysteresisDB,
				TimeToTrigger: detection.DefaultRSRPTimeToTrigger,
			},
			D2: D2EventConfig{
				Threshold1M:   detection.DefaultD2Threshold1M,
				Threshold2M:   detection.DefaultD2Threshold2M,
				HysteresisM:   detection.DefaultD2HysteresisM,
				TimeToTrigger: detection.DefaultD2TimeToTrigger,
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{Exporter: "stdout", SampleRatio: 1.0},
	}
}

// Validate applies the struct tags plus the cross-field rules the tag
// language cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for tag, cc := range c.Constellations {
		if cc.MinTarget > cc.TargetCount {
			return fmt.Errorf("config: constellation %s: min_target %d above target_count %d",
				tag, cc.MinTarget, cc.TargetCount)
		}
		if cc.MaxTarget > 0 && cc.MaxTarget < cc.TargetCount {
			return fmt.Errorf("config: constellation %s: max_target %d below target_count %d",
				tag, cc.MaxTarget, cc.TargetCount)
		}
	}
	if c.Coverage.BandMax < c.Coverage.BandMin {
		return fmt.Errorf("config: coverage band [%g, %g] inverted",
			c.Coverage.BandMin, c.Coverage.BandMax)
	}
	if c.Events.D2.Threshold2M > c.Events.D2.Threshold1M {
		return fmt.Errorf("config: d2 threshold2 %g above threshold1 %g",
			c.Events.D2.Threshold2M, c.Events.D2.Threshold1M)
	}
	return nil
}

// PropagatorOptions assembles the orbit propagator options.
func (c *Config) PropagatorOptions() orbit.Options {
	rf := make(map[string]orbit.ConstellationRF, len(c.Constellations))
	for tag, cc := range c.Constellations {
		rf[tag] = orbit.ConstellationRF{
			CarrierGHz:      cc.CarrierGHz,
			MinElevationDeg: cc.MinElevationDeg,
		}
	}
	return orbit.Options{
		Observer:       c.Observer.Point(),
		Reference:      c.Reference.Point(),
		Radio:          c.Link.Profile(),
		MaxElementAge:  c.Propagation.MaxElementAge,
		Constellations: rf,
	}
}

// SelectorOptions assembles the selector options for one constellation.
func (c *Config) SelectorOptions(tag string) selection.SelectorOptions {
	cc := c.Constellations[tag]
	return selection.SelectorOptions{
		TargetCount:         cc.TargetCount,
		MinTarget:           cc.MinTarget,
		MaxTarget:           cc.MaxTarget,
		MinPlaneIntervalDeg: c.Selection.MinPlaneIntervalDeg,
		MinRiseIntervalS:    c.Selection.MinRiseIntervalS,
		EventKindCap:        c.Selection.EventKindCap,
	}
}

// CoverageOptions assembles the validation options for one constellation.
func (c *Config) CoverageOptions(tag string) coverage.Options {
	tiers := coverage.DefaultTiers
	if cc, ok := c.Constellations[tag]; ok {
		tiers = []coverage.Tier{
			{Name: "handover", MinElevationDeg: cc.TiersDeg.Handover},
			{Name: "tracking", MinElevationDeg: cc.TiersDeg.Tracking},
			{Name: "prediction", MinElevationDeg: cc.TiersDeg.Prediction},
		}
	}
	return coverage.Options{
		Window:  c.Sampling.ValidationWindow,
		Cadence: c.Sampling.Cadence,
		Criteria: coverage.Criteria{
			VisibleFloor:   c.Coverage.VisibleFloor,
			BandMin:        c.Coverage.BandMin,
			BandMax:        c.Coverage.BandMax,
			BelowTargetCap: c.Coverage.BelowTargetCap,
			InBandFloor:    c.Coverage.InBandFloor,
		},
		Tiers:           tiers,
		MaxAdjustRounds: c.Coverage.MaxAdjustRounds,
		Workers:         c.Propagation.Workers,
	}
}

// DetectionConfig assembles the detector trigger configuration.
func (c *Config) DetectionConfig() detection.Config {
	return detection.Config{
		A4: detection.A4Config{
			ThresholdDBm:  c.Events.A4.ThresholdDBm,
			OffsetFreqDB:  c.Events.A4.OffsetFreqDB,
			OffsetCellDB:  c.Events.A4.OffsetCellDB,
			HysteresisDB:  c.Events.A4.HysteresisDB,
			TimeToTrigger: c.Events.A4.TimeToTrigger,
		},
		A5: detection.A5Config{
			Threshold1DBm: c.Events.A5.Threshold1DBm,
			Threshold2DBm: c.Events.A5.Threshold2DBm,
			OffsetFreqDB:  c.Events.A5.OffsetFreqDB,
			OffsetCellDB:  c.Events.A5.OffsetCellDB,
			HysteresisDB:  c.Events.A5.HysteresisDB,
			TimeToTrigger: c.Events.A5.TimeToTrigger,
		},
		D2: detection.D2Config{
			Threshold1M:   c.Events.D2.Threshold1M,
			Threshold2M:   c.Events.D2.Threshold2M,
			HysteresisM:   c.Events.D2.HysteresisM,
			TimeToTrigger: c.Events.D2.TimeToTrigger,
		},
		Workers: c.Propagation.Workers,
	}
}

// RunRequest assembles a single-constellation pipeline request. Per-tag
// tuning (target counts, tiers, orbital period) means the binaries issue one
// run per configured constellation.
func (c *Config) RunRequest(tag string) pipeline.RunRequest {
	return pipeline.RunRequest{
		Constellations: []string{tag},
		Window:         c.Sampling.ValidationWindow,
		Cadence:        c.Sampling.Cadence,
		ScoringWindow:  c.Constellations[tag].OrbitalPeriod,
		ScoringCadence: c.Sampling.ScoringCadence,
		MaxElementAge:  c.Propagation.MaxElementAge,
		Selector:       c.SelectorOptions(tag),
		Coverage:       c.CoverageOptions(tag),
		Detection:      c.DetectionConfig(),
	}
}

// Tags lists the configured constellation tags in stable order.
func (c *Config) Tags() []string {
	tags := make([]string, 0, len(c.Constellations))
	for tag := range c.Constellations {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// LoggerConfig converts the logging block.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}

// TracerConfig converts the tracing block for the named service.
func (c *Config) TracerConfig(service string) observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: service,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}
