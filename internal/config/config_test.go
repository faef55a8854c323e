package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/constellation-handover/coverage"
	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/orbit"
	"github.com/signalsfoundry/constellation-handover/selection"
)

// clearEnv keeps the loader from picking up configuration from the host
// environment.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.InDelta(t, 24.9441667, cfg.Observer.LatitudeDeg, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Sampling.Cadence)
	assert.Equal(t, 24*time.Hour, cfg.Sampling.ValidationWindow)

	starlink := cfg.Constellations[model.ConstellationStarlink]
	assert.Equal(t, 25, starlink.TargetCount)
	assert.Equal(t, 96*time.Minute, starlink.OrbitalPeriod)
	assert.Equal(t, 12.5, starlink.CarrierGHz)

	oneweb := cfg.Constellations[model.ConstellationOneWeb]
	assert.Equal(t, 15, oneweb.TargetCount)
	assert.Equal(t, 12.75, oneweb.CarrierGHz)
	assert.Equal(t, 8.0, oneweb.MinElevationDeg)

	assert.Equal(t, -106.0, cfg.Events.A4.ThresholdDBm)
	assert.Equal(t, 320*time.Millisecond, cfg.Events.D2.TimeToTrigger)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
}

func TestLoadDefaultsOnly(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, []string{model.ConstellationOneWeb, model.ConstellationStarlink}, cfg.Tags())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "handover.yaml")
	doc := `
observer:
  latitude_deg: 52.52
  longitude_deg: 13.405
  altitude_m: 34
sampling:
  cadence: 10s
constellations:
  starlink:
    target_count: 30
    max_target: 40
coverage:
  band_max: 14
events:
  d2:
    time_to_trigger: 640ms
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 52.52, cfg.Observer.LatitudeDeg)
	assert.Equal(t, 13.405, cfg.Observer.LongitudeDeg)
	assert.Equal(t, 10*time.Second, cfg.Sampling.Cadence)
	assert.Equal(t, 14.0, cfg.Coverage.BandMax)
	assert.Equal(t, 640*time.Millisecond, cfg.Events.D2.TimeToTrigger)

	// Partial constellation blocks merge over the per-tag defaults.
	starlink := cfg.Constellations[model.ConstellationStarlink]
	assert.Equal(t, 30, starlink.TargetCount)
	assert.Equal(t, 40, starlink.MaxTarget)
	assert.Equal(t, 20, starlink.MinTarget)
	assert.Equal(t, 12.5, starlink.CarrierGHz)

	// Untouched sections keep their defaults.
	assert.Equal(t, 15, cfg.Constellations[model.ConstellationOneWeb].TargetCount)
	assert.Equal(t, 78.0, cfg.Link.EIRPDBm)
	assert.Equal(t, 24*time.Hour, cfg.Sampling.ValidationWindow)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOPIPE_OBSERVER_LATITUDE_DEG", "35.6")
	t.Setenv("HOPIPE_SAMPLING_CADENCE", "15s")
	t.Setenv("HOPIPE_EVENTS_A4_THRESHOLD_DBM", "-110")
	t.Setenv("HOPIPE_CONSTELLATIONS_STARLINK_TARGET_COUNT", "28")
	t.Setenv("HOPIPE_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 35.6, cfg.Observer.LatitudeDeg)
	assert.Equal(t, 15*time.Second, cfg.Sampling.Cadence)
	assert.Equal(t, -110.0, cfg.Events.A4.ThresholdDBm)
	assert.Equal(t, 28, cfg.Constellations[model.ConstellationStarlink].TargetCount)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOutranksFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOPIPE_SAMPLING_CADENCE", "5s")

	path := filepath.Join(t.TempDir(), "handover.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sampling:\n  cadence: 10s\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Sampling.Cadence)
}

func TestLoadLogEnvParity(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("HOPIPE_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadExplicitPathMissing(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load")
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOPIPE_LOGGING_LEVEL", "verbose")

	_, err := Load("")
	require.Error(t, err)
}

func TestValidateCrossField(t *testing.T) {
	cfg := Default()
	cc := cfg.Constellations[model.ConstellationStarlink]
	cc.MinTarget = cc.TargetCount + 1
	cfg.Constellations[model.ConstellationStarlink] = cc

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_target")

	cfg = Default()
	cfg.Events.D2.Threshold2M = cfg.Events.D2.Threshold1M + 1
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "d2")

	cfg = Default()
	cfg.Coverage.BandMax = cfg.Coverage.BandMin - 1
	require.Error(t, cfg.Validate())
}

func TestEnvToPath(t *testing.T) {
	cases := map[string]string{
		"HOPIPE_OBSERVER_LATITUDE_DEG":                "observer.latitude_deg",
		"HOPIPE_SAMPLING_VALIDATION_WINDOW":           "sampling.validation_window",
		"HOPIPE_EVENTS_A4_THRESHOLD_DBM":              "events.a4.threshold_dbm",
		"HOPIPE_EVENTS_D2_TIME_TO_TRIGGER":            "events.d2.time_to_trigger",
		"HOPIPE_CONSTELLATIONS_STARLINK_TARGET_COUNT": "constellations.starlink.target_count",
		"HOPIPE_LOGGING_LEVEL":                        "logging.level",
		"HOPIPE_TRACING_SAMPLE_RATIO":                 "tracing.sample_ratio",
	}
	for in, want := range cases {
		assert.Equal(t, want, envToPath(in), in)
	}
}

func TestPropagatorOptions(t *testing.T) {
	cfg := Default()
	opts := cfg.PropagatorOptions()

	assert.Equal(t, cfg.Observer.Point(), opts.Observer)
	assert.Equal(t, model.GeodeticPoint{}, opts.Reference)
	assert.Equal(t, orbit.DefaultRadioProfile(), opts.Radio)
	assert.Equal(t, orbit.DefaultMaxElementAge, opts.MaxElementAge)

	require.Contains(t, opts.Constellations, model.ConstellationStarlink)
	assert.Equal(t, orbit.ConstellationRF{CarrierGHz: 12.5, MinElevationDeg: 10},
		opts.Constellations[model.ConstellationStarlink])
	assert.Equal(t, orbit.ConstellationRF{CarrierGHz: 12.75, MinElevationDeg: 8},
		opts.Constellations[model.ConstellationOneWeb])
}

func TestSelectorAndCoverageOptions(t *testing.T) {
	cfg := Default()

	sel := cfg.SelectorOptions(model.ConstellationStarlink)
	assert.Equal(t, selection.SelectorOptions{
		TargetCount:         25,
		MinTarget:           20,
		MaxTarget:           30,
		MinPlaneIntervalDeg: 15,
		MinRiseIntervalS:    60,
		EventKindCap:        3,
	}, sel)

	cov := cfg.CoverageOptions(model.ConstellationOneWeb)
	assert.Equal(t, 24*time.Hour, cov.Window)
	assert.Equal(t, 30*time.Second, cov.Cadence)
	assert.Equal(t, coverage.DefaultCriteria, cov.Criteria)
	assert.Equal(t, coverage.DefaultMaxAdjustRounds, cov.MaxAdjustRounds)
	require.Len(t, cov.Tiers, 3)
	assert.Equal(t, coverage.Tier{Name: "handover", MinElevationDeg: 10}, cov.Tiers[0])
	assert.Equal(t, coverage.Tier{Name: "tracking", MinElevationDeg: 7}, cov.Tiers[1])
	assert.Equal(t, coverage.Tier{Name: "prediction", MinElevationDeg: 4}, cov.Tiers[2])

	unknown := cfg.CoverageOptions("kuiper")
	assert.Equal(t, coverage.DefaultTiers, unknown.Tiers)
}

func TestRunRequestAssembly(t *testing.T) {
	cfg := Default()
	req := cfg.RunRequest(model.ConstellationStarlink)

	assert.Equal(t, []string{model.ConstellationStarlink}, req.Constellations)
	assert.Equal(t, 24*time.Hour, req.Window)
	assert.Equal(t, 30*time.Second, req.Cadence)
	assert.Equal(t, 96*time.Minute, req.ScoringWindow)
	assert.Equal(t, 30*time.Second, req.ScoringCadence)
	assert.Equal(t, orbit.DefaultMaxElementAge, req.MaxElementAge)
	assert.Equal(t, 25, req.Selector.TargetCount)
	assert.Equal(t, -106.0, req.Detection.A4.ThresholdDBm)
	assert.Equal(t, 1_200_000.0, req.Detection.D2.Threshold2M)
}
