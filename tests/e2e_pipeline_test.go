package tests

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/constellation-handover/catalog"
	"github.com/signalsfoundry/constellation-handover/internal/config"
	"github.com/signalsfoundry/constellation-handover/internal/ingest"
	"github.com/signalsfoundry/constellation-handover/internal/logging"
	"github.com/signalsfoundry/constellation-handover/internal/observability"
	"github.com/signalsfoundry/constellation-handover/internal/report"
	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/orbit"
	"github.com/signalsfoundry/constellation-handover/pipeline"
)

// e2eStart matches the epoch of the generated TLEs: day 100.5 of 2024.
var e2eStart = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

const e2eConfig = `
sampling:
  cadence: 30s
  validation_window: 10m
  scoring_cadence: 60s
constellations:
  starlink:
    target_count: 8
    min_target: 2
    max_target: 12
coverage:
  max_adjust_rounds: 1
logging:
  level: error
  format: text
`

type pipelineTestEnv struct {
	cfg  *config.Config
	cat  *catalog.Catalog
	pipe *pipeline.Pipeline
	sets []model.OrbitalElementSet
}

func newPipelineTestEnv(t *testing.T) *pipelineTestEnv {
	t.Helper()
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "handover.yaml")
	if err := os.WriteFile(cfgPath, []byte(e2eConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	tlePath := filepath.Join(dir, "catalog.tle")
	if err := os.WriteFile(tlePath, []byte(starlinkShellTLE()), 0o600); err != nil {
		t.Fatalf("write TLE file: %v", err)
	}
	sets, err := ingest.LoadTLEFile(context.Background(), tlePath, ingest.Options{})
	if err != nil {
		t.Fatalf("ingest.LoadTLEFile: %v", err)
	}
	if len(sets) != 12 {
		t.Fatalf("parsed %d element sets, want 12", len(sets))
	}

	cat := catalog.New()
	for _, set := range sets {
		if !cat.Upsert(set) {
			t.Fatalf("Upsert(%d) rejected a fresh element set", set.SatelliteID)
		}
	}

	metrics, err := observability.NewPipelineCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}

	pipe, err := pipeline.New(pipeline.Options{
		Catalog:    cat,
		Propagator: orbit.NewPropagator(cfg.PropagatorOptions()),
		Logger:     logging.Noop(),
		Metrics:    metrics,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	return &pipelineTestEnv{cfg: cfg, cat: cat, pipe: pipe, sets: sets}
}

func TestPipelineEndToEnd(t *testing.T) {
	env := newPipelineTestEnv(t)

	req := env.cfg.RunRequest(model.ConstellationStarlink)
	req.Start = e2eStart

	res, err := env.pipe.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.RunID == "" {
		t.Fatal("RunID is empty")
	}

	pool, ok := res.Pools[model.ConstellationStarlink]
	if !ok {
		t.Fatal("no starlink pool in result")
	}
	if pool.Size() < 2 || pool.Size() > 12 {
		t.Fatalf("pool size %d outside configured [2, 12]", pool.Size())
	}

	rep, ok := res.Reports[model.ConstellationStarlink]
	if !ok {
		t.Fatal("no starlink coverage report in result")
	}
	if rep.Samples != 21 {
		t.Fatalf("report samples = %d, want 21 for a 10m window at 30s cadence", rep.Samples)
	}

	if res.Stats.Elements != 12 {
		t.Fatalf("stats elements = %d, want 12", res.Stats.Elements)
	}
	for _, phase := range []string{"snapshot", "propagate_scoring", "score", "converge", "propagate_window", "detect", "assemble"} {
		if _, ok := res.Stats.Phases[phase]; !ok {
			t.Fatalf("phase %q missing from stats (got %v)", phase, res.Stats.Phases)
		}
	}

	outDir := filepath.Join(t.TempDir(), "artifacts")
	paths, err := report.WriteAll(outDir, res)
	if err != nil {
		t.Fatalf("report.WriteAll: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("wrote %d artifacts, want 4", len(paths))
	}

	statesRaw, err := os.ReadFile(filepath.Join(outDir, report.StatesFile))
	if err != nil {
		t.Fatalf("read states artifact: %v", err)
	}
	var states struct {
		RunID      string `json:"run_id"`
		Samples    int    `json:"samples"`
		Satellites []struct {
			SatelliteID uint32 `json:"satellite_id"`
		} `json:"satellites"`
	}
	if err := json.Unmarshal(statesRaw, &states); err != nil {
		t.Fatalf("decode states artifact: %v", err)
	}
	if states.RunID != res.RunID {
		t.Fatalf("states run_id = %q, want %q", states.RunID, res.RunID)
	}
	if states.Samples != 21 {
		t.Fatalf("states samples = %d, want 21", states.Samples)
	}
	if len(states.Satellites) != pool.Size() {
		t.Fatalf("states cover %d satellites, want pool size %d", len(states.Satellites), pool.Size())
	}

	csvRaw, err := os.ReadFile(filepath.Join(outDir, report.CoverageFile))
	if err != nil {
		t.Fatalf("read coverage artifact: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvRaw)), "\n")
	if len(lines) != 1+21 {
		t.Fatalf("coverage csv has %d lines, want 22", len(lines))
	}

	summaryRaw, err := os.ReadFile(filepath.Join(outDir, report.SummaryFile))
	if err != nil {
		t.Fatalf("read summary artifact: %v", err)
	}
	if !strings.Contains(string(summaryRaw), "starlink") {
		t.Fatal("summary does not mention the constellation")
	}
}

func TestCatalogRefreshOnlyFiresOnNewEpochs(t *testing.T) {
	env := newPipelineTestEnv(t)

	events := 0
	unsubscribe := env.cat.Subscribe(func(catalog.Event) { events++ })
	defer unsubscribe()

	// Re-upserting the same epochs must not fire.
	for _, set := range env.sets {
		if env.cat.Upsert(set) {
			t.Fatalf("Upsert(%d) accepted a stale epoch", set.SatelliteID)
		}
	}
	if events != 0 {
		t.Fatalf("subscriber fired %d times on unchanged epochs", events)
	}

	fresh := env.sets[0]
	fresh.Epoch = fresh.Epoch.Add(time.Hour)
	if !env.cat.Upsert(fresh) {
		t.Fatal("Upsert rejected a newer epoch")
	}
	if events != 1 {
		t.Fatalf("subscriber fired %d times, want 1", events)
	}
}

// starlinkShellTLE renders twelve satellites on three planes as 3-line TLE
// groups with valid checksums.
func starlinkShellTLE() string {
	var sb strings.Builder
	id := 44000
	for plane := 0; plane < 3; plane++ {
		raan := float64(plane) * 40
		for slot := 0; slot < 4; slot++ {
			anomaly := float64(slot) * 90
			line1 := fmt.Sprintf("1 %05dU 24001A   24100.50000000  .00000000  00000-0  00000-0 0  999", id)
			line2 := fmt.Sprintf("2 %05d %8.4f %8.4f 0001000 %8.4f %8.4f %11.8f    9",
				id, 53.0, raan, 0.0, anomaly, 15.05)
			line1 += fmt.Sprintf("%d", tleChecksum(line1))
			line2 += fmt.Sprintf("%d", tleChecksum(line2))
			fmt.Fprintf(&sb, "STARLINK-%d\n%s\n%s\n", id, line1, line2)
			id++
		}
	}
	return sb.String()
}

func tleChecksum(line string) int {
	sum := 0
	for _, c := range line {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}
