// Command handover-pipeline runs the selection and event-detection pipeline
// once per configured constellation and writes the run artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalsfoundry/constellation-handover/catalog"
	"github.com/signalsfoundry/constellation-handover/internal/config"
	"github.com/signalsfoundry/constellation-handover/internal/ingest"
	"github.com/signalsfoundry/constellation-handover/internal/logging"
	"github.com/signalsfoundry/constellation-handover/internal/observability"
	"github.com/signalsfoundry/constellation-handover/internal/report"
	"github.com/signalsfoundry/constellation-handover/orbit"
	"github.com/signalsfoundry/constellation-handover/pipeline"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration (CONFIG_PATH and defaults apply when empty)")
	tlePath := flag.String("tle", "", "Path to a 3-line-group TLE file to seed the catalog")
	elementsPath := flag.String("elements", "", "Path to a JSON element dump to seed the catalog")
	defaultTag := flag.String("tag", "", "Constellation tag for element sets whose name identifies none")
	outDir := flag.String("out", "artifacts", "Directory the run artifacts are written to")
	startAt := flag.String("start", "", "Run start in RFC3339; empty means now")
	only := flag.String("only", "", "Comma-separated constellation tags to run (default: all configured)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.String("error", err.Error()))
		os.Exit(1)
	}
	log = logging.New(cfg.LoggerConfig())

	shutdown, err := observability.InitTracing(ctx, cfg.TracerConfig("handover-pipeline"), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	collector, err := observability.NewPipelineCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}

	cat := catalog.New()
	if err := seedCatalog(ctx, cat, *tlePath, *elementsPath, *defaultTag, log); err != nil {
		log.Error(ctx, "failed to seed catalog", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if cat.Size() == 0 {
		log.Error(ctx, "catalog is empty; provide -tle or -elements")
		os.Exit(1)
	}
	log.Info(ctx, "catalog seeded", logging.Int("elements", cat.Size()))

	start, err := parseStart(*startAt)
	if err != nil {
		log.Error(ctx, "invalid -start", logging.String("error", err.Error()))
		os.Exit(1)
	}

	tags, err := runTags(cfg, *only)
	if err != nil {
		log.Error(ctx, "invalid -only", logging.String("error", err.Error()))
		os.Exit(1)
	}

	pipe, err := pipeline.New(pipeline.Options{
		Catalog:    cat,
		Propagator: orbit.NewPropagator(cfg.PropagatorOptions()),
		Logger:     log,
		Metrics:    collector,
		Workers:    cfg.Propagation.Workers,
	})
	if err != nil {
		log.Error(ctx, "failed to build pipeline", logging.String("error", err.Error()))
		os.Exit(1)
	}

	failures := 0
	for _, tag := range tags {
		req := cfg.RunRequest(tag)
		req.Start = start

		res, err := pipe.Run(ctx, req)
		if err != nil {
			log.Error(ctx, "run failed",
				logging.String("constellation", tag),
				logging.String("error", err.Error()))
			failures++
			continue
		}

		dir := filepath.Join(*outDir, tag)
		paths, err := report.WriteAll(dir, res)
		if err != nil {
			log.Error(ctx, "failed to write artifacts",
				logging.String("constellation", tag),
				logging.String("error", err.Error()))
			failures++
			continue
		}

		pool := res.Pools[tag]
		rep := res.Reports[tag]
		log.Info(ctx, "run complete",
			logging.String("constellation", tag),
			logging.String("run_id", res.RunID),
			logging.Int("pool_members", pool.Size()),
			logging.Any("coverage_passed", rep.Passed),
			logging.Int("events", len(res.Events)),
			logging.Int("warnings", len(res.Warnings)),
			logging.Duration("elapsed", res.Stats.Elapsed),
			logging.String("artifacts", strings.Join(paths, ",")))
	}

	if failures == len(tags) {
		os.Exit(1)
	}
}

// seedCatalog loads element sets from the given files into the catalog.
func seedCatalog(ctx context.Context, cat *catalog.Catalog, tlePath, elementsPath, defaultTag string, log logging.Logger) error {
	if tlePath != "" {
		sets, err := ingest.LoadTLEFile(ctx, tlePath, ingest.Options{
			Constellation: defaultTag,
			Log:           log,
		})
		if err != nil {
			return err
		}
		for _, set := range sets {
			cat.Upsert(set)
		}
		log.Info(ctx, "loaded TLE file",
			logging.String("path", tlePath), logging.Int("count", len(sets)))
	}

	if elementsPath != "" {
		sets, err := ingest.LoadElementsJSON(elementsPath, defaultTag)
		if err != nil {
			return err
		}
		for _, set := range sets {
			cat.Upsert(set)
		}
		log.Info(ctx, "loaded element dump",
			logging.String("path", elementsPath), logging.Int("count", len(sets)))
	}

	return nil
}

func parseStart(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// runTags resolves the -only flag against the configured constellations.
func runTags(cfg *config.Config, only string) ([]string, error) {
	if only == "" {
		return cfg.Tags(), nil
	}
	var tags []string
	for _, tag := range strings.Split(only, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := cfg.Constellations[tag]; !ok {
			return nil, fmt.Errorf("constellation %q is not configured", tag)
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("no constellation tags given")
	}
	return tags, nil
}
