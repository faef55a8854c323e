// Command coverage-daemon keeps re-running the pipeline: on a fixed
// interval, and immediately when a catalog refresh supersedes element sets.
// Prometheus metrics are served over HTTP.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
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
	tlePath := flag.String("tle", "", "Path to a 3-line-group TLE file backing the catalog")
	elementsPath := flag.String("elements", "", "Path to a JSON element dump backing the catalog")
	defaultTag := flag.String("tag", "", "Constellation tag for element sets whose name identifies none")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	interval := flag.Duration("interval", 15*time.Minute, "Fixed re-run interval")
	refresh := flag.Duration("refresh", 10*time.Minute, "Catalog file re-read interval (0 disables)")
	outDir := flag.String("out", "", "Artifact directory per run (empty disables artifact writing)")
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

	shutdown, err := observability.InitTracing(ctx, cfg.TracerConfig("coverage-daemon"), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	pipeMetrics, err := observability.NewPipelineCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise pipeline metrics", logging.String("error", err.Error()))
		os.Exit(1)
	}
	daemonMetrics, err := observability.NewDaemonCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise daemon metrics", logging.String("error", err.Error()))
		os.Exit(1)
	}

	metricsSrv := serveMetrics(*metricsAddr, pipeMetrics.Handler(), log)

	cat := catalog.New()
	if err := seedCatalog(ctx, cat, *tlePath, *elementsPath, *defaultTag, log); err != nil {
		log.Error(ctx, "failed to seed catalog", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if cat.Size() == 0 {
		log.Error(ctx, "catalog is empty; provide -tle or -elements")
		os.Exit(1)
	}
	daemonMetrics.SetCatalogSize(cat.Size())

	pipe, err := pipeline.New(pipeline.Options{
		Catalog:    cat,
		Propagator: orbit.NewPropagator(cfg.PropagatorOptions()),
		Logger:     log,
		Metrics:    pipeMetrics,
		Workers:    cfg.Propagation.Workers,
	})
	if err != nil {
		log.Error(ctx, "failed to build pipeline", logging.String("error", err.Error()))
		os.Exit(1)
	}

	d := &daemon{
		cfg:     cfg,
		pipe:    pipe,
		cat:     cat,
		metrics: daemonMetrics,
		log:     log,
		outDir:  *outDir,
	}

	// A superseded element set means the sky changed; re-run promptly
	// instead of waiting out the interval.
	trigger := make(chan struct{}, 1)
	unsubscribe := cat.Subscribe(func(catalog.Event) {
		daemonMetrics.SetCatalogSize(cat.Size())
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var refreshC <-chan time.Time
	if *refresh > 0 && (*tlePath != "" || *elementsPath != "") {
		refreshTicker := time.NewTicker(*refresh)
		defer refreshTicker.Stop()
		refreshC = refreshTicker.C
	}

	log.Info(ctx, "coverage daemon started",
		logging.Duration("interval", *interval),
		logging.Duration("refresh", *refresh),
		logging.Int("elements", cat.Size()))

	d.runAll(ctx)

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-ticker.C:
			d.runAll(ctx)
		case <-trigger:
			d.runAll(ctx)
		case <-refreshC:
			if err := seedCatalog(ctx, cat, *tlePath, *elementsPath, *defaultTag, log); err != nil {
				log.Warn(ctx, "catalog refresh failed", logging.String("error", err.Error()))
			}
		}
	}

	log.Info(context.Background(), "shutting down coverage daemon")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

// daemon bundles what one re-run needs.
type daemon struct {
	cfg     *config.Config
	pipe    *pipeline.Pipeline
	cat     *catalog.Catalog
	metrics *observability.DaemonCollector
	log     logging.Logger
	outDir  string
}

// runAll executes one pipeline run per configured constellation.
func (d *daemon) runAll(ctx context.Context) {
	for _, tag := range d.cfg.Tags() {
		if ctx.Err() != nil {
			return
		}

		req := d.cfg.RunRequest(tag)
		req.Start = time.Now().UTC()

		// Seed a per-run id shared by the daemon's and the pipeline's log lines.
		runCtx, runLog := logging.WithRunLogger(ctx, d.log)

		res, err := d.pipe.Run(runCtx, req)
		if err != nil {
			d.metrics.IncRunFailure()
			runLog.Error(runCtx, "run failed",
				logging.String("constellation", tag),
				logging.String("error", err.Error()))
			continue
		}
		d.metrics.ObserveRun(res.Stats.Elapsed)

		if d.outDir != "" {
			dir := filepath.Join(d.outDir, tag)
			if _, err := report.WriteAll(dir, res); err != nil {
				runLog.Warn(runCtx, "failed to write artifacts",
					logging.String("constellation", tag),
					logging.String("error", err.Error()))
			}
		}

		rep := res.Reports[tag]
		runLog.Info(runCtx, "run complete",
			logging.String("constellation", tag),
			logging.Int("pool_members", res.Pools[tag].Size()),
			logging.Any("coverage_passed", rep.Passed),
			logging.Int("events", len(res.Events)),
			logging.Duration("elapsed", res.Stats.Elapsed))
	}
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	if handler == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// seedCatalog loads element sets from the given files into the catalog.
// Upsert keeps only newer epochs, so re-reads are idempotent.
func seedCatalog(ctx context.Context, cat *catalog.Catalog, tlePath, elementsPath, defaultTag string, log logging.Logger) error {
	if tlePath != "" {
		sets, err := ingest.LoadTLEFile(ctx, tlePath, ingest.Options{
			Constellation: defaultTag,
			Log:           log,
		})
		if err != nil {
			return err
		}
		fresh := 0
		for _, set := range sets {
			if cat.Upsert(set) {
				fresh++
			}
		}
		log.Info(ctx, "loaded TLE file",
			logging.String("path", tlePath),
			logging.Int("count", len(sets)),
			logging.Int("fresh", fresh))
	}

	if elementsPath != "" {
		sets, err := ingest.LoadElementsJSON(elementsPath, defaultTag)
		if err != nil {
			return err
		}
		fresh := 0
		for _, set := range sets {
			if cat.Upsert(set) {
				fresh++
			}
		}
		log.Info(ctx, "loaded element dump",
			logging.String("path", elementsPath),
			logging.Int("count", len(sets)),
			logging.Int("fresh", fresh))
	}

	return nil
}
