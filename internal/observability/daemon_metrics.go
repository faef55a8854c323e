package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DaemonCollector exposes metrics for the long-running coverage daemon.
type DaemonCollector struct {
	gatherer prometheus.Gatherer

	RunDuration prometheus.Histogram
	RunFailures prometheus.Counter
	CatalogSize prometheus.Gauge
	LastRunUnix prometheus.Gauge
}

// NewDaemonCollector registers daemon metrics against the provided registerer.
func NewDaemonCollector(reg prometheus.Registerer) (*DaemonCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "daemon_run_duration_seconds",
		Help:    "Duration of full pipeline runs triggered by the daemon.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
	runHistogram, err := registerHistogram(reg, runHistogram, "daemon_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "daemon_run_failures_total",
		Help: "Cumulative number of pipeline runs that returned an error.",
	})
	failures, err = registerCounter(reg, failures, "daemon_run_failures_total")
	if err != nil {
		return nil, err
	}

	catalogSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "daemon_catalog_elements",
		Help: "Number of element sets currently held by the catalog.",
	})
	catalogSize, err = registerGauge(reg, catalogSize, "daemon_catalog_elements")
	if err != nil {
		return nil, err
	}

	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "daemon_last_run_timestamp_seconds",
		Help: "Unix timestamp of the most recent completed pipeline run.",
	})
	lastRun, err = registerGauge(reg, lastRun, "daemon_last_run_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	return &DaemonCollector{
		gatherer:    gatherer,
		RunDuration: runHistogram,
		RunFailures: failures,
		CatalogSize: catalogSize,
		LastRunUnix: lastRun,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *DaemonCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRun records a completed pipeline run.
func (c *DaemonCollector) ObserveRun(d time.Duration) {
	if c == nil || c.RunDuration == nil {
		return
	}
	c.RunDuration.Observe(d.Seconds())
	if c.LastRunUnix != nil {
		c.LastRunUnix.Set(float64(time.Now().Unix()))
	}
}

// IncRunFailure increments the failed-run counter.
func (c *DaemonCollector) IncRunFailure() {
	if c == nil || c.RunFailures == nil {
		return
	}
	c.RunFailures.Inc()
}

// SetCatalogSize updates the catalog element gauge.
func (c *DaemonCollector) SetCatalogSize(count int) {
	if c == nil || c.CatalogSize == nil {
		return
	}
	c.CatalogSize.Set(float64(count))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
