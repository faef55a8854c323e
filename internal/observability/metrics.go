package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineCollector bundles Prometheus metrics for pipeline runs and provides
// a ready-to-serve /metrics handler.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	PhaseDurations      *prometheus.HistogramVec
	PropagationFailures *prometheus.CounterVec
	EventsDetected      *prometheus.CounterVec

	SatellitesPropagated prometheus.Counter
	MissingSamples       prometheus.Counter

	PoolSize    *prometheus.GaugeVec
	VisibleMin  *prometheus.GaugeVec
	VisibleMean *prometheus.GaugeVec
}

// NewPipelineCollector registers pipeline Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	phases := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_phase_duration_seconds",
		Help:    "Duration of each pipeline phase in seconds, labeled by phase name.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"phase"})
	phases, err := registerHistogramVec(reg, phases, "pipeline_phase_duration_seconds")
	if err != nil {
		return nil, err
	}

	propFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_propagation_failures_total",
		Help: "Total number of per-satellite propagation failures, labeled by reason.",
	}, []string{"reason"})
	propFailures, err = registerCounterVec(reg, propFailures, "pipeline_propagation_failures_total")
	if err != nil {
		return nil, err
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_events_detected_total",
		Help: "Total number of handover events detected, labeled by event kind.",
	}, []string{"kind"})
	events, err = registerCounterVec(reg, events, "pipeline_events_detected_total")
	if err != nil {
		return nil, err
	}

	propagated, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_satellites_propagated_total",
		Help: "Total number of satellites successfully propagated across all runs.",
	}), "pipeline_satellites_propagated_total")
	if err != nil {
		return nil, err
	}
	missing, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_missing_samples_total",
		Help: "Total number of grid samples skipped by the detector for missing or stale kinematics.",
	}), "pipeline_missing_samples_total")
	if err != nil {
		return nil, err
	}

	poolSize := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_pool_size",
		Help: "Size of the most recent selection pool, labeled by constellation.",
	}, []string{"constellation"})
	poolSize, err = registerGaugeVec(reg, poolSize, "pipeline_pool_size")
	if err != nil {
		return nil, err
	}
	visibleMin := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_visible_min",
		Help: "Minimum simultaneously-visible pool members in the most recent coverage window.",
	}, []string{"constellation"})
	visibleMin, err = registerGaugeVec(reg, visibleMin, "pipeline_visible_min")
	if err != nil {
		return nil, err
	}
	visibleMean := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_visible_mean",
		Help: "Mean simultaneously-visible pool members in the most recent coverage window.",
	}, []string{"constellation"})
	visibleMean, err = registerGaugeVec(reg, visibleMean, "pipeline_visible_mean")
	if err != nil {
		return nil, err
	}

	return &PipelineCollector{
		gatherer:             gatherer,
		PhaseDurations:       phases,
		PropagationFailures:  propFailures,
		EventsDetected:       events,
		SatellitesPropagated: propagated,
		MissingSamples:       missing,
		PoolSize:             poolSize,
		VisibleMin:           visibleMin,
		VisibleMean:          visibleMean,
	}, nil
}

// ObservePhase records one phase duration measurement.
func (c *PipelineCollector) ObservePhase(phase string, d time.Duration) {
	if c == nil || c.PhaseDurations == nil {
		return
	}
	c.PhaseDurations.WithLabelValues(phase).Observe(d.Seconds())
}

// AddPropagated counts satellites that produced a full propagated series.
func (c *PipelineCollector) AddPropagated(n int) {
	if c == nil || c.SatellitesPropagated == nil || n <= 0 {
		return
	}
	c.SatellitesPropagated.Add(float64(n))
}

// AddPropagationFailures counts per-satellite propagation failures by reason.
func (c *PipelineCollector) AddPropagationFailures(reason string, n int) {
	if c == nil || c.PropagationFailures == nil || n <= 0 {
		return
	}
	c.PropagationFailures.WithLabelValues(reason).Add(float64(n))
}

// SetPool reports the size of the pool a run settled on.
func (c *PipelineCollector) SetPool(constellation string, size int) {
	if c == nil || c.PoolSize == nil {
		return
	}
	c.PoolSize.WithLabelValues(constellation).Set(float64(size))
}

// SetVisible reports the visible-count statistics of the latest coverage report.
func (c *PipelineCollector) SetVisible(constellation string, min int, mean float64) {
	if c == nil {
		return
	}
	if c.VisibleMin != nil {
		c.VisibleMin.WithLabelValues(constellation).Set(float64(min))
	}
	if c.VisibleMean != nil {
		c.VisibleMean.WithLabelValues(constellation).Set(mean)
	}
}

// AddEvents counts detected handover events by kind.
func (c *PipelineCollector) AddEvents(kind string, n int) {
	if c == nil || c.EventsDetected == nil || n <= 0 {
		return
	}
	c.EventsDetected.WithLabelValues(kind).Add(float64(n))
}

// AddMissingSamples counts grid samples the detector skipped.
func (c *PipelineCollector) AddMissingSamples(n int) {
	if c == nil || c.MissingSamples == nil || n <= 0 {
		return
	}
	c.MissingSamples.Add(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PipelineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
