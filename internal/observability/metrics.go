// Package observability exposes simulation metrics in Prometheus
// format.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lordpba/AEON/internal/engine"
	"github.com/lordpba/AEON/internal/events"
)

// Collector bundles the simulation's Prometheus metrics. It subscribes
// to the engine as a listener: counters advance per tick and per event,
// and the state gauges refresh from the snapshot each tick carries.
type Collector struct {
	registry *prometheus.Registry

	ticks     prometheus.Counter
	eventsVec *prometheus.CounterVec
	shortages *prometheus.CounterVec

	sol           prometheus.Gauge
	overallHealth prometheus.Gauge
	resourceQty   *prometheus.GaugeVec
	componentHP   *prometheus.GaugeVec
	queueDepth    prometheus.Gauge
}

// NewCollector registers the simulation metrics on a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "aeon_ticks_total",
			Help: "Total simulation ticks processed.",
		}),
		eventsVec: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aeon_events_total",
			Help: "Total events generated, labeled by category and severity.",
		}, []string{"category", "severity"}),
		shortages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aeon_shortages_total",
			Help: "Total consume passes that ran a resource dry, labeled by kind.",
		}, []string{"kind"}),
		sol: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aeon_sol",
			Help: "Current simulated time in sols.",
		}),
		overallHealth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aeon_overall_health",
			Help: "Weighted average component health, 0 to 100.",
		}),
		resourceQty: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aeon_resource_quantity",
			Help: "Current resource stock, labeled by kind.",
		}, []string{"kind"}),
		componentHP: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aeon_component_health",
			Help: "Current component health, labeled by component id.",
		}, []string{"component"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aeon_repair_queue_depth",
			Help: "Number of pending repair tasks.",
		}),
	}
}

// OnTick implements engine.Listener.
func (c *Collector) OnTick(s engine.TickSummary) {
	c.ticks.Inc()
	for _, sh := range s.Shortages {
		c.shortages.WithLabelValues(string(sh.Kind)).Inc()
	}
	c.UpdateSnapshot(s.State)
}

// OnEvent implements engine.Listener.
func (c *Collector) OnEvent(e events.Event) {
	c.eventsVec.WithLabelValues(string(e.Category), e.Severity.String()).Inc()
}

// UpdateSnapshot refreshes the per-resource and per-component gauges
// from a full state snapshot.
func (c *Collector) UpdateSnapshot(snap engine.Snapshot) {
	c.sol.Set(snap.Clock.Sol)
	c.overallHealth.Set(snap.OverallHealth)
	for _, r := range snap.Resources {
		c.resourceQty.WithLabelValues(string(r.Kind)).Set(r.Quantity)
	}
	for _, comp := range snap.Components {
		c.componentHP.WithLabelValues(comp.ID).Set(comp.Health)
	}
	c.queueDepth.Set(float64(len(snap.Queue)))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
