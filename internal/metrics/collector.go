package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Collector owns the Prometheus metrics for the discovery subsystem. It
// uses a private registry so embedding processes control exposure. A nil
// *Collector is valid and turns every method into a no-op, so components
// can run without metrics wired.
type Collector struct {
	logger   *logrus.Logger
	registry *prometheus.Registry

	registeredAgents prometheus.Gauge
	activeAgents     prometheus.Gauge

	discoveryQueries *prometheus.CounterVec
	gameValidations  *prometheus.CounterVec
	reputationSyncs  prometheus.Counter
}

func NewCollector(logger *logrus.Logger) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		logger:   logger,
		registry: registry,

		registeredAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "babylon_registry_agents",
			Help: "Number of agents currently registered with this process",
		}),
		activeAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "babylon_registry_active_agents",
			Help: "Number of registered agents active within the last window",
		}),
		discoveryQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "babylon_discovery_queries_total",
			Help: "Discovery queries served, by source",
		}, []string{"source"}),
		gameValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "babylon_game_validation_total",
			Help: "Game platform endpoint validations, by result",
		}, []string{"result"}),
		reputationSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "babylon_reputation_syncs_total",
			Help: "Reputation feedback submissions pushed to the network",
		}),
	}

	registry.MustRegister(
		c.registeredAgents,
		c.activeAgents,
		c.discoveryQueries,
		c.gameValidations,
		c.reputationSyncs,
	)

	logger.Debug("Metrics collector initialized")

	return c
}

// Registry exposes the private registry for an embedding process to serve.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) SetRegisteredAgents(n int) {
	if c == nil {
		return
	}
	c.registeredAgents.Set(float64(n))
}

func (c *Collector) SetActiveAgents(n int) {
	if c == nil {
		return
	}
	c.activeAgents.Set(float64(n))
}

func (c *Collector) IncDiscoveryQuery(source string) {
	if c == nil {
		return
	}
	c.discoveryQueries.WithLabelValues(source).Inc()
}

func (c *Collector) IncGameValidation(passed bool) {
	if c == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	c.gameValidations.WithLabelValues(result).Inc()
}

func (c *Collector) IncReputationSync() {
	if c == nil {
		return
	}
	c.reputationSyncs.Inc()
}
