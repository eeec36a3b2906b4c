// Package metrics exposes doorpin's Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the metric hooks of the relay, input and service
// packages.
type Collector struct {
	decisions      *prometheus.CounterVec
	unlocks        prometheus.Counter
	superseded     prometheus.Counter
	actuatorFaults prometheus.Counter
	deviceFaults   prometheus.Counter
	capturing      prometheus.Gauge
	rateLimited    prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doorpin_access_decisions_total",
			Help: "Access decisions by source and reason.",
		}, []string{"source", "reason"}),
		unlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorpin_unlocks_total",
			Help: "Successful relay energizations.",
		}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorpin_unlock_tickets_superseded_total",
			Help: "Unlock tickets replaced by a newer unlock before expiry.",
		}),
		actuatorFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorpin_actuator_faults_total",
			Help: "Relay open, energize or release failures.",
		}),
		deviceFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorpin_input_device_faults_total",
			Help: "Input devices that stopped with an error.",
		}),
		capturing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "doorpin_input_capturing",
			Help: "1 while at least one input device is capturing.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorpin_http_rate_limited_total",
			Help: "API requests rejected by the per-actor rate limit.",
		}),
	}

	reg.MustRegister(
		c.decisions,
		c.unlocks,
		c.superseded,
		c.actuatorFaults,
		c.deviceFaults,
		c.capturing,
		c.rateLimited,
	)
	return c
}

func (c *Collector) RecordDecision(source, reason string) {
	c.decisions.WithLabelValues(source, reason).Inc()
}

func (c *Collector) RecordUnlock()        { c.unlocks.Inc() }
func (c *Collector) RecordSuperseded()    { c.superseded.Inc() }
func (c *Collector) RecordActuatorFault() { c.actuatorFaults.Inc() }
func (c *Collector) RecordDeviceFault()   { c.deviceFaults.Inc() }
func (c *Collector) RecordRateLimited()   { c.rateLimited.Inc() }

func (c *Collector) SetCapturing(on bool) {
	if on {
		c.capturing.Set(1)
		return
	}
	c.capturing.Set(0)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
