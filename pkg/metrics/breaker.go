package metrics

import (
	"ai-productivity-app/assistant/pkg/resilience"

	"github.com/prometheus/client_golang/prometheus"
)

// breakerCollector reads circuit breaker counters at scrape time
type breakerCollector struct {
	stats    []func() resilience.Stats
	state    *prometheus.Desc
	requests *prometheus.Desc
	failures *prometheus.Desc
	opened   *prometheus.Desc
}

// NewBreakerCollector exports each breaker's state (0 closed, 1 half-open, 2 open) and counters,
// labelled by breaker name
func NewBreakerCollector(stats ...func() resilience.Stats) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("assistant", "breaker", name), help, []string{"name"}, nil)
	}
	return &breakerCollector{
		stats:    stats,
		state:    desc("state", "Circuit breaker state: 0 closed, 1 half-open, 2 open."),
		requests: desc("requests_total", "Requests seen by the circuit breaker."),
		failures: desc("failures_total", "Failures counted by the circuit breaker."),
		opened:   desc("opened_total", "Times the circuit breaker opened."),
	}
}

func (c *breakerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.requests
	ch <- c.failures
	ch <- c.opened
}

func (c *breakerCollector) Collect(ch chan<- prometheus.Metric) {
	for _, stats := range c.stats {
		s := stats()
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, stateValue(s.State), s.Name)
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.Requests), s.Name)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.Failures), s.Name)
		ch <- prometheus.MustNewConstMetric(c.opened, prometheus.CounterValue, float64(s.Opened), s.Name)
	}
}

func stateValue(s resilience.CircuitBreakerState) float64 {
	switch s {
	case resilience.StateHalfOpen:
		return 1
	case resilience.StateOpen:
		return 2
	default:
		return 0
	}
}
