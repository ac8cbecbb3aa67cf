package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spr_behavior"

// Collector exposes engine counters to Prometheus. It satisfies
// behavior.Recorder.
type Collector struct {
	eventsTotal            *prometheus.CounterVec
	callsTotal             *prometheus.CounterVec
	skippedCallsTotal      *prometheus.CounterVec
	unknownDescriptorTotal *prometheus.CounterVec
	reportsTotal           prometheus.Counter
}

// NewCollector creates the counters and registers them with reg
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Process events dispatched, by category",
		}, []string{"category"}),
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Calls carried by dispatched events, by category",
		}, []string{"category"}),
		skippedCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_calls_total",
			Help:      "Malformed calls skipped by a handler",
		}, []string{"handler", "api"}),
		unknownDescriptorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_descriptors_total",
			Help:      "read/write calls on a descriptor with no recorded open",
		}, []string{"api"}),
		reportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Summaries produced",
		}),
	}

	for _, collector := range []prometheus.Collector{
		c.eventsTotal,
		c.callsTotal,
		c.skippedCallsTotal,
		c.unknownDescriptorTotal,
		c.reportsTotal,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) EventDispatched(category string, calls int) {
	c.eventsTotal.WithLabelValues(category).Inc()
	c.callsTotal.WithLabelValues(category).Add(float64(calls))
}

func (c *Collector) CallSkipped(handler, api string) {
	c.skippedCallsTotal.WithLabelValues(handler, api).Inc()
}

func (c *Collector) UnknownDescriptor(api string) {
	c.unknownDescriptorTotal.WithLabelValues(api).Inc()
}

// ReportProduced counts a finished summary
func (c *Collector) ReportProduced() {
	c.reportsTotal.Inc()
}
