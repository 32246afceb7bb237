package counter

import "github.com/prometheus/client_golang/prometheus"

// Collector exports a Counter to Prometheus. The lifetime view is exported
// as a counter, the secondary view as a gauge since it can be reset.
type Collector[K comparable] struct {
	counter *Counter[K]
	label   func(K) string
	total   *prometheus.Desc
	window  *prometheus.Desc
}

// NewCollector creates a collector named <namespace>_<subsystem>_events_total
// (and _events_window) with one "event" label value per key.
func NewCollector[K comparable](c *Counter[K], namespace, subsystem string, label func(K) string) *Collector[K] {
	return &Collector[K]{
		counter: c,
		label:   label,
		total: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "events_total"),
			"Lifetime number of events by kind.",
			[]string{"event"}, nil,
		),
		window: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "events_window"),
			"Number of events by kind since the last secondary reset.",
			[]string{"event"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector[K]) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.window
}

// Collect implements prometheus.Collector.
func (c *Collector[K]) Collect(ch chan<- prometheus.Metric) {
	for _, k := range c.counter.keys {
		name := c.label(k)
		ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(c.counter.Value(k)), name)
		ch <- prometheus.MustNewConstMetric(c.window, prometheus.GaugeValue, float64(c.counter.SecondaryValue(k)), name)
	}
}
