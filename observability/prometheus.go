package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ MetricFactory = (*PrometheusFactory)(nil)

// PrometheusFactory is a MetricFactory backed by a Prometheus registry.
// Dotted metric names are exported with underscores; counters gain a
// "_total" suffix.
type PrometheusFactory struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewPrometheusFactory creates a factory with its own registry.
func NewPrometheusFactory() *PrometheusFactory {
	return NewPrometheusFactoryWithRegistry(prometheus.NewRegistry())
}

// NewPrometheusFactoryWithRegistry creates a factory registering into reg.
func NewPrometheusFactoryWithRegistry(reg *prometheus.Registry) *PrometheusFactory {
	return &PrometheusFactory{
		registry:   reg,
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Registry returns the underlying registry.
func (f *PrometheusFactory) Registry() *prometheus.Registry { return f.registry }

// Handler returns an HTTP handler that serves the registry.
func (f *PrometheusFactory) Handler() http.Handler {
	return promhttp.HandlerFor(f.registry, promhttp.HandlerOpts{})
}

// Counter returns the counter registered under name, creating it once.
func (f *PrometheusFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: "Cadence " + name,
	})
	f.registry.MustRegister(c)
	f.counters[name] = c
	return c
}

// Histogram returns the histogram registered under name, creating it once.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    "Cadence " + name,
		Buckets: prometheus.DefBuckets,
	})
	f.registry.MustRegister(h)
	f.histograms[name] = h
	return h
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
