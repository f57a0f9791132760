// Package metrics provides Prometheus-backed in-process instrumentation
// for sysprog components: TPOOL's task/thread counters and UFS's open
// file/byte gauges. No HTTP exporter is wired up anywhere in this
// module; callers read values back directly via Snapshot.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry is a small collection of named counters and gauges backed by
// a private Prometheus registry. Each caller (a Pool, a FileSystem)
// owns its own Registry instance rather than sharing one process-wide
// singleton.
type Registry struct {
	mu       sync.Mutex
	reg      *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		reg:      prometheus.NewRegistry(),
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
	}
}

func fqName(name string) string {
	return "sysprog_" + strings.ReplaceAll(name, ".", "_")
}

// Inc adds delta to the named counter, registering it on first use.
func (r *Registry) Inc(name string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[name]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{Name: fqName(name)})
		r.reg.MustRegister(c)
		r.counters[name] = c
	}
	c.Add(float64(delta))
}

// Set overwrites the named gauge's value, registering it on first use.
func (r *Registry) Set(name string, value int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{Name: fqName(name)})
		r.reg.MustRegister(g)
		r.gauges[name] = g
	}
	g.Set(float64(value))
}

// Snapshot returns every counter and gauge's current value, keyed by
// the name it was registered under. The returned map is independent of
// the registry's internal state.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int64, len(r.counters)+len(r.gauges))

	var m dto.Metric
	for name, c := range r.counters {
		m.Reset()
		_ = c.Write(&m)
		out[name] = int64(m.GetCounter().GetValue())
	}
	for name, g := range r.gauges {
		m.Reset()
		_ = g.Write(&m)
		out[name] = int64(m.GetGauge().GetValue())
	}
	return out
}
