// Package promobs implements observability.Metrics on top of
// prometheus/client_golang, for deployments that scrape /metrics rather
// than reading structured logs. Tracing and logging are delegated to an
// embedded slogobs.Observer: Prometheus has no native concept of either, and
// duplicating slogobs's span/log bookkeeping here would drift from it over
// time.
package promobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aigohq/aigo/providers/observability"
	"github.com/aigohq/aigo/providers/observability/slogobs"
)

// Observer implements observability.Provider, backing Counter and Histogram
// with real Prometheus collectors registered against Registry and
// forwarding StartSpan/Trace/Debug/Info/Warn/Error to an embedded
// slogobs.Observer.
type Observer struct {
	*slogobs.Observer
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*promCounter
	histograms map[string]*promHistogram
}

// New registers collectors against registry (pass prometheus.NewRegistry()
// for an isolated registry, or prometheus.DefaultRegisterer's underlying
// registry to expose them on the process-wide /metrics endpoint) and
// layers Prometheus metrics over an slogobs.Observer built from opts.
func New(registry *prometheus.Registry, opts ...slogobs.Option) *Observer {
	return &Observer{
		Observer:   slogobs.New(opts...),
		registry:   registry,
		counters:   make(map[string]*promCounter),
		histograms: make(map[string]*promHistogram),
	}
}

var _ observability.Provider = (*Observer)(nil)

// Counter returns the counter for name, creating it on first request. A
// Prometheus CounterVec is registered against the Observer's registry
// lazily, on the first Add for each distinct set of attribute keys.
func (o *Observer) Counter(name string) observability.Counter {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.counters[name]; ok {
		return c
	}
	c := &promCounter{name: name, registry: o.registry, vecs: make(map[string]*prometheus.CounterVec)}
	o.counters[name] = c
	return c
}

// Histogram returns the histogram for name, creating it on first request. A
// Prometheus HistogramVec is registered against the Observer's registry
// lazily, on the first Record for each distinct set of attribute keys.
func (o *Observer) Histogram(name string) observability.Histogram {
	o.mu.Lock()
	defer o.mu.Unlock()
	if h, ok := o.histograms[name]; ok {
		return h
	}
	h := &promHistogram{name: name, registry: o.registry, vecs: make(map[string]*prometheus.HistogramVec)}
	o.histograms[name] = h
	return h
}

// promCounter lazily registers a CounterVec per distinct set of attribute
// keys observed, since Prometheus label sets are fixed at registration time
// but observability.Attribute lists are caller-supplied and may vary.
type promCounter struct {
	name     string
	registry *prometheus.Registry

	mu   sync.Mutex
	vecs map[string]*prometheus.CounterVec
}

func (c *promCounter) Add(_ context.Context, value int64, attrs ...observability.Attribute) {
	labels := attributeLabels(attrs)
	vec := c.vecFor(labels)
	vec.With(labels).Add(float64(value))
}

func (c *promCounter) vecFor(labels prometheus.Labels) *prometheus.CounterVec {
	key := labelSetKey(labels)
	c.mu.Lock()
	defer c.mu.Unlock()
	if vec, ok := c.vecs[key]; ok {
		return vec
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: c.name}, names)
	c.registry.MustRegister(vec)
	c.vecs[key] = vec
	return vec
}

type promHistogram struct {
	name     string
	registry *prometheus.Registry

	mu   sync.Mutex
	vecs map[string]*prometheus.HistogramVec
}

func (h *promHistogram) Record(_ context.Context, value float64, attrs ...observability.Attribute) {
	labels := attributeLabels(attrs)
	vec := h.vecFor(labels)
	vec.With(labels).Observe(value)
}

func (h *promHistogram) vecFor(labels prometheus.Labels) *prometheus.HistogramVec {
	key := labelSetKey(labels)
	h.mu.Lock()
	defer h.mu.Unlock()
	if vec, ok := h.vecs[key]; ok {
		return vec
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: h.name}, names)
	h.registry.MustRegister(vec)
	h.vecs[key] = vec
	return vec
}

func attributeLabels(attrs []observability.Attribute) prometheus.Labels {
	labels := make(prometheus.Labels, len(attrs))
	for _, a := range attrs {
		if s, ok := a.Value.(string); ok {
			labels[a.Key] = s
		} else {
			labels[a.Key] = fmt.Sprintf("%v", a.Value)
		}
	}
	return labels
}

// labelSetKey builds a deterministic cache key from a label set's sorted
// names, so two calls with the same keys in a different order hit the same
// cached vector instead of racing a second MustRegister for the same name.
func labelSetKey(labels prometheus.Labels) string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
