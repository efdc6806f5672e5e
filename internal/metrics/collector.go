// Package metrics exposes prometheus instrumentation for filesystem
// operations, resolver cache behavior and remote retries.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and serves the drivefs metric vectors.
type Collector struct {
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheEventCounter *prometheus.CounterVec
	retryCounter      *prometheus.CounterVec
	cachedDirsGauge   prometheus.Gauge
	cachedPathsGauge  prometheus.Gauge

	server *http.Server
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		operationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drivefs",
			Name:      "operations_total",
			Help:      "Filesystem operations by name and terminal status",
		}, []string{"op", "status"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "drivefs",
			Name:      "operation_duration_seconds",
			Help:      "Filesystem operation latency",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"op"}),
		cacheEventCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drivefs",
			Name:      "cache_events_total",
			Help:      "Resolver cache hits, misses and invalidations",
		}, []string{"event"}),
		retryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drivefs",
			Name:      "retries_total",
			Help:      "Retry attempts by operation",
		}, []string{"op"}),
		cachedDirsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "drivefs",
			Name:      "cached_directories",
			Help:      "Directories with a cached listing",
		}),
		cachedPathsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "drivefs",
			Name:      "cached_paths",
			Help:      "Paths with a cached resolution",
		}),
	}

	registry.MustRegister(
		c.operationCounter,
		c.operationDuration,
		c.cacheEventCounter,
		c.retryCounter,
		c.cachedDirsGauge,
		c.cachedPathsGauge,
	)
	return c
}

// RecordOperation records one terminal filesystem operation outcome.
func (c *Collector) RecordOperation(op, status string, elapsed time.Duration) {
	c.operationCounter.WithLabelValues(op, status).Inc()
	c.operationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordCacheEvent records a resolver cache event ("hit", "miss",
// "invalidation").
func (c *Collector) RecordCacheEvent(event string) {
	c.cacheEventCounter.WithLabelValues(event).Inc()
}

// AddCacheEvents records n resolver cache events of one type at once.
func (c *Collector) AddCacheEvents(event string, n uint64) {
	if n > 0 {
		c.cacheEventCounter.WithLabelValues(event).Add(float64(n))
	}
}

// RecordRetry records one retry attempt for op.
func (c *Collector) RecordRetry(op string) {
	c.retryCounter.WithLabelValues(op).Inc()
}

// SetCacheSizes updates the cache size gauges.
func (c *Collector) SetCacheSizes(dirs, paths int) {
	c.cachedDirsGauge.Set(float64(dirs))
	c.cachedPathsGauge.Set(float64(paths))
}

// Serve starts the promhttp endpoint at addr+path. It returns once the
// listener is running; Shutdown stops it.
func (c *Collector) Serve(addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	c.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		_ = c.server.ListenAndServe()
	}()
	return nil
}

// Shutdown stops the metrics endpoint, if one is running.
func (c *Collector) Shutdown(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// Registry exposes the registry for test scraping.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
