// Package metrics exposes listener progress as Prometheus collectors.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "slot_listener"

// Slot fetch outcomes.
const (
	OutcomeStored   = "stored"
	OutcomeSkipped  = "skipped"
	OutcomeRequeued = "requeued"
)

// Collector receives listener events. Implementations must be safe for
// concurrent use and must not block.
type Collector interface {
	// RPCRequest records a single call to the chain data source.
	RPCRequest(method string, duration time.Duration, err error)

	// SlotFetched records the outcome of one slot fetch.
	SlotFetched(outcome string, duration time.Duration)

	// SlotsDiscovered records newly discovered slots in a cycle.
	SlotsDiscovered(n int)

	// CycleCompleted records that a scheduler cycle finished.
	CycleCompleted(idle bool)

	// QueueDepth records the retry queue length.
	QueueDepth(n int)

	// Watermark records the scheduler watermark.
	Watermark(slot uint64)

	// StoreSize records the number of blocks held by the store.
	StoreSize(n int)
}

// NoopCollector discards every event.
type NoopCollector struct{}

var _ Collector = NoopCollector{}

func (NoopCollector) RPCRequest(string, time.Duration, error) {}
func (NoopCollector) SlotFetched(string, time.Duration)       {}
func (NoopCollector) SlotsDiscovered(int)                     {}
func (NoopCollector) CycleCompleted(bool)                     {}
func (NoopCollector) QueueDepth(int)                          {}
func (NoopCollector) Watermark(uint64)                        {}
func (NoopCollector) StoreSize(int)                           {}

// PrometheusCollector implements Collector on top of client_golang.
type PrometheusCollector struct {
	rpcRequests     *prometheus.CounterVec
	rpcDuration     *prometheus.HistogramVec
	slotsFetched    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	slotsDiscovered prometheus.Counter
	cycles          *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	watermark       prometheus.Gauge
	storeSize       prometheus.Gauge
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the listener collectors and registers them
// with reg.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	c := &PrometheusCollector{
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rpc_requests_total",
			Help:      "Calls to the chain data source by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "Chain data source call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		slotsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "slots_fetched_total",
			Help:      "Slot fetch attempts by outcome",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "slot_fetch_duration_seconds",
			Help:      "Per-slot fetch latency by outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		slotsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "slots_discovered_total",
			Help:      "Slots discovered beyond the watermark",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cycles_total",
			Help:      "Scheduler cycles by kind",
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "retry_queue_depth",
			Help:      "Slots waiting to be refetched",
		}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "watermark_slot",
			Help:      "Highest slot considered by the scheduler",
		}),
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "stored_blocks",
			Help:      "Blocks held by the block store",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.rpcRequests, c.rpcDuration, c.slotsFetched, c.fetchDuration,
		c.slotsDiscovered, c.cycles, c.queueDepth, c.watermark, c.storeSize,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return c, nil
}

// RPCRequest implements Collector.
func (c *PrometheusCollector) RPCRequest(method string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.rpcRequests.WithLabelValues(method, status).Inc()
	c.rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// SlotFetched implements Collector.
func (c *PrometheusCollector) SlotFetched(outcome string, duration time.Duration) {
	c.slotsFetched.WithLabelValues(outcome).Inc()
	c.fetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SlotsDiscovered implements Collector.
func (c *PrometheusCollector) SlotsDiscovered(n int) {
	c.slotsDiscovered.Add(float64(n))
}

// CycleCompleted implements Collector.
func (c *PrometheusCollector) CycleCompleted(idle bool) {
	kind := "work"
	if idle {
		kind = "idle"
	}
	c.cycles.WithLabelValues(kind).Inc()
}

// QueueDepth implements Collector.
func (c *PrometheusCollector) QueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// Watermark implements Collector.
func (c *PrometheusCollector) Watermark(slot uint64) {
	c.watermark.Set(float64(slot))
}

// StoreSize implements Collector.
func (c *PrometheusCollector) StoreSize(n int) {
	c.storeSize.Set(float64(n))
}
