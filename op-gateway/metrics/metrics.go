package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethereum/go-ethereum/common"

	opmetrics "github.com/mantlenetworkio/ccip-gateway/op-service/metrics"
)

const Namespace = "op_gateway"

type Metrics struct {
	ns       string
	registry *prometheus.Registry
	factory  opmetrics.Factory

	opmetrics.RPCClientMetrics

	info prometheus.GaugeVec
	up   prometheus.Gauge

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	proofDuration prometheus.Histogram
	proofSlots    prometheus.Histogram
	provenBlock   *prometheus.GaugeVec
	l2Sources     prometheus.Gauge

	rpcStalls   *prometheus.CounterVec
	rpcFailures *prometheus.CounterVec

	cacheSize   *prometheus.GaugeVec
	cacheGet    *prometheus.CounterVec
	cacheEvicts *prometheus.CounterVec

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpRateLimited prometheus.Counter

	storageCommands prometheus.Histogram
	storageSlots    prometheus.Histogram
}

var _ Metricer = (*Metrics)(nil)

func NewMetrics(procName string) *Metrics {
	return newMetrics(procName, opmetrics.NewRegistry())
}

func newMetrics(procName string, registry *prometheus.Registry) *Metrics {
	if procName == "" {
		procName = "default"
	}
	ns := Namespace + "_" + procName

	factory := opmetrics.With(registry)
	return &Metrics{
		ns:       ns,
		registry: registry,
		factory:  factory,

		RPCClientMetrics: opmetrics.MakeRPCClientMetrics(ns, factory),

		info: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "info",
			Help:      "Pseudo-metric tracking version and config info",
		}, []string{
			"version",
		}),
		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "up",
			Help:      "1 if op-gateway has finished starting up",
		}),

		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "lookups_total",
			Help:      "Count of dispatched lookups, by function selector and response status",
		}, []string{"selector", "status"}),
		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "lookup_duration_seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			Help:      "Duration of answering a lookup",
		}, []string{"selector"}),

		proofDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "proof_duration_seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			Help:      "Duration of fetching, verifying and encoding a storage proof",
		}),
		proofSlots: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "proof_slots",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			Help:      "Number of storage slots per proof",
		}),
		provenBlock: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "proven_block",
			Help:      "Latest L2 block number a proof was served for, per portal",
		}, []string{"portal"}),
		l2Sources: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "l2_clients",
			Help:      "Number of open L2 RPC clients",
		}),

		rpcStalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "l1_rpc_stalls_total",
			Help:      "Count of L1 RPC calls that stalled and were raced against the next endpoint",
		}, []string{"endpoint"}),
		rpcFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "l1_rpc_failures_total",
			Help:      "Count of L1 RPC calls that failed on an endpoint",
		}, []string{"endpoint"}),

		cacheSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "cache_size",
			Help:      "Number of entries in a cache",
		}, []string{"type"}),
		cacheGet: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_get_total",
			Help:      "Count of cache lookups, by hit or miss",
		}, []string{"type", "hit"}),
		cacheEvicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_evictions_total",
			Help:      "Count of cache evictions",
		}, []string{"type"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of HTTP requests, by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			Help:      "Duration of HTTP requests",
		}, []string{"route"}),
		httpRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Count of HTTP requests rejected by the rate limit",
		}),

		storageCommands: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "storage_commands",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
			Help:      "Number of commands per getStorageSlots request",
		}),
		storageSlots: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "storage_slots",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			Help:      "Number of storage slots resolved per getStorageSlots request",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Document() []opmetrics.DocumentedMetric {
	return m.factory.Document()
}

// RecordInfo sets a pseudo-metric that contains versioning and config info.
func (m *Metrics) RecordInfo(version string) {
	m.info.WithLabelValues(version).Set(1)
}

// RecordUp sets the up metric to 1.
func (m *Metrics) RecordUp() {
	m.up.Set(1)
}

func (m *Metrics) RecordDispatch(selector string, status int, duration time.Duration) {
	m.dispatchTotal.WithLabelValues(selector, strconv.Itoa(status)).Inc()
	m.dispatchDuration.WithLabelValues(selector).Observe(duration.Seconds())
}

func (m *Metrics) RecordProofs(slots int, duration time.Duration) {
	m.proofSlots.Observe(float64(slots))
	m.proofDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordProvenBlock(portal common.Address, number uint64) {
	m.provenBlock.WithLabelValues(portal.Hex()).Set(float64(number))
}

func (m *Metrics) RecordL2Sources(count int) {
	m.l2Sources.Set(float64(count))
}

func (m *Metrics) RecordRPCStall(endpoint string) {
	m.rpcStalls.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) RecordRPCFailure(endpoint string) {
	m.rpcFailures.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) CacheAdd(label string, cacheSize int, evicted bool) {
	m.cacheSize.WithLabelValues(label).Set(float64(cacheSize))
	if evicted {
		m.cacheEvicts.WithLabelValues(label).Inc()
	}
}

func (m *Metrics) CacheGet(label string, hit bool) {
	m.cacheGet.WithLabelValues(label, strconv.FormatBool(hit)).Inc()
}

func (m *Metrics) RecordHTTPRequest(route string, method string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) RecordRateLimited() {
	m.httpRateLimited.Inc()
}

func (m *Metrics) RecordStorageRequest(commands int, slots int) {
	m.storageCommands.Observe(float64(commands))
	m.storageSlots.Observe(float64(slots))
}
