package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethereum/go-ethereum/rpc"
)

const RPCClientSubsystem = "rpc_client"

// RPCClientMetricer records outgoing RPC calls, labelled by endpoint name and method.
type RPCClientMetricer interface {
	RecordRPCClientRequest(endpoint string, method string) func(err error)
}

// RPCClientMetrics is intended to be embedded into the larger metrics struct of a service.
type RPCClientMetrics struct {
	clientRequestsTotal          *prometheus.CounterVec
	clientRequestDurationSeconds *prometheus.HistogramVec
	clientResponsesTotal         *prometheus.CounterVec
}

var _ RPCClientMetricer = (*RPCClientMetrics)(nil)

func MakeRPCClientMetrics(ns string, factory Factory) RPCClientMetrics {
	return RPCClientMetrics{
		clientRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "requests_total",
			Help:      "Total RPC requests initiated",
		}, []string{"rpc", "method"}),
		clientRequestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "request_duration_seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			Help:      "Histogram of RPC client request durations",
		}, []string{"rpc", "method"}),
		clientResponsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "responses_total",
			Help:      "Total RPC request responses received",
		}, []string{"rpc", "method", "error"}),
	}
}

func (m *RPCClientMetrics) RecordRPCClientRequest(endpoint string, method string) func(err error) {
	m.clientRequestsTotal.WithLabelValues(endpoint, method).Inc()
	timer := prometheus.NewTimer(m.clientRequestDurationSeconds.WithLabelValues(endpoint, method))
	return func(err error) {
		timer.ObserveDuration()
		m.clientResponsesTotal.WithLabelValues(endpoint, method, errLabel(err)).Inc()
	}
}

// errLabel keeps the label cardinality low: JSON-RPC errors by code, anything else as "error".
func errLabel(err error) string {
	if err == nil {
		return "<nil>"
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Sprintf("rpc_%d", rpcErr.ErrorCode())
	}
	return "error"
}

type NoopRPCClientMetrics struct{}

func (NoopRPCClientMetrics) RecordRPCClientRequest(string, string) func(err error) {
	return func(error) {}
}

var _ RPCClientMetricer = NoopRPCClientMetrics{}
