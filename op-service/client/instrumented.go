package client

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mantlenetworkio/ccip-gateway/op-service/metrics"
)

// InstrumentedRPC records request counts, durations and response codes of an RPC,
// labeled by endpoint name.
type InstrumentedRPC struct {
	c        RPC
	endpoint string
	m        metrics.RPCClientMetricer
}

var _ RPC = (*InstrumentedRPC)(nil)

func NewInstrumentedRPC(c RPC, endpoint string, m metrics.RPCClientMetricer) *InstrumentedRPC {
	return &InstrumentedRPC{c: c, endpoint: endpoint, m: m}
}

func (ic *InstrumentedRPC) Close() {
	ic.c.Close()
}

func (ic *InstrumentedRPC) CallContext(ctx context.Context, result any, method string, args ...any) error {
	done := ic.m.RecordRPCClientRequest(ic.endpoint, method)
	err := ic.c.CallContext(ctx, result, method, args...)
	done(err)
	return err
}

func (ic *InstrumentedRPC) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	done := ic.m.RecordRPCClientRequest(ic.endpoint, "batch")
	err := ic.c.BatchCallContext(ctx, b)
	done(err)
	return err
}
