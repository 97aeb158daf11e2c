package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// ExecutionRevertedCode is the JSON-RPC error code nodes use for a reverted eth_call.
const ExecutionRevertedCode = 3

var ErrNoEndpoints = errors.New("no RPC endpoints configured")

// FallbackMetricer records the behaviour of a FallbackRPC per endpoint.
type FallbackMetricer interface {
	RecordRPCStall(endpoint string)
	RecordRPCFailure(endpoint string)
}

type NoopFallbackMetrics struct{}

func (NoopFallbackMetrics) RecordRPCStall(string)   {}
func (NoopFallbackMetrics) RecordRPCFailure(string) {}

// Endpoint is a named RPC. The name is used in logs and metrics instead of the URL,
// which may carry an API key.
type Endpoint struct {
	Name string
	RPC  RPC
}

// ProviderError is returned when every endpoint of a FallbackRPC failed a call.
type ProviderError struct {
	Method string
	Errs   []error
}

func (e *ProviderError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("all %d providers failed %s: %s", len(e.Errs), e.Method, strings.Join(msgs, "; "))
}

func (e *ProviderError) Unwrap() []error {
	return e.Errs
}

// IsRetryable returns false for errors that another endpoint would answer identically,
// i.e. contract reverts.
func IsRetryable(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == ExecutionRevertedCode {
		return false
	}
	return !strings.Contains(err.Error(), "execution reverted")
}

// FallbackRPC queries a list of endpoints in priority order. A call starts on the first endpoint.
// When it stalls for longer than the stall timeout, or fails with a retryable error, the next
// endpoint is started while the earlier calls stay in flight. The first successful answer wins.
type FallbackRPC struct {
	log          log.Logger
	endpoints    []Endpoint
	stallTimeout time.Duration
	m            FallbackMetricer
}

var _ RPC = (*FallbackRPC)(nil)

func NewFallbackRPC(lgr log.Logger, endpoints []Endpoint, stallTimeout time.Duration, m FallbackMetricer) (*FallbackRPC, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if stallTimeout <= 0 {
		return nil, fmt.Errorf("stall timeout must be positive, got %v", stallTimeout)
	}
	if m == nil {
		m = NoopFallbackMetrics{}
	}
	return &FallbackRPC{log: lgr, endpoints: endpoints, stallTimeout: stallTimeout, m: m}, nil
}

func (f *FallbackRPC) Close() {
	for _, e := range f.endpoints {
		e.RPC.Close()
	}
}

func (f *FallbackRPC) CallContext(ctx context.Context, result any, method string, args ...any) error {
	raws := make([]json.RawMessage, len(f.endpoints))
	idx, err := f.race(ctx, method, func(ctx context.Context, i int, c RPC) error {
		return c.CallContext(ctx, &raws[i], method, args...)
	})
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(raws[idx], result)
}

func (f *FallbackRPC) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	copies := make([][]rpc.BatchElem, len(f.endpoints))
	idx, err := f.race(ctx, "batch", func(ctx context.Context, i int, c RPC) error {
		cp := make([]rpc.BatchElem, len(b))
		for j, elem := range b {
			cp[j] = rpc.BatchElem{Method: elem.Method, Args: elem.Args, Result: new(json.RawMessage)}
		}
		copies[i] = cp
		return c.BatchCallContext(ctx, cp)
	})
	if err != nil {
		return err
	}
	for j, elem := range copies[idx] {
		b[j].Error = elem.Error
		if elem.Error == nil && b[j].Result != nil {
			b[j].Error = json.Unmarshal(*elem.Result.(*json.RawMessage), b[j].Result)
		}
	}
	return nil
}

type attemptResult struct {
	idx int
	err error
}

// race runs attempt against the endpoints and returns the index of the winning endpoint.
// Losing attempts are cancelled when race returns.
func (f *FallbackRPC) race(ctx context.Context, method string, attempt func(ctx context.Context, i int, c RPC) error) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan attemptResult, len(f.endpoints))
	errs := make([]error, 0, len(f.endpoints))
	next, inFlight := 0, 0
	launch := func() {
		i := next
		next++
		inFlight++
		go func() {
			results <- attemptResult{idx: i, err: attempt(ctx, i, f.endpoints[i].RPC)}
		}()
	}

	launch()
	timer := time.NewTimer(f.stallTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-timer.C:
			if next < len(f.endpoints) {
				stalled := f.endpoints[next-1].Name
				f.log.Debug("RPC endpoint stalled, starting next", "endpoint", stalled, "method", method, "next", f.endpoints[next].Name)
				f.m.RecordRPCStall(stalled)
				launch()
				timer.Reset(f.stallTimeout)
			}
		case res := <-results:
			inFlight--
			if res.err == nil {
				return res.idx, nil
			}
			if ctx.Err() != nil {
				return -1, ctx.Err()
			}
			if !IsRetryable(res.err) {
				return res.idx, res.err
			}
			name := f.endpoints[res.idx].Name
			f.log.Warn("RPC endpoint failed", "endpoint", name, "method", method, "err", res.err)
			f.m.RecordRPCFailure(name)
			errs = append(errs, fmt.Errorf("%s: %w", name, res.err))
			if next < len(f.endpoints) {
				launch()
				timer.Reset(f.stallTimeout)
			} else if inFlight == 0 {
				return -1, &ProviderError{Method: method, Errs: errs}
			}
		}
	}
}
