package client

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

var httpRegex = regexp.MustCompile("^http(s)?://")

// RPC is the minimal JSON-RPC client surface used by the sources.
type RPC interface {
	Close()
	CallContext(ctx context.Context, result any, method string, args ...any) error
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

type rpcConfig struct {
	dialAttempts     int
	dialBackoff      time.Duration
	connectTimeout   time.Duration
	callTimeout      time.Duration
	batchCallTimeout time.Duration
	limit            float64
	burst            int
}

type RPCOption func(cfg *rpcConfig)

// WithDialAttempts sets the number of attempts to dial the endpoint. Defaults to 1.
func WithDialAttempts(attempts int) RPCOption {
	return func(cfg *rpcConfig) {
		cfg.dialAttempts = attempts
	}
}

// WithFixedDialBackoff sets the wait time between dial attempts.
func WithFixedDialBackoff(d time.Duration) RPCOption {
	return func(cfg *rpcConfig) {
		cfg.dialBackoff = d
	}
}

// WithConnectTimeout bounds a single dial attempt.
func WithConnectTimeout(t time.Duration) RPCOption {
	return func(cfg *rpcConfig) {
		cfg.connectTimeout = t
	}
}

// WithCallTimeout bounds every single call.
func WithCallTimeout(t time.Duration) RPCOption {
	return func(cfg *rpcConfig) {
		cfg.callTimeout = t
	}
}

// WithBatchCallTimeout bounds every batch call.
func WithBatchCallTimeout(t time.Duration) RPCOption {
	return func(cfg *rpcConfig) {
		cfg.batchCallTimeout = t
	}
}

// WithRateLimit limits outgoing requests to the given rate per second.
func WithRateLimit(rateLimit float64, burst int) RPCOption {
	return func(cfg *rpcConfig) {
		cfg.limit = rateLimit
		cfg.burst = burst
	}
}

// NewRPC dials the endpoint, retrying with a fixed backoff, and wraps it as RPC.
// HTTP endpoints are dialed lazily by go-ethereum, so dialing only fails on malformed URLs for those.
func NewRPC(ctx context.Context, lgr log.Logger, addr string, opts ...RPCOption) (RPC, error) {
	cfg := rpcConfig{
		dialAttempts:     1,
		dialBackoff:      2 * time.Second,
		connectTimeout:   10 * time.Second,
		callTimeout:      10 * time.Second,
		batchCallTimeout: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.dialAttempts < 1 {
		cfg.dialAttempts = 1
	}

	var underlying *rpc.Client
	var err error
	for attempt := 1; attempt <= cfg.dialAttempts; attempt++ {
		underlying, err = dialRPCClient(ctx, addr, cfg.connectTimeout)
		if err == nil {
			break
		}
		if attempt == cfg.dialAttempts {
			return nil, fmt.Errorf("failed to dial address (%s) after %d attempts: %w", redactURL(addr), attempt, err)
		}
		lgr.Warn("Failed to dial address, retrying", "addr", redactURL(addr), "attempt", attempt, "err", err)
		select {
		case <-time.After(cfg.dialBackoff):
		case <-ctx.Done():
			return nil, errors.Join(err, ctx.Err())
		}
	}

	var wrapped RPC = &BaseRPCClient{c: underlying, callTimeout: cfg.callTimeout, batchCallTimeout: cfg.batchCallTimeout}
	if cfg.limit != 0 {
		wrapped = NewRateLimitingClient(wrapped, rate.Limit(cfg.limit), cfg.burst)
	}
	return wrapped, nil
}

func dialRPCClient(ctx context.Context, addr string, connectTimeout time.Duration) (*rpc.Client, error) {
	if !httpRegex.MatchString(addr) && !IsURLAvailable(ctx, addr, connectTimeout) {
		return nil, fmt.Errorf("address unavailable (%s)", redactURL(addr))
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return rpc.DialContext(ctx, addr)
}

// BaseRPCClient is a wrapper around a concrete *rpc.Client, adding default timeouts.
type BaseRPCClient struct {
	c                *rpc.Client
	callTimeout      time.Duration
	batchCallTimeout time.Duration
}

func NewBaseRPCClient(c *rpc.Client) *BaseRPCClient {
	return &BaseRPCClient{c: c, callTimeout: 10 * time.Second, batchCallTimeout: 20 * time.Second}
}

func (b *BaseRPCClient) Close() {
	b.c.Close()
}

func (b *BaseRPCClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	cCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	return wrapErrData(b.c.CallContext(cCtx, result, method, args...))
}

func (b *BaseRPCClient) BatchCallContext(ctx context.Context, batch []rpc.BatchElem) error {
	cCtx, cancel := context.WithTimeout(ctx, b.batchCallTimeout)
	defer cancel()
	return b.c.BatchCallContext(cCtx, batch)
}

// dataError keeps the JSON-RPC error data in the error message, e.g. the revert data of an eth_call.
type dataError struct {
	rpc.DataError
}

func (e dataError) Error() string {
	return fmt.Sprintf("%s: %v", e.DataError.Error(), e.ErrorData())
}

func (e dataError) Unwrap() error {
	return e.DataError
}

func wrapErrData(err error) error {
	var de rpc.DataError
	if errors.As(err, &de) && de.ErrorData() != nil {
		return dataError{de}
	}
	return err
}

var userInfoRegex = regexp.MustCompile(`^([a-z]+://)[^/@]*@`)

// redactURL strips credentials from the URL, for logs.
func redactURL(addr string) string {
	return userInfoRegex.ReplaceAllString(addr, "$1<redacted>@")
}
