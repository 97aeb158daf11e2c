package client

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ethereum/go-ethereum/rpc"
)

// RateLimitingClient is a wrapper around an RPC that waits on a token bucket before every request.
// A batch consumes one token per element.
type RateLimitingClient struct {
	c  RPC
	rl *rate.Limiter
}

var _ RPC = (*RateLimitingClient)(nil)

func NewRateLimitingClient(c RPC, limit rate.Limit, burst int) *RateLimitingClient {
	return &RateLimitingClient{c: c, rl: rate.NewLimiter(limit, burst)}
}

func (b *RateLimitingClient) Close() {
	b.c.Close()
}

func (b *RateLimitingClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	if err := b.rl.Wait(ctx); err != nil {
		return err
	}
	return b.c.CallContext(ctx, result, method, args...)
}

func (b *RateLimitingClient) BatchCallContext(ctx context.Context, batch []rpc.BatchElem) error {
	if err := b.rl.WaitN(ctx, len(batch)); err != nil {
		return err
	}
	return b.c.BatchCallContext(ctx, batch)
}
