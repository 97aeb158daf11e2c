package client

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ethereum/go-ethereum/rpc"
)

type limitClient struct {
	mutex  sync.Mutex
	closed bool
	c      RPC
	sema   *semaphore.Weighted
	wg     sync.WaitGroup
}

// LimitRPC limits concurrent RPC requests (excluding subscriptions) to a given number by wrapping
// the passed RPC with a semaphore.
func LimitRPC(c RPC, concurrentRequests int) RPC {
	return &limitClient{
		c:    c,
		sema: semaphore.NewWeighted(int64(concurrentRequests)),
	}
}

// joinWaitGroup will return true if it has successfully added the routine to the WaitGroup,
// or false if the client is closed.
func (lc *limitClient) joinWaitGroup() bool {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()
	if lc.closed {
		return false
	}
	lc.wg.Add(1)
	return true
}

func (lc *limitClient) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	if !lc.joinWaitGroup() {
		return net.ErrClosed
	}
	defer lc.wg.Done()
	if err := lc.sema.Acquire(ctx, 1); err != nil {
		return err
	}
	defer lc.sema.Release(1)
	return lc.c.BatchCallContext(ctx, b)
}

func (lc *limitClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	if !lc.joinWaitGroup() {
		return net.ErrClosed
	}
	defer lc.wg.Done()
	if err := lc.sema.Acquire(ctx, 1); err != nil {
		return err
	}
	defer lc.sema.Release(1)
	return lc.c.CallContext(ctx, result, method, args...)
}

// Close waits for in-flight requests to complete before closing the underlying client.
func (lc *limitClient) Close() {
	lc.mutex.Lock()
	lc.closed = true
	lc.mutex.Unlock()
	lc.wg.Wait()
	lc.c.Close()
}
