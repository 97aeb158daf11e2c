package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mantlenetworkio/ccip-gateway/op-service/testlog"
)

type fakeRPC struct {
	calls  atomic.Int32
	closed atomic.Bool
	fn     func(ctx context.Context, result any, method string) error
}

func (f *fakeRPC) Close() {
	f.closed.Store(true)
}

func (f *fakeRPC) CallContext(ctx context.Context, result any, method string, args ...any) error {
	f.calls.Add(1)
	return f.fn(ctx, result, method)
}

func (f *fakeRPC) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	f.calls.Add(1)
	for i := range b {
		b[i].Error = f.fn(ctx, b[i].Result, b[i].Method)
	}
	return nil
}

func answer(value string) *fakeRPC {
	return &fakeRPC{fn: func(ctx context.Context, result any, method string) error {
		*result.(*json.RawMessage) = json.RawMessage(`"` + value + `"`)
		return nil
	}}
}

func failing(err error) *fakeRPC {
	return &fakeRPC{fn: func(ctx context.Context, result any, method string) error {
		return err
	}}
}

// stalling blocks until its call is cancelled, and reports the cancellation.
func stalling(cancelled chan<- struct{}) *fakeRPC {
	return &fakeRPC{fn: func(ctx context.Context, result any, method string) error {
		<-ctx.Done()
		if cancelled != nil {
			close(cancelled)
		}
		return ctx.Err()
	}}
}

// delayed answers after a delay, unless its call is cancelled first.
func delayed(d time.Duration, value string) *fakeRPC {
	return &fakeRPC{fn: func(ctx context.Context, result any, method string) error {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
		*result.(*json.RawMessage) = json.RawMessage(`"` + value + `"`)
		return nil
	}}
}

type revertErr struct{}

func (revertErr) Error() string  { return "execution reverted: not ready" }
func (revertErr) ErrorCode() int { return ExecutionRevertedCode }

type recordingMetrics struct {
	mu       sync.Mutex
	stalls   []string
	failures []string
}

func (m *recordingMetrics) RecordRPCStall(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stalls = append(m.stalls, endpoint)
}

func (m *recordingMetrics) RecordRPCFailure(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, endpoint)
}

func newTestFallback(t *testing.T, stall time.Duration, rpcs ...*fakeRPC) (*FallbackRPC, *recordingMetrics) {
	endpoints := make([]Endpoint, len(rpcs))
	for i, r := range rpcs {
		endpoints[i] = Endpoint{Name: []string{"l1_0", "l1_1", "l1_2"}[i], RPC: r}
	}
	m := &recordingMetrics{}
	f, err := NewFallbackRPC(testlog.Logger(t, log.LevelDebug), endpoints, stall, m)
	require.NoError(t, err)
	return f, m
}

func TestFallbackPrimaryAnswers(t *testing.T) {
	primary, secondary := answer("0x1"), answer("0x2")
	f, m := newTestFallback(t, time.Hour, primary, secondary)

	var out string
	require.NoError(t, f.CallContext(context.Background(), &out, "eth_call"))
	require.Equal(t, "0x1", out)
	require.EqualValues(t, 0, secondary.calls.Load())
	require.Empty(t, m.stalls)
}

func TestFallbackStall(t *testing.T) {
	cancelled := make(chan struct{})
	primary, secondary := stalling(cancelled), answer("0x2")
	f, m := newTestFallback(t, 10*time.Millisecond, primary, secondary)

	var out string
	require.NoError(t, f.CallContext(context.Background(), &out, "eth_call"))
	require.Equal(t, "0x2", out)
	require.Equal(t, []string{"l1_0"}, m.stalls)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("stalled call was not cancelled")
	}
}

func TestFallbackStallLatency(t *testing.T) {
	const (
		stall = 50 * time.Millisecond
		delay = 100 * time.Millisecond
	)
	cancelled := make(chan struct{})
	primary, secondary := stalling(cancelled), delayed(delay, "0x2")
	f, m := newTestFallback(t, stall, primary, secondary)

	start := time.Now()
	var out string
	require.NoError(t, f.CallContext(context.Background(), &out, "eth_call"))
	elapsed := time.Since(start)
	require.Equal(t, "0x2", out)
	require.Equal(t, []string{"l1_0"}, m.stalls)

	// the secondary starts once the primary stalls, and its answer is returned as soon as it arrives
	require.GreaterOrEqual(t, elapsed, stall+delay)
	require.Less(t, elapsed, stall+delay+time.Second)
	require.EqualValues(t, 1, secondary.calls.Load())

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("stalled call was not cancelled")
	}
}

func TestFallbackFailureStartsNextImmediately(t *testing.T) {
	primary, secondary := failing(errors.New("connection refused")), answer("0x2")
	f, m := newTestFallback(t, time.Hour, primary, secondary)

	var out string
	require.NoError(t, f.CallContext(context.Background(), &out, "eth_call"))
	require.Equal(t, "0x2", out)
	require.Equal(t, []string{"l1_0"}, m.failures)
	require.Empty(t, m.stalls)
}

func TestFallbackRevertIsFinal(t *testing.T) {
	primary, secondary := failing(revertErr{}), answer("0x2")
	f, _ := newTestFallback(t, time.Hour, primary, secondary)

	var out string
	err := f.CallContext(context.Background(), &out, "eth_call")
	require.ErrorIs(t, err, revertErr{})
	require.EqualValues(t, 0, secondary.calls.Load())
}

func TestFallbackAllFail(t *testing.T) {
	errA, errB := errors.New("dial tcp: refused"), errors.New("503 service unavailable")
	f, m := newTestFallback(t, time.Hour, failing(errA), failing(errB))

	err := f.CallContext(context.Background(), nil, "eth_call")
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, "eth_call", provErr.Method)
	require.Len(t, provErr.Errs, 2)
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errB)
	require.Equal(t, []string{"l1_0", "l1_1"}, m.failures)
}

func TestFallbackParentCancelled(t *testing.T) {
	f, _ := newTestFallback(t, time.Hour, stalling(nil))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.CallContext(ctx, nil, "eth_call")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFallbackBatch(t *testing.T) {
	f, _ := newTestFallback(t, 10*time.Millisecond, stalling(nil), answer("0xabc"))
	var a, b string
	batch := []rpc.BatchElem{
		{Method: "eth_getStorageAt", Result: &a},
		{Method: "eth_getStorageAt", Result: &b},
	}
	require.NoError(t, f.BatchCallContext(context.Background(), batch))
	require.NoError(t, batch[0].Error)
	require.NoError(t, batch[1].Error)
	require.Equal(t, "0xabc", a)
	require.Equal(t, "0xabc", b)
}

func TestFallbackClose(t *testing.T) {
	primary, secondary := answer("0x1"), answer("0x2")
	f, _ := newTestFallback(t, time.Hour, primary, secondary)
	f.Close()
	require.True(t, primary.closed.Load())
	require.True(t, secondary.closed.Load())
}

func TestNewFallbackRPCNoEndpoints(t *testing.T) {
	_, err := NewFallbackRPC(testlog.Logger(t, log.LevelInfo), nil, time.Second, nil)
	require.ErrorIs(t, err, ErrNoEndpoints)
}
