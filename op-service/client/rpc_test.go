package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mantlenetworkio/ccip-gateway/op-service/client"
	"github.com/mantlenetworkio/ccip-gateway/op-service/testlog"
)

func startTestJSONRPCServer(t *testing.T, rpcErr map[string]any) *httptest.Server {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"jsonrpc": "2.0",
			"error":   rpcErr,
			"id":      "0",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestBaseRPCClientCallContextJSONRPCError(t *testing.T) {
	server := startTestJSONRPCServer(t, map[string]any{
		"code":    3,
		"message": "execution reverted",
		"data":    "0x08c379a0",
	})
	rpcClient, err := rpc.DialHTTP(server.URL)
	require.NoError(t, err)
	cl := client.NewBaseRPCClient(rpcClient)
	var result any
	err = cl.CallContext(context.Background(), &result, "eth_call")
	require.Contains(t, err.Error(), "execution reverted", "Error should contain message field")
	require.Contains(t, err.Error(), "0x08c379a0", "Error should contain data field")

	var rpcErr rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, client.ExecutionRevertedCode, rpcErr.ErrorCode())
	require.False(t, client.IsRetryable(err))
}

func TestBaseRPCClientCallContextJSONRPCErrorNoData(t *testing.T) {
	server := startTestJSONRPCServer(t, map[string]any{
		"code":    -32000,
		"message": "header not found",
	})
	rpcClient, err := rpc.DialHTTP(server.URL)
	require.NoError(t, err)
	cl := client.NewBaseRPCClient(rpcClient)
	var result any
	err = cl.CallContext(context.Background(), &result, "eth_getProof")
	require.Exactly(t, "header not found", err.Error(), "Error should exactly match the message field")
	require.True(t, client.IsRetryable(err))
}

func TestNewRPCRateLimit(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x1"})
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	cl, err := client.NewRPC(context.Background(), testlog.Logger(t, log.LevelInfo), srv.URL,
		client.WithRateLimit(1000, 1), client.WithCallTimeout(time.Second))
	require.NoError(t, err)
	defer cl.Close()
	require.IsType(t, &client.RateLimitingClient{}, cl)

	for i := 0; i < 3; i++ {
		var out string
		require.NoError(t, cl.CallContext(context.Background(), &out, "eth_chainId"))
		require.Equal(t, "0x1", out)
	}
	require.EqualValues(t, 3, hits.Load())
}

func TestNewRPCDialFailure(t *testing.T) {
	_, err := client.NewRPC(context.Background(), testlog.Logger(t, log.LevelInfo), "ws://127.0.0.1:0",
		client.WithDialAttempts(2), client.WithFixedDialBackoff(time.Millisecond), client.WithConnectTimeout(100*time.Millisecond))
	require.ErrorContains(t, err, "after 2 attempts")
}
