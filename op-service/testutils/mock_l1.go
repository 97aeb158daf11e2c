package testutils

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertError is returned by mock contracts to simulate a reverted eth_call.
type RevertError struct {
	Reason string
	Data   hexutil.Bytes
}

func (e *RevertError) Error() string  { return "execution reverted: " + e.Reason }
func (e *RevertError) ErrorCode() int { return 3 }
func (e *RevertError) ErrorData() any { return e.Data }

// ContractFn answers eth_call calldata sent to a mock contract.
type ContractFn func(data []byte) ([]byte, error)

// MockL1 is an execution node that only answers eth_call, using registered contract functions.
type MockL1 struct {
	mu        sync.Mutex
	contracts map[common.Address]ContractFn
	callCount atomic.Int64
}

func NewMockL1() *MockL1 {
	return &MockL1{contracts: make(map[common.Address]ContractFn)}
}

func (m *MockL1) SetContract(addr common.Address, fn ContractFn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[addr] = fn
}

// CallCount returns the number of eth_call requests served.
func (m *MockL1) CallCount() int {
	return int(m.callCount.Load())
}

func (m *MockL1) Server() *rpc.Server {
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", &mockL1API{m: m}); err != nil {
		panic(err)
	}
	return srv
}

func (m *MockL1) DialInProc() *rpc.Client {
	return rpc.DialInProc(m.Server())
}

// StartHTTP serves the mock over HTTP. The caller must close the returned server.
func (m *MockL1) StartHTTP() *httptest.Server {
	return httptest.NewServer(m.Server())
}

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

type mockL1API struct {
	m *MockL1
}

func (api *mockL1API) Call(ctx context.Context, args callArgs, num rpc.BlockNumber) (hexutil.Bytes, error) {
	api.m.callCount.Add(1)
	if args.To == nil {
		return nil, errors.New("contract creation not supported")
	}
	api.m.mu.Lock()
	fn, ok := api.m.contracts[*args.To]
	api.m.mu.Unlock()
	if !ok {
		return hexutil.Bytes{}, nil // calls to accounts without code succeed with empty output
	}
	var data []byte
	if args.Input != nil {
		data = *args.Input
	} else if args.Data != nil {
		data = *args.Data
	}
	return fn(data)
}
