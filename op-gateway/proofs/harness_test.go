package proofs

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-service/client"
	"github.com/mantlenetworkio/ccip-gateway/op-service/eth"
	opmetrics "github.com/mantlenetworkio/ccip-gateway/op-service/metrics"
	"github.com/mantlenetworkio/ccip-gateway/op-service/predeploys"
	"github.com/mantlenetworkio/ccip-gateway/op-service/sources"
	"github.com/mantlenetworkio/ccip-gateway/op-service/testlog"
	"github.com/mantlenetworkio/ccip-gateway/op-service/testutils"
)

var (
	testPortal     = common.HexToAddress("0x16Fc5058F25648194471939df75CF27A2fdC48BC")
	testTarget     = common.HexToAddress("0x000000000000000000000000000000000000C0DE")
	testLookupAddr = common.HexToAddress(DefaultOutputLookupAddress)
)

const testBlock = 100

type testMetrics struct {
	opmetrics.NoopRPCClientMetrics
	sources atomic.Int64
}

func (m *testMetrics) CacheAdd(string, int, bool) {}
func (m *testMetrics) CacheGet(string, bool) {}
func (m *testMetrics) RecordL2Sources(count int) { m.sources.Store(int64(count)) }
func (m *testMetrics) RecordProofs(int, time.Duration) {}
func (m *testMetrics) RecordProvenBlock(common.Address, uint64) {}

var _ RegistryMetricer = (*testMetrics)(nil)
var _ Metricer = (*testMetrics)(nil)

// lookupResult is the answer of the mock OPOutputLookup contract.
type lookupResult struct {
	proofType  uint8
	index      int64
	number     uint64
	outputRoot common.Hash
}

func (r lookupResult) contract() testutils.ContractFn {
	return func(data []byte) ([]byte, error) {
		var (
			portal         common.Address
			minAge, maxAge *big.Int
		)
		if err := getOPProvableBlockFunc.DecodeArgs(data, &portal, &minAge, &maxAge); err != nil {
			return nil, err
		}
		if maxAge.Uint64() != MaxDisputeWindow {
			return nil, &testutils.RevertError{Reason: "unexpected max age"}
		}
		if portal != testPortal {
			return nil, &testutils.RevertError{Reason: "OPOutputLookup: portal not found"}
		}
		return getOPProvableBlockFunc.Returns.Pack(r.proofType, big.NewInt(r.index), new(big.Int).SetUint64(r.number), r.outputRoot)
	}
}

type testEnv struct {
	l1       *testutils.MockL1
	l2       *testutils.MockL2
	header   *types.Header
	storage  testutils.Storage
	output   *eth.OutputV0
	lookup   *OutputLookup
	registry *Registry
	m        *testMetrics
}

func newL1Lookup(t *testing.T, l1 *testutils.MockL1) *OutputLookup {
	lgr := testlog.Logger(t, log.LevelDebug)
	fallback, err := client.NewFallbackRPC(lgr, []client.Endpoint{{Name: "l1_0", RPC: client.NewBaseRPCClient(l1.DialInProc())}}, time.Second, nil)
	require.NoError(t, err)
	l1Client, err := sources.NewEthClient(fallback, lgr, nil, &sources.EthClientConfig{})
	require.NoError(t, err)
	t.Cleanup(l1Client.Close)
	return NewOutputLookup(lgr, l1Client, testLookupAddr)
}

func inProcDial(l2 *testutils.MockL2) DialFunc {
	return func(ctx context.Context, log log.Logger, endpoint string) (client.RPC, error) {
		return client.NewBaseRPCClient(l2.DialInProc()), nil
	}
}

func newTestEnv(t *testing.T) *testEnv {
	storage := testutils.Storage{}
	storage.SetUint(testutils.SlotOf(0), 42)
	storage.SetString(testutils.SlotOf(1), "Satoshi")
	passerStorage := testutils.Storage{}
	passerStorage.SetUint(testutils.SlotOf(0), 1)

	l2 := testutils.NewMockL2()
	header := l2.AddBlock(testBlock, map[common.Address]testutils.Account{
		testTarget:                         {Nonce: 1, Storage: storage},
		predeploys.L2ToL1MessagePasserAddr: {Nonce: 1, Storage: passerStorage},
	})

	lgr := testlog.Logger(t, log.LevelDebug)
	l2Client, err := sources.NewEthClient(client.NewBaseRPCClient(l2.DialInProc()), lgr, nil, &sources.EthClientConfig{})
	require.NoError(t, err)
	defer l2Client.Close()
	passer, err := l2Client.GetProof(context.Background(), predeploys.L2ToL1MessagePasserAddr, nil, testBlock)
	require.NoError(t, err)
	output := &eth.OutputV0{
		StateRoot:                header.Root,
		MessagePasserStorageRoot: passer.StorageHash,
		BlockHash:                header.Hash(),
	}

	l1 := testutils.NewMockL1()
	l1.SetContract(testLookupAddr, lookupResult{proofType: 1, index: 7, number: testBlock, outputRoot: output.OutputRoot()}.contract())

	m := &testMetrics{}
	registry, err := NewRegistry(lgr, RegistryConfig{ProofBatchSize: 2}, m,
		WithGetenv(func(key string) string {
			if key == EnvPrefix+testPortal.Hex() {
				return "inproc"
			}
			return ""
		}),
		WithDial(inProcDial(l2)))
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	return &testEnv{
		l1:       l1,
		l2:       l2,
		header:   header,
		storage:  storage,
		output:   output,
		lookup:   newL1Lookup(t, l1),
		registry: registry,
		m:        m,
	}
}

func (e *testEnv) service(t *testing.T, trustRPC bool) *Service {
	return NewService(testlog.Logger(t, log.LevelDebug), e.lookup, e.registry, ServiceConfig{TrustRPC: trustRPC}, e.m)
}
