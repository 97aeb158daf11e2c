package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lmittmann/w3"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/config"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/evmgateway"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/proofs"
	"github.com/mantlenetworkio/ccip-gateway/op-service/client"
	"github.com/mantlenetworkio/ccip-gateway/op-service/eth"
	"github.com/mantlenetworkio/ccip-gateway/op-service/predeploys"
	"github.com/mantlenetworkio/ccip-gateway/op-service/sources"
	"github.com/mantlenetworkio/ccip-gateway/op-service/testlog"
	"github.com/mantlenetworkio/ccip-gateway/op-service/testutils"
)

var (
	testPortal = common.HexToAddress("0x2a5D0cB1D5E2B6F8A6f8c4b9e0e56a5B7a0C1d3e")
	testTarget = common.HexToAddress("0x000000000000000000000000000000000000C0DE")
	testSender = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

	getOPProvableBlock = w3.MustNewFunc(
		"getOPProvableBlock(address optimismPortal, uint256 minAge, uint256 maxAge)",
		"uint8 proofType, uint256 index, uint256 blockNumber, bytes32 outputRoot",
	)
)

const testBlock = 12

// startChains serves an L1 with the output lookup contract and an L2 with a contract holding 42 in slot 0.
func startChains(t *testing.T) (l1URL string, l2URL string) {
	storage := testutils.Storage{}
	storage.SetUint(testutils.SlotOf(0), 42)
	l2 := testutils.NewMockL2()
	header := l2.AddBlock(testBlock, map[common.Address]testutils.Account{
		testTarget:                         {Nonce: 1, Storage: storage},
		predeploys.L2ToL1MessagePasserAddr: {Nonce: 1},
	})
	l2Srv := l2.StartHTTP()
	t.Cleanup(l2Srv.Close)

	l2Client, err := sources.NewEthClient(client.NewBaseRPCClient(l2.DialInProc()), testlog.Logger(t, log.LevelInfo), nil, &sources.EthClientConfig{})
	require.NoError(t, err)
	defer l2Client.Close()
	passer, err := l2Client.GetProof(context.Background(), predeploys.L2ToL1MessagePasserAddr, nil, testBlock)
	require.NoError(t, err)
	output := &eth.OutputV0{StateRoot: header.Root, MessagePasserStorageRoot: passer.StorageHash, BlockHash: header.Hash()}

	l1 := testutils.NewMockL1()
	l1.SetContract(common.HexToAddress(proofs.DefaultOutputLookupAddress), func(data []byte) ([]byte, error) {
		var (
			portal         common.Address
			minAge, maxAge *big.Int
		)
		if err := getOPProvableBlock.DecodeArgs(data, &portal, &minAge, &maxAge); err != nil {
			return nil, err
		}
		if portal != testPortal {
			return nil, &testutils.RevertError{Reason: "OPOutputLookup: portal not found"}
		}
		return getOPProvableBlock.Returns.Pack(uint8(1), big.NewInt(3), big.NewInt(testBlock), output.OutputRoot())
	})
	l1Srv := l1.StartHTTP()
	t.Cleanup(l1Srv.Close)
	return l1Srv.URL, l2Srv.URL
}

func testConfig(t *testing.T, l1URL string, l2URL string) *config.Config {
	registryPath := filepath.Join(t.TempDir(), "chains.yaml")
	registry := fmt.Sprintf("chains:\n  - name: devnet\n    portal: \"%s\"\n    rpc: %s\n", testPortal.Hex(), l2URL)
	require.NoError(t, os.WriteFile(registryPath, []byte(registry), 0o644))

	cfg := config.DefaultCLIConfig()
	cfg.Version = "v0.0.1"
	cfg.L1.RPCs = []string{l1URL}
	cfg.L2.RegistryPath = registryPath
	cfg.RPC.ListenAddr = "127.0.0.1"
	cfg.RPC.ListenPort = 0
	cfg.MetricsConfig.Enabled = true
	cfg.MetricsConfig.ListenAddr = "127.0.0.1"
	cfg.MetricsConfig.ListenPort = 0
	cfg.PprofConfig.ListenEnabled = true
	cfg.PprofConfig.ListenAddr = "127.0.0.1"
	cfg.PprofConfig.ListenPort = 0
	require.NoError(t, cfg.Check())
	return cfg
}

// TestService is a quick smoke-test to check the service is up and running
func TestService(t *testing.T) {
	l1URL, l2URL := startChains(t)
	cfg := testConfig(t, l1URL, l2URL)
	logger := testlog.Logger(t, log.LevelInfo)

	srv, err := FromConfig(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	require.NotEmpty(t, srv.HTTPEndpoint())
	require.NotEmpty(t, srv.MetricsEndpoint())
	require.False(t, srv.Stopped())

	httpClient := &http.Client{Timeout: 10 * time.Second}

	resp, err := httpClient.Get(srv.HTTPEndpoint() + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	cmd, err := evmgateway.NewCommand(0, evmgateway.Constant(0))
	require.NoError(t, err)
	slot := testutils.SlotOf(0)
	callData, err := evmgateway.ABI().Pack("getStorageSlots", testTarget, [][32]byte{cmd}, [][]byte{slot[:]})
	require.NoError(t, err)

	url := fmt.Sprintf("%s/%s/0/%s/%s.json", srv.HTTPEndpoint(), testPortal.Hex(), testSender.Hex(), hexutil.Encode(callData))
	resp, err = httpClient.Get(url)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		Data hexutil.Bytes `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	values, err := evmgateway.ABI().Methods["getStorageSlots"].Outputs.Unpack(out.Data)
	require.NoError(t, err)
	witness := values[0].([]byte)
	require.Greater(t, len(witness), 7*32)
	require.Equal(t, byte(1), witness[31], "proof type")
	require.Equal(t, byte(3), witness[63], "index")

	unknownPortal := common.HexToAddress("0x1234567890123456789012345678901234567890")
	url = fmt.Sprintf("%s/%s/0/%s/%s.json", srv.HTTPEndpoint(), unknownPortal.Hex(), testSender.Hex(), hexutil.Encode(callData))
	resp, err = httpClient.Get(url)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp, err = httpClient.Get(srv.MetricsEndpoint() + "/metrics")
	require.NoError(t, err)
	metrics, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Contains(t, string(metrics), "op_gateway_default_up 1")

	require.NotEmpty(t, srv.PprofEndpoint())
	resp, err = httpClient.Get(srv.PprofEndpoint() + "/debug/pprof/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	require.NoError(t, srv.Stop(context.Background()))
	require.True(t, srv.Stopped())
}

func TestServiceInvalidRegistry(t *testing.T) {
	l1URL, _ := startChains(t)
	cfg := testConfig(t, l1URL, "http://127.0.0.1:1")
	cfg.L2.RegistryPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := FromConfig(context.Background(), cfg, testlog.Logger(t, log.LevelInfo))
	require.ErrorContains(t, err, "failed to init L2 registry")
}
