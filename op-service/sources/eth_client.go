// Package sources exports the clients used to access ethereum chain data.
//
// [EthClient] wraps an RPC client with bindings for the account and storage proof
// endpoints, block headers and contract calls.
package sources

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-service/client"
	"github.com/mantlenetworkio/ccip-gateway/op-service/eth"
	"github.com/mantlenetworkio/ccip-gateway/op-service/sources/caching"
)

type EthClientConfig struct {
	// limit concurrent requests, applies to the source as a whole. 0 disables the limit.
	MaxConcurrentRequests int

	// Number of block headers to cache, by number.
	// Only use with block numbers that cannot be reorged, e.g. blocks committed to L1.
	HeadersCacheSize int
}

func DefaultEthClientConfig() *EthClientConfig {
	return &EthClientConfig{
		MaxConcurrentRequests: 16,
		HeadersCacheSize:      128,
	}
}

func (c *EthClientConfig) Check() error {
	if c.MaxConcurrentRequests < 0 {
		return fmt.Errorf("invalid max concurrent requests: %d", c.MaxConcurrentRequests)
	}
	if c.HeadersCacheSize < 0 {
		return fmt.Errorf("invalid headers cache size: %d", c.HeadersCacheSize)
	}
	return nil
}

// EthClient retrieves ethereum data. Results are not verified, see [eth.AccountResult.Verify].
type EthClient struct {
	client client.RPC
	log    log.Logger

	headersCache *caching.OrderCache[*eth.BlockHeader]
}

// NewEthClient returns an [EthClient], wrapping an RPC with a [client.LimitRPC] when a
// concurrency limit is configured.
func NewEthClient(c client.RPC, log log.Logger, metrics caching.Metrics, config *EthClientConfig) (*EthClient, error) {
	if err := config.Check(); err != nil {
		return nil, fmt.Errorf("bad config, cannot create eth source: %w", err)
	}
	if config.MaxConcurrentRequests > 0 {
		c = client.LimitRPC(c, config.MaxConcurrentRequests)
	}
	return &EthClient{
		client:       c,
		log:          log,
		headersCache: caching.NewOrderCache[*eth.BlockHeader](metrics, "headers", config.HeadersCacheSize),
	}, nil
}

func blockNumberArg(number uint64) string {
	return hexutil.EncodeUint64(number)
}

// HeaderByNumber returns the header of the canonical block with the given number.
func (s *EthClient) HeaderByNumber(ctx context.Context, number uint64) (*eth.BlockHeader, error) {
	if h, ok := s.headersCache.Get(number); ok {
		return h, nil
	}
	var header *eth.BlockHeader
	err := s.client.CallContext(ctx, &header, "eth_getBlockByNumber", blockNumberArg(number), false)
	if err != nil {
		return nil, eth.MaybeAsNotFoundErr(err)
	}
	if header == nil {
		return nil, ethereum.NotFound
	}
	if uint64(header.Number) != number {
		return nil, fmt.Errorf("expected block %d, but RPC returned header of block %d", number, uint64(header.Number))
	}
	s.headersCache.Add(number, header)
	return header, nil
}

// GetProof returns an account proof result, with any optional requested storage proofs, at the given block.
// The retrieval does sanity-check that storage proofs for the expected keys are present in the response,
// but does not verify the result. Call accountResult.Verify(stateRoot) to verify the result.
func (s *EthClient) GetProof(ctx context.Context, address common.Address, storage []common.Hash, blockNumber uint64) (*eth.AccountResult, error) {
	if storage == nil {
		// strictly typed nodes reject a null key list
		storage = []common.Hash{}
	}
	var getProofResponse *eth.AccountResult
	err := s.client.CallContext(ctx, &getProofResponse, "eth_getProof", address, storage, blockNumberArg(blockNumber))
	if err != nil {
		return nil, eth.MaybeAsStateUnavailableErr(eth.MaybeAsNotFoundErr(err))
	}
	if getProofResponse == nil {
		return nil, ethereum.NotFound
	}
	if len(getProofResponse.StorageProof) != len(storage) {
		return nil, fmt.Errorf("missing storage proof data, got %d proof entries but requested %d storage keys", len(getProofResponse.StorageProof), len(storage))
	}
	for i, key := range storage {
		// nodes may strip leading zeroes of the key
		if got := getProofResponse.StorageProof[i].Slot(); !bytes.Equal(key[:], got[:]) {
			return nil, fmt.Errorf("unexpected storage proof key difference for entry %d: got %s but requested %s", i, getProofResponse.StorageProof[i].Key.String(), key)
		}
	}
	return getProofResponse, nil
}

// GetStorageAt returns the storage value at the given address and storage slot, **without verifying the correctness of the result**.
func (s *EthClient) GetStorageAt(ctx context.Context, address common.Address, storageSlot common.Hash, blockNumber uint64) (common.Hash, error) {
	var out common.Hash
	err := s.client.CallContext(ctx, &out, "eth_getStorageAt", address, storageSlot, blockNumberArg(blockNumber))
	return out, eth.MaybeAsStateUnavailableErr(err)
}

func ToCallArg(msg ethereum.CallMsg) any {
	arg := map[string]any{
		"from": msg.From,
		"to":   msg.To,
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	return arg
}

// Call executes a message call against the latest state, without creating a transaction.
func (s *EthClient) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var hex hexutil.Bytes
	err := s.client.CallContext(ctx, &hex, "eth_call", ToCallArg(msg), "latest")
	if err != nil {
		return nil, err
	}
	return hex, nil
}

func (s *EthClient) Close() {
	s.client.Close()
}
