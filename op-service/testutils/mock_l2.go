package testutils

import (
	"context"
	"fmt"
	"math/big"
	"net/http/httptest"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"

	"github.com/mantlenetworkio/ccip-gateway/op-service/eth"
)

// Account is the state of an account in a MockL2 block.
type Account struct {
	Nonce   uint64
	Balance uint64
	Storage Storage
}

type mockAccount struct {
	state   types.StateAccount
	storage *trie.Trie
	values  Storage
}

type mockBlock struct {
	header   *types.Header
	state    *trie.Trie
	accounts map[common.Address]*mockAccount
}

// MockL2 is an in-memory execution node, serving real Merkle-Patricia proofs of its state.
// It records the RPC calls it serves, for assertions on call ordering.
type MockL2 struct {
	mu     sync.Mutex
	blocks map[uint64]*mockBlock
	calls  []string

	// BeforeCall, if set, runs before every served RPC call.
	BeforeCall func(method string)
}

func NewMockL2() *MockL2 {
	return &MockL2{blocks: make(map[uint64]*mockBlock)}
}

func newTrie() *trie.Trie {
	return trie.NewEmpty(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil))
}

// AddBlock builds the state tries of a block and returns its header.
func (m *MockL2) AddBlock(number uint64, accounts map[common.Address]Account) *types.Header {
	m.mu.Lock()
	defer m.mu.Unlock()

	block := &mockBlock{state: newTrie(), accounts: make(map[common.Address]*mockAccount)}
	for addr, acc := range accounts {
		storage := newTrie()
		for slot, value := range acc.Storage {
			if value == (common.Hash{}) {
				continue
			}
			enc, err := rlp.EncodeToBytes(common.TrimLeftZeroes(value[:]))
			if err != nil {
				panic(err)
			}
			if err := storage.Update(crypto.Keccak256(slot[:]), enc); err != nil {
				panic(err)
			}
		}
		ma := &mockAccount{
			state: types.StateAccount{
				Nonce:    acc.Nonce,
				Balance:  uint256.NewInt(acc.Balance),
				Root:     storage.Hash(),
				CodeHash: types.EmptyCodeHash[:],
			},
			storage: storage,
			values:  acc.Storage,
		}
		enc, err := rlp.EncodeToBytes(&ma.state)
		if err != nil {
			panic(err)
		}
		if err := block.state.Update(crypto.Keccak256(addr[:]), enc); err != nil {
			panic(err)
		}
		block.accounts[addr] = ma
	}
	block.header = &types.Header{
		ParentHash: common.Hash{byte(number)},
		Number:     new(big.Int).SetUint64(number),
		Root:       block.state.Hash(),
		Difficulty: common.Big0,
		GasLimit:   30_000_000,
		Time:       1_700_000_000 + number*2,
	}
	m.blocks[number] = block
	return block.header
}

// Calls returns the served RPC calls, in order.
func (m *MockL2) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockL2) record(method string, detail string) {
	if m.BeforeCall != nil {
		m.BeforeCall(method)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method+":"+detail)
}

func (m *MockL2) block(num rpc.BlockNumber) (*mockBlock, error) {
	if num < 0 {
		var latest uint64
		for n := range m.blocks {
			latest = max(latest, n)
		}
		num = rpc.BlockNumber(latest)
	}
	b, ok := m.blocks[uint64(num)]
	if !ok {
		return nil, fmt.Errorf("header not found: %d", num)
	}
	return b, nil
}

// Server returns a JSON-RPC server exposing the eth namespace of the mock.
func (m *MockL2) Server() *rpc.Server {
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", &mockL2API{m: m}); err != nil {
		panic(err)
	}
	return srv
}

// DialInProc returns an in-process client of the mock.
func (m *MockL2) DialInProc() *rpc.Client {
	return rpc.DialInProc(m.Server())
}

// StartHTTP serves the mock over HTTP. The caller must close the returned server.
func (m *MockL2) StartHTTP() *httptest.Server {
	return httptest.NewServer(m.Server())
}

type proofList []hexutil.Bytes

func (l *proofList) Put(key []byte, value []byte) error {
	*l = append(*l, common.CopyBytes(value))
	return nil
}

func (l *proofList) Delete(key []byte) error {
	panic("not supported")
}

type mockL2API struct {
	m *MockL2
}

func (api *mockL2API) GetProof(ctx context.Context, address common.Address, keys []common.Hash, num rpc.BlockNumber) (*eth.AccountResult, error) {
	api.m.record("eth_getProof", fmt.Sprintf("%s@%d%v", address, num, keys))
	api.m.mu.Lock()
	defer api.m.mu.Unlock()
	b, err := api.m.block(num)
	if err != nil {
		return nil, err
	}
	var accountProof proofList
	if err := b.state.Prove(crypto.Keccak256(address[:]), &accountProof); err != nil {
		return nil, err
	}
	res := &eth.AccountResult{
		AccountProof: accountProof,
		Address:      address,
		Balance:      (*hexutil.Big)(common.Big0),
		StorageHash:  types.EmptyRootHash,
		StorageProof: make([]eth.StorageProofEntry, 0, len(keys)),
	}
	acc, ok := b.accounts[address]
	if ok {
		res.Balance = (*hexutil.Big)(acc.state.Balance.ToBig())
		res.Nonce = hexutil.Uint64(acc.state.Nonce)
		res.CodeHash = common.BytesToHash(acc.state.CodeHash)
		res.StorageHash = acc.state.Root
	}
	for _, key := range keys {
		entry := eth.StorageProofEntry{Key: key[:], Proof: []hexutil.Bytes{}}
		if ok {
			var storageProof proofList
			if err := acc.storage.Prove(crypto.Keccak256(key[:]), &storageProof); err != nil {
				return nil, err
			}
			entry.Proof = storageProof
			entry.Value = hexutil.Big(*acc.values[key].Big())
		}
		res.StorageProof = append(res.StorageProof, entry)
	}
	return res, nil
}

func (api *mockL2API) GetStorageAt(ctx context.Context, address common.Address, key common.Hash, num rpc.BlockNumber) (hexutil.Bytes, error) {
	api.m.record("eth_getStorageAt", fmt.Sprintf("%s@%d[%s]", address, num, key))
	api.m.mu.Lock()
	defer api.m.mu.Unlock()
	b, err := api.m.block(num)
	if err != nil {
		return nil, err
	}
	var out common.Hash
	if acc, ok := b.accounts[address]; ok {
		out = acc.values[key]
	}
	return out[:], nil
}

func (api *mockL2API) GetBlockByNumber(ctx context.Context, num rpc.BlockNumber, fullTx bool) (map[string]any, error) {
	api.m.record("eth_getBlockByNumber", fmt.Sprintf("%d", num))
	api.m.mu.Lock()
	defer api.m.mu.Unlock()
	b, err := api.m.block(num)
	if err != nil {
		return nil, nil // nodes answer null for unknown blocks
	}
	h := b.header
	return map[string]any{
		"hash":       h.Hash(),
		"parentHash": h.ParentHash,
		"number":     (*hexutil.Big)(h.Number),
		"stateRoot":  h.Root,
		"timestamp":  hexutil.Uint64(h.Time),
		"gasLimit":   hexutil.Uint64(h.GasLimit),
	}, nil
}

// SortedCalls returns the served calls of one method, sorted, for order-independent assertions.
func (m *MockL2) SortedCalls(method string) []string {
	var out []string
	for _, c := range m.Calls() {
		if len(c) > len(method) && c[:len(method)+1] == method+":" {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
