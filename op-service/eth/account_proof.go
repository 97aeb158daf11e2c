package eth

import (
	"bytes"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

type StorageProofEntry struct {
	Key   hexutil.Bytes   `json:"key"`
	Value hexutil.Big     `json:"value"`
	Proof []hexutil.Bytes `json:"proof"`
}

// Slot returns the key as a 32-byte storage slot. Nodes may drop leading zeroes of the requested key.
func (e *StorageProofEntry) Slot() common.Hash {
	return common.BytesToHash(e.Key)
}

// Word returns the proven value as a 32-byte word. Absent slots are the zero word.
func (e *StorageProofEntry) Word() common.Hash {
	return common.BigToHash(e.Value.ToInt())
}

// AccountResult is the eth_getProof response: an account proof and one storage proof per requested slot.
type AccountResult struct {
	AccountProof []hexutil.Bytes `json:"accountProof"`

	Address     common.Address `json:"address"`
	Balance     *hexutil.Big   `json:"balance"`
	CodeHash    common.Hash    `json:"codeHash"`
	Nonce       hexutil.Uint64 `json:"nonce"`
	StorageHash common.Hash    `json:"storageHash"`

	// Optional
	StorageProof []StorageProofEntry `json:"storageProof,omitempty"`
}

// Verify checks the account proof against the given state root,
// and every storage proof against the storage root of the account.
func (res *AccountResult) Verify(stateRoot common.Hash) error {
	for i := range res.StorageProof {
		entry := &res.StorageProof[i]
		slot := entry.Slot()
		if res.StorageHash == types.EmptyRootHash && len(entry.Proof) == 0 {
			if entry.Value.ToInt().Sign() != 0 {
				return fmt.Errorf("storage value %d with key %s is non-zero in an empty storage trie", i, slot)
			}
			continue
		}
		val, err := trie.VerifyProof(res.StorageHash, crypto.Keccak256(slot[:]), proofDB(entry.Proof))
		if err != nil {
			return fmt.Errorf("failed to verify storage value %d with key %s in storage trie %s: %w", i, slot, res.StorageHash, err)
		}
		value := entry.Value.ToInt()
		if val == nil && value.Sign() == 0 {
			continue // absent slots are zero
		}
		expected, err := rlp.EncodeToBytes(value.Bytes())
		if err != nil {
			return fmt.Errorf("failed to encode storage value %d: %w", i, err)
		}
		if !bytes.Equal(val, expected) {
			return fmt.Errorf("storage value %d with key %s does not match proof: claimed %x, proven %x", i, slot, expected, val)
		}
	}

	var balance uint256.Int
	if res.Balance != nil {
		if overflow := balance.SetFromBig(res.Balance.ToInt()); overflow {
			return fmt.Errorf("account balance %s overflows", res.Balance)
		}
	}
	account := types.StateAccount{
		Nonce:    uint64(res.Nonce),
		Balance:  &balance,
		Root:     res.StorageHash,
		CodeHash: res.CodeHash[:],
	}
	claimed, err := rlp.EncodeToBytes(&account)
	if err != nil {
		return fmt.Errorf("failed to encode account from retrieved values: %w", err)
	}
	proven, err := trie.VerifyProof(stateRoot, crypto.Keccak256(res.Address[:]), proofDB(res.AccountProof))
	if err != nil {
		return fmt.Errorf("failed to verify account value with key %s in state trie %s: %w", res.Address, stateRoot, err)
	}
	if proven == nil && isEmptyAccount(&account) {
		return nil
	}
	if !bytes.Equal(claimed, proven) {
		return fmt.Errorf("RPC is tricking us, account proof does not match provided deserialized values:\n"+
			"  claimed: %x\n"+
			"  proof:   %x", claimed, proven)
	}
	return nil
}

func isEmptyAccount(a *types.StateAccount) bool {
	return a.Nonce == 0 && a.Balance.IsZero() && a.Root == types.EmptyRootHash &&
		(common.BytesToHash(a.CodeHash) == types.EmptyCodeHash || common.BytesToHash(a.CodeHash) == common.Hash{})
}

// proofDB loads MPT nodes keyed by their hash.
func proofDB(nodes []hexutil.Bytes) *memorydb.Database {
	db := memorydb.New()
	for _, node := range nodes {
		_ = db.Put(crypto.Keccak256(node), node) // memorydb only fails once closed
	}
	return db
}

// NodesToBytes converts proof nodes to plain byte slices.
func NodesToBytes(nodes []hexutil.Bytes) [][]byte {
	out := make([][]byte, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}
