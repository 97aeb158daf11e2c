package testutils

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Storage is a contract storage layout under construction, following the Solidity layout rules.
type Storage map[common.Hash]common.Hash

func SlotOf(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n))
}

// MappingSlot is the slot of mapping[key] for a mapping declared at slot.
// Value-type keys must be passed as their 32-byte word, string and bytes keys as raw bytes.
func MappingSlot(key []byte, slot common.Hash) common.Hash {
	return crypto.Keccak256Hash(key, slot[:])
}

func (s Storage) SetUint(slot common.Hash, v uint64) {
	s[slot] = SlotOf(v)
}

// SetString stores a string or bytes value: inline with length*2 in the last byte when shorter than 32 bytes,
// otherwise length*2+1 in the slot and the data in consecutive slots from keccak256(slot).
func (s Storage) SetString(slot common.Hash, v string) {
	data := []byte(v)
	if len(data) < 32 {
		var word common.Hash
		copy(word[:], data)
		word[31] = byte(len(data) * 2)
		s[slot] = word
		return
	}
	s[slot] = SlotOf(uint64(len(data)*2 + 1))
	base := new(uint256.Int).SetBytes(crypto.Keccak256(slot[:]))
	for i := 0; i*32 < len(data); i++ {
		var word common.Hash
		copy(word[:], data[i*32:])
		pos := new(uint256.Int).AddUint64(base, uint64(i))
		s[common.Hash(pos.Bytes32())] = word
	}
}
