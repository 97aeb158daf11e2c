package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BlockHeader holds the header fields of an eth_getBlockByNumber response that proofs are anchored to.
// The hash is taken from the RPC as-is. Proofs are bound to it through the output root.
type BlockHeader struct {
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Number     hexutil.Uint64 `json:"number"`
	Root       common.Hash    `json:"stateRoot"`
	Time       hexutil.Uint64 `json:"timestamp"`
}

func (h *BlockHeader) ID() BlockID {
	return BlockID{Hash: h.Hash, Number: uint64(h.Number)}
}

// BlockID identifies a block by hash and number.
type BlockID struct {
	Hash   common.Hash `json:"hash"`
	Number uint64      `json:"number"`
}

func (id BlockID) String() string {
	return fmt.Sprintf("%s:%d", id.Hash.String(), id.Number)
}

// TerminalString implements log.TerminalStringer, formatting a string for console output during logging.
func (id BlockID) TerminalString() string {
	return fmt.Sprintf("%s:%d", id.Hash.TerminalString(), id.Number)
}
