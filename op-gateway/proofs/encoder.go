package proofs

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/ccip-gateway/op-service/eth"
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	// abi.encode(bytes[] nodes), the encoding of a single Merkle-Patricia witness
	witnessArgs = abi.Arguments{{Type: mustType("bytes[]", nil)}}

	// abi.encode(witnessData, stateProof), as decoded by the L1 verifier
	proofArgs = abi.Arguments{
		{Name: "witnessData", Type: mustType("tuple", []abi.ArgumentMarshaling{
			{Name: "proofType", Type: "uint8"},
			{Name: "index", Type: "uint256"},
			{Name: "outputRootProof", Type: "tuple", Components: []abi.ArgumentMarshaling{
				{Name: "version", Type: "bytes32"},
				{Name: "stateRoot", Type: "bytes32"},
				{Name: "messagePasserStorageRoot", Type: "bytes32"},
				{Name: "latestBlockhash", Type: "bytes32"},
			}},
		})},
		{Name: "stateProof", Type: mustType("tuple", []abi.ArgumentMarshaling{
			{Name: "stateTrieWitness", Type: "bytes"},
			{Name: "storageProofs", Type: "bytes[]"},
		})},
	}
)

type outputRootProof struct {
	Version                  common.Hash
	StateRoot                common.Hash
	MessagePasserStorageRoot common.Hash
	LatestBlockhash          common.Hash
}

type witnessData struct {
	ProofType       uint8
	Index           *big.Int
	OutputRootProof outputRootProof
}

type stateProof struct {
	StateTrieWitness []byte
	StorageProofs    [][]byte
}

func encodeWitness(nodes [][]byte) ([]byte, error) {
	if nodes == nil {
		nodes = [][]byte{}
	}
	return witnessArgs.Pack(nodes)
}

// EncodeProof encodes the proof of the storage slots of one account at the block committed to by output.
// Storage proofs are encoded in the order of proof.StorageProof.
func EncodeProof(block *ProvableBlock, output *eth.OutputV0, proof *eth.AccountResult) ([]byte, error) {
	accountWitness, err := encodeWitness(eth.NodesToBytes(proof.AccountProof))
	if err != nil {
		return nil, fmt.Errorf("failed to encode account witness: %w", err)
	}
	storageProofs := make([][]byte, len(proof.StorageProof))
	for i, entry := range proof.StorageProof {
		storageProofs[i], err = encodeWitness(eth.NodesToBytes(entry.Proof))
		if err != nil {
			return nil, fmt.Errorf("failed to encode storage witness %d: %w", i, err)
		}
	}
	index := block.Index
	if index == nil {
		index = new(big.Int)
	}
	return proofArgs.Pack(
		witnessData{
			ProofType: uint8(block.ProofType),
			Index:     index,
			OutputRootProof: outputRootProof{
				Version:                  output.Version(),
				StateRoot:                output.StateRoot,
				MessagePasserStorageRoot: output.MessagePasserStorageRoot,
				LatestBlockhash:          output.BlockHash,
			},
		},
		stateProof{
			StateTrieWitness: accountWitness,
			StorageProofs:    storageProofs,
		},
	)
}
