package eth

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidOutput        = errors.New("invalid output")
	ErrInvalidOutputVersion = errors.New("invalid output version")

	OutputVersionV0 = common.Hash{}
)

// OutputV0 is the preimage of a version 0 L2 output root, as committed to on L1.
type OutputV0 struct {
	StateRoot                common.Hash `json:"stateRoot"`
	MessagePasserStorageRoot common.Hash `json:"messagePasserStorageRoot"`
	BlockHash                common.Hash `json:"blockHash"`
}

func (o *OutputV0) Version() common.Hash {
	return OutputVersionV0
}

// Marshal returns version ++ stateRoot ++ messagePasserStorageRoot ++ blockHash.
func (o *OutputV0) Marshal() []byte {
	var buf [128]byte
	version := o.Version()
	copy(buf[:32], version[:])
	copy(buf[32:], o.StateRoot[:])
	copy(buf[64:], o.MessagePasserStorageRoot[:])
	copy(buf[96:], o.BlockHash[:])
	return buf[:]
}

// OutputRoot returns the keccak256 commitment of the output.
func (o *OutputV0) OutputRoot() common.Hash {
	return crypto.Keccak256Hash(o.Marshal())
}

// UnmarshalOutput decodes a marshaled output, the only known version being 0.
func UnmarshalOutput(data []byte) (*OutputV0, error) {
	if len(data) < 32 {
		return nil, ErrInvalidOutput
	}
	if common.BytesToHash(data[:32]) != OutputVersionV0 {
		return nil, fmt.Errorf("%w: %x", ErrInvalidOutputVersion, data[:32])
	}
	if len(data) != 128 {
		return nil, fmt.Errorf("%w: expected 128 bytes, got %d", ErrInvalidOutput, len(data))
	}
	var out OutputV0
	copy(out.StateRoot[:], data[32:64])
	copy(out.MessagePasserStorageRoot[:], data[64:96])
	copy(out.BlockHash[:], data[96:])
	return &out, nil
}
