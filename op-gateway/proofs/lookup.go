package proofs

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/lmittmann/w3"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-service/client"
)

const (
	// DefaultOutputLookupAddress is the deterministic deployment address of the OPOutputLookup contract.
	DefaultOutputLookupAddress = "0x475dc200b71dbd9776518C299e281766FaDf4A30"

	// MaxDisputeWindow is the maximum age, in seconds, of a block to prove against: 15 days.
	MaxDisputeWindow = 1296000
)

var getOPProvableBlockFunc = w3.MustNewFunc(
	"getOPProvableBlock(address optimismPortal, uint256 minAge, uint256 maxAge)",
	"uint8 proofType, uint256 index, uint256 blockNumber, bytes32 outputRoot",
)

// ProofType is how the output root of a ProvableBlock is committed to on L1.
type ProofType uint8

const (
	ProofTypeL2OutputOracle ProofType = 0
	ProofTypeDisputeGame    ProofType = 1
)

func (t ProofType) String() string {
	switch t {
	case ProofTypeL2OutputOracle:
		return "l2-output-oracle"
	case ProofTypeDisputeGame:
		return "dispute-game"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ProvableBlock is an L2 block whose output root is committed to on L1.
// Reads for a proof must be pinned to Number.
type ProvableBlock struct {
	Number    uint64
	ProofType ProofType
	// Index is the output index or dispute game index, depending on ProofType.
	Index      *big.Int
	Portal     common.Address
	OutputRoot common.Hash
}

// L1Caller executes contract calls on L1.
type L1Caller interface {
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// OutputLookup resolves provable blocks with the OPOutputLookup contract.
type OutputLookup struct {
	log    log.Logger
	l1     L1Caller
	lookup common.Address
}

func NewOutputLookup(log log.Logger, l1 L1Caller, lookup common.Address) *OutputLookup {
	return &OutputLookup{log: log, l1: l1, lookup: lookup}
}

// ProvableBlock returns the most recent block of the portal's chain that is at least minAge seconds old,
// and not older than the dispute window.
func (o *OutputLookup) ProvableBlock(ctx context.Context, portal common.Address, minAge uint64) (*ProvableBlock, error) {
	if minAge > MaxDisputeWindow {
		return nil, &PortalLookupError{Portal: portal, MinAge: minAge,
			Err: fmt.Errorf("min age exceeds the dispute window of %d seconds", MaxDisputeWindow)}
	}
	input, err := getOPProvableBlockFunc.EncodeArgs(portal, new(big.Int).SetUint64(minAge), big.NewInt(MaxDisputeWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to encode lookup call: %w", err)
	}
	output, err := o.l1.Call(ctx, ethereum.CallMsg{To: &o.lookup, Data: input})
	if err != nil {
		if !client.IsRetryable(err) {
			return nil, &PortalLookupError{Portal: portal, MinAge: minAge, Err: err}
		}
		return nil, fmt.Errorf("failed to call output lookup: %w", err)
	}

	var (
		proofType   uint8
		index       *big.Int
		blockNumber *big.Int
		outputRoot  common.Hash
	)
	if err := getOPProvableBlockFunc.DecodeReturns(output, &proofType, &index, &blockNumber, &outputRoot); err != nil {
		return nil, &PortalLookupError{Portal: portal, MinAge: minAge, Err: fmt.Errorf("invalid lookup result: %w", err)}
	}
	pt := ProofType(proofType)
	if pt != ProofTypeL2OutputOracle && pt != ProofTypeDisputeGame {
		return nil, &PortalLookupError{Portal: portal, MinAge: minAge, Err: fmt.Errorf("unknown proof type %d", proofType)}
	}
	if !blockNumber.IsUint64() {
		return nil, &PortalLookupError{Portal: portal, MinAge: minAge, Err: errors.New("block number out of range")}
	}
	block := &ProvableBlock{
		Number:     blockNumber.Uint64(),
		ProofType:  pt,
		Index:      index,
		Portal:     portal,
		OutputRoot: outputRoot,
	}
	o.log.Debug("Resolved provable block", "portal", portal, "minAge", minAge,
		"number", block.Number, "proofType", pt, "index", index)
	return block, nil
}
