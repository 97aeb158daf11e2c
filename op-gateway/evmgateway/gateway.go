// Package evmgateway answers getStorageSlots lookups: it resolves storage paths of an L2 contract
// to slots, and proves them against an output root committed to on L1.
package evmgateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/ccip"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/proofs"
)

const DefaultMaxStorageSlots = 512

const gatewayABIJSON = `[{
	"type": "function",
	"name": "getStorageSlots",
	"stateMutability": "view",
	"inputs": [
		{"name": "addr", "type": "address"},
		{"name": "commands", "type": "bytes32[]"},
		{"name": "constants", "type": "bytes[]"}
	],
	"outputs": [
		{"name": "witness", "type": "bytes"}
	]
}]`

var gatewayABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(gatewayABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// ABI returns the interface of the gateway, as called by the L1 verifier.
func ABI() abi.ABI {
	return gatewayABI
}

// ProofService resolves provable blocks, reads storage and proves it.
type ProofService interface {
	ProvableBlock(ctx context.Context, portal common.Address, minAge uint64) (*proofs.ProvableBlock, error)
	ReadSlot(ctx context.Context, block *proofs.ProvableBlock, address common.Address, slot common.Hash) (common.Hash, error)
	Proofs(ctx context.Context, block *proofs.ProvableBlock, address common.Address, slots []common.Hash) ([]byte, error)
}

type Metricer interface {
	RecordStorageRequest(commands int, slots int)
}

type Config struct {
	// MaxStorageSlots bounds the number of slots a single request may prove.
	MaxStorageSlots int
}

type Gateway struct {
	log log.Logger
	svc ProofService
	cfg Config
	m   Metricer
}

func NewGateway(log log.Logger, svc ProofService, cfg Config, m Metricer) *Gateway {
	if cfg.MaxStorageSlots <= 0 {
		cfg.MaxStorageSlots = DefaultMaxStorageSlots
	}
	return &Gateway{log: log, svc: svc, cfg: cfg, m: m}
}

// Register adds the getStorageSlots handler to the router.
func (g *Gateway) Register(r *ccip.Router) error {
	return r.Register(gatewayABI, ccip.Handler{Function: "getStorageSlots", Fn: g.getStorageSlots})
}

func (g *Gateway) getStorageSlots(ctx context.Context, args []ccip.Value, req *ccip.Request) ([]ccip.Value, error) {
	addr, err := args[0].Address()
	if err != nil {
		return nil, fmt.Errorf("addr: %w", err)
	}
	cmdValues, err := args[1].Elems()
	if err != nil {
		return nil, fmt.Errorf("commands: %w", err)
	}
	commands := make([]Command, len(cmdValues))
	for i, v := range cmdValues {
		b, err := v.Bytes()
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		copy(commands[i][:], b)
	}
	constValues, err := args[2].Elems()
	if err != nil {
		return nil, fmt.Errorf("constants: %w", err)
	}
	constants := make([][]byte, len(constValues))
	for i, v := range constValues {
		if constants[i], err = v.Bytes(); err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
	}

	witness, err := g.StorageProof(ctx, req.Portal, req.MinAge, addr, commands, constants)
	if err != nil {
		return nil, err
	}
	return []ccip.Value{ccip.Bytes(witness)}, nil
}

// StorageProof proves the storage the commands point to, in the contract at address,
// at the latest block of the portal's chain that is at least minAge seconds old.
func (g *Gateway) StorageProof(ctx context.Context, portal common.Address, minAge uint64, address common.Address,
	commands []Command, constants [][]byte) ([]byte, error) {
	block, err := g.svc.ProvableBlock(ctx, portal, minAge)
	if err != nil {
		return nil, err
	}
	slots, err := g.storageSlots(ctx, block, address, commands, constants)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage slots of %s at block %d: %w", address, block.Number, err)
	}
	g.m.RecordStorageRequest(len(commands), len(slots))
	g.log.Debug("Resolved storage slots", "portal", portal, "block", block.Number, "address", address,
		"commands", len(commands), "slots", len(slots))
	return g.svc.Proofs(ctx, block, address, slots)
}
