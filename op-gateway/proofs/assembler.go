package proofs

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-service/eth"
)

const DefaultProofBatchSize = 64

// StateSource is the L2 state access the Assembler needs.
type StateSource interface {
	GetProof(ctx context.Context, address common.Address, storage []common.Hash, blockNumber uint64) (*eth.AccountResult, error)
	GetStorageAt(ctx context.Context, address common.Address, storageSlot common.Hash, blockNumber uint64) (common.Hash, error)
	HeaderByNumber(ctx context.Context, number uint64) (*eth.BlockHeader, error)
}

// Assembler reads storage and collects account and storage proofs of one L2 chain.
// It knows nothing about storage layouts: slots are computed by the caller.
type Assembler struct {
	log       log.Logger
	src       StateSource
	batchSize int
}

func NewAssembler(log log.Logger, src StateSource, batchSize int) *Assembler {
	if batchSize <= 0 {
		batchSize = DefaultProofBatchSize
	}
	return &Assembler{log: log, src: src, batchSize: batchSize}
}

// ReadSlot returns the raw storage word of the slot at the given block, without proof.
func (a *Assembler) ReadSlot(ctx context.Context, blockNumber uint64, address common.Address, slot common.Hash) (common.Hash, error) {
	v, err := a.src.GetStorageAt(ctx, address, slot, blockNumber)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read slot %s of %s at block %d: %w", slot, address, blockNumber, err)
	}
	return v, nil
}

func (a *Assembler) HeaderByNumber(ctx context.Context, number uint64) (*eth.BlockHeader, error) {
	h, err := a.src.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch header of block %d: %w", number, err)
	}
	return h, nil
}

// GetProofs returns the account proof of the address and one storage proof per slot, in the order of slots.
// Large slot lists are fetched in concurrent batches.
func (a *Assembler) GetProofs(ctx context.Context, blockNumber uint64, address common.Address, slots []common.Hash) (*eth.AccountResult, error) {
	if len(slots) <= a.batchSize {
		res, err := a.src.GetProof(ctx, address, slots, blockNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch proof of %s at block %d: %w", address, blockNumber, err)
		}
		return res, nil
	}

	numBatches := (len(slots) + a.batchSize - 1) / a.batchSize
	results := make([]*eth.AccountResult, numBatches)
	g, gctx := errgroup.WithContext(ctx)
	for i := range results {
		batch := slots[i*a.batchSize : min((i+1)*a.batchSize, len(slots))]
		g.Go(func() error {
			res, err := a.src.GetProof(gctx, address, batch, blockNumber)
			if err != nil {
				return fmt.Errorf("failed to fetch proof batch %d of %s at block %d: %w", i, address, blockNumber, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := *results[0]
	merged.StorageProof = make([]eth.StorageProofEntry, 0, len(slots))
	for i, res := range results {
		if res.StorageHash != merged.StorageHash {
			return nil, fmt.Errorf("inconsistent storage root in proof batch %d: %s, expected %s", i, res.StorageHash, merged.StorageHash)
		}
		merged.StorageProof = append(merged.StorageProof, res.StorageProof...)
	}
	a.log.Debug("Fetched proofs in batches", "address", address, "block", blockNumber, "slots", len(slots), "batches", numBatches)
	return &merged, nil
}
