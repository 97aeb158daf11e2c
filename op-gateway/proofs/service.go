package proofs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-service/eth"
	"github.com/mantlenetworkio/ccip-gateway/op-service/predeploys"
)

type Metricer interface {
	RecordProofs(slots int, duration time.Duration)
	RecordProvenBlock(portal common.Address, number uint64)
}

type ServiceConfig struct {
	// TrustRPC skips verifying the fetched proofs against the state root of the block.
	TrustRPC bool
}

// Service proves storage of L2 contracts against output roots committed to on L1.
type Service struct {
	log      log.Logger
	lookup   *OutputLookup
	registry *Registry
	cfg      ServiceConfig
	m        Metricer
}

func NewService(log log.Logger, lookup *OutputLookup, registry *Registry, cfg ServiceConfig, m Metricer) *Service {
	return &Service{log: log, lookup: lookup, registry: registry, cfg: cfg, m: m}
}

// ProvableBlock returns the block to pin the reads of a request to.
func (s *Service) ProvableBlock(ctx context.Context, portal common.Address, minAge uint64) (*ProvableBlock, error) {
	return s.lookup.ProvableBlock(ctx, portal, minAge)
}

// ReadSlot returns a storage word of an L2 contract at the block, without proof.
func (s *Service) ReadSlot(ctx context.Context, block *ProvableBlock, address common.Address, slot common.Hash) (common.Hash, error) {
	src, err := s.registry.Source(ctx, block.Portal)
	if err != nil {
		return common.Hash{}, err
	}
	defer src.Release()
	return src.Assembler.ReadSlot(ctx, block.Number, address, slot)
}

// Proofs returns the encoded proof of the storage slots of an L2 contract at the block.
func (s *Service) Proofs(ctx context.Context, block *ProvableBlock, address common.Address, slots []common.Hash) ([]byte, error) {
	start := time.Now()
	src, err := s.registry.Source(ctx, block.Portal)
	if err != nil {
		return nil, err
	}
	defer src.Release()
	asm := src.Assembler

	var (
		proof, passer *eth.AccountResult
		header        *eth.BlockHeader
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		proof, err = asm.GetProofs(gctx, block.Number, address, slots)
		return err
	})
	g.Go(func() (err error) {
		header, err = asm.HeaderByNumber(gctx, block.Number)
		return err
	})
	g.Go(func() (err error) {
		passer, err = asm.GetProofs(gctx, block.Number, predeploys.L2ToL1MessagePasserAddr, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !s.cfg.TrustRPC {
		if err := proof.Verify(header.Root); err != nil {
			return nil, fmt.Errorf("invalid proof of %s at block %d: %w", address, block.Number, err)
		}
		if err := passer.Verify(header.Root); err != nil {
			return nil, fmt.Errorf("invalid message passer proof at block %d: %w", block.Number, err)
		}
	}

	output := &eth.OutputV0{
		StateRoot:                header.Root,
		MessagePasserStorageRoot: passer.StorageHash,
		BlockHash:                header.Hash,
	}
	if block.OutputRoot != (common.Hash{}) {
		if got := output.OutputRoot(); got != block.OutputRoot {
			return nil, fmt.Errorf("%w at block %d: L2 RPC yields %s, L1 committed to %s",
				ErrOutputRootMismatch, block.Number, got, block.OutputRoot)
		}
	}

	enc, err := EncodeProof(block, output, proof)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proof: %w", err)
	}
	s.m.RecordProofs(len(slots), time.Since(start))
	s.m.RecordProvenBlock(block.Portal, block.Number)
	s.log.Debug("Built proof", "portal", block.Portal, "block", block.Number, "address", address,
		"slots", len(slots), "size", len(enc))
	return enc, nil
}
