package evmgateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/proofs"
)

// element is a resolved command: the slots to prove, and its value for backrefs.
type element struct {
	slots []common.Hash
	value func() ([]byte, error)
}

// resolver runs the commands of one request against the storage of one contract at one block.
// Every command is a future; a backref waits for the command it names.
type resolver struct {
	ctx       context.Context
	svc       ProofService
	block     *proofs.ProvableBlock
	address   common.Address
	constants [][]byte
	maxSlots  int

	elems []func() (*element, error)
}

func (r *resolver) operation(i int, op byte) ([]byte, error) {
	operand := int(op & operandMask)
	switch op & opcodeMask {
	case OpConstant:
		if operand >= len(r.constants) {
			return nil, fmt.Errorf("constant %d out of range, %d constants given", operand, len(r.constants))
		}
		return r.constants[operand], nil
	case OpBackref:
		if operand >= i {
			return nil, fmt.Errorf("backref %d does not name an earlier command", operand)
		}
		el, err := r.elems[operand]()
		if err != nil {
			return nil, fmt.Errorf("backref %d: %w", operand, err)
		}
		return el.value()
	default:
		return nil, fmt.Errorf("unknown opcode 0x%02x", op&opcodeMask)
	}
}

// slot computes the slot a command points to: the base slot, hashed with each key Solidity-style.
func (r *resolver) slot(i int, cmd Command) (common.Hash, error) {
	ops := cmd.Ops()
	if len(ops) == 0 {
		return common.Hash{}, ErrEmptyCommand
	}
	base, err := r.operation(i, ops[0])
	if err != nil {
		return common.Hash{}, err
	}
	if len(base) > common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %d bytes", ErrSlotOutOfRange, len(base))
	}
	slot := common.BytesToHash(base)
	for _, op := range ops[1:] {
		key, err := r.operation(i, op)
		if err != nil {
			return common.Hash{}, err
		}
		slot = crypto.Keccak256Hash(key, slot[:])
	}
	return slot, nil
}

func (r *resolver) readSlot(slot common.Hash) ([]byte, error) {
	v, err := r.svc.ReadSlot(r.ctx, r.block, r.address, slot)
	if err != nil {
		return nil, err
	}
	return v[:], nil
}

func (r *resolver) resolve(i int, cmd Command) (*element, error) {
	slot, err := r.slot(i, cmd)
	if err != nil {
		return nil, err
	}
	if !cmd.Dynamic() {
		return &element{
			slots: []common.Hash{slot},
			value: sync.OnceValues(func() ([]byte, error) { return r.readSlot(slot) }),
		}, nil
	}

	word, err := r.svc.ReadSlot(r.ctx, r.block, r.address, slot)
	if err != nil {
		return nil, err
	}
	if word[31]&1 == 0 {
		// short value: length*2 in the last byte, data inline
		size := int(word[31] / 2)
		if size >= common.HashLength {
			return nil, fmt.Errorf("invalid short value length %d at slot %s", size, slot)
		}
		return &element{
			slots: []common.Hash{slot},
			value: func() ([]byte, error) { return word[:size], nil },
		}, nil
	}

	// long value: length*2+1 in the slot, data in consecutive slots from keccak256(slot)
	length := new(uint256.Int).SetBytes(word[:])
	length.Rsh(length, 1)
	count := new(uint256.Int).AddUint64(length, 31)
	count.Rsh(count, 5)
	if !count.IsUint64() || count.Uint64() >= uint64(r.maxSlots) {
		return nil, fmt.Errorf("%w: value of %s bytes at slot %s", ErrTooManySlots, length.Dec(), slot)
	}
	base := new(uint256.Int).SetBytes(crypto.Keccak256(slot[:]))
	slots := make([]common.Hash, 1, 1+count.Uint64())
	slots[0] = slot
	for j := uint64(0); j < count.Uint64(); j++ {
		slots = append(slots, common.Hash(new(uint256.Int).AddUint64(base, j).Bytes32()))
	}
	size := length.Uint64()
	return &element{
		slots: slots,
		value: sync.OnceValues(func() ([]byte, error) { return r.readLong(slots[1:], size) }),
	}, nil
}

func (r *resolver) readLong(slots []common.Hash, size uint64) ([]byte, error) {
	data := make([]byte, len(slots)*common.HashLength)
	g, ctx := errgroup.WithContext(r.ctx)
	for j, slot := range slots {
		g.Go(func() error {
			v, err := r.svc.ReadSlot(ctx, r.block, r.address, slot)
			if err != nil {
				return err
			}
			copy(data[j*common.HashLength:], v[:])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data[:size], nil
}

// storageSlots runs the commands concurrently, and returns their slots in command order.
func (g *Gateway) storageSlots(ctx context.Context, block *proofs.ProvableBlock, address common.Address,
	commands []Command, constants [][]byte) ([]common.Hash, error) {
	if len(commands) > g.cfg.MaxStorageSlots {
		return nil, fmt.Errorf("%w: %d commands", ErrTooManySlots, len(commands))
	}

	group, gctx := errgroup.WithContext(ctx)
	r := &resolver{
		ctx:       gctx,
		svc:       g.svc,
		block:     block,
		address:   address,
		constants: constants,
		maxSlots:  g.cfg.MaxStorageSlots,
		elems:     make([]func() (*element, error), len(commands)),
	}
	for i, cmd := range commands {
		r.elems[i] = sync.OnceValues(func() (*element, error) {
			el, err := r.resolve(i, cmd)
			if err != nil {
				return nil, &CommandError{Command: i, Err: err}
			}
			return el, nil
		})
	}
	for _, el := range r.elems {
		group.Go(func() error {
			_, err := el()
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var slots []common.Hash
	for _, el := range r.elems {
		e, err := el()
		if err != nil {
			return nil, err
		}
		slots = append(slots, e.slots...)
	}
	if len(slots) > g.cfg.MaxStorageSlots {
		return nil, fmt.Errorf("%w: %d slots, at most %d allowed", ErrTooManySlots, len(slots), g.cfg.MaxStorageSlots)
	}
	return slots, nil
}
