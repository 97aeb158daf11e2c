package evmgateway

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/ccip"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/proofs"
	"github.com/mantlenetworkio/ccip-gateway/op-service/testlog"
	"github.com/mantlenetworkio/ccip-gateway/op-service/testutils"
)

const longName = "Hubert Blaine Wolfeschlegelsteinhausenbergerdorff Sr."

var (
	testPortal   = common.HexToAddress("0x16Fc5058F25648194471939df75CF27A2fdC48BC")
	testContract = common.HexToAddress("0x000000000000000000000000000000000000C0DE")
	testBlock    = &proofs.ProvableBlock{Number: 100, ProofType: proofs.ProofTypeDisputeGame, Index: big.NewInt(7), Portal: testPortal}
)

func word(n uint64) []byte {
	return testutils.SlotOf(n).Bytes()
}

// testStorage is the layout of a contract with:
//
//	uint256 latest;                          // slot 0
//	string name;                             // slot 1
//	mapping(uint256 => uint256) highscores;  // slot 2
//	mapping(uint256 => string) highscorers;  // slot 3
//	mapping(string => string) realnames;     // slot 4
//	uint256 zero;                            // slot 5
func testStorage() testutils.Storage {
	s := testutils.Storage{}
	s.SetUint(testutils.SlotOf(0), 42)
	s.SetString(testutils.SlotOf(1), "Satoshi")
	s.SetUint(testutils.MappingSlot(word(0), testutils.SlotOf(2)), 1)
	s.SetUint(testutils.MappingSlot(word(42), testutils.SlotOf(2)), 12345)
	s.SetString(testutils.MappingSlot(word(42), testutils.SlotOf(3)), "Hal Finney")
	s.SetString(testutils.MappingSlot(word(1), testutils.SlotOf(3)), longName)
	s.SetString(testutils.MappingSlot([]byte("Money Skeleton"), testutils.SlotOf(4)), "Vitalik Buterin")
	s.SetString(testutils.MappingSlot([]byte("Satoshi"), testutils.SlotOf(4)), "Hal Finney")
	return s
}

// fakeService serves reads from a storage layout, and answers proofs with the concatenated slots.
type fakeService struct {
	storage testutils.Storage

	mu    sync.Mutex
	reads []common.Hash
}

func (f *fakeService) ProvableBlock(ctx context.Context, portal common.Address, minAge uint64) (*proofs.ProvableBlock, error) {
	if portal != testPortal {
		return nil, &proofs.UnsupportedPortalError{Portal: portal}
	}
	return testBlock, nil
}

func (f *fakeService) ReadSlot(ctx context.Context, block *proofs.ProvableBlock, address common.Address, slot common.Hash) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, slot)
	if block != testBlock || address != testContract {
		return common.Hash{}, nil
	}
	return f.storage[slot], nil
}

func (f *fakeService) Proofs(ctx context.Context, block *proofs.ProvableBlock, address common.Address, slots []common.Hash) ([]byte, error) {
	var out []byte
	for _, s := range slots {
		out = append(out, s[:]...)
	}
	return out, nil
}

func (f *fakeService) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads)
}

type noopMetrics struct{}

func (noopMetrics) RecordStorageRequest(int, int) {}

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) RecordStorageRequest(commands int, slots int) {
	m.Called(commands, slots)
}

func newTestGateway(t *testing.T, maxSlots int) (*Gateway, *fakeService) {
	svc := &fakeService{storage: testStorage()}
	return NewGateway(testlog.Logger(t, log.LevelDebug), svc, Config{MaxStorageSlots: maxSlots}, noopMetrics{}), svc
}

func cmd(t *testing.T, flags byte, ops ...byte) Command {
	c, err := NewCommand(flags, ops...)
	require.NoError(t, err)
	return c
}

func splitSlots(t *testing.T, witness []byte) []common.Hash {
	require.Zero(t, len(witness)%common.HashLength)
	out := make([]common.Hash, 0, len(witness)/common.HashLength)
	for i := 0; i < len(witness); i += common.HashLength {
		out = append(out, common.BytesToHash(witness[i:i+common.HashLength]))
	}
	return out
}

// dataSlots returns the slots of a long dynamic value: its base slot, then n slots from keccak256(base).
func dataSlots(base common.Hash, n int64) []common.Hash {
	out := []common.Hash{base}
	start := crypto.Keccak256Hash(base[:]).Big()
	for i := int64(0); i < n; i++ {
		out = append(out, common.BigToHash(new(big.Int).Add(start, big.NewInt(i))))
	}
	return out
}

func TestStorageSlots(t *testing.T) {
	highscorer42 := testutils.MappingSlot(word(42), testutils.SlotOf(3))
	highscorer1 := testutils.MappingSlot(word(1), testutils.SlotOf(3))

	tests := []struct {
		name      string
		commands  func(t *testing.T) []Command
		constants [][]byte
		want      []common.Hash
	}{
		{
			name:      "fixed value",
			commands:  func(t *testing.T) []Command { return []Command{cmd(t, 0, Constant(0))} },
			constants: [][]byte{word(0)},
			want:      []common.Hash{testutils.SlotOf(0)},
		},
		{
			name:      "short dynamic value",
			commands:  func(t *testing.T) []Command { return []Command{cmd(t, FlagDynamic, Constant(0))} },
			constants: [][]byte{word(1)},
			want:      []common.Hash{testutils.SlotOf(1)},
		},
		{
			name: "mapping keyed by backref",
			commands: func(t *testing.T) []Command {
				return []Command{cmd(t, 0, Constant(0)), cmd(t, 0, Constant(1), Backref(0))}
			},
			constants: [][]byte{word(0), word(2)},
			want:      []common.Hash{testutils.SlotOf(0), testutils.MappingSlot(word(42), testutils.SlotOf(2))},
		},
		{
			name: "dynamic mapping value keyed by backref",
			commands: func(t *testing.T) []Command {
				return []Command{cmd(t, 0, Constant(0)), cmd(t, FlagDynamic, Constant(1), Backref(0))}
			},
			constants: [][]byte{word(0), word(3)},
			want:      []common.Hash{testutils.SlotOf(0), highscorer42},
		},
		{
			name:      "long dynamic value",
			commands:  func(t *testing.T) []Command { return []Command{cmd(t, FlagDynamic, Constant(0), Constant(1))} },
			constants: [][]byte{word(3), word(1)},
			want:      dataSlots(highscorer1, 2),
		},
		{
			name: "string key from dynamic backref",
			commands: func(t *testing.T) []Command {
				return []Command{cmd(t, FlagDynamic, Constant(0)), cmd(t, FlagDynamic, Constant(1), Backref(0))}
			},
			constants: [][]byte{word(1), word(4)},
			want:      []common.Hash{testutils.SlotOf(1), testutils.MappingSlot([]byte("Satoshi"), testutils.SlotOf(4))},
		},
		{
			name: "string key from long backref",
			commands: func(t *testing.T) []Command {
				return []Command{cmd(t, FlagDynamic, Constant(0), Constant(1)), cmd(t, FlagDynamic, Constant(2), Backref(0))}
			},
			constants: [][]byte{word(3), word(1), word(4)},
			want:      append(dataSlots(highscorer1, 2), testutils.MappingSlot([]byte(longName), testutils.SlotOf(4))),
		},
		{
			name:      "constant string key",
			commands:  func(t *testing.T) []Command { return []Command{cmd(t, FlagDynamic, Constant(0), Constant(1))} },
			constants: [][]byte{word(4), []byte("Money Skeleton")},
			want:      []common.Hash{testutils.MappingSlot([]byte("Money Skeleton"), testutils.SlotOf(4))},
		},
		{
			name:      "zero value",
			commands:  func(t *testing.T) []Command { return []Command{cmd(t, 0, Constant(0))} },
			constants: [][]byte{word(5)},
			want:      []common.Hash{testutils.SlotOf(5)},
		},
		{
			name:      "short base slot constant",
			commands:  func(t *testing.T) []Command { return []Command{cmd(t, 0, Constant(0))} },
			constants: [][]byte{{0x05}},
			want:      []common.Hash{testutils.SlotOf(5)},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, _ := newTestGateway(t, 0)
			witness, err := g.StorageProof(context.Background(), testPortal, 0, testContract, tc.commands(t), tc.constants)
			require.NoError(t, err)
			require.Equal(t, tc.want, splitSlots(t, witness))
		})
	}
}

func TestFixedValuesAreReadOnDemand(t *testing.T) {
	g, svc := newTestGateway(t, 0)
	_, err := g.StorageProof(context.Background(), testPortal, 0, testContract,
		[]Command{cmd(t, 0, Constant(0)), cmd(t, 0, Constant(1))}, [][]byte{word(0), word(5)})
	require.NoError(t, err)
	require.Zero(t, svc.readCount(), "fixed values without backrefs need no reads")
}

func TestStorageSlotsErrors(t *testing.T) {
	tests := []struct {
		name       string
		maxSlots   int
		commands   func(t *testing.T) []Command
		constants  [][]byte
		commandErr bool
		errIs      error
		errText    string
	}{
		{
			name: "backref to a later command",
			commands: func(t *testing.T) []Command {
				return []Command{cmd(t, 0, Constant(0), Backref(1)), cmd(t, 0, Constant(0))}
			},
			constants:  [][]byte{word(0)},
			commandErr: true,
			errText:    "does not name an earlier command",
		},
		{
			name:       "backref to itself",
			commands:   func(t *testing.T) []Command { return []Command{cmd(t, 0, Constant(0), Backref(0))} },
			constants:  [][]byte{word(0)},
			commandErr: true,
			errText:    "does not name an earlier command",
		},
		{
			name:       "unknown opcode",
			commands:   func(t *testing.T) []Command { return []Command{cmd(t, 0, 0x40)} },
			constants:  [][]byte{word(0)},
			commandErr: true,
			errText:    "unknown opcode 0x40",
		},
		{
			name:       "missing constant",
			commands:   func(t *testing.T) []Command { return []Command{cmd(t, 0, Constant(3))} },
			constants:  [][]byte{word(0)},
			commandErr: true,
			errText:    "constant 3 out of range",
		},
		{
			name:       "empty command",
			commands:   func(t *testing.T) []Command { return []Command{cmd(t, 0)} },
			commandErr: true,
			errIs:      ErrEmptyCommand,
		},
		{
			name:       "base slot too long",
			commands:   func(t *testing.T) []Command { return []Command{cmd(t, 0, Constant(0))} },
			constants:  [][]byte{make([]byte, 33)},
			commandErr: true,
			errIs:      ErrSlotOutOfRange,
		},
		{
			name:       "long value exceeds the slot limit",
			maxSlots:   2,
			commands:   func(t *testing.T) []Command { return []Command{cmd(t, FlagDynamic, Constant(0), Constant(1))} },
			constants:  [][]byte{word(3), word(1)},
			commandErr: true,
			errIs:      ErrTooManySlots,
		},
		{
			name:       "corrupt long value length",
			commands:   func(t *testing.T) []Command { return []Command{cmd(t, FlagDynamic, Constant(0))} },
			constants:  [][]byte{word(6)},
			commandErr: true,
			errIs:      ErrTooManySlots,
		},
		{
			name:     "too many commands",
			maxSlots: 2,
			commands: func(t *testing.T) []Command {
				return []Command{cmd(t, 0, Constant(0)), cmd(t, 0, Constant(0)), cmd(t, 0, Constant(0))}
			},
			constants: [][]byte{word(0)},
			errIs:     ErrTooManySlots,
		},
		{
			name:     "slot limit across commands",
			maxSlots: 3,
			commands: func(t *testing.T) []Command {
				return []Command{cmd(t, 0, Constant(0)), cmd(t, FlagDynamic, Constant(1), Constant(2))}
			},
			constants: [][]byte{word(0), word(3), word(1)},
			errIs:     ErrTooManySlots,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, svc := newTestGateway(t, tc.maxSlots)
			svc.storage[testutils.SlotOf(6)] = common.HexToHash("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
			_, err := g.StorageProof(context.Background(), testPortal, 0, testContract, tc.commands(t), tc.constants)
			require.Error(t, err)
			if tc.errIs != nil {
				require.ErrorIs(t, err, tc.errIs)
			}
			if tc.errText != "" {
				require.ErrorContains(t, err, tc.errText)
			}
			var cmdErr *CommandError
			require.Equal(t, tc.commandErr, errors.As(err, &cmdErr))
			if tc.commandErr {
				require.Zero(t, cmdErr.Command)
			}
		})
	}
}

func TestStorageProofUnsupportedPortal(t *testing.T) {
	g, _ := newTestGateway(t, 0)
	other := common.HexToAddress("0x01")
	_, err := g.StorageProof(context.Background(), other, 0, testContract, []Command{cmd(t, 0, Constant(0))}, [][]byte{word(0)})
	var unsupported *proofs.UnsupportedPortalError
	require.ErrorAs(t, err, &unsupported)
}

func TestGetStorageSlotsHandler(t *testing.T) {
	m := &mockMetrics{}
	m.On("RecordStorageRequest", 2, 2).Once()
	svc := &fakeService{storage: testStorage()}
	lgr := testlog.Logger(t, log.LevelDebug)
	g := NewGateway(lgr, svc, Config{}, m)
	router := ccip.NewRouter(lgr)
	require.NoError(t, g.Register(router))

	commands := [][32]byte{cmd(t, 0, Constant(0)), cmd(t, FlagDynamic, Constant(1), Backref(0))}
	data, err := ABI().Pack("getStorageSlots", testContract, commands, [][]byte{word(0), word(3)})
	require.NoError(t, err)

	resp := router.Dispatch(context.Background(), &ccip.Request{Portal: testPortal, Sender: testContract, Data: data})
	require.Equal(t, http.StatusOK, resp.Status, resp.Body.Message)
	out, err := ABI().Methods["getStorageSlots"].Outputs.Unpack(hexutil.MustDecode(resp.Body.Data))
	require.NoError(t, err)
	require.Equal(t, []common.Hash{testutils.SlotOf(0), testutils.MappingSlot(word(42), testutils.SlotOf(3))},
		splitSlots(t, out[0].([]byte)))
	m.AssertExpectations(t)

	// handler errors do not leak to the caller
	data, err = ABI().Pack("getStorageSlots", testContract, [][32]byte{cmd(t, 0, 0x40)}, [][]byte{})
	require.NoError(t, err)
	resp = router.Dispatch(context.Background(), &ccip.Request{Portal: testPortal, Data: data})
	require.Equal(t, http.StatusInternalServerError, resp.Status)
	require.NotContains(t, resp.Body.Message, "opcode")
}

func TestCommand(t *testing.T) {
	c := cmd(t, FlagDynamic, Constant(1), Backref(2))
	require.True(t, c.Dynamic())
	require.Equal(t, []byte{0x01, 0x22}, c.Ops())
	require.Equal(t, byte(OpEnd), c[3])
	require.Equal(t, byte(OpEnd), c[31])

	full := make([]byte, 31)
	c = cmd(t, 0, full...)
	require.False(t, c.Dynamic())
	require.Len(t, c.Ops(), 31)

	_, err := NewCommand(0, make([]byte, 32)...)
	require.Error(t, err)
}

func TestMappingSlotsRandomKeys(t *testing.T) {
	g, _ := newTestGateway(t, 0)
	rng := rand.New(rand.NewSource(1234))
	for i := 0; i < 20; i++ {
		base := testutils.RandomHash(rng)
		key := testutils.RandomData(rng, 1+rng.Intn(64))
		witness, err := g.StorageProof(context.Background(), testPortal, 0, testContract,
			[]Command{cmd(t, 0, Constant(0), Constant(1))}, [][]byte{base[:], key})
		require.NoError(t, err)
		require.Equal(t, []common.Hash{testutils.MappingSlot(key, base)}, splitSlots(t, witness), "key %x", key)
	}
}
