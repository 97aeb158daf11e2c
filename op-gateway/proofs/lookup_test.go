package proofs

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/ccip-gateway/op-service/testutils"
)

func TestOutputLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves the provable block", func(t *testing.T) {
		env := newTestEnv(t)
		block, err := env.lookup.ProvableBlock(ctx, testPortal, 3600)
		require.NoError(t, err)
		require.Equal(t, &ProvableBlock{
			Number:     testBlock,
			ProofType:  ProofTypeDisputeGame,
			Index:      big.NewInt(7),
			Portal:     testPortal,
			OutputRoot: env.output.OutputRoot(),
		}, block)
		require.Equal(t, 1, env.l1.CallCount())
	})

	t.Run("revert is a lookup error", func(t *testing.T) {
		env := newTestEnv(t)
		unknown := common.HexToAddress("0x1234")
		_, err := env.lookup.ProvableBlock(ctx, unknown, 0)
		var lookupErr *PortalLookupError
		require.ErrorAs(t, err, &lookupErr)
		require.Equal(t, unknown, lookupErr.Portal)
		require.ErrorContains(t, err, "portal not found")
	})

	t.Run("min age beyond the dispute window", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.lookup.ProvableBlock(ctx, testPortal, MaxDisputeWindow+1)
		var lookupErr *PortalLookupError
		require.ErrorAs(t, err, &lookupErr)
		require.EqualValues(t, MaxDisputeWindow+1, lookupErr.MinAge)
		require.Zero(t, env.l1.CallCount(), "must not call L1")
	})

	t.Run("unknown proof type", func(t *testing.T) {
		env := newTestEnv(t)
		env.l1.SetContract(testLookupAddr, lookupResult{proofType: 2, number: testBlock}.contract())
		_, err := env.lookup.ProvableBlock(ctx, testPortal, 0)
		var lookupErr *PortalLookupError
		require.ErrorAs(t, err, &lookupErr)
		require.ErrorContains(t, err, "unknown proof type 2")
	})

	t.Run("short result", func(t *testing.T) {
		env := newTestEnv(t)
		env.l1.SetContract(testLookupAddr, func([]byte) ([]byte, error) {
			return common.Hash{}.Bytes(), nil
		})
		_, err := env.lookup.ProvableBlock(ctx, testPortal, 0)
		var lookupErr *PortalLookupError
		require.ErrorAs(t, err, &lookupErr)
	})

	t.Run("transport error is not a lookup error", func(t *testing.T) {
		env := newTestEnv(t)
		env.l1.SetContract(testLookupAddr, func([]byte) ([]byte, error) {
			return nil, errors.New("upstream unavailable")
		})
		_, err := env.lookup.ProvableBlock(ctx, testPortal, 0)
		require.ErrorContains(t, err, "upstream unavailable")
		var lookupErr *PortalLookupError
		require.False(t, errors.As(err, &lookupErr))
	})

	t.Run("revert with data", func(t *testing.T) {
		env := newTestEnv(t)
		env.l1.SetContract(testLookupAddr, func([]byte) ([]byte, error) {
			return nil, &testutils.RevertError{Reason: "no output", Data: []byte{0x08, 0xc3, 0x79, 0xa0}}
		})
		_, err := env.lookup.ProvableBlock(ctx, testPortal, 0)
		var lookupErr *PortalLookupError
		require.ErrorAs(t, err, &lookupErr)
		require.ErrorContains(t, err, "0x08c379a0")
	})
}

func TestProofTypeString(t *testing.T) {
	require.Equal(t, "l2-output-oracle", ProofTypeL2OutputOracle.String())
	require.Equal(t, "dispute-game", ProofTypeDisputeGame.String())
	require.Equal(t, "unknown(9)", ProofType(9).String())
}
