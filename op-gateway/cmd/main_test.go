package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/config"
	"github.com/mantlenetworkio/ccip-gateway/op-service/cliapp"
	"github.com/mantlenetworkio/ccip-gateway/op-service/oppprof"
)

var l1RPC = "http://example.com:8545"

func TestLogLevel(t *testing.T) {
	t.Run("RejectInvalid", func(t *testing.T) {
		verifyArgsInvalid(t, "unknown log level", addRequiredArgs("--log.level=foo"))
	})

	for _, lvl := range []string{"trace", "debug", "info", "error", "crit"} {
		t.Run("AcceptValid_"+lvl, func(t *testing.T) {
			logger, _, err := dryRunWithArgs(addRequiredArgs("--log.level", lvl))
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestDefaultCLIOptionsMatchDefaultConfig(t *testing.T) {
	cfg := configForArgs(t, addRequiredArgs())
	defaultCfg := config.DefaultCLIConfig()
	defaultCfg.Version = cfg.Version
	defaultCfg.L1.RPCs = []string{l1RPC}
	defaultCfg.LogConfig.Color = cfg.LogConfig.Color
	require.Equal(t, *defaultCfg, cfg)
}

func TestL1RPC(t *testing.T) {
	t.Run("Required", func(t *testing.T) {
		verifyArgsInvalid(t, "flag l1.rpc is required", nil)
	})

	t.Run("MultipleValues", func(t *testing.T) {
		cfg := configForArgs(t, []string{"--l1.rpc", "http://a:8545", "--l1.rpc", "http://b:8545"})
		require.Equal(t, []string{"http://a:8545", "http://b:8545"}, cfg.L1.RPCs)
	})
}

func TestLookupAddress(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		addr := common.Address{0x11, 0x22}
		cfg := configForArgs(t, addRequiredArgs("--l1.lookup-address", addr.Hex()))
		require.Equal(t, addr, cfg.L1.LookupAddress)
	})

	t.Run("Invalid", func(t *testing.T) {
		verifyArgsInvalid(t, "invalid l1.lookup-address", addRequiredArgs("--l1.lookup-address", "foo"))
	})
}

func TestStallTimeout(t *testing.T) {
	cfg := configForArgs(t, addRequiredArgs("--l1.stall-timeout", "750ms"))
	require.Equal(t, 750*time.Millisecond, cfg.L1.StallTimeout)

	verifyArgsInvalid(t, "invalid L1 stall timeout", addRequiredArgs("--l1.stall-timeout", "0s"))
}

func TestPprof(t *testing.T) {
	cfg := configForArgs(t, addRequiredArgs("--pprof.enabled", "--pprof.port", "6061", "--pprof.type", "cpu"))
	require.True(t, cfg.PprofConfig.ListenEnabled)
	require.Equal(t, 6061, cfg.PprofConfig.ListenPort)
	require.Equal(t, oppprof.ProfileCPU, cfg.PprofConfig.ProfileType)

	verifyArgsInvalid(t, "unknown profile type", addRequiredArgs("--pprof.type", "flame"))
	verifyArgsInvalid(t, "invalid pprof port", addRequiredArgs("--pprof.enabled", "--pprof.port", "70000"))
}

func TestMaxStorageSlots(t *testing.T) {
	cfg := configForArgs(t, addRequiredArgs("--gateway.max-storage-slots", "64"))
	require.Equal(t, 64, cfg.Gateway.MaxStorageSlots)

	verifyArgsInvalid(t, "invalid max storage slots", addRequiredArgs("--gateway.max-storage-slots", "0"))
}

func TestDocMetrics(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"op-gateway", "doc", "metrics", "--format", "json"}, nil)
	require.NoError(t, err)
	require.Contains(t, out.String(), "op_gateway_default_up")
}

func verifyArgsInvalid(t *testing.T, messageContains string, cliArgs []string) {
	_, _, err := dryRunWithArgs(cliArgs)
	require.ErrorContains(t, err, messageContains)
}

func configForArgs(t *testing.T, cliArgs []string) config.Config {
	_, cfg, err := dryRunWithArgs(cliArgs)
	require.NoError(t, err)
	return cfg
}

func dryRunWithArgs(cliArgs []string) (log.Logger, config.Config, error) {
	cfg := new(config.Config)
	var logger log.Logger
	fullArgs := append([]string{"op-gateway"}, cliArgs...)
	testErr := errors.New("dry-run")
	var out bytes.Buffer
	err := run(context.Background(), &out, &out, fullArgs, func(ctx context.Context, config *config.Config, log log.Logger) (cliapp.Lifecycle, error) {
		logger = log
		cfg = config
		return nil, testErr
	})
	if errors.Is(err, testErr) { // expected error
		err = nil
	}
	return logger, *cfg, err
}

func addRequiredArgs(args ...string) []string {
	return append([]string{fmt.Sprintf("--l1.rpc=%s", l1RPC)}, args...)
}
