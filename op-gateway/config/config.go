package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/evmgateway"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/proofs"
	oplog "github.com/mantlenetworkio/ccip-gateway/op-service/log"
	opmetrics "github.com/mantlenetworkio/ccip-gateway/op-service/metrics"
	"github.com/mantlenetworkio/ccip-gateway/op-service/oppprof"
)

const (
	DefaultRPCPort      = 8080
	DefaultRateBurst    = 20
	DefaultCallTimeout  = 10 * time.Second
	DefaultStallTimeout = 2 * time.Second
	DefaultL2Concurrent = 16
)

type L1Config struct {
	RPCs          []string
	StallTimeout  time.Duration
	CallTimeout   time.Duration
	LookupAddress common.Address
}

func (c *L1Config) Check() error {
	if len(c.RPCs) == 0 {
		return errors.New("no L1 RPC endpoints configured")
	}
	if c.StallTimeout <= 0 {
		return fmt.Errorf("invalid L1 stall timeout: %s", c.StallTimeout)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("invalid L1 call timeout: %s", c.CallTimeout)
	}
	if c.LookupAddress == (common.Address{}) {
		return errors.New("missing output lookup address")
	}
	return nil
}

type L2Config struct {
	// RegistryPath is a yaml or toml file of portals and their L2 RPC, merged over the embedded registry.
	RegistryPath   string
	CacheSize      int
	CallTimeout    time.Duration
	MaxConcurrency int
	ProofBatchSize int
	TrustRPC       bool
}

func (c *L2Config) Check() error {
	if c.CacheSize < 0 {
		return fmt.Errorf("invalid L2 cache size: %d", c.CacheSize)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("invalid L2 call timeout: %s", c.CallTimeout)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("invalid L2 max concurrency: %d", c.MaxConcurrency)
	}
	if c.ProofBatchSize <= 0 {
		return fmt.Errorf("invalid proof batch size: %d", c.ProofBatchSize)
	}
	return nil
}

type RPCConfig struct {
	ListenAddr  string
	ListenPort  int
	CORSOrigins []string
	// RateLimit is in requests per second per client. 0 disables rate limiting.
	RateLimit float64
	RateBurst int
}

func (c *RPCConfig) Check() error {
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid RPC port: %d", c.ListenPort)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("invalid rate burst: %d", c.RateBurst)
	}
	return nil
}

type Config struct {
	Version string

	LogConfig     oplog.CLIConfig
	MetricsConfig opmetrics.CLIConfig
	PprofConfig   oppprof.CLIConfig

	L1      L1Config
	L2      L2Config
	RPC     RPCConfig
	Gateway evmgateway.Config
}

func (c *Config) Check() error {
	var result error
	result = errors.Join(result, c.LogConfig.Check())
	result = errors.Join(result, c.MetricsConfig.Check())
	result = errors.Join(result, c.PprofConfig.Check())
	result = errors.Join(result, c.L1.Check())
	result = errors.Join(result, c.L2.Check())
	result = errors.Join(result, c.RPC.Check())
	if c.Gateway.MaxStorageSlots <= 0 {
		result = errors.Join(result, fmt.Errorf("invalid max storage slots: %d", c.Gateway.MaxStorageSlots))
	}
	return result
}

func DefaultCLIConfig() *Config {
	return &Config{
		Version:       "dev",
		LogConfig:     oplog.DefaultCLIConfig(),
		MetricsConfig: opmetrics.DefaultCLIConfig(),
		PprofConfig:   oppprof.DefaultCLIConfig(),
		L1: L1Config{
			StallTimeout:  DefaultStallTimeout,
			CallTimeout:   DefaultCallTimeout,
			LookupAddress: common.HexToAddress(proofs.DefaultOutputLookupAddress),
		},
		L2: L2Config{
			CallTimeout:    DefaultCallTimeout,
			MaxConcurrency: DefaultL2Concurrent,
			ProofBatchSize: proofs.DefaultProofBatchSize,
		},
		RPC: RPCConfig{
			ListenAddr:  "0.0.0.0",
			ListenPort:  DefaultRPCPort,
			CORSOrigins: []string{"*"},
			RateBurst:   DefaultRateBurst,
		},
		Gateway: evmgateway.Config{MaxStorageSlots: evmgateway.DefaultMaxStorageSlots},
	}
}
