package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/config"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/evmgateway"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/proofs"
	opservice "github.com/mantlenetworkio/ccip-gateway/op-service"
	"github.com/mantlenetworkio/ccip-gateway/op-service/eth"
	oplog "github.com/mantlenetworkio/ccip-gateway/op-service/log"
	opmetrics "github.com/mantlenetworkio/ccip-gateway/op-service/metrics"
	"github.com/mantlenetworkio/ccip-gateway/op-service/oppprof"
)

const EnvVarPrefix = "OP_GATEWAY"

func prefixEnvVars(name string) []string {
	return opservice.PrefixEnvVar(EnvVarPrefix, name)
}

const (
	L1Category      = "1. L1"
	L2Category      = "2. L2"
	GatewayCategory = "3. Gateway"
	RPCCategory     = "4. RPC"
)

var (
	L1RPCFlag = &cli.StringSliceFlag{
		Name:     "l1.rpc",
		Usage:    "L1 RPC endpoints, tried concurrently with a stall timeout before falling back to the next one",
		EnvVars:  prefixEnvVars("L1_RPC"),
		Category: L1Category,
	}
	L1StallTimeoutFlag = &cli.DurationFlag{
		Name:     "l1.stall-timeout",
		Usage:    "Time to wait on an L1 endpoint before also trying the next one",
		EnvVars:  prefixEnvVars("L1_STALL_TIMEOUT"),
		Value:    config.DefaultStallTimeout,
		Category: L1Category,
	}
	L1CallTimeoutFlag = &cli.DurationFlag{
		Name:     "l1.call-timeout",
		Usage:    "Timeout of a single L1 RPC call",
		EnvVars:  prefixEnvVars("L1_CALL_TIMEOUT"),
		Value:    config.DefaultCallTimeout,
		Category: L1Category,
	}
	L1LookupAddressFlag = &cli.StringFlag{
		Name:     "l1.lookup-address",
		Usage:    "Address of the OPOutputLookup contract on L1",
		EnvVars:  prefixEnvVars("L1_LOOKUP_ADDRESS"),
		Value:    proofs.DefaultOutputLookupAddress,
		Category: L1Category,
	}
	L2RegistryFlag = &cli.StringFlag{
		Name:     "l2.registry",
		Usage:    "Path to a yaml or toml file of portals and their L2 RPC, merged over the embedded registry",
		EnvVars:  prefixEnvVars("L2_REGISTRY"),
		Category: L2Category,
	}
	L2CacheSizeFlag = &cli.IntFlag{
		Name:     "l2.cache-size",
		Usage:    "Maximum number of open L2 clients, least recently used ones are closed. 0 keeps all of them",
		EnvVars:  prefixEnvVars("L2_CACHE_SIZE"),
		Value:    0,
		Category: L2Category,
	}
	L2CallTimeoutFlag = &cli.DurationFlag{
		Name:     "l2.call-timeout",
		Usage:    "Timeout of a single L2 RPC call",
		EnvVars:  prefixEnvVars("L2_CALL_TIMEOUT"),
		Value:    config.DefaultCallTimeout,
		Category: L2Category,
	}
	L2MaxConcurrencyFlag = &cli.IntFlag{
		Name:     "l2.max-concurrency",
		Usage:    "Maximum number of concurrent requests to each L2 RPC. 0 disables the limit",
		EnvVars:  prefixEnvVars("L2_MAX_CONCURRENCY"),
		Value:    config.DefaultL2Concurrent,
		Category: L2Category,
	}
	L2ProofBatchSizeFlag = &cli.IntFlag{
		Name:     "l2.proof-batch-size",
		Usage:    "Maximum number of storage slots per eth_getProof call",
		EnvVars:  prefixEnvVars("L2_PROOF_BATCH_SIZE"),
		Value:    proofs.DefaultProofBatchSize,
		Category: L2Category,
	}
	L2TrustRPCFlag = &cli.BoolFlag{
		Name:     "l2.trust-rpc",
		Usage:    "Skip verifying L2 proofs against the block state root before serving them",
		EnvVars:  prefixEnvVars("L2_TRUST_RPC"),
		Category: L2Category,
	}
	MaxStorageSlotsFlag = &cli.IntFlag{
		Name:     "gateway.max-storage-slots",
		Usage:    "Maximum number of storage slots proven by a single request",
		EnvVars:  prefixEnvVars("GATEWAY_MAX_STORAGE_SLOTS"),
		Value:    evmgateway.DefaultMaxStorageSlots,
		Category: GatewayCategory,
	}
	RPCListenAddrFlag = &cli.StringFlag{
		Name:     "rpc.addr",
		Usage:    "Gateway listening address",
		EnvVars:  prefixEnvVars("RPC_ADDR"),
		Value:    "0.0.0.0",
		Category: RPCCategory,
	}
	RPCListenPortFlag = &cli.IntFlag{
		Name:     "rpc.port",
		Usage:    "Gateway listening port",
		EnvVars:  prefixEnvVars("RPC_PORT"),
		Value:    config.DefaultRPCPort,
		Category: RPCCategory,
	}
	RPCCORSOriginsFlag = &cli.StringSliceFlag{
		Name:     "rpc.cors-origins",
		Usage:    "Origins allowed to query the gateway from a browser",
		EnvVars:  prefixEnvVars("RPC_CORS_ORIGINS"),
		Value:    cli.NewStringSlice("*"),
		Category: RPCCategory,
	}
	RPCRateLimitFlag = &cli.Float64Flag{
		Name:     "rpc.rate-limit",
		Usage:    "Requests per second allowed per client IP. 0 disables rate limiting",
		EnvVars:  prefixEnvVars("RPC_RATE_LIMIT"),
		Value:    0,
		Category: RPCCategory,
	}
	RPCRateBurstFlag = &cli.IntFlag{
		Name:     "rpc.rate-burst",
		Usage:    "Burst of requests allowed per client IP when rate limiting",
		EnvVars:  prefixEnvVars("RPC_RATE_BURST"),
		Value:    config.DefaultRateBurst,
		Category: RPCCategory,
	}
)

var requiredFlags = []cli.Flag{
	L1RPCFlag,
}

var optionalFlags = []cli.Flag{
	L1StallTimeoutFlag,
	L1CallTimeoutFlag,
	L1LookupAddressFlag,
	L2RegistryFlag,
	L2CacheSizeFlag,
	L2CallTimeoutFlag,
	L2MaxConcurrencyFlag,
	L2ProofBatchSizeFlag,
	L2TrustRPCFlag,
	MaxStorageSlotsFlag,
	RPCListenAddrFlag,
	RPCListenPortFlag,
	RPCCORSOriginsFlag,
	RPCRateLimitFlag,
	RPCRateBurstFlag,
}

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, oppprof.CLIFlags(EnvVarPrefix)...)

	Flags = append(Flags, requiredFlags...)
	Flags = append(Flags, optionalFlags...)
}

// Flags contains the list of configuration options available to the binary.
var Flags []cli.Flag

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}

func ConfigFromCLI(ctx *cli.Context, version string) (*config.Config, error) {
	lookup, err := eth.ParseAddress(ctx.String(L1LookupAddressFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", L1LookupAddressFlag.Name, err)
	}
	return &config.Config{
		Version:       version,
		LogConfig:     oplog.ReadCLIConfig(ctx),
		MetricsConfig: opmetrics.ReadCLIConfig(ctx),
		PprofConfig:   oppprof.ReadCLIConfig(ctx),
		L1: config.L1Config{
			RPCs:          ctx.StringSlice(L1RPCFlag.Name),
			StallTimeout:  ctx.Duration(L1StallTimeoutFlag.Name),
			CallTimeout:   ctx.Duration(L1CallTimeoutFlag.Name),
			LookupAddress: lookup,
		},
		L2: config.L2Config{
			RegistryPath:   ctx.String(L2RegistryFlag.Name),
			CacheSize:      ctx.Int(L2CacheSizeFlag.Name),
			CallTimeout:    ctx.Duration(L2CallTimeoutFlag.Name),
			MaxConcurrency: ctx.Int(L2MaxConcurrencyFlag.Name),
			ProofBatchSize: ctx.Int(L2ProofBatchSizeFlag.Name),
			TrustRPC:       ctx.Bool(L2TrustRPCFlag.Name),
		},
		RPC: config.RPCConfig{
			ListenAddr:  ctx.String(RPCListenAddrFlag.Name),
			ListenPort:  ctx.Int(RPCListenPortFlag.Name),
			CORSOrigins: ctx.StringSlice(RPCCORSOriginsFlag.Name),
			RateLimit:   ctx.Float64(RPCRateLimitFlag.Name),
			RateBurst:   ctx.Int(RPCRateBurstFlag.Name),
		},
		Gateway: evmgateway.Config{
			MaxStorageSlots: ctx.Int(MaxStorageSlotsFlag.Name),
		},
	}, nil
}
