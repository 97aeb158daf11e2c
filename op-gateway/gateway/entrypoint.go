package gateway

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/config"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/flags"
	opservice "github.com/mantlenetworkio/ccip-gateway/op-service"
	"github.com/mantlenetworkio/ccip-gateway/op-service/cliapp"
	oplog "github.com/mantlenetworkio/ccip-gateway/op-service/log"
)

// MainFn builds the service from a checked config, tests swap it to inspect the config.
type MainFn func(ctx context.Context, cfg *config.Config, logger log.Logger) (cliapp.Lifecycle, error)

func Main(version string, fn MainFn) cliapp.LifecycleAction {
	return func(cliCtx *cli.Context, _ context.CancelCauseFunc) (cliapp.Lifecycle, error) {
		if err := flags.CheckRequired(cliCtx); err != nil {
			return nil, err
		}
		cfg, err := flags.ConfigFromCLI(cliCtx, version)
		if err != nil {
			return nil, err
		}
		if err := cfg.Check(); err != nil {
			return nil, fmt.Errorf("invalid CLI flags: %w", err)
		}

		l := oplog.NewLogger(oplog.AppOut(cliCtx), cfg.LogConfig)
		oplog.SetGlobalLogHandler(l.Handler())
		opservice.ValidateEnvVars(flags.EnvVarPrefix, flags.Flags, l)

		l.Info("Initializing gateway", "version", version)
		return fn(cliCtx.Context, cfg, l)
	}
}
