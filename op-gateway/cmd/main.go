package main

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/config"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/flags"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/gateway"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/metrics"
	opservice "github.com/mantlenetworkio/ccip-gateway/op-service"
	"github.com/mantlenetworkio/ccip-gateway/op-service/cliapp"
	"github.com/mantlenetworkio/ccip-gateway/op-service/ctxinterrupt"
	oplog "github.com/mantlenetworkio/ccip-gateway/op-service/log"
	"github.com/mantlenetworkio/ccip-gateway/op-service/metrics/doc"
)

var (
	Version   = "v0.0.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	ctx := ctxinterrupt.WithSignalWaiterMain(context.Background())
	err := run(ctx, os.Stdout, os.Stderr, os.Args, fromConfig)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx context.Context, w io.Writer, ew io.Writer, args []string, fn gateway.MainFn) error {
	oplog.SetupDefaults()

	app := cli.NewApp()
	app.Writer = w
	app.ErrWriter = ew
	app.Flags = flags.Flags
	app.Version = opservice.FormatVersion(Version, GitCommit, GitDate, "")
	app.Name = "op-gateway"
	app.Usage = "CCIP-Read gateway serving storage proofs of OP Stack chains."
	app.Description = "Answers EIP-3668 lookups with storage proofs of L2 contracts, rooted in outputs committed on L1.\n" +
		" Query it on /{portal}/{minAge}/{sender}/{callData}.json or POST /{portal}/{minAge}."
	app.Action = cliapp.LifecycleCmd(gateway.Main(app.Version, fn))
	app.Commands = []*cli.Command{
		{
			Name:        "doc",
			Subcommands: doc.NewSubcommands(metrics.NewMetrics("default")),
		},
	}
	return app.RunContext(ctx, args)
}

func fromConfig(ctx context.Context, cfg *config.Config, logger log.Logger) (cliapp.Lifecycle, error) {
	return gateway.FromConfig(ctx, cfg, logger)
}
