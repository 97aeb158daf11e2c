package cliapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"
)

// Lifecycle represents a service that can be started once, and stopped once.
type Lifecycle interface {
	// Start starts a service. A service only fully starts once, and does not restart.
	Start(ctx context.Context) error
	// Stop stops a service gracefully, or force-closes it if ctx is cancelled.
	Stop(ctx context.Context) error
	// Stopped reports whether Stop was called.
	Stopped() bool
}

// LifecycleAction instantiates a Lifecycle from CLI flags.
// The cancel func may be used by the service to request its own shutdown.
type LifecycleAction func(ctx *cli.Context, close context.CancelCauseFunc) (Lifecycle, error)

// stopTimeout bounds the graceful part of a shutdown, before connections are force-closed.
var stopTimeout = 10 * time.Second

// LifecycleCmd turns a LifecycleAction into a CLI action:
// it starts the service, blocks until the app context is done or the service asks to stop,
// and then stops it.
func LifecycleCmd(fn LifecycleAction) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		appCtx, appCancel := context.WithCancelCause(ctx.Context)
		defer appCancel(nil)

		appLifecycle, err := fn(ctx, appCancel)
		if err != nil {
			return errors.Join(
				fmt.Errorf("failed to setup: %w", err),
				context.Cause(appCtx),
			)
		}

		if err := appLifecycle.Start(appCtx); err != nil {
			return errors.Join(
				fmt.Errorf("failed to start: %w", err),
				context.Cause(appCtx),
			)
		}

		<-appCtx.Done()
		log.Info("Received stop signal, shutting down", "cause", context.Cause(appCtx))

		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()
		if err := appLifecycle.Stop(stopCtx); err != nil {
			return fmt.Errorf("failed to stop: %w", err)
		}
		return nil
	}
}
