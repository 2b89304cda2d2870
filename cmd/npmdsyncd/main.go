package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/redth/npm-docker-sync/internal/config"
	"github.com/redth/npm-docker-sync/internal/daemon"
	"github.com/redth/npm-docker-sync/internal/log"
)

func main() {
	log.InitLoggerFromEnv()

	cmd := &cobra.Command{
		Use:           "npmdsyncd",
		Short:         "Nginx Proxy Manager Docker sync daemon.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				// Configuration errors are fatal: never start the event loop (§7).
				return err
			}

			d, err := daemon.New(cfg)
			if err != nil {
				return err
			}
			if err = d.Run(cmd.Context()); err == nil {
				slog.Info("Daemon stopped.")
			}
			return err
		},
	}

	// ctx is canceled when the daemon is interrupted, so Run can shut down gracefully.
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		slog.Info("Received signal, stopping daemon.", "signal", sig)
		cancel()
	}()

	cobra.CheckErr(cmd.ExecuteContext(ctx))
}
