// Package daemon wires the controller's components together: the Docker event loop, the network
// inspector, the certificate matcher, the per-container reconciler, and the mirror scheduler, and runs
// them under a single errgroup so any component's failure tears the rest down (§4.6, §4.7, §7).
package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/redth/npm-docker-sync/internal/certmatch"
	"github.com/redth/npm-docker-sync/internal/config"
	"github.com/redth/npm-docker-sync/internal/dockerhost"
	"github.com/redth/npm-docker-sync/internal/eventloop"
	"github.com/redth/npm-docker-sync/internal/mirror"
	"github.com/redth/npm-docker-sync/internal/netinspect"
	"github.com/redth/npm-docker-sync/internal/npm"
	"github.com/redth/npm-docker-sync/internal/reconcile"
)

// Daemon owns every long-running component of the controller process.
type Daemon struct {
	docker     *dockerhost.Client
	inspector  *netinspect.Inspector
	reconciler *reconcile.Reconciler
	loop       *eventloop.Loop
	scheduler  *mirror.Scheduler
}

// New builds a Daemon from validated configuration (§6). It dials the Docker host but does not wait for
// it to be ready or start any background work; call Run for that.
func New(cfg *config.Config) (*Daemon, error) {
	docker, err := dockerhost.New(cfg.DockerHost)
	if err != nil {
		return nil, fmt.Errorf("create Docker client: %w", err)
	}

	npmClient := npm.NewClient(cfg.NPMURL, cfg.NPMEmail, cfg.NPMPassword)
	certs := certmatch.New(npmClient)

	inspector := netinspect.New(docker, netinspect.Config{
		ProxyContainerName:  cfg.NPMContainerName,
		HostAddressOverride: cfg.HostAddress,
	})

	scheduler := mirror.NewScheduler(npmClient, cfg.MirrorSlots, cfg.MirrorGlobalInterval,
		func(url, email, password string) mirror.SecondaryAPI {
			return npm.NewClient(url, email, password)
		})

	var mirrorSignal reconcile.MirrorSignal
	if scheduler.Active() {
		mirrorSignal = scheduler
	}

	reconciler := reconcile.New(npmClient, inspector, certs, mirrorSignal, cfg.InstanceID, cfg.NPMURL, cfg.Defaults)
	loop := eventloop.New(docker, inspector, reconciler)

	return &Daemon{
		docker:     docker,
		inspector:  inspector,
		reconciler: reconciler,
		loop:       loop,
		scheduler:  scheduler,
	}, nil
}

// Run waits for the Docker daemon to become reachable, then runs the event loop (which initializes the
// network inspector before its first scan) and, if configured, the mirror scheduler concurrently until
// ctx is canceled or either component fails (§4.6, §4.7).
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.docker.WaitReady(ctx); err != nil {
		return fmt.Errorf("wait for Docker daemon: %w", err)
	}

	errGroup, ctx := errgroup.WithContext(ctx)

	errGroup.Go(func() error {
		slog.Info("Starting event loop.")
		if err := d.loop.Run(ctx); err != nil {
			return fmt.Errorf("event loop failed: %w", err)
		}
		return nil
	})

	if d.scheduler.Active() {
		errGroup.Go(func() error {
			slog.Info("Starting mirror scheduler.")
			if err := d.scheduler.Run(ctx); err != nil {
				return fmt.Errorf("mirror scheduler failed: %w", err)
			}
			return nil
		})
	} else {
		slog.Info("No mirror targets configured; mirror scheduler disabled.")
	}

	return errGroup.Wait()
}
