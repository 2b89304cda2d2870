// Package dockerhost wraps the Docker Engine API surface this controller needs from the container host:
// listing and inspecting containers, listing networks, and subscribing to the lifecycle event stream.
// It is the only package that imports github.com/docker/docker directly.
package dockerhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/client"
)

// Client is a thin wrapper around the Docker Engine API client used by the reconciliation engine.
type Client struct {
	*client.Client
}

// New creates a Client from the given Docker host endpoint, e.g. "unix:///var/run/docker.sock".
func New(host string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create Docker client: %w", err)
	}
	return &Client{Client: cli}, nil
}

// WaitReady waits for the Docker daemon to start and be ready to serve requests. It retries with an
// exponential backoff until the daemon responds or ctx is canceled.
func (c *Client) WaitReady(ctx context.Context) error {
	boff := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(1*time.Second),
		backoff.WithMaxElapsedTime(0),
	), ctx)

	waitingLogged := false
	ping := func() error {
		_, err := c.Ping(ctx)
		if err == nil {
			if waitingLogged {
				slog.Info("Docker daemon is ready.")
			}
			return nil
		}
		if !client.IsErrConnectionFailed(err) {
			return backoff.Permanent(fmt.Errorf("connect to Docker daemon: %w", err))
		}
		if !waitingLogged {
			slog.Info("Waiting for Docker daemon to start and be ready.")
			waitingLogged = true
		}
		return err
	}

	if err := backoff.Retry(ping, boff); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("ping Docker: %w", err)
	}
	return nil
}
