package dockerhost

import (
	"context"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
)

// Events subscribes to the Docker daemon's event stream, filtered to local container lifecycle events as
// required by §6's container host contract. The caller is responsible for dispatching individual actions.
func (c *Client) Events(ctx context.Context) (<-chan events.Message, <-chan error) {
	opts := events.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("scope", "local"),
			filters.Arg("type", string(events.ContainerEventType)),
		),
	}
	return c.Client.Events(ctx, opts)
}
