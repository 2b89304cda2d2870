package dockerhost

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
)

// ListContainers lists all containers on the host, including stopped ones, matching the initial-full-scan
// requirement of the event loop (§4.6).
func (c *Client) ListContainers(ctx context.Context) ([]container.Summary, error) {
	summaries, err := c.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	return summaries, nil
}

// InspectContainer returns the full inspection record for a container, including its labels, network
// memberships, and published/exposed ports.
func (c *Client) InspectContainer(ctx context.Context, id string) (container.InspectResponse, error) {
	info, err := c.ContainerInspect(ctx, id)
	if err != nil {
		return info, fmt.Errorf("inspect container %q: %w", id, err)
	}
	return info, nil
}

// ListNetworks lists all networks known to the Docker daemon.
func (c *Client) ListNetworks(ctx context.Context) ([]network.Summary, error) {
	nets, err := c.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	return nets, nil
}

// ContainerName returns the container's display name with the leading slash Docker prepends stripped.
func ContainerName(info container.InspectResponse) string {
	return strings.TrimPrefix(info.Name, "/")
}

// PrimaryName returns the first of a container.Summary's Names with the leading slash Docker
// prepends stripped, or "" if it has none.
func PrimaryName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

// FindContainerByName locates a container whose name (with or without the leading slash) equals, or whose ID
// is prefixed by, the given name. Used to resolve the configured proxy-manager container for §4.2 step 1.
func FindContainerByName(containers []container.Summary, name string) (container.Summary, bool) {
	want := strings.TrimPrefix(name, "/")
	for _, ctr := range containers {
		for _, n := range ctr.Names {
			if strings.TrimPrefix(n, "/") == want {
				return ctr, true
			}
		}
		if strings.HasPrefix(ctr.ID, want) {
			return ctr, true
		}
	}
	return container.Summary{}, false
}
