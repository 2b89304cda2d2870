// Package netinspect detects which Docker networks the proxy-manager container shares with a service
// container, discovers a reachable host address, and infers a default forward host/port per container
// (§4.2). The port-ordering logic is grounded on docker/go-connections/nat, the same package the Docker
// Engine client uses to key published/exposed ports.
package netinspect

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"

	"github.com/redth/npm-docker-sync/internal/dockerhost"
)

// HostAccessHostname is the conventional DNS name many container runtimes resolve to the Docker host from
// inside a container (e.g. Docker Desktop's host.docker.internal).
const HostAccessHostname = "host.docker.internal"

// DockerAPI is the subset of the container host contract (§6) the inspector needs.
type DockerAPI interface {
	ListContainers(ctx context.Context) ([]container.Summary, error)
	InspectContainer(ctx context.Context, id string) (container.InspectResponse, error)
	ListNetworks(ctx context.Context) ([]network.Summary, error)
}

// Config configures the Inspector's initialization (§6 optional environment variables).
type Config struct {
	// ProxyContainerName, if set, names the proxy-manager's own container so its shared networks can be
	// detected.
	ProxyContainerName string
	// HostAddressOverride, if set, always wins host-address resolution.
	HostAddressOverride string
	// ResolveHost resolves a hostname to verify it's DNS-resolvable from this process. Overridable in
	// tests; defaults to net.DefaultResolver.LookupIPAddr.
	ResolveHost func(host string) ([]net.IPAddr, error)
}

// Inspector implements §4.2.
type Inspector struct {
	docker DockerAPI
	cfg    Config

	proxyNets   map[string]bool
	hostAddress string
}

// New creates an Inspector. Call Init once per process before using it.
func New(docker DockerAPI, cfg Config) *Inspector {
	if cfg.ResolveHost == nil {
		cfg.ResolveHost = func(host string) ([]net.IPAddr, error) {
			return net.DefaultResolver.LookupIPAddr(context.Background(), host)
		}
	}
	return &Inspector{docker: docker, cfg: cfg, proxyNets: make(map[string]bool)}
}

// Init resolves the proxy-manager's shared networks and the host address, once per process (§4.2 step 1-2).
func (ins *Inspector) Init(ctx context.Context) error {
	if ins.cfg.ProxyContainerName != "" {
		containers, err := ins.docker.ListContainers(ctx)
		if err != nil {
			return fmt.Errorf("list containers: %w", err)
		}
		c, found := dockerhost.FindContainerByName(containers, ins.cfg.ProxyContainerName)
		if found {
			info, iErr := ins.docker.InspectContainer(ctx, c.ID)
			if iErr != nil {
				return fmt.Errorf("inspect proxy-manager container: %w", iErr)
			}
			for name := range info.NetworkSettings.Networks {
				ins.proxyNets[name] = true
			}
		} else {
			slog.Warn("Proxy-manager container not found; shared-network inference disabled.",
				"container_name", ins.cfg.ProxyContainerName)
		}
	}

	ins.hostAddress = ins.resolveHostAddress(ctx)
	return nil
}

func (ins *Inspector) resolveHostAddress(ctx context.Context) string {
	if ins.cfg.HostAddressOverride != "" {
		return ins.cfg.HostAddressOverride
	}
	if _, err := ins.cfg.ResolveHost(HostAccessHostname); err == nil {
		return HostAccessHostname
	}

	if gw, err := ins.defaultBridgeGateway(ctx); err == nil && gw != "" {
		return gw
	}

	slog.Warn("Could not resolve a host address; falling back to conventional hostname.",
		"hostname", HostAccessHostname)
	return HostAccessHostname
}

func (ins *Inspector) defaultBridgeGateway(ctx context.Context) (string, error) {
	nets, err := ins.docker.ListNetworks(ctx)
	if err != nil {
		return "", fmt.Errorf("list networks: %w", err)
	}
	for _, n := range nets {
		if n.Name != "bridge" {
			continue
		}
		for _, cfg := range n.IPAM.Config {
			if cfg.Gateway != "" && net.ParseIP(cfg.Gateway).To4() != nil {
				return cfg.Gateway, nil
			}
		}
	}
	return "", fmt.Errorf("no IPv4 gateway found for default bridge network")
}

// ForwardHost infers the forward host for a container per §4.2. If explicitHost is non-empty, it is
// returned unchanged. Otherwise the container's network memberships are compared against the
// proxy-manager's shared networks.
func (ins *Inspector) ForwardHost(ctx context.Context, containerID, containerName, explicitHost string) (string, error) {
	if explicitHost != "" {
		return explicitHost, nil
	}

	info, err := ins.docker.InspectContainer(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("inspect container: %w", err)
	}

	for name := range info.NetworkSettings.Networks {
		if ins.proxyNets[name] {
			return strings.TrimPrefix(containerName, "/"), nil
		}
	}
	return ins.hostAddress, nil
}

// ResolveForwardPort inspects containerID and infers its forward port per §4.2. It is the convenience
// entry point the reconciler uses; ForwardPort itself stays a pure function over an already-fetched
// container.InspectResponse for easy testing.
func (ins *Inspector) ResolveForwardPort(ctx context.Context, containerID string) (*int, error) {
	info, err := ins.docker.InspectContainer(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("inspect container: %w", err)
	}
	return ForwardPort(info), nil
}

// ForwardPort infers the forward port for a container per §4.2: published ports are preferred over merely
// exposed ports, with an ascending numeric tie-break within each group. Returns nil if no port is declared.
func ForwardPort(info container.InspectResponse) *int {
	var published, exposed []int

	for port, bindings := range info.NetworkSettings.Ports {
		if len(bindings) == 0 {
			continue
		}
		if p, err := portNumber(port); err == nil {
			published = append(published, p)
		}
	}
	if info.Config != nil {
		for port := range info.Config.ExposedPorts {
			if _, isPublished := info.NetworkSettings.Ports[port]; isPublished && len(info.NetworkSettings.Ports[port]) > 0 {
				continue
			}
			if p, err := portNumber(port); err == nil {
				exposed = append(exposed, p)
			}
		}
	}

	sort.Ints(published)
	sort.Ints(exposed)

	if len(published) > 0 {
		p := published[0]
		return &p
	}
	if len(exposed) > 0 {
		p := exposed[0]
		return &p
	}
	return nil
}

func portNumber(port nat.Port) (int, error) {
	return port.Int()
}
