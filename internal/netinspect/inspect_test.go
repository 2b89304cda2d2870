package netinspect

import (
	"context"
	"net"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocker struct {
	containers []container.Summary
	inspect    map[string]container.InspectResponse
	inspectErr error
	networks   []network.Summary
}

func (f *fakeDocker) ListContainers(context.Context) ([]container.Summary, error) {
	return f.containers, nil
}

func (f *fakeDocker) InspectContainer(_ context.Context, id string) (container.InspectResponse, error) {
	if f.inspectErr != nil {
		return container.InspectResponse{}, f.inspectErr
	}
	return f.inspect[id], nil
}

func (f *fakeDocker) ListNetworks(context.Context) ([]network.Summary, error) {
	return f.networks, nil
}

func TestInspector_ForwardHost_SameNetwork(t *testing.T) {
	npm := container.Summary{ID: "npm1", Names: []string{"/npm"}}
	echo := container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{Name: "/echo"},
		NetworkSettings: &container.NetworkSettings{
			Networks: map[string]*network.EndpointSettings{"P": {}},
		},
	}
	f := &fakeDocker{
		containers: []container.Summary{npm},
		inspect: map[string]container.InspectResponse{
			"npm1": {
				ContainerJSONBase: &container.ContainerJSONBase{Name: "/npm"},
				NetworkSettings: &container.NetworkSettings{
					Networks: map[string]*network.EndpointSettings{"P": {}},
				},
			},
			"echo1": echo,
		},
	}

	ins := New(f, Config{ProxyContainerName: "npm", ResolveHost: failingResolve})
	require.NoError(t, ins.Init(context.Background()))

	host, err := ins.ForwardHost(context.Background(), "echo1", "/echo", "")
	require.NoError(t, err)
	assert.Equal(t, "echo", host)
}

func TestInspector_ForwardHost_CrossNetworkFallsBackToHostAddress(t *testing.T) {
	f := &fakeDocker{
		containers: []container.Summary{{ID: "npm1", Names: []string{"/npm"}}},
		inspect: map[string]container.InspectResponse{
			"npm1": {
				ContainerJSONBase: &container.ContainerJSONBase{Name: "/npm"},
				NetworkSettings: &container.NetworkSettings{
					Networks: map[string]*network.EndpointSettings{"P": {}},
				},
			},
			"ext1": {
				ContainerJSONBase: &container.ContainerJSONBase{Name: "/ext"},
				NetworkSettings: &container.NetworkSettings{
					Networks: map[string]*network.EndpointSettings{"other": {}},
				},
			},
		},
	}

	ins := New(f, Config{ProxyContainerName: "npm", HostAddressOverride: "192.0.2.1"})
	require.NoError(t, ins.Init(context.Background()))

	host, err := ins.ForwardHost(context.Background(), "ext1", "/ext", "")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", host)
}

func TestInspector_ForwardHost_ExplicitWins(t *testing.T) {
	ins := New(&fakeDocker{}, Config{HostAddressOverride: "192.0.2.1"})
	require.NoError(t, ins.Init(context.Background()))

	host, err := ins.ForwardHost(context.Background(), "x", "/x", "explicit.host")
	require.NoError(t, err)
	assert.Equal(t, "explicit.host", host)
}

func TestForwardPort_PublishedPreferredOverExposed(t *testing.T) {
	info := container.InspectResponse{
		Config: &container.Config{
			ExposedPorts: nat.PortSet{"5679/tcp": struct{}{}, "80/tcp": struct{}{}},
		},
		NetworkSettings: &container.NetworkSettings{
			Ports: nat.PortMap{
				"5679/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "5679"}},
			},
		},
	}
	p := ForwardPort(info)
	require.NotNil(t, p)
	assert.Equal(t, 5679, *p)
}

func TestForwardPort_NoneDeclared(t *testing.T) {
	info := container.InspectResponse{
		Config:          &container.Config{},
		NetworkSettings: &container.NetworkSettings{},
	}
	assert.Nil(t, ForwardPort(info))
}

func TestInspector_ResolveForwardPort_InspectsThenInfers(t *testing.T) {
	docker := &fakeDocker{
		inspect: map[string]container.InspectResponse{
			"c1": {
				Config: &container.Config{ExposedPorts: nat.PortSet{"5679/tcp": struct{}{}}},
				NetworkSettings: &container.NetworkSettings{
					Ports: nat.PortMap{"5679/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "5679"}}},
				},
			},
		},
	}
	ins := New(docker, Config{})

	p, err := ins.ResolveForwardPort(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 5679, *p)
}

func TestInspector_ResolveForwardPort_InspectFailurePropagates(t *testing.T) {
	ins := New(&fakeDocker{inspectErr: assert.AnError}, Config{})

	_, err := ins.ResolveForwardPort(context.Background(), "missing")
	require.Error(t, err)
}

func failingResolve(string) ([]net.IPAddr, error) {
	return nil, assert.AnError
}
