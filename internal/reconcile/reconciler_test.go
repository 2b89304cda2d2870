package reconcile

import (
	"context"
	"testing"

	"github.com/redth/npm-docker-sync/internal/label"
	"github.com/redth/npm-docker-sync/internal/npm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNPM struct {
	proxies    map[int]npm.ProxyHost
	streams    map[int]npm.Stream
	nextID     int
	writeCount int
}

func newFakeNPM() *fakeNPM {
	return &fakeNPM{proxies: make(map[int]npm.ProxyHost), streams: make(map[int]npm.Stream), nextID: 1}
}

func (f *fakeNPM) ListProxyHosts(context.Context) ([]npm.ProxyHost, error) {
	out := make([]npm.ProxyHost, 0, len(f.proxies))
	for _, h := range f.proxies {
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeNPM) CreateProxyHost(_ context.Context, host npm.ProxyHost) (npm.ProxyHost, error) {
	host.ID = f.nextID
	f.nextID++
	f.proxies[host.ID] = host
	f.writeCount++
	return host, nil
}

func (f *fakeNPM) DeleteProxyHost(_ context.Context, id int) error {
	delete(f.proxies, id)
	f.writeCount++
	return nil
}

func (f *fakeNPM) ListStreams(context.Context) ([]npm.Stream, error) {
	out := make([]npm.Stream, 0, len(f.streams))
	for _, s := range f.streams {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeNPM) CreateStream(_ context.Context, s npm.Stream) (npm.Stream, error) {
	s.ID = f.nextID
	f.nextID++
	f.streams[s.ID] = s
	f.writeCount++
	return s, nil
}

func (f *fakeNPM) DeleteStream(_ context.Context, id int) error {
	delete(f.streams, id)
	f.writeCount++
	return nil
}

type fakeNet struct {
	host string
	port *int
	err  error
}

func (f *fakeNet) ForwardHost(context.Context, string, string, string) (string, error) {
	return f.host, f.err
}

func (f *fakeNet) ResolveForwardPort(context.Context, string) (*int, error) {
	return f.port, f.err
}

type fakeCerts struct {
	id    int
	found bool
}

func (f *fakeCerts) Match(context.Context, []string) (int, bool, error) {
	return f.id, f.found, nil
}

type fakeMirror struct {
	requests int
}

func (f *fakeMirror) RequestSync() { f.requests++ }

func intPtr(n int) *int { return &n }

func TestReconciler_CreateOnSameNetwork(t *testing.T) {
	npmClient := newFakeNPM()
	net := &fakeNet{host: "echo", port: intPtr(5678)}
	r := New(npmClient, net, &fakeCerts{}, &fakeMirror{}, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	labels := map[string]string{"npm.proxy.domains": "e.test", "npm.proxy.port": "5678"}
	r.Reconcile(context.Background(), "c1", "echo", labels)

	require.Len(t, npmClient.proxies, 1)
	var host npm.ProxyHost
	for _, h := range npmClient.proxies {
		host = h
	}
	assert.Equal(t, []string{"e.test"}, host.DomainNames)
	assert.Equal(t, "echo", host.ForwardHost)
	assert.Equal(t, 5678, host.ForwardPort)

	id, found := r.handles.get("c1", "proxy", 0)
	require.True(t, found)
	assert.Equal(t, host.ID, id)
}

func TestReconciler_CrossNetworkUsesHostAddress(t *testing.T) {
	npmClient := newFakeNPM()
	net := &fakeNet{host: "10.0.0.1", port: intPtr(5679)}
	r := New(npmClient, net, &fakeCerts{}, &fakeMirror{}, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	labels := map[string]string{"npm.proxy.domain": "x.test"}
	r.Reconcile(context.Background(), "c2", "ext", labels)

	require.Len(t, npmClient.proxies, 1)
	var host npm.ProxyHost
	for _, h := range npmClient.proxies {
		host = h
	}
	assert.Equal(t, "10.0.0.1", host.ForwardHost)
	assert.Equal(t, 5679, host.ForwardPort)
}

func TestReconciler_MultiIndex(t *testing.T) {
	npmClient := newFakeNPM()
	net := &fakeNet{host: "svc", port: intPtr(80)}
	r := New(npmClient, net, &fakeCerts{}, &fakeMirror{}, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	labels := map[string]string{
		"npm.proxy.0.domains": "a", "npm.proxy.0.port": "80",
		"npm.proxy.1.domains": "b", "npm.proxy.1.port": "90",
	}
	r.Reconcile(context.Background(), "c3", "svc", labels)

	require.Len(t, npmClient.proxies, 2)
	_, found0 := r.handles.get("c3", "proxy", 0)
	_, found1 := r.handles.get("c3", "proxy", 1)
	assert.True(t, found0)
	assert.True(t, found1)
}

func TestReconciler_LabelRemovalDeletesOnlyThatIndex(t *testing.T) {
	npmClient := newFakeNPM()
	net := &fakeNet{host: "svc", port: intPtr(80)}
	r := New(npmClient, net, &fakeCerts{}, &fakeMirror{}, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	labels := map[string]string{
		"npm.proxy.0.domains": "a", "npm.proxy.0.port": "80",
		"npm.proxy.1.domains": "b", "npm.proxy.1.port": "90",
	}
	r.Reconcile(context.Background(), "c4", "svc", labels)
	require.Len(t, npmClient.proxies, 2)

	delete(labels, "npm.proxy.1.domains")
	delete(labels, "npm.proxy.1.port")
	r.Reconcile(context.Background(), "c4", "svc", labels)

	require.Len(t, npmClient.proxies, 1)
	_, found0 := r.handles.get("c4", "proxy", 0)
	_, found1 := r.handles.get("c4", "proxy", 1)
	assert.True(t, found0)
	assert.False(t, found1)
}

func TestReconciler_OwnershipConflict(t *testing.T) {
	npmClient := newFakeNPM()
	npmClient.proxies[99] = npm.ProxyHost{ID: 99, DomainNames: []string{"e.test"}}
	net := &fakeNet{host: "echo", port: intPtr(5678)}
	r := New(npmClient, net, &fakeCerts{}, &fakeMirror{}, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	labels := map[string]string{"npm.proxy.domains": "e.test", "npm.proxy.port": "5678"}
	r.Reconcile(context.Background(), "c5", "echo", labels)

	require.Len(t, npmClient.proxies, 1, "the foreign resource must not be modified")
	_, found := npmClient.proxies[99]
	assert.True(t, found)
	_, handleFound := r.handles.get("c5", "proxy", 0)
	assert.False(t, handleFound, "no handle stored on conflict")

	_, hashFound := r.hashes.get("c5")
	assert.False(t, hashFound, "hash must not be updated so the next event retries")
}

func TestReconciler_CertAutoSelect(t *testing.T) {
	npmClient := newFakeNPM()
	net := &fakeNet{host: "svc", port: intPtr(80)}
	r := New(npmClient, net, &fakeCerts{id: 7, found: true}, &fakeMirror{}, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	labels := map[string]string{
		"npm.proxy.domains":  "svc.test",
		"npm.proxy.port":     "80",
		"npm.proxy.ssl.force": "true",
	}
	r.Reconcile(context.Background(), "c6", "svc", labels)

	require.Len(t, npmClient.proxies, 1)
	var host npm.ProxyHost
	for _, h := range npmClient.proxies {
		host = h
	}
	assert.Equal(t, 7, host.CertificateID)
}

func TestReconciler_UnchangedLabelsIssueNoWrites(t *testing.T) {
	npmClient := newFakeNPM()
	net := &fakeNet{host: "svc", port: intPtr(80)}
	r := New(npmClient, net, &fakeCerts{}, &fakeMirror{}, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	labels := map[string]string{"npm.proxy.domains": "svc.test", "npm.proxy.port": "80"}
	r.Reconcile(context.Background(), "c7", "svc", labels)
	writesAfterFirst := npmClient.writeCount

	r.Reconcile(context.Background(), "c7", "svc", labels)
	assert.Equal(t, writesAfterFirst, npmClient.writeCount, "re-running reconcile with unchanged labels must issue zero writes")
}

func TestReconciler_ContainerGoneDropsAllHandles(t *testing.T) {
	npmClient := newFakeNPM()
	net := &fakeNet{host: "svc", port: intPtr(80)}
	r := New(npmClient, net, &fakeCerts{}, &fakeMirror{}, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	labels := map[string]string{
		"npm.proxy.domains": "svc.test", "npm.proxy.port": "80",
		"npm.stream.incoming.port": "9000", "npm.stream.forward.port": "9001",
	}
	r.Reconcile(context.Background(), "c8", "svc", labels)
	require.Len(t, npmClient.proxies, 1)
	require.Len(t, npmClient.streams, 1)

	r.ContainerGone(context.Background(), "c8")
	assert.Empty(t, npmClient.proxies)
	assert.Empty(t, npmClient.streams)
	assert.Equal(t, 0, r.handles.count())
}

func TestReconciler_MirrorSignaledOnEveryReconcile(t *testing.T) {
	npmClient := newFakeNPM()
	net := &fakeNet{host: "svc", port: intPtr(80)}
	mirror := &fakeMirror{}
	r := New(npmClient, net, &fakeCerts{}, mirror, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	labels := map[string]string{"npm.proxy.domains": "svc.test", "npm.proxy.port": "80"}
	r.Reconcile(context.Background(), "c9", "svc", labels)
	assert.Equal(t, 1, mirror.requests)
}

func TestReconciler_RebuildHandlesAdoptsOwnedResourcesForLiveContainers(t *testing.T) {
	npmClient := newFakeNPM()
	npmClient.proxies[11] = npm.ProxyHost{
		ID: 11, DomainNames: []string{"a.test"},
		Meta: npm.NewOwnershipMeta("instance-1", "http://npm.local", "c1", "proxy", 2),
	}
	npmClient.streams[22] = npm.Stream{
		ID: 22, IncomingPort: 9000,
		Meta: npm.NewOwnershipMeta("instance-1", "http://npm.local", "c1", "stream", 0),
	}
	net := &fakeNet{host: "svc", port: intPtr(80)}
	r := New(npmClient, net, &fakeCerts{}, &fakeMirror{}, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	r.RebuildHandles(context.Background(), map[string]bool{"c1": true})

	id, found := r.handles.get("c1", "proxy", 2)
	require.True(t, found)
	assert.Equal(t, 11, id)

	id, found = r.handles.get("c1", "stream", 9000)
	require.True(t, found)
	assert.Equal(t, 22, id)
}

func TestReconciler_RebuildHandlesSkipsForeignAndDeadContainers(t *testing.T) {
	npmClient := newFakeNPM()
	npmClient.proxies[11] = npm.ProxyHost{
		ID: 11, DomainNames: []string{"a.test"},
		Meta: npm.NewOwnershipMeta("other-instance", "http://npm.local", "c1", "proxy", 0),
	}
	npmClient.proxies[12] = npm.ProxyHost{
		ID: 12, DomainNames: []string{"b.test"},
		Meta: npm.NewOwnershipMeta("instance-1", "http://npm.local", "c-gone", "proxy", 0),
	}
	npmClient.proxies[13] = npm.ProxyHost{ID: 13, DomainNames: []string{"c.test"}} // no meta at all
	net := &fakeNet{host: "svc", port: intPtr(80)}
	r := New(npmClient, net, &fakeCerts{}, &fakeMirror{}, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	r.RebuildHandles(context.Background(), map[string]bool{"c1": true})

	assert.Equal(t, 0, r.handles.count(), "foreign-instance, dead-container, and unmanaged resources must not be adopted")
}

func TestReconciler_NilMirrorDefaultsToNoop(t *testing.T) {
	npmClient := newFakeNPM()
	net := &fakeNet{host: "svc", port: intPtr(80)}
	r := New(npmClient, net, &fakeCerts{}, nil, "instance-1", "http://npm.local", label.DefaultBoolDefaults())

	labels := map[string]string{"npm.proxy.domains": "svc.test", "npm.proxy.port": "80"}
	assert.NotPanics(t, func() {
		r.Reconcile(context.Background(), "c10", "svc", labels)
	})
}
