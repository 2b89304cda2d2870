// Package reconcile drives a single container's labels to the matching set of proxy-manager resources:
// proxy hosts and streams, owned via the handle map, reconciled idempotently on every container event
// (§4.5).
package reconcile

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redth/npm-docker-sync/internal/label"
	"github.com/redth/npm-docker-sync/internal/npm"
)

// NPMClient is the subset of the proxy-manager client the reconciler needs. Satisfied by *npm.Client.
// Edits are always delete-then-recreate (§9 "treat all proxy/stream edits as delete+recreate uniformly"),
// so no Update methods are required here.
type NPMClient interface {
	ListProxyHosts(ctx context.Context) ([]npm.ProxyHost, error)
	CreateProxyHost(ctx context.Context, host npm.ProxyHost) (npm.ProxyHost, error)
	DeleteProxyHost(ctx context.Context, id int) error

	ListStreams(ctx context.Context) ([]npm.Stream, error)
	CreateStream(ctx context.Context, stream npm.Stream) (npm.Stream, error)
	DeleteStream(ctx context.Context, id int) error
}

// NetworkInspector is the subset of *netinspect.Inspector the reconciler needs to fill in a container's
// forward host/port when labels leave them absent (§4.2, §4.5).
type NetworkInspector interface {
	ForwardHost(ctx context.Context, containerID, containerName, explicitHost string) (string, error)
	ResolveForwardPort(ctx context.Context, containerID string) (*int, error)
}

// CertMatcher is the subset of *certmatch.Matcher the reconciler needs for ssl.force auto-selection
// (§4.3, §4.5).
type CertMatcher interface {
	Match(ctx context.Context, domains []string) (int, bool, error)
}

// Reconciler implements §4.5.
type Reconciler struct {
	npm    NPMClient
	net    NetworkInspector
	certs  CertMatcher
	mirror MirrorSignal

	instanceID string
	npmURL     string
	defaults   label.BoolDefaults

	handles *handleMap
	hashes  *labelHashMap
}

// New creates a Reconciler. mirror may be nil, in which case NoopMirrorSignal is wired in (§9).
func New(npmClient NPMClient, net NetworkInspector, certs CertMatcher, mirror MirrorSignal, instanceID, npmURL string, defaults label.BoolDefaults) *Reconciler {
	if mirror == nil {
		mirror = NoopMirrorSignal{}
	}
	return &Reconciler{
		npm:        npmClient,
		net:        net,
		certs:      certs,
		mirror:     mirror,
		instanceID: instanceID,
		npmURL:     npmURL,
		defaults:   defaults,
		handles:    newHandleMap(),
		hashes:     newLabelHashMap(),
	}
}

// RebuildHandles repopulates the in-memory handle map from proxy-manager resource meta on cold start
// (§9): every proxy host and stream whose meta marks it as ours for this instance, and whose
// meta.container_id names a container present in liveContainerIDs, is re-adopted as a handle. Resources
// whose owning container is gone are left alone here; a ContainerGone or the next Reconcile call for that
// id will clean them up normally. This must be called once, before the initial scan, so that scan's first
// reconcile sees the handles it's about to rebuild rather than treating every resource as foreign.
func (r *Reconciler) RebuildHandles(ctx context.Context, liveContainerIDs map[string]bool) {
	proxies, err := r.npm.ListProxyHosts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("List proxy hosts for handle rebuild failed.", "error", err)
		}
	}
	for _, p := range proxies {
		if bool(p.IsDeleted) || !p.Meta.IsOursForInstance(r.instanceID) {
			continue
		}
		containerID, ok := p.Meta.ContainerID()
		if !ok || !liveContainerIDs[containerID] {
			continue
		}
		index, ok := p.Meta.Index("proxy")
		if !ok {
			continue
		}
		r.handles.set(containerID, "proxy", index, p.ID)
	}

	streams, err := r.npm.ListStreams(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("List streams for handle rebuild failed.", "error", err)
		}
	}
	for _, s := range streams {
		if bool(s.IsDeleted) || !s.Meta.IsOursForInstance(r.instanceID) {
			continue
		}
		containerID, ok := s.Meta.ContainerID()
		if !ok || !liveContainerIDs[containerID] {
			continue
		}
		// Stream handles are keyed by incoming port, matching how reconcileStreams stores them, not by
		// meta.stream_index (which only records the label index used to build the ownership meta).
		r.handles.set(containerID, "stream", s.IncomingPort, s.ID)
	}
}

// Reconcile is the reconciler's single entry point per container event (§4.5). It never returns an error:
// every failure is logged and scoped to the index/resource it affects (§7 "errors never propagated out of
// the event task").
func (r *Reconciler) Reconcile(ctx context.Context, containerID, containerName string, labels map[string]string) {
	hash := labelHash(labels)
	if prev, found := r.hashes.get(containerID); found && prev == hash {
		return
	}

	parsed := label.ParseLabels(labels, r.defaults)
	for _, w := range parsed.Warnings {
		slog.Warn("Label parse warning.", "container", containerName, "warning", w)
	}

	okProxies := r.reconcileProxies(ctx, containerID, containerName, parsed.Proxies)
	okStreams := r.reconcileStreams(ctx, containerID, containerName, parsed.Streams)

	if okProxies && okStreams {
		r.hashes.set(containerID, hash)
	}
	r.mirror.RequestSync()
}

// ContainerGone handles a stop/die/destroy event: every handle owned by containerID is deleted remotely
// (best-effort) and dropped regardless of the delete outcome, so a later proxy-manager restart can't leak
// handles (§4.5).
func (r *Reconciler) ContainerGone(ctx context.Context, containerID string) {
	for _, h := range r.handles.handlesFor(containerID) {
		var err error
		switch h.Kind {
		case "proxy":
			err = r.npm.DeleteProxyHost(ctx, h.RemoteID)
		case "stream":
			err = r.npm.DeleteStream(ctx, h.RemoteID)
		}
		if err != nil && ctx.Err() == nil {
			slog.Error("Delete resource for removed container failed.",
				"container_id", containerID, "kind", h.Kind, "remote_id", h.RemoteID, "error", err)
		}
		r.handles.delete(containerID, h.Kind, h.Index)
	}
	r.hashes.delete(containerID)
	r.mirror.RequestSync()
}

func (r *Reconciler) reconcileProxies(ctx context.Context, containerID, containerName string, configs map[int]label.ProxyConfig) bool {
	ok := true

	prevIdx := r.handles.indicesFor(containerID, "proxy")
	for i := range prevIdx {
		if _, stillWanted := configs[i]; stillWanted {
			continue
		}
		if id, found := r.handles.get(containerID, "proxy", i); found {
			if err := r.npm.DeleteProxyHost(ctx, id); err != nil && ctx.Err() == nil {
				slog.Error("Delete removed proxy host failed.", "container", containerName, "index", i, "error", err)
			}
			r.handles.delete(containerID, "proxy", i)
		}
	}

	if len(configs) == 0 {
		return ok
	}

	existing, err := r.npm.ListProxyHosts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("List proxy hosts failed.", "container", containerName, "error", err)
		}
		return false
	}

	for i, cfg := range configs {
		if cfg.ForwardHost == "" {
			host, hErr := r.net.ForwardHost(ctx, containerID, containerName, "")
			if hErr != nil {
				if ctx.Err() == nil {
					slog.Error("Resolve forward host failed.", "container", containerName, "index", i, "error", hErr)
				}
				ok = false
				continue
			}
			cfg.ForwardHost = host
		}
		if cfg.ForwardPort == nil {
			port, pErr := r.net.ResolveForwardPort(ctx, containerID)
			if pErr != nil {
				if ctx.Err() == nil {
					slog.Error("Resolve forward port failed.", "container", containerName, "index", i, "error", pErr)
				}
				ok = false
				continue
			}
			cfg.ForwardPort = port
		}
		if cfg.ForwardPort == nil {
			slog.Warn("No forward port available; skipping proxy index.", "container", containerName, "index", i)
			ok = false
			continue
		}

		if cfg.SSLForced && cfg.CertificateID == nil {
			if id, found, cErr := r.certs.Match(ctx, cfg.Domains); cErr != nil {
				if ctx.Err() == nil {
					slog.Error("Certificate match failed.", "container", containerName, "index", i, "error", cErr)
				}
			} else if found {
				cfg.CertificateID = &id
			}
		}

		desired := r.buildProxyHost(containerID, cfg)
		if !r.createOrReplaceProxy(ctx, containerID, containerName, i, desired, existing) {
			ok = false
		}
	}
	return ok
}

func (r *Reconciler) createOrReplaceProxy(ctx context.Context, containerID, containerName string, index int, desired npm.ProxyHost, existing []npm.ProxyHost) bool {
	if id, found := r.handles.get(containerID, "proxy", index); found {
		if err := r.npm.DeleteProxyHost(ctx, id); err != nil && ctx.Err() == nil {
			slog.Error("Delete proxy host before recreate failed.", "container", containerName, "index", index, "error", err)
		}
		r.handles.delete(containerID, "proxy", index)
		return r.createProxy(ctx, containerID, containerName, index, desired)
	}

	if candidate, found := findOverlappingProxyHost(existing, desired.DomainNames); found {
		if candidate.Meta.IsOursForInstance(r.instanceID) {
			if err := r.npm.DeleteProxyHost(ctx, candidate.ID); err != nil {
				if ctx.Err() == nil {
					slog.Error("Delete our own conflicting proxy host failed.", "container", containerName, "index", index, "error", err)
				}
				return false
			}
		} else {
			owner, has := candidate.Meta.SyncInstanceID()
			if !has {
				owner = "manually created"
			}
			slog.Error("Ownership conflict: proxy host exists and is not ours.",
				"container", containerName, "index", index, "domains", desired.DomainNames, "owner", owner)
			return false
		}
	}
	return r.createProxy(ctx, containerID, containerName, index, desired)
}

func (r *Reconciler) createProxy(ctx context.Context, containerID, containerName string, index int, desired npm.ProxyHost) bool {
	created, err := r.npm.CreateProxyHost(ctx, desired)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Create proxy host failed.", "container", containerName, "index", index, "error", err)
		}
		return false
	}
	r.handles.set(containerID, "proxy", index, created.ID)
	return true
}

// findOverlappingProxyHost returns the first non-deleted existing proxy host sharing any domain
// (case-insensitive) with domains.
func findOverlappingProxyHost(existing []npm.ProxyHost, domains []string) (npm.ProxyHost, bool) {
	want := make(map[string]bool, len(domains))
	for _, d := range domains {
		want[strings.ToLower(d)] = true
	}
	for _, host := range existing {
		if bool(host.IsDeleted) {
			continue
		}
		for _, d := range host.DomainNames {
			if want[strings.ToLower(d)] {
				return host, true
			}
		}
	}
	return npm.ProxyHost{}, false
}

func (r *Reconciler) buildProxyHost(containerID string, cfg label.ProxyConfig) npm.ProxyHost {
	host := npm.ProxyHost{
		DomainNames:    cfg.Domains,
		ForwardScheme:  cfg.ForwardScheme,
		ForwardHost:    cfg.ForwardHost,
		SSLForced:      npm.FlexBool(cfg.SSLForced),
		CachingEnabled: npm.FlexBool(cfg.CachingEnabled),
		BlockExploits:  npm.FlexBool(cfg.BlockExploits),
		AllowWebsocket: npm.FlexBool(cfg.WebsocketUpgrade),
		HTTP2Support:   npm.FlexBool(cfg.HTTP2),
		HSTSEnabled:    npm.FlexBool(cfg.HSTS),
		HSTSSubdomains: npm.FlexBool(cfg.HSTSSubdomains),
		AdvancedConfig: cfg.AdvancedConfig,
		Enabled:        true,
		Meta:           npm.NewOwnershipMeta(r.instanceID, r.npmURL, containerID, "proxy", cfg.Index),
	}
	if cfg.ForwardPort != nil {
		host.ForwardPort = *cfg.ForwardPort
	}
	if cfg.CertificateID != nil {
		host.CertificateID = *cfg.CertificateID
	}
	if cfg.AccessListID != nil {
		host.AccessListID = *cfg.AccessListID
	}
	return host
}

func (r *Reconciler) reconcileStreams(ctx context.Context, containerID, containerName string, configs map[int]label.StreamConfig) bool {
	ok := true

	byPort := make(map[int]label.StreamConfig, len(configs))
	for _, cfg := range configs {
		byPort[cfg.IncomingPort] = cfg
	}

	prevPorts := r.handles.indicesFor(containerID, "stream")
	for p := range prevPorts {
		if _, stillWanted := byPort[p]; stillWanted {
			continue
		}
		if id, found := r.handles.get(containerID, "stream", p); found {
			if err := r.npm.DeleteStream(ctx, id); err != nil && ctx.Err() == nil {
				slog.Error("Delete removed stream failed.", "container", containerName, "incoming_port", p, "error", err)
			}
			r.handles.delete(containerID, "stream", p)
		}
	}

	if len(byPort) == 0 {
		return ok
	}

	existing, err := r.npm.ListStreams(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("List streams failed.", "container", containerName, "error", err)
		}
		return false
	}

	for port, cfg := range byPort {
		if cfg.ForwardHost == "" {
			host, hErr := r.net.ForwardHost(ctx, containerID, containerName, "")
			if hErr != nil {
				if ctx.Err() == nil {
					slog.Error("Resolve forward host failed.", "container", containerName, "incoming_port", port, "error", hErr)
				}
				ok = false
				continue
			}
			cfg.ForwardHost = host
		}
		if cfg.ForwardPort == nil {
			fPort, pErr := r.net.ResolveForwardPort(ctx, containerID)
			if pErr != nil {
				if ctx.Err() == nil {
					slog.Error("Resolve forward port failed.", "container", containerName, "incoming_port", port, "error", pErr)
				}
				ok = false
				continue
			}
			cfg.ForwardPort = fPort
		}
		if cfg.ForwardPort == nil {
			slog.Warn("No forward port available; skipping stream.", "container", containerName, "incoming_port", port)
			ok = false
			continue
		}

		certID := r.resolveStreamCertificate(ctx, containerName, cfg)

		desired := r.buildStream(containerID, cfg, certID)
		if !r.createOrReplaceStream(ctx, containerID, containerName, port, desired, existing) {
			ok = false
		}
	}
	return ok
}

// resolveStreamCertificate interprets the raw "ssl" label value: a numeric id is used as-is; anything else
// is treated as a domain to resolve via the certificate matcher (§6 label `stream[.N].ssl`).
func (r *Reconciler) resolveStreamCertificate(ctx context.Context, containerName string, cfg label.StreamConfig) int {
	if cfg.SSLCertificate == "" {
		return 0
	}
	if id, err := strconv.Atoi(strings.TrimSpace(cfg.SSLCertificate)); err == nil {
		return id
	}
	id, found, err := r.certs.Match(ctx, []string{cfg.SSLCertificate})
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Certificate match for stream failed.", "container", containerName, "domain", cfg.SSLCertificate, "error", err)
		}
		return 0
	}
	if !found {
		return 0
	}
	return id
}

func (r *Reconciler) createOrReplaceStream(ctx context.Context, containerID, containerName string, port int, desired npm.Stream, existing []npm.Stream) bool {
	if id, found := r.handles.get(containerID, "stream", port); found {
		if err := r.npm.DeleteStream(ctx, id); err != nil && ctx.Err() == nil {
			slog.Error("Delete stream before recreate failed.", "container", containerName, "incoming_port", port, "error", err)
		}
		r.handles.delete(containerID, "stream", port)
		return r.createStream(ctx, containerID, containerName, port, desired)
	}

	if candidate, found := findOverlappingStream(existing, port); found {
		if candidate.Meta.IsOursForInstance(r.instanceID) {
			if err := r.npm.DeleteStream(ctx, candidate.ID); err != nil {
				if ctx.Err() == nil {
					slog.Error("Delete our own conflicting stream failed.", "container", containerName, "incoming_port", port, "error", err)
				}
				return false
			}
		} else {
			owner, has := candidate.Meta.SyncInstanceID()
			if !has {
				owner = "manually created"
			}
			slog.Error("Ownership conflict: stream exists and is not ours.",
				"container", containerName, "incoming_port", port, "owner", owner)
			return false
		}
	}
	return r.createStream(ctx, containerID, containerName, port, desired)
}

func (r *Reconciler) createStream(ctx context.Context, containerID, containerName string, port int, desired npm.Stream) bool {
	created, err := r.npm.CreateStream(ctx, desired)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Create stream failed.", "container", containerName, "incoming_port", port, "error", err)
		}
		return false
	}
	r.handles.set(containerID, "stream", port, created.ID)
	return true
}

func findOverlappingStream(existing []npm.Stream, incomingPort int) (npm.Stream, bool) {
	for _, s := range existing {
		if bool(s.IsDeleted) {
			continue
		}
		if s.IncomingPort == incomingPort {
			return s, true
		}
	}
	return npm.Stream{}, false
}

func (r *Reconciler) buildStream(containerID string, cfg label.StreamConfig, certID int) npm.Stream {
	stream := npm.Stream{
		IncomingPort:   cfg.IncomingPort,
		ForwardingHost: cfg.ForwardHost,
		TCPForwarding:  npm.FlexBool(cfg.TCPForwarding),
		UDPForwarding:  npm.FlexBool(cfg.UDPForwarding),
		CertificateID:  certID,
		Enabled:        true,
		Meta:           npm.NewOwnershipMeta(r.instanceID, r.npmURL, containerID, "stream", cfg.Index),
	}
	if cfg.ForwardPort != nil {
		stream.ForwardingPort = *cfg.ForwardPort
	}
	return stream
}
