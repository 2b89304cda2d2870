package mirror

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redth/npm-docker-sync/internal/npm"
)

// Stats reports one resource kind's sync outcome for one (primary, secondary) pair (§4.8).
type Stats struct {
	Kind    string
	Synced  int
	Skipped int
	Failed  int
}

// Result is the full per-kind outcome of one ResourceMirror.Sync call, in sync order.
type Result struct {
	Certificates     Stats
	AccessLists      Stats
	ProxyHosts       Stats
	RedirectionHosts Stats
	Streams          Stats
	DeadHosts        Stats
}

// PrimaryAPI is the read surface the resource mirror needs from the primary proxy manager.
type PrimaryAPI interface {
	ListCertificates(ctx context.Context) ([]npm.Certificate, error)
	ListAccessLists(ctx context.Context) ([]npm.AccessList, error)
	ListProxyHosts(ctx context.Context) ([]npm.ProxyHost, error)
	ListRedirectionHosts(ctx context.Context) ([]npm.RedirectionHost, error)
	ListStreams(ctx context.Context) ([]npm.Stream, error)
	ListDeadHosts(ctx context.Context) ([]npm.DeadHost, error)
}

// SecondaryAPI is the read/write surface the resource mirror needs from one secondary proxy manager.
// Certificate creation is intentionally absent: the proxy manager's certificate issuance requires a file
// upload this controller never performs (§4.8 step 5, §9).
type SecondaryAPI interface {
	PrimaryAPI

	CreateAccessList(ctx context.Context, list npm.AccessList) (npm.AccessList, error)
	UpdateAccessList(ctx context.Context, id int, list npm.AccessList) (npm.AccessList, error)

	CreateProxyHost(ctx context.Context, host npm.ProxyHost) (npm.ProxyHost, error)
	UpdateProxyHost(ctx context.Context, id int, host npm.ProxyHost) (npm.ProxyHost, error)

	CreateRedirectionHost(ctx context.Context, host npm.RedirectionHost) (npm.RedirectionHost, error)
	UpdateRedirectionHost(ctx context.Context, id int, host npm.RedirectionHost) (npm.RedirectionHost, error)

	CreateStream(ctx context.Context, s npm.Stream) (npm.Stream, error)
	UpdateStream(ctx context.Context, id int, s npm.Stream) (npm.Stream, error)

	CreateDeadHost(ctx context.Context, host npm.DeadHost) (npm.DeadHost, error)
	UpdateDeadHost(ctx context.Context, id int, host npm.DeadHost) (npm.DeadHost, error)
}

// ResourceMirror syncs one (primary, secondary) pair, one resource kind at a time, in dependency order:
// certificates, access lists, proxy hosts, redirection hosts, streams, dead hosts (§4.8).
type ResourceMirror struct {
	name      string // secondary's display name, for logging
	primary   PrimaryAPI
	secondary SecondaryAPI
}

// NewResourceMirror creates a ResourceMirror for one secondary, identified by name for logging.
func NewResourceMirror(name string, primary PrimaryAPI, secondary SecondaryAPI) *ResourceMirror {
	return &ResourceMirror{name: name, primary: primary, secondary: secondary}
}

// Sync performs one full pass over every resource kind. Per-kind listing failures abort only that kind;
// per-resource failures are logged and do not abort the kind (§4.8).
func (m *ResourceMirror) Sync(ctx context.Context) Result {
	certIDs := make(map[int]int)
	aclIDs := make(map[int]int)

	var res Result
	res.Certificates = m.syncCertificates(ctx, certIDs)
	res.AccessLists = m.syncAccessLists(ctx, aclIDs)
	res.ProxyHosts = m.syncProxyHosts(ctx, certIDs, aclIDs)
	res.RedirectionHosts = m.syncRedirectionHosts(ctx, certIDs)
	res.Streams = m.syncStreams(ctx, certIDs)
	res.DeadHosts = m.syncDeadHosts(ctx, certIDs)
	return res
}

func (m *ResourceMirror) mirroredMeta(orig npm.Meta) npm.Meta {
	meta := npm.Meta{}
	for k, v := range orig {
		meta[k] = v
	}
	meta[npm.MetaMirroredFrom] = npm.MetaString(m.name)
	meta[npm.MetaMirroredAt] = npm.MetaString(time.Now().UTC().Format(time.RFC3339))
	return meta
}

// stripMirrorBookkeeping drops the mirrored_from/mirrored_at keys mirroredMeta injects, so equality
// hashes compare only domain-relevant fields rather than bookkeeping this controller itself wrote.
func stripMirrorBookkeeping(meta npm.Meta) npm.Meta {
	if len(meta) == 0 {
		return nil
	}
	stripped := npm.Meta{}
	for k, v := range meta {
		if k == npm.MetaMirroredFrom || k == npm.MetaMirroredAt {
			continue
		}
		stripped[k] = v
	}
	if len(stripped) == 0 {
		return nil
	}
	return stripped
}

// sameAfterMirroring reports whether the primary value and its secondary candidate are equivalent
// once both are normalized to the shape that actually determines identity: no local-database ID,
// and no mirror bookkeeping in meta. Callers must remap cert/access-list IDs on the primary side
// before calling, so both hashes reflect the secondary's own ID space.
func sameAfterMirroring(primary, candidate any) (bool, error) {
	primaryHash, err := canonicalHash(primary)
	if err != nil {
		return false, err
	}
	candidateHash, err := canonicalHash(candidate)
	if err != nil {
		return false, err
	}
	return primaryHash == candidateHash, nil
}

func (m *ResourceMirror) syncCertificates(ctx context.Context, idMap map[int]int) Stats {
	stats := Stats{Kind: "certificates"}

	primaryCerts, err := m.primary.ListCertificates(ctx)
	if err != nil {
		slog.Error("List primary certificates failed.", "secondary", m.name, "error", err)
		return stats
	}
	secondaryCerts, err := m.secondary.ListCertificates(ctx)
	if err != nil {
		slog.Error("List secondary certificates failed.", "secondary", m.name, "error", err)
		return stats
	}

	for _, p := range primaryCerts {
		if bool(p.IsDeleted) {
			continue
		}
		candidate, found := findCertificateCandidate(secondaryCerts, p)
		if !found {
			// Creation requires a file upload this controller never performs (§4.8 step 5, §9).
			slog.Warn("Certificate missing on secondary; skipping (requires manual upload).",
				"secondary", m.name, "nice_name", p.NiceName)
			stats.Skipped++
			continue
		}
		idMap[p.ID] = candidate.ID
		// Certificates are never updated on the secondary, even when hashes differ (§9: the source
		// documents this as "risky"; preserved here as a known limitation).
		stats.Skipped++
	}
	return stats
}

func findCertificateCandidate(secondary []npm.Certificate, p npm.Certificate) (npm.Certificate, bool) {
	wantDomains := lowerSet(p.DomainNames)
	for _, c := range secondary {
		if bool(c.IsDeleted) {
			continue
		}
		if strings.EqualFold(c.NiceName, p.NiceName) {
			return c, true
		}
		if domainSetsEqual(lowerSet(c.DomainNames), wantDomains) {
			return c, true
		}
	}
	return npm.Certificate{}, false
}

func (m *ResourceMirror) syncAccessLists(ctx context.Context, idMap map[int]int) Stats {
	stats := Stats{Kind: "access_lists"}

	primaryLists, err := m.primary.ListAccessLists(ctx)
	if err != nil {
		slog.Error("List primary access lists failed.", "secondary", m.name, "error", err)
		return stats
	}
	secondaryLists, err := m.secondary.ListAccessLists(ctx)
	if err != nil {
		slog.Error("List secondary access lists failed.", "secondary", m.name, "error", err)
		return stats
	}

	for _, p := range primaryLists {
		if bool(p.IsDeleted) {
			continue
		}

		candidate, found := findByName(secondaryLists, p.Name)
		if found {
			idMap[p.ID] = candidate.ID
			same, err := sameAccessList(p, candidate)
			if err != nil {
				stats.Failed++
				continue
			}
			if same {
				stats.Skipped++
				continue
			}
			payload := p
			payload.ID = candidate.ID
			payload.Meta = m.mirroredMeta(p.Meta)
			if _, err = m.secondary.UpdateAccessList(ctx, candidate.ID, payload); err != nil {
				slog.Error("Update mirrored access list failed.", "secondary", m.name, "name", p.Name, "error", err)
				stats.Failed++
				continue
			}
			stats.Synced++
			continue
		}

		payload := p
		payload.ID = 0
		payload.Meta = m.mirroredMeta(p.Meta)
		created, err := m.secondary.CreateAccessList(ctx, payload)
		if err != nil {
			slog.Error("Create mirrored access list failed.", "secondary", m.name, "name", p.Name, "error", err)
			stats.Failed++
			continue
		}
		idMap[p.ID] = created.ID
		stats.Synced++
	}
	return stats
}

func sameAccessList(p, candidate npm.AccessList) (bool, error) {
	p.ID = 0
	p.Meta = stripMirrorBookkeeping(p.Meta)
	candidate.ID = 0
	candidate.Meta = stripMirrorBookkeeping(candidate.Meta)
	return sameAfterMirroring(p, candidate)
}

func findByName(lists []npm.AccessList, name string) (npm.AccessList, bool) {
	for _, l := range lists {
		if !bool(l.IsDeleted) && strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return npm.AccessList{}, false
}

func (m *ResourceMirror) syncProxyHosts(ctx context.Context, certIDs, aclIDs map[int]int) Stats {
	stats := Stats{Kind: "proxy_hosts"}

	primaryHosts, err := m.primary.ListProxyHosts(ctx)
	if err != nil {
		slog.Error("List primary proxy hosts failed.", "secondary", m.name, "error", err)
		return stats
	}
	secondaryHosts, err := m.secondary.ListProxyHosts(ctx)
	if err != nil {
		slog.Error("List secondary proxy hosts failed.", "secondary", m.name, "error", err)
		return stats
	}

	for _, p := range primaryHosts {
		if bool(p.IsDeleted) {
			continue
		}
		remapped := remapProxyHost(p, certIDs, aclIDs)

		candidate, found := findByPrimaryDomain(proxyHostDomains(secondaryHosts), p.DomainNames)
		if found {
			same, err := sameProxyHost(remapped, candidate)
			if err != nil {
				stats.Failed++
				continue
			}
			if same {
				stats.Skipped++
				continue
			}
			payload := remapped
			payload.ID = candidate.ID
			payload.Meta = m.mirroredMeta(p.Meta)
			if _, err = m.secondary.UpdateProxyHost(ctx, candidate.ID, payload); err != nil {
				slog.Error("Update mirrored proxy host failed.", "secondary", m.name, "domains", p.DomainNames, "error", err)
				stats.Failed++
				continue
			}
			stats.Synced++
			continue
		}

		payload := remapped
		payload.ID = 0
		payload.Meta = m.mirroredMeta(p.Meta)
		if _, err := m.secondary.CreateProxyHost(ctx, payload); err != nil {
			slog.Error("Create mirrored proxy host failed.", "secondary", m.name, "domains", p.DomainNames, "error", err)
			stats.Failed++
			continue
		}
		stats.Synced++
	}
	return stats
}

func sameProxyHost(remapped, candidate npm.ProxyHost) (bool, error) {
	remapped.ID = 0
	remapped.Meta = stripMirrorBookkeeping(remapped.Meta)
	candidate.ID = 0
	candidate.Meta = stripMirrorBookkeeping(candidate.Meta)
	return sameAfterMirroring(remapped, candidate)
}

func remapProxyHost(p npm.ProxyHost, certIDs, aclIDs map[int]int) npm.ProxyHost {
	if p.CertificateID != 0 {
		if remapped, ok := certIDs[p.CertificateID]; ok {
			p.CertificateID = remapped
		} else {
			p.CertificateID = 0
		}
	}
	if p.AccessListID != 0 {
		if remapped, ok := aclIDs[p.AccessListID]; ok {
			p.AccessListID = remapped
		} else {
			p.AccessListID = 0
		}
	}
	return p
}

func proxyHostDomains(hosts []npm.ProxyHost) []npm.ProxyHost {
	live := make([]npm.ProxyHost, 0, len(hosts))
	for _, h := range hosts {
		if !bool(h.IsDeleted) {
			live = append(live, h)
		}
	}
	return live
}

func (m *ResourceMirror) syncRedirectionHosts(ctx context.Context, certIDs map[int]int) Stats {
	stats := Stats{Kind: "redirection_hosts"}

	primaryHosts, err := m.primary.ListRedirectionHosts(ctx)
	if err != nil {
		slog.Error("List primary redirection hosts failed.", "secondary", m.name, "error", err)
		return stats
	}
	secondaryHosts, err := m.secondary.ListRedirectionHosts(ctx)
	if err != nil {
		slog.Error("List secondary redirection hosts failed.", "secondary", m.name, "error", err)
		return stats
	}
	live := make([]npm.RedirectionHost, 0, len(secondaryHosts))
	for _, h := range secondaryHosts {
		if !bool(h.IsDeleted) {
			live = append(live, h)
		}
	}

	for _, p := range primaryHosts {
		if bool(p.IsDeleted) {
			continue
		}
		remapped := p
		remapped.CertificateID = remapCertID(p.CertificateID, certIDs)

		candidate, found := findRedirectionHostByDomain(live, p.DomainNames)
		if found {
			same, err := sameRedirectionHost(remapped, candidate)
			if err != nil {
				stats.Failed++
				continue
			}
			if same {
				stats.Skipped++
				continue
			}
			payload := remapped
			payload.ID = candidate.ID
			payload.Meta = m.mirroredMeta(p.Meta)
			if _, err = m.secondary.UpdateRedirectionHost(ctx, candidate.ID, payload); err != nil {
				slog.Error("Update mirrored redirection host failed.", "secondary", m.name, "domains", p.DomainNames, "error", err)
				stats.Failed++
				continue
			}
			stats.Synced++
			continue
		}

		payload := remapped
		payload.ID = 0
		payload.Meta = m.mirroredMeta(p.Meta)
		if _, err := m.secondary.CreateRedirectionHost(ctx, payload); err != nil {
			slog.Error("Create mirrored redirection host failed.", "secondary", m.name, "domains", p.DomainNames, "error", err)
			stats.Failed++
			continue
		}
		stats.Synced++
	}
	return stats
}

func sameRedirectionHost(remapped, candidate npm.RedirectionHost) (bool, error) {
	remapped.ID = 0
	remapped.Meta = stripMirrorBookkeeping(remapped.Meta)
	candidate.ID = 0
	candidate.Meta = stripMirrorBookkeeping(candidate.Meta)
	return sameAfterMirroring(remapped, candidate)
}

func findRedirectionHostByDomain(hosts []npm.RedirectionHost, domains []string) (npm.RedirectionHost, bool) {
	if len(domains) == 0 {
		return npm.RedirectionHost{}, false
	}
	primary := strings.ToLower(domains[0])
	for _, h := range hosts {
		for _, d := range h.DomainNames {
			if strings.ToLower(d) == primary {
				return h, true
			}
		}
	}
	return npm.RedirectionHost{}, false
}

func (m *ResourceMirror) syncStreams(ctx context.Context, certIDs map[int]int) Stats {
	stats := Stats{Kind: "streams"}

	primaryStreams, err := m.primary.ListStreams(ctx)
	if err != nil {
		slog.Error("List primary streams failed.", "secondary", m.name, "error", err)
		return stats
	}
	secondaryStreams, err := m.secondary.ListStreams(ctx)
	if err != nil {
		slog.Error("List secondary streams failed.", "secondary", m.name, "error", err)
		return stats
	}

	for _, p := range primaryStreams {
		if bool(p.IsDeleted) {
			continue
		}
		remapped := p
		remapped.CertificateID = remapCertID(p.CertificateID, certIDs)

		candidate, found := findStreamByPort(secondaryStreams, p.IncomingPort)
		if found {
			same, err := sameStream(remapped, candidate)
			if err != nil {
				stats.Failed++
				continue
			}
			if same {
				stats.Skipped++
				continue
			}
			payload := remapped
			payload.ID = candidate.ID
			payload.Meta = m.mirroredMeta(p.Meta)
			if _, err = m.secondary.UpdateStream(ctx, candidate.ID, payload); err != nil {
				slog.Error("Update mirrored stream failed.", "secondary", m.name, "incoming_port", p.IncomingPort, "error", err)
				stats.Failed++
				continue
			}
			stats.Synced++
			continue
		}

		payload := remapped
		payload.ID = 0
		payload.Meta = m.mirroredMeta(p.Meta)
		if _, err := m.secondary.CreateStream(ctx, payload); err != nil {
			slog.Error("Create mirrored stream failed.", "secondary", m.name, "incoming_port", p.IncomingPort, "error", err)
			stats.Failed++
			continue
		}
		stats.Synced++
	}
	return stats
}

func sameStream(remapped, candidate npm.Stream) (bool, error) {
	remapped.ID = 0
	remapped.Meta = stripMirrorBookkeeping(remapped.Meta)
	candidate.ID = 0
	candidate.Meta = stripMirrorBookkeeping(candidate.Meta)
	return sameAfterMirroring(remapped, candidate)
}

func findStreamByPort(streams []npm.Stream, incomingPort int) (npm.Stream, bool) {
	for _, s := range streams {
		if !bool(s.IsDeleted) && s.IncomingPort == incomingPort {
			return s, true
		}
	}
	return npm.Stream{}, false
}

func (m *ResourceMirror) syncDeadHosts(ctx context.Context, certIDs map[int]int) Stats {
	stats := Stats{Kind: "dead_hosts"}

	primaryHosts, err := m.primary.ListDeadHosts(ctx)
	if err != nil {
		slog.Error("List primary dead hosts failed.", "secondary", m.name, "error", err)
		return stats
	}
	secondaryHosts, err := m.secondary.ListDeadHosts(ctx)
	if err != nil {
		slog.Error("List secondary dead hosts failed.", "secondary", m.name, "error", err)
		return stats
	}

	for _, p := range primaryHosts {
		if bool(p.IsDeleted) {
			continue
		}
		remapped := p
		remapped.CertificateID = remapCertID(p.CertificateID, certIDs)

		candidate, found := findDeadHostByDomain(secondaryHosts, p.DomainNames)
		if found {
			same, err := sameDeadHost(remapped, candidate)
			if err != nil {
				stats.Failed++
				continue
			}
			if same {
				stats.Skipped++
				continue
			}
			payload := remapped
			payload.ID = candidate.ID
			payload.Meta = m.mirroredMeta(p.Meta)
			if _, err = m.secondary.UpdateDeadHost(ctx, candidate.ID, payload); err != nil {
				slog.Error("Update mirrored dead host failed.", "secondary", m.name, "domains", p.DomainNames, "error", err)
				stats.Failed++
				continue
			}
			stats.Synced++
			continue
		}

		payload := remapped
		payload.ID = 0
		payload.Meta = m.mirroredMeta(p.Meta)
		if _, err := m.secondary.CreateDeadHost(ctx, payload); err != nil {
			slog.Error("Create mirrored dead host failed.", "secondary", m.name, "domains", p.DomainNames, "error", err)
			stats.Failed++
			continue
		}
		stats.Synced++
	}
	return stats
}

func sameDeadHost(remapped, candidate npm.DeadHost) (bool, error) {
	remapped.ID = 0
	remapped.Meta = stripMirrorBookkeeping(remapped.Meta)
	candidate.ID = 0
	candidate.Meta = stripMirrorBookkeeping(candidate.Meta)
	return sameAfterMirroring(remapped, candidate)
}

func findDeadHostByDomain(hosts []npm.DeadHost, domains []string) (npm.DeadHost, bool) {
	if len(domains) == 0 {
		return npm.DeadHost{}, false
	}
	primary := strings.ToLower(domains[0])
	for _, h := range hosts {
		if bool(h.IsDeleted) {
			continue
		}
		for _, d := range h.DomainNames {
			if strings.ToLower(d) == primary {
				return h, true
			}
		}
	}
	return npm.DeadHost{}, false
}

func findByPrimaryDomain(candidates []npm.ProxyHost, domains []string) (npm.ProxyHost, bool) {
	if len(domains) == 0 {
		return npm.ProxyHost{}, false
	}
	primary := strings.ToLower(domains[0])
	for _, c := range candidates {
		for _, d := range c.DomainNames {
			if strings.ToLower(d) == primary {
				return c, true
			}
		}
	}
	return npm.ProxyHost{}, false
}

func remapCertID(certID int, certIDs map[int]int) int {
	if certID == 0 {
		return 0
	}
	if remapped, ok := certIDs[certID]; ok {
		return remapped
	}
	return 0
}

func lowerSet(domains []string) map[string]bool {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		set[strings.ToLower(d)] = true
	}
	return set
}

func domainSetsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for d := range a {
		if !b[d] {
			return false
		}
	}
	return true
}
