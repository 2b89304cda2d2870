package label

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseResult holds the parsed configurations for one container along with any per-index warnings
// encountered. Warnings never abort parsing of the remaining indices (§4.1, §7 "parse warning").
type ParseResult struct {
	Proxies  map[int]ProxyConfig
	Streams  map[int]StreamConfig
	Warnings []string
}

// rawEntry is an intermediate (group, index, attribute path, value) extracted from one label key.
type rawEntry struct {
	group    string // "proxy" or "stream"
	index    int
	explicit bool // the label key carried an explicit numeric index segment
	attr     string
	value    string
}

// ParseLabels extracts proxy and stream configurations from a container's full label map. Labels outside
// the reserved namespace are ignored. Malformed entries for a given index produce a warning and drop that
// index only; other indices are unaffected (§4.1, §7).
func ParseLabels(labels map[string]string, defaults BoolDefaults) ParseResult {
	result := ParseResult{
		Proxies: make(map[int]ProxyConfig),
		Streams: make(map[int]StreamConfig),
	}

	entries, warnings := extractEntries(labels)
	result.Warnings = append(result.Warnings, warnings...)

	// Two-pass merge: explicit-index entries are applied first, then implicit (bare, index-0) entries
	// fill in only attributes not already set explicitly, so explicit index-0 labels win over the
	// shorthand form regardless of map iteration order (§4.1: "if both are present the explicit form wins").
	raw := make(map[string]map[int]map[string]string) // group -> index -> attr -> value
	setExplicit := make(map[string]map[int]map[string]bool)
	for _, e := range entries {
		if !e.explicit {
			continue
		}
		ensureRaw(raw, e.group, e.index)[e.attr] = e.value
		ensureSet(setExplicit, e.group, e.index)[e.attr] = true
	}
	for _, e := range entries {
		if e.explicit {
			continue
		}
		if setExplicit[e.group] != nil && setExplicit[e.group][e.index] != nil && setExplicit[e.group][e.index][e.attr] {
			continue
		}
		ensureRaw(raw, e.group, e.index)[e.attr] = e.value
	}

	for idx, attrs := range raw["proxy"] {
		cfg, err := buildProxyConfig(idx, attrs, defaults)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("proxy index %d: %s", idx, err))
			continue
		}
		result.Proxies[idx] = cfg
	}
	for idx, attrs := range raw["stream"] {
		cfg, err := buildStreamConfig(idx, attrs)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("stream index %d: %s", idx, err))
			continue
		}
		result.Streams[idx] = cfg
	}

	return result
}

func ensureRaw(m map[string]map[int]map[string]string, group string, idx int) map[string]string {
	if m[group] == nil {
		m[group] = make(map[int]map[string]string)
	}
	if m[group][idx] == nil {
		m[group][idx] = make(map[string]string)
	}
	return m[group][idx]
}

func ensureSet(m map[string]map[int]map[string]bool, group string, idx int) map[string]bool {
	if m[group] == nil {
		m[group] = make(map[int]map[string]bool)
	}
	if m[group][idx] == nil {
		m[group][idx] = make(map[string]bool)
	}
	return m[group][idx]
}

// extractEntries parses every label key in the reserved namespace into a rawEntry. Keys are processed in
// sorted order purely so that warnings are emitted deterministically; parse outcomes never depend on order.
func extractEntries(labels map[string]string) ([]rawEntry, []string) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var entries []rawEntry
	var warnings []string
	for _, key := range keys {
		value := labels[key]

		var sep byte
		var rest string
		switch {
		case strings.HasPrefix(key, Prefix+"."):
			sep = '.'
			rest = key[len(Prefix)+1:]
		case strings.HasPrefix(key, Prefix+"-"):
			sep = '-'
			rest = key[len(Prefix)+1:]
		default:
			continue
		}

		parts := strings.Split(rest, string(sep))
		if len(parts) == 0 || (parts[0] != "proxy" && parts[0] != "stream") {
			continue
		}
		group := parts[0]
		rem := parts[1:]

		index := 0
		explicit := false
		if len(rem) > 0 {
			if n, err := strconv.Atoi(rem[0]); err == nil {
				if n < MinIndex || n > MaxIndex {
					warnings = append(warnings, fmt.Sprintf("%s: index %d out of range [%d,%d]", key, n, MinIndex, MaxIndex))
					continue
				}
				index = n
				explicit = true
				rem = rem[1:]
			}
		}
		if len(rem) == 0 {
			continue
		}
		attr := strings.Join(rem, ".")

		entries = append(entries, rawEntry{group: group, index: index, explicit: explicit, attr: attr, value: value})
	}
	return entries, warnings
}

func buildProxyConfig(index int, attrs map[string]string, defaults BoolDefaults) (ProxyConfig, error) {
	cfg := ProxyConfig{
		Index:            index,
		ForwardScheme:    "http",
		SSLForced:        defaults.SSLForced,
		CachingEnabled:   defaults.CachingEnabled,
		BlockExploits:    defaults.BlockExploits,
		WebsocketUpgrade: defaults.WebsocketUpgrade,
		HTTP2:            defaults.HTTP2,
		HSTS:             defaults.HSTS,
		HSTSSubdomains:   defaults.HSTSSubdomains,
	}

	domains := firstNonEmpty(attrs, "domains", "domain")
	cfg.Domains = splitDomains(domains)
	if len(cfg.Domains) == 0 {
		return cfg, fmt.Errorf("domains (or domain) is required")
	}

	if v, ok := attrs["port"]; ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("invalid port %q: %w", v, err)
		}
		cfg.ForwardPort = &port
	}
	if v, ok := attrs["host"]; ok {
		cfg.ForwardHost = strings.TrimSpace(v)
	}
	if v, ok := attrs["scheme"]; ok && strings.TrimSpace(v) != "" {
		cfg.ForwardScheme = strings.ToLower(strings.TrimSpace(v))
	}

	if v, ok := attrs["ssl.force"]; ok {
		cfg.SSLForced = isTruthy(v)
	}
	if v, ok := attrs["ssl.http2"]; ok {
		cfg.HTTP2 = isTruthy(v)
	}
	if v, ok := attrs["ssl.hsts"]; ok {
		cfg.HSTS = isTruthy(v)
	}
	if v, ok := attrs["ssl.hsts.subdomains"]; ok {
		cfg.HSTSSubdomains = isTruthy(v)
	}
	if v, ok := attrs["caching"]; ok {
		cfg.CachingEnabled = isTruthy(v)
	}
	if v, ok := attrs["websockets"]; ok {
		cfg.WebsocketUpgrade = isTruthy(v)
	}
	if v, ok := attrs["block_common_exploits"]; ok {
		cfg.BlockExploits = isTruthy(v)
	}

	if v, ok := attrs["ssl.certificate.id"]; ok {
		id, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("invalid ssl.certificate.id %q: %w", v, err)
		}
		cfg.CertificateID = &id
	}
	if v, ok := attrs["accesslist.id"]; ok {
		id, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("invalid accesslist.id %q: %w", v, err)
		}
		cfg.AccessListID = &id
	}
	if v, ok := attrs["advanced.config"]; ok {
		cfg.AdvancedConfig = v
	}

	return cfg, nil
}

func buildStreamConfig(index int, attrs map[string]string) (StreamConfig, error) {
	cfg := StreamConfig{
		Index:         index,
		TCPForwarding: true,
		UDPForwarding: false,
	}

	v, ok := attrs["incoming.port"]
	if !ok {
		return cfg, fmt.Errorf("incoming.port is required")
	}
	port, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || port < 1 || port > 65535 {
		return cfg, fmt.Errorf("invalid incoming.port %q", v)
	}
	cfg.IncomingPort = port

	if v, ok = attrs["forward.host"]; ok {
		cfg.ForwardHost = strings.TrimSpace(v)
	}
	if v, ok = attrs["forward.port"]; ok {
		fp, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("invalid forward.port %q: %w", v, err)
		}
		cfg.ForwardPort = &fp
	}
	if v, ok = attrs["forward.tcp"]; ok {
		cfg.TCPForwarding = isTruthy(v)
	}
	if v, ok = attrs["forward.udp"]; ok {
		cfg.UDPForwarding = isTruthy(v)
	}
	if v, ok = attrs["ssl"]; ok {
		cfg.SSLCertificate = strings.TrimSpace(v)
	}

	if !cfg.TCPForwarding && !cfg.UDPForwarding {
		return cfg, fmt.Errorf("at least one of forward.tcp or forward.udp must be true")
	}

	return cfg, nil
}

func firstNonEmpty(attrs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := attrs[k]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func splitDomains(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	domains := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			domains = append(domains, p)
		}
	}
	return domains
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
