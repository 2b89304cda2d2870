// Package config loads and validates process configuration from the environment (§6). It is the single
// place that translates env vars into the typed inputs every other package needs: proxy-manager
// credentials, the Docker connection, label defaults, and the mirror slot list.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/redth/npm-docker-sync/internal/instanceid"
	"github.com/redth/npm-docker-sync/internal/label"
	"github.com/redth/npm-docker-sync/internal/mirror"
	"github.com/redth/npm-docker-sync/internal/npm"
)

const (
	defaultDockerHost   = "unix:///var/run/docker.sock"
	defaultScanInterval = 30 * time.Second
)

// Config is the fully-resolved, validated process configuration (§6).
type Config struct {
	NPMURL      string
	NPMEmail    string
	NPMPassword string
	DockerHost  string

	InstanceID       string
	NPMContainerName string
	HostAddress      string

	Defaults label.BoolDefaults

	// ScanInterval is the parsed SCAN_INTERVAL value, separate from the mirror's own sync interval
	// (ambient addition, grounded on the teacher's docker.SyncInterval regular-resync-as-fallback pattern).
	// No component reads it: the daemon runs no periodic full rescan.
	ScanInterval time.Duration

	// MirrorGlobalInterval is the MIRROR_SYNC_INTERVAL fallback applied to slots with no interval of
	// their own; zero means "use the scheduler's own default" (§4.7).
	MirrorGlobalInterval time.Duration
	MirrorSlots          []mirror.SlotConfig
}

var envKeys = []string{
	"npm_url", "npm_email", "npm_password", "docker_host",
	"instance_id", "npm_container_name", "host_address",
	"default_ssl_forced", "default_caching_enabled", "default_block_exploits",
	"default_websocket_upgrade", "default_http2", "default_hsts", "default_hsts_subdomains",
	"scan_interval",
	"mirror_sync_interval", "mirror_email", "mirror_password", "mirror_urls",
}

// Load reads and validates configuration from the environment. Missing required variables are a
// configuration-fatal error (§7): the caller (cmd/npmdsyncd) must exit non-zero without starting the
// event loop.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}

	v.SetDefault("docker_host", defaultDockerHost)
	defaults := label.DefaultBoolDefaults()
	v.SetDefault("default_block_exploits", defaults.BlockExploits)

	npmURL, err := npm.NormalizeURL(v.GetString("npm_url"))
	if err != nil && v.GetString("npm_url") != "" {
		return nil, fmt.Errorf("configuration fatal: NPM_URL: %w", err)
	}

	cfg := &Config{
		NPMURL:      npmURL,
		NPMEmail:    v.GetString("npm_email"),
		NPMPassword: v.GetString("npm_password"),
		DockerHost:  v.GetString("docker_host"),

		NPMContainerName: v.GetString("npm_container_name"),
		HostAddress:      v.GetString("host_address"),

		Defaults: label.BoolDefaults{
			SSLForced:        v.GetBool("default_ssl_forced"),
			CachingEnabled:   v.GetBool("default_caching_enabled"),
			BlockExploits:    v.GetBool("default_block_exploits"),
			WebsocketUpgrade: v.GetBool("default_websocket_upgrade"),
			HTTP2:            v.GetBool("default_http2"),
			HSTS:             v.GetBool("default_hsts"),
			HSTSSubdomains:   v.GetBool("default_hsts_subdomains"),
		},

		ScanInterval: durationOrDefault(v.GetString("scan_interval"), defaultScanInterval),
	}
	cfg.InstanceID = instanceid.Resolve(v.GetString("instance_id"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.MirrorGlobalInterval = durationOrDefault(v.GetString("mirror_sync_interval"), 0)
	cfg.MirrorSlots = parseMirrorSlots(v.GetString("mirror_email"), v.GetString("mirror_password"))

	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.NPMURL == "" {
		missing = append(missing, "NPM_URL")
	}
	if c.NPMEmail == "" {
		missing = append(missing, "NPM_EMAIL")
	}
	if c.NPMPassword == "" {
		missing = append(missing, "NPM_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("configuration fatal: missing required variable(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func durationOrDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

var numberedMirrorURL = regexp.MustCompile(`^MIRROR(\d+)_URL$`)

// parseMirrorSlots assembles the mirror scheduler's slot list from numbered MIRROR{n}_* variables (in
// ascending numeric order) followed by the legacy MIRROR_URLS comma list, whose per-host credential
// overrides are read from MIRROR_CREDENTIALS_<HOST>_EMAIL/PASSWORD (§4.7). globalEmail/globalPassword are
// the MIRROR_EMAIL/MIRROR_PASSWORD fallback applied when a slot names no credentials of its own.
func parseMirrorSlots(globalEmail, globalPassword string) []mirror.SlotConfig {
	numbered := map[int]*mirror.SlotConfig{}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m := numberedMirrorURL.FindStringSubmatch(key)
		if m == nil || strings.TrimSpace(value) == "" {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		numbered[n] = &mirror.SlotConfig{Name: fmt.Sprintf("MIRROR%d", n), URL: value}
	}

	ns := make([]int, 0, len(numbered))
	for n := range numbered {
		ns = append(ns, n)
	}
	sort.Ints(ns)

	var slots []mirror.SlotConfig
	for _, n := range ns {
		slot := numbered[n]
		slot.Email = firstNonEmptyEnv(fmt.Sprintf("MIRROR%d_EMAIL", n), globalEmail)
		slot.Password = firstNonEmptyEnv(fmt.Sprintf("MIRROR%d_PASSWORD", n), globalPassword)
		if raw := os.Getenv(fmt.Sprintf("MIRROR%d_SYNC_INTERVAL", n)); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil {
				slot.Interval = d
			}
		}
		slots = append(slots, *slot)
	}

	if raw := os.Getenv("MIRROR_URLS"); raw != "" {
		for _, u := range strings.Split(raw, ",") {
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			host := strings.ToUpper(hostCredentialKey(u))
			slots = append(slots, mirror.SlotConfig{
				Name:     u,
				URL:      u,
				Email:    firstNonEmptyEnv(fmt.Sprintf("MIRROR_CREDENTIALS_%s_EMAIL", host), globalEmail),
				Password: firstNonEmptyEnv(fmt.Sprintf("MIRROR_CREDENTIALS_%s_PASSWORD", host), globalPassword),
			})
		}
	}

	return slots
}

func firstNonEmptyEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// hostCredentialKey turns a mirror URL's hostname into the identifier used in
// MIRROR_CREDENTIALS_<HOST>_* variable names: dots and dashes become underscores so the result is a valid
// env var name segment.
func hostCredentialKey(raw string) string {
	u, err := url.Parse(raw)
	host := raw
	if err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	host = strings.ReplaceAll(host, ".", "_")
	host = strings.ReplaceAll(host, "-", "_")
	return host
}
