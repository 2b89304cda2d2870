package npm

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL returns the canonical form of a proxy-manager base URL: scheme lowercased, default port for
// that scheme elided, and any trailing slash trimmed (§2 "URL Normalizer").
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL %q must be absolute (scheme and host required)", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	host := u.Hostname()
	port := u.Port()
	if isDefaultPort(u.Scheme, port) {
		u.Host = host
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

func isDefaultPort(scheme, port string) bool {
	if port == "" {
		return false
	}
	switch scheme {
	case "http":
		return port == "80"
	case "https":
		return port == "443"
	default:
		return false
	}
}
