// Package certmatch selects a certificate id for a set of requested domains using the proxy manager's
// existing certificate list (§4.3).
package certmatch

import (
	"context"
	"strings"

	"github.com/redth/npm-docker-sync/internal/npm"
)

// CertLister is the subset of the proxy-manager client this matcher needs. Satisfied by *npm.Client.
type CertLister interface {
	ListCertificates(ctx context.Context) ([]npm.Certificate, error)
}

// Matcher selects the best matching certificate for a set of requested domains.
type Matcher struct {
	certs CertLister
}

// New creates a Matcher backed by certs (typically an *npm.Client, whose ListCertificates already caches
// for five minutes).
func New(certs CertLister) *Matcher {
	return &Matcher{certs: certs}
}

// Match returns the id of the best certificate for domains, trying exact, then primary, then wildcard
// matches in order and returning the first hit. It returns (0, false) if nothing matches; callers decide
// whether to proceed without SSL (§4.3).
func (m *Matcher) Match(ctx context.Context, domains []string) (int, bool, error) {
	if len(domains) == 0 {
		return 0, false, nil
	}

	certs, err := m.certs.ListCertificates(ctx)
	if err != nil {
		return 0, false, err
	}

	if id, ok := matchExact(certs, domains); ok {
		return id, true, nil
	}
	if id, ok := matchPrimary(certs, domains[0]); ok {
		return id, true, nil
	}
	if id, ok := matchWildcard(certs, domains[0]); ok {
		return id, true, nil
	}
	return 0, false, nil
}

// matchExact finds a certificate whose domain set contains every requested domain, case-insensitively.
func matchExact(certs []npm.Certificate, domains []string) (int, bool) {
	for _, cert := range certs {
		set := lowerSet(cert.DomainNames)
		allPresent := true
		for _, d := range domains {
			if !set[strings.ToLower(d)] {
				allPresent = false
				break
			}
		}
		if allPresent {
			return cert.ID, true
		}
	}
	return 0, false
}

// matchPrimary finds a certificate whose domain set contains just the primary (first) requested domain.
func matchPrimary(certs []npm.Certificate, primary string) (int, bool) {
	primary = strings.ToLower(primary)
	for _, cert := range certs {
		if lowerSet(cert.DomainNames)[primary] {
			return cert.ID, true
		}
	}
	return 0, false
}

// matchWildcard finds a certificate carrying a "*.root" entry where primary ends in ".root" and has at
// least one additional label to the left (so "*.example.com" matches "api.example.com" but not
// "example.com" itself).
func matchWildcard(certs []npm.Certificate, primary string) (int, bool) {
	primary = strings.ToLower(primary)
	for _, cert := range certs {
		for _, domain := range cert.DomainNames {
			root, ok := strings.CutPrefix(strings.ToLower(domain), "*.")
			if !ok {
				continue
			}
			suffix := "." + root
			if strings.HasSuffix(primary, suffix) && len(primary) > len(suffix) {
				return cert.ID, true
			}
		}
	}
	return 0, false
}

func lowerSet(domains []string) map[string]bool {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		set[strings.ToLower(d)] = true
	}
	return set
}
