package npm

import (
	"context"
	"sync"
	"time"
)

// certCacheTTL bounds how long a certificate listing is reused before the next lookup refetches it (§4.3
// "the certificate list is cached for a short, fixed interval").
const certCacheTTL = 5 * time.Minute

// certCache holds the most recent non-deleted certificate listing.
type certCache struct {
	mu      sync.Mutex
	certs   []Certificate
	fetched time.Time
}

// ListCertificates returns the cached non-deleted certificate list, refetching it if the cache is empty or
// older than certCacheTTL.
func (c *Client) ListCertificates(ctx context.Context) ([]Certificate, error) {
	c.certCache.mu.Lock()
	defer c.certCache.mu.Unlock()

	if time.Since(c.certCache.fetched) < certCacheTTL && c.certCache.certs != nil {
		return c.certCache.certs, nil
	}

	var all []Certificate
	if err := c.do(ctx, "GET", "/api/nginx/certificates", nil, &all); err != nil {
		return nil, err
	}

	live := make([]Certificate, 0, len(all))
	for _, cert := range all {
		if !bool(cert.IsDeleted) {
			live = append(live, cert)
		}
	}

	c.certCache.certs = live
	c.certCache.fetched = time.Now()
	return live, nil
}

// InvalidateCertificateCache forces the next ListCertificates call to refetch.
func (c *Client) InvalidateCertificateCache() {
	c.certCache.mu.Lock()
	defer c.certCache.mu.Unlock()
	c.certCache.certs = nil
}
