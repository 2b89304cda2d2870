package npm

import (
	"context"
	"fmt"
)

// ListProxyHosts returns every proxy host known to the proxy manager, including soft-deleted ones, so
// callers can filter as needed (§4.8 resource mirror needs the full set; the reconciler only wants live
// ones).
func (c *Client) ListProxyHosts(ctx context.Context) ([]ProxyHost, error) {
	var hosts []ProxyHost
	if err := c.do(ctx, "GET", "/api/nginx/proxy-hosts", nil, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// CreateProxyHost creates a new proxy host and returns it with its assigned ID.
func (c *Client) CreateProxyHost(ctx context.Context, host ProxyHost) (ProxyHost, error) {
	var created ProxyHost
	if err := c.do(ctx, "POST", "/api/nginx/proxy-hosts", host, &created); err != nil {
		return ProxyHost{}, err
	}
	return created, nil
}

// UpdateProxyHost replaces the fields of an existing proxy host by ID.
func (c *Client) UpdateProxyHost(ctx context.Context, id int, host ProxyHost) (ProxyHost, error) {
	var updated ProxyHost
	if err := c.do(ctx, "PUT", fmt.Sprintf("/api/nginx/proxy-hosts/%d", id), host, &updated); err != nil {
		return ProxyHost{}, err
	}
	return updated, nil
}

// DeleteProxyHost removes a proxy host by ID (§4.5 "createOrReplace": deletes always precede recreates).
func (c *Client) DeleteProxyHost(ctx context.Context, id int) error {
	return c.do(ctx, "DELETE", fmt.Sprintf("/api/nginx/proxy-hosts/%d", id), nil, nil)
}
