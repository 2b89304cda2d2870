package npm

import (
	"context"
	"fmt"
)

// ListAccessLists returns every access list known to the proxy manager (§4.8 resource mirror).
func (c *Client) ListAccessLists(ctx context.Context) ([]AccessList, error) {
	var lists []AccessList
	if err := c.do(ctx, "GET", "/api/nginx/access-lists", nil, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// CreateAccessList creates an access list and returns it with its assigned ID.
func (c *Client) CreateAccessList(ctx context.Context, list AccessList) (AccessList, error) {
	var created AccessList
	if err := c.do(ctx, "POST", "/api/nginx/access-lists", list, &created); err != nil {
		return AccessList{}, err
	}
	return created, nil
}

// UpdateAccessList replaces the fields of an existing access list by ID.
func (c *Client) UpdateAccessList(ctx context.Context, id int, list AccessList) (AccessList, error) {
	var updated AccessList
	if err := c.do(ctx, "PUT", fmt.Sprintf("/api/nginx/access-lists/%d", id), list, &updated); err != nil {
		return AccessList{}, err
	}
	return updated, nil
}

// ListRedirectionHosts returns every redirection host known to the proxy manager. This controller never
// creates or updates redirection hosts on the primary instance (§4.5); only the resource mirror writes
// them, and only on secondary instances.
func (c *Client) ListRedirectionHosts(ctx context.Context) ([]RedirectionHost, error) {
	var hosts []RedirectionHost
	if err := c.do(ctx, "GET", "/api/nginx/redirection-hosts", nil, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// CreateRedirectionHost creates a redirection host and returns it with its assigned ID.
func (c *Client) CreateRedirectionHost(ctx context.Context, host RedirectionHost) (RedirectionHost, error) {
	var created RedirectionHost
	if err := c.do(ctx, "POST", "/api/nginx/redirection-hosts", host, &created); err != nil {
		return RedirectionHost{}, err
	}
	return created, nil
}

// UpdateRedirectionHost replaces the fields of an existing redirection host by ID.
func (c *Client) UpdateRedirectionHost(ctx context.Context, id int, host RedirectionHost) (RedirectionHost, error) {
	var updated RedirectionHost
	if err := c.do(ctx, "PUT", fmt.Sprintf("/api/nginx/redirection-hosts/%d", id), host, &updated); err != nil {
		return RedirectionHost{}, err
	}
	return updated, nil
}

// ListDeadHosts returns every 404/dead host known to the proxy manager (§4.8 resource mirror).
func (c *Client) ListDeadHosts(ctx context.Context) ([]DeadHost, error) {
	var hosts []DeadHost
	if err := c.do(ctx, "GET", "/api/nginx/dead-hosts", nil, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// CreateDeadHost creates a dead host and returns it with its assigned ID.
func (c *Client) CreateDeadHost(ctx context.Context, host DeadHost) (DeadHost, error) {
	var created DeadHost
	if err := c.do(ctx, "POST", "/api/nginx/dead-hosts", host, &created); err != nil {
		return DeadHost{}, err
	}
	return created, nil
}

// UpdateDeadHost replaces the fields of an existing dead host by ID.
func (c *Client) UpdateDeadHost(ctx context.Context, id int, host DeadHost) (DeadHost, error) {
	var updated DeadHost
	if err := c.do(ctx, "PUT", fmt.Sprintf("/api/nginx/dead-hosts/%d", id), host, &updated); err != nil {
		return DeadHost{}, err
	}
	return updated, nil
}

// CreateCertificate creates a certificate record and invalidates the certificate cache. Nothing in this
// controller calls it: the resource mirror's SecondaryAPI has no certificate creation, so certificates
// are never created on a secondary, and no issuance, renewal or file upload happens here.
func (c *Client) CreateCertificate(ctx context.Context, cert Certificate) (Certificate, error) {
	var created Certificate
	if err := c.do(ctx, "POST", "/api/nginx/certificates", cert, &created); err != nil {
		return Certificate{}, err
	}
	c.InvalidateCertificateCache()
	return created, nil
}
