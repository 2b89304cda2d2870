package npm

import (
	"context"
	"fmt"
)

// ListStreams returns every TCP/UDP stream known to the proxy manager.
func (c *Client) ListStreams(ctx context.Context) ([]Stream, error) {
	var streams []Stream
	if err := c.do(ctx, "GET", "/api/nginx/streams", nil, &streams); err != nil {
		return nil, err
	}
	return streams, nil
}

// CreateStream creates a new stream and returns it with its assigned ID.
func (c *Client) CreateStream(ctx context.Context, stream Stream) (Stream, error) {
	var created Stream
	if err := c.do(ctx, "POST", "/api/nginx/streams", stream, &created); err != nil {
		return Stream{}, err
	}
	return created, nil
}

// UpdateStream replaces the fields of an existing stream by ID.
func (c *Client) UpdateStream(ctx context.Context, id int, stream Stream) (Stream, error) {
	var updated Stream
	if err := c.do(ctx, "PUT", fmt.Sprintf("/api/nginx/streams/%d", id), stream, &updated); err != nil {
		return Stream{}, err
	}
	return updated, nil
}

// DeleteStream removes a stream by ID.
func (c *Client) DeleteStream(ctx context.Context, id int) error {
	return c.do(ctx, "DELETE", fmt.Sprintf("/api/nginx/streams/%d", id), nil, nil)
}
