package api

import (
	"context"
	"fmt"
	"net/url"
)

// ListServers fetches registered servers, optionally filtered.
func (c *Client) ListServers(ctx context.Context, opts ListServersOptions) ([]Server, error) {
	query := url.Values{}
	if opts.Region != "" {
		query.Set("region", opts.Region)
	}
	if opts.Tag != "" {
		query.Set("tag", opts.Tag)
	}

	var resp ServersResponse
	if err := c.get(ctx, "/servers", query, &resp); err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return resp.Servers, nil
}

// GetServer fetches a single server by id.
func (c *Client) GetServer(ctx context.Context, id string) (*Server, error) {
	var resp SingleServerResponse
	if err := c.get(ctx, "/servers/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get server %s: %w", id, err)
	}
	return &resp.Server, nil
}

// CreateServer registers s and returns the record the service stored.
func (c *Client) CreateServer(ctx context.Context, s Server) (*Server, error) {
	var resp SingleServerResponse
	if err := c.post(ctx, "/servers", s, &resp); err != nil {
		return nil, fmt.Errorf("create server %s: %w", s.Name, err)
	}
	return &resp.Server, nil
}

// DeleteServer removes a server by id.
func (c *Client) DeleteServer(ctx context.Context, id string) error {
	if err := c.delete(ctx, "/servers/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("delete server %s: %w", id, err)
	}
	return nil
}
