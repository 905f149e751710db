package api

import "context"

// GetHealth fetches GET /health.
func (c *Client) GetHealth(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}
