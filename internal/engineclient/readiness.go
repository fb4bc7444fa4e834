package engineclient

import (
	"context"
	"net/http"
)

// Ready probes the engine's system_stats endpoint and returns nil once it
// responds 200. The caller is responsible for polling cadence and timeout;
// Ready itself makes a single attempt per call.
func (c *Client) Ready(ctx context.Context) error {
	_, _, err := c.do(ctx, "ready", http.MethodGet, "/system_stats", nil, nil)
	return err
}
