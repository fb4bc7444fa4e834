package engineclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// catalogPrefixes are the known URL prefixes under which a node-manager
// plugin may be mounted. The client walks them in order and returns the
// first response that isn't a 404.
var catalogPrefixes = []string{"", "/api/manager", "/manager"}

func (c *Client) getCatalog(ctx context.Context, op, suffix string) (map[string]any, error) {
	var lastErr error
	for _, prefix := range catalogPrefixes {
		body, status, err := c.do(ctx, op, http.MethodGet, prefix+suffix, nil, nil)
		if err == nil {
			var decoded map[string]any
			if jsonErr := json.Unmarshal(body, &decoded); jsonErr != nil {
				return nil, &EngineError{Op: op, Cause: jsonErr}
			}
			return decoded, nil
		}
		if status == http.StatusNotFound {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr == nil {
		lastErr = &EngineError{Op: op, Cause: fmt.Errorf("no catalog prefix responded")}
	}
	return nil, lastErr
}

// ExternalModels returns the engine's known-external-model catalog.
func (c *Client) ExternalModels(ctx context.Context) (map[string]any, error) {
	return c.getCatalog(ctx, "external_models", "/externalmodel/getlist?mode=default")
}

// CustomNodeMappings returns the class_type -> package id mapping catalog.
func (c *Client) CustomNodeMappings(ctx context.Context) (map[string]any, error) {
	return c.getCatalog(ctx, "custom_node_mappings", "/customnode/getmappings?mode=default")
}

// CustomNodeList returns the installable custom-node package catalog.
func (c *Client) CustomNodeList(ctx context.Context) (map[string]any, error) {
	return c.getCatalog(ctx, "custom_node_list", "/customnode/getlist?mode=default&skip_update=true")
}
