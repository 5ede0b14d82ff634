package orchestrator

import (
	"context"
	"fmt"
	"net/url"

	"github.com/robofleet/orctl/internal/models"
)

// prefixCandidates returns the OData prefix paths to try for a target.
// Cloud-style deployments nest the API under /{account}/{tenant}/odata;
// standalone installs expose /odata at the root. The organization-scoped
// prefix is tried first when available.
func prefixCandidates(t *models.Target) []string {
	if org := t.OrganizationPath(); org != "" {
		return []string{org + "/odata", "/odata"}
	}
	return []string{"/odata"}
}

// Discover probes the OData prefix candidates and pins the first one that
// answers a folder catalog query. Calling it again is a no-op once a prefix
// is pinned.
func (c *Client) Discover(ctx context.Context) error {
	if c.odataPrefix != "" {
		return nil
	}
	var lastErr error
	for _, prefix := range c.prefixes {
		params := url.Values{"$top": {"1"}}
		if _, err := c.get(ctx, prefix+"/Folders", params, 0); err != nil {
			lastErr = err
			continue
		}
		c.odataPrefix = prefix
		return nil
	}
	return fmt.Errorf("no OData endpoint answered (tried %v): %w", c.prefixes, lastErr)
}

// Ping checks connectivity and authentication by running discovery.
func (c *Client) Ping(ctx context.Context) error {
	return c.Discover(ctx)
}
