package orchestrator

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/robofleet/orctl/internal/models"
)

// folderHeader scopes a request to an organization unit.
const folderHeader = "X-UIPATH-OrganizationUnitId"

const defaultRequestTimeout = 30 * time.Second

// Client talks to one Orchestrator instance. Requests carry a bearer token
// obtained via the OAuth2 client-credentials grant; the token source caches
// and re-fetches transparently within the process lifetime.
type Client struct {
	baseURL     string
	prefixes    []string
	odataPrefix string
	httpClient  *http.Client
}

// NewClient builds a Client for a target. The token endpoint is derived
// from the target (cloud identity service vs standalone) unless overridden.
func NewClient(ctx context.Context, t *models.Target) (*Client, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	transport := &http.Transport{}
	if t.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	} else if t.CACert != "" {
		caCertPool := x509.NewCertPool()
		if caCertPool.AppendCertsFromPEM([]byte(t.CACert)) {
			transport.TLSClientConfig = &tls.Config{RootCAs: caCertPool}
		}
	}

	cc := clientcredentials.Config{
		ClientID:     t.ClientID,
		ClientSecret: t.ClientSecret,
		TokenURL:     t.TokenURL(),
		Scopes:       t.ScopeList(),
	}
	// Token requests go through the same transport as API calls.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Transport: transport,
		Timeout:   defaultRequestTimeout,
	})
	httpClient := cc.Client(ctx)
	httpClient.Timeout = defaultRequestTimeout

	return &Client{
		baseURL:    t.BaseURL(),
		prefixes:   prefixCandidates(t),
		httpClient: httpClient,
	}, nil
}

// Get performs an authenticated GET under the discovered OData prefix.
// A non-zero folderID scopes the request to that organization unit.
func (c *Client) Get(ctx context.Context, path string, params url.Values, folderID int64) ([]byte, error) {
	if err := c.Discover(ctx); err != nil {
		return nil, err
	}
	return c.get(ctx, c.odataPrefix+path, params, folderID)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, folderID int64) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, folderID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("GET %s: HTTP %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// Post performs an authenticated POST with a JSON body under the OData prefix.
func (c *Client) Post(ctx context.Context, path string, payload interface{}, folderID int64) ([]byte, int, error) {
	if err := c.Discover(ctx); err != nil {
		return nil, 0, err
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshaling body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.odataPrefix+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, folderID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, resp.StatusCode, fmt.Errorf("POST %s: HTTP %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	return body, resp.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request, folderID int64) {
	req.Header.Set("Content-Type", "application/json")
	if folderID != 0 {
		req.Header.Set(folderHeader, strconv.FormatInt(folderID, 10))
	}
}

// list fetches a collection query and decodes every entry of the value
// array into out's element type, following @odata.nextLink across pages.
func list[T any](ctx context.Context, c *Client, path string, params url.Values, folderID int64) ([]T, error) {
	var all []T

	body, err := c.Get(ctx, path, params, folderID)
	if err != nil {
		return nil, err
	}
	for {
		var page odataList
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		for _, raw := range page.Value {
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				return nil, fmt.Errorf("parsing entry: %w", err)
			}
			all = append(all, item)
		}
		if page.NextLink == "" {
			return all, nil
		}
		next := page.NextLink
		if strings.HasPrefix(next, "/") {
			next = c.baseURL + next
		}
		body, err = c.getAbsolute(ctx, next, folderID)
		if err != nil {
			return nil, err
		}
	}
}

func (c *Client) getAbsolute(ctx context.Context, u string, folderID int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, folderID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: HTTP %d: %s", u, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// StartJobs submits a start-job request and returns the created jobs.
func (c *Client) StartJobs(ctx context.Context, folderID int64, info StartInfo) ([]Job, error) {
	body, _, err := c.Post(ctx, "/Jobs/UiPath.Server.Configuration.OData.StartJobs", startJobsRequest{StartInfo: info}, folderID)
	if err != nil {
		return nil, err
	}
	var page odataList
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("parsing start response: %w", err)
	}
	jobs := make([]Job, 0, len(page.Value))
	for _, raw := range page.Value {
		var j Job
		if err := json.Unmarshal(raw, &j); err != nil {
			return nil, fmt.Errorf("parsing job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("start jobs: no jobs created")
	}
	return jobs, nil
}

// JobsByIDs fetches current state for the given job IDs.
func (c *Client) JobsByIDs(ctx context.Context, folderID int64, ids []int64) ([]Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	clauses := make([]string, len(ids))
	for i, id := range ids {
		clauses[i] = fmt.Sprintf("(Id eq %d)", id)
	}
	params := url.Values{"$filter": {strings.Join(clauses, " or ")}}
	return list[Job](ctx, c, "/Jobs", params, folderID)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
