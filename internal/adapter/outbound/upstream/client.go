// Package upstream provides the HTTP client for the central service that
// owns the tool catalog listing and stored credentials.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/outbound"
)

// maxResponseBodySize caps upstream response bodies.
const maxResponseBodySize = 10 * 1024 * 1024 // 10MB

// Client calls the upstream REST API with an X-API-Key header.
// It implements outbound.UpstreamClient.
type Client struct {
	baseURL     string
	apiKey      string
	serviceName string
	httpClient  *http.Client
}

// ClientOption is a functional option for configuring Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if c.httpClient != nil && d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithVerifySSL toggles TLS certificate verification.
func WithVerifySSL(verify bool) ClientOption {
	return func(c *Client) {
		if t, ok := c.httpClient.Transport.(*http.Transport); ok && t.TLSClientConfig != nil {
			t.TLSClientConfig.InsecureSkipVerify = !verify //nolint:gosec // operator opt-out
		}
	}
}

// WithServiceName sets the service name sent with credential lookups.
func WithServiceName(name string) ClientOption {
	return func(c *Client) {
		c.serviceName = name
	}
}

// NewClient creates a client for the upstream base URL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		serviceName: "automatos-unified-adapter",
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListCatalogTools fetches GET /api/mcp-tools. The response may be an
// object with a "data" list or a bare list.
func (c *Client) ListCatalogTools(ctx context.Context, status string) ([]outbound.CatalogEntry, error) {
	q := url.Values{"limit": {"10000"}}
	if status != "" {
		q.Set("status", status)
	}
	_, body, err := c.do(ctx, http.MethodGet, "/api/mcp-tools", q, nil, false)
	if err != nil {
		return nil, fmt.Errorf("list catalog tools: %w", err)
	}

	var wrapped struct {
		Data []outbound.CatalogEntry `json:"data"`
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []outbound.CatalogEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode catalog tools: %w", err)
		}
		return entries, nil
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode catalog tools: %w", err)
	}
	return wrapped.Data, nil
}

// ResolveCredential calls POST /api/credentials/resolve.
func (c *Client) ResolveCredential(ctx context.Context, ref credential.Reference) (credential.Credentials, error) {
	payload := map[string]any{
		"credential_id":   ref.ID,
		"credential_name": nil,
		"environment":     ref.Environment,
		"service_name":    c.serviceName,
	}
	if ref.Name != "" {
		payload["credential_name"] = ref.Name
	}
	status, body, err := c.do(ctx, http.MethodPost, "/api/credentials/resolve", nil, payload, true)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return decodeData(body)
}

// GetCredentialTypeID calls GET /api/credentials/types/by-name/{name}.
func (c *Client) GetCredentialTypeID(ctx context.Context, typeName string) (*int64, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/credentials/types/by-name/"+url.PathEscape(typeName), nil, nil, true)
	if err != nil {
		return nil, fmt.Errorf("get credential type: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	var resp struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode credential type: %w", err)
	}
	return resp.ID, nil
}

// ListCredentials calls GET /api/credentials.
func (c *Client) ListCredentials(ctx context.Context, typeID int64, environment string) ([]outbound.StoredCredential, error) {
	q := url.Values{"limit": {"100"}}
	if typeID != 0 {
		q.Set("credential_type_id", strconv.FormatInt(typeID, 10))
	}
	if environment != "" {
		q.Set("environment", environment)
	}
	_, body, err := c.do(ctx, http.MethodGet, "/api/credentials", q, nil, false)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	var resp struct {
		Items []outbound.StoredCredential `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return resp.Items, nil
}

// ResolveToolCredential calls POST /api/credentials/tools/resolve.
func (c *Client) ResolveToolCredential(ctx context.Context, tenantID, provider string) (credential.Credentials, error) {
	payload := map[string]any{
		"tenant_id":    tenantID,
		"provider":     provider,
		"service_name": c.serviceName,
	}
	status, body, err := c.do(ctx, http.MethodPost, "/api/credentials/tools/resolve", nil, payload, true)
	if err != nil {
		return nil, fmt.Errorf("resolve tool credential: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return decodeData(body)
}

// do sends one request. When allowNotFound is set a 404 is returned as a
// status rather than an error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, allowNotFound bool) (int, []byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	if allowNotFound && resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}
	return resp.StatusCode, body, nil
}

// decodeData extracts the "data" object of a response. Any other shape
// yields no credentials.
func decodeData(body []byte) (credential.Credentials, error) {
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	var creds map[string]any
	if err := json.Unmarshal(resp.Data, &creds); err != nil {
		return nil, nil //nolint:nilerr // non-object data means no credentials
	}
	if creds == nil {
		return nil, nil
	}
	return credential.Credentials(creds), nil
}

// Compile-time check that Client implements UpstreamClient.
var _ outbound.UpstreamClient = (*Client)(nil)
