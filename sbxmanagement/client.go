package sbxmanagement

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scalebox/sbx-go/sbxconfig"
	"github.com/scalebox/sbx-go/sbxrpc"
)

// Client wraps the hosted Management API. It is a thin REST client — no
// Connect-RPC involved — sharing the connection config's HTTP client
// settings but owning its own *http.Client since it targets a different
// host (the Management API domain) than any one sandbox's envd.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        *sbxconfig.ConnectionConfig
	log        zerolog.Logger
}

// New builds a Management API client from a resolved ConnectionConfig.
func New(cfg *sbxconfig.ConnectionConfig) *Client {
	return NewWithBaseURL(cfg, cfg.ApiURL())
}

// NewWithBaseURL builds a Management API client against an explicit
// baseURL instead of deriving https://<domain> from cfg. Used by tests to
// point a Client at a plain-HTTP sbxtest.Management fake.
func NewWithBaseURL(cfg *sbxconfig.ConnectionConfig, baseURL string) *Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if cfg.Proxy() != "" {
		if u, err := url.Parse(cfg.Proxy()); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: cfg.GetRequestTimeout(nil)},
		baseURL:    baseURL,
		cfg:        cfg,
		log:        cfg.Logger(),
	}
}

// doIdempotent is do plus a generated Idempotency-Key header, for the two
// mutating calls (createSandbox, setTimeout) where a client-side retry of
// an already-applied request must not double-apply server-side.
func (c *Client) doIdempotent(ctx context.Context, method, path string, query url.Values, body any, out any) (*http.Response, error) {
	return c.doWithKey(ctx, method, path, query, body, out, uuid.NewString())
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) (*http.Response, error) {
	return c.doWithKey(ctx, method, path, query, body, out, "")
}

func (c *Client) doWithKey(ctx context.Context, method, path string, query url.Values, body any, out any, idempotencyKey string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey() != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey())
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	for k, v := range c.cfg.Headers() {
		req.Header.Set(k, v)
	}

	c.log.Debug().Str("method", method).Str("url", u).Msg("management request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return resp, parseError(resp)
	}

	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp, err
		}
	}
	return resp, nil
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var envelope struct {
		Message string `json:"message"`
	}
	msg := string(body)
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		msg = envelope.Message
	}
	return sbxrpc.FromHTTPResponse(resp.StatusCode, msg)
}

// ListSandboxes returns every sandbox matching query.Metadata. Each key
// and value is percent-encoded individually and attached as a single
// metadata query parameter, per the transport spec.
func (c *Client) ListSandboxes(ctx context.Context, query ListQuery) ([]ListedSandbox, error) {
	var out struct {
		Sandboxes []ListedSandbox `json:"sandboxes"`
	}
	q := url.Values{}
	if len(query.Metadata) > 0 {
		q.Set("metadata", encodeMetadata(query.Metadata))
	}
	if _, err := c.do(ctx, http.MethodGet, "/sandboxes", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Sandboxes, nil
}

func encodeMetadata(m map[string]string) string {
	v := url.Values{}
	for k, val := range m {
		v.Set(k, val)
	}
	return v.Encode()
}

// GetInfo returns the full SandboxInfo for a running sandbox.
func (c *Client) GetInfo(ctx context.Context, sandboxID string) (*SandboxInfo, error) {
	var out SandboxInfo
	if _, err := c.do(ctx, http.MethodGet, "/sandboxes/"+sandboxID, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Kill destroys a sandbox. A 404 is treated as idempotent success and
// returns false rather than an error.
func (c *Client) Kill(ctx context.Context, sandboxID string) (bool, error) {
	if c.cfg.Debug() {
		return true, nil
	}
	resp, err := c.do(ctx, http.MethodDelete, "/sandboxes/"+sandboxID, nil, nil, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SetTimeout updates a running sandbox's lifetime in seconds.
func (c *Client) SetTimeout(ctx context.Context, sandboxID string, seconds int) error {
	if c.cfg.Debug() {
		return nil
	}
	body := map[string]int{"timeout": seconds}
	_, err := c.doIdempotent(ctx, http.MethodPost, "/sandboxes/"+sandboxID+"/timeout", nil, body, nil)
	return err
}

// CreateSandbox provisions a new sandbox from a template.
func (c *Client) CreateSandbox(ctx context.Context, req NewSandbox) (*CreatedSandbox, error) {
	var out CreatedSandbox
	if _, err := c.doIdempotent(ctx, http.MethodPost, "/sandboxes", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMetrics returns the sandbox's resource usage samples within [start,
// end], both given as wall-clock times and transmitted as millisecond
// epoch timestamps.
func (c *Client) GetMetrics(ctx context.Context, sandboxID string, start, end time.Time) ([]SandboxMetrics, error) {
	if c.cfg.Debug() {
		return nil, nil
	}
	q := url.Values{}
	q.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("end", strconv.FormatInt(end.UnixMilli(), 10))

	var out struct {
		Metrics []SandboxMetrics `json:"metrics"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/sandboxes/"+sandboxID+"/metrics", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Metrics, nil
}

// Pause suspends a sandbox. A 409 (already paused) is treated as success.
func (c *Client) Pause(ctx context.Context, sandboxID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/sandboxes/"+sandboxID+"/pause", nil, nil, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil
		}
		return err
	}
	return nil
}

// Connect resumes (or attaches to) an existing sandbox and returns the
// fields needed to build a live SandboxHandle.
func (c *Client) Connect(ctx context.Context, sandboxID string, timeout int) (*ConnectResult, error) {
	var out ConnectResult
	body := map[string]int{"timeout": timeout}
	if _, err := c.do(ctx, http.MethodPost, "/sandboxes/"+sandboxID+"/connect", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
