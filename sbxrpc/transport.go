// Package sbxrpc implements the Connect-RPC transport shared by every
// envd subclient: one pooled HTTP/2 client per SandboxHandle, switchable
// protobuf/JSON encoding, header injection, and transport-only retries on
// 5xx.
package sbxrpc

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"

	"github.com/scalebox/sbx-go/sbxconfig"
)

// Pool parameters from the transport spec.
const (
	maxConnsTotal    = 100
	maxConnsPerHost  = 20
	keepAliveTimeout = 30 * time.Second
	retryAttempts    = 3
	retryBackoff     = 100 * time.Millisecond // factor 0.1s
)

// Transport owns the single pooled HTTP client for a SandboxHandle and
// knows how to build Connect-RPC clients against it.
type Transport struct {
	httpClient *http.Client
	baseURL    string
	cfg        *sbxconfig.ConnectionConfig
	encoding   Encoding
	accessTok  string // envd access token, when the descriptor carries one
	extra      map[string]string
}

// Options configures a Transport.
type Options struct {
	BaseURL        string
	Config         *sbxconfig.ConnectionConfig
	Encoding       Encoding
	EnvdAccessTok  string
	ExtraHeaders   map[string]string
	RequestTimeout *time.Duration
}

// New builds a pooled HTTP/2 Transport. TLS verification is enabled
// unless the connection config is in debug mode (talking to a local
// debug host over plain HTTP).
func New(opts Options) *Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: keepAliveTimeout,
	}

	proxy := http.ProxyFromEnvironment
	if opts.Config != nil && opts.Config.Proxy() != "" {
		if u, err := url.Parse(opts.Config.Proxy()); err == nil {
			proxy = http.ProxyURL(u)
		}
	}

	baseTransport := &http.Transport{
		Proxy:               proxy,
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     maxConnsPerHost,
		MaxIdleConns:        maxConnsTotal,
		MaxIdleConnsPerHost: maxConnsPerHost,
		IdleConnTimeout:     keepAliveTimeout,
	}

	if opts.Config == nil || !opts.Config.Debug() {
		// Production envd negotiates HTTP/2 over TLS; upgrading the pooled
		// transport is what gives us multiplexed streaming without a
		// connection per in-flight RPC. Debug mode talks plain HTTP/1.1 to
		// a local debugHost:8888, where no ALPN negotiation is possible.
		// ConfigureTransport only fails on a transport already customized
		// in a way h2 can't layer over; HTTP/1.1 still works then.
		_ = http2.ConfigureTransport(baseTransport)
	}
	var rt http.RoundTripper = baseTransport

	rt = &retryRoundTripper{
		next:     rt,
		attempts: retryAttempts,
		backoff:  retryBackoff,
	}

	if opts.Config != nil {
		rt = newLoggingRoundTripper(rt, opts.Config.Logger())
	}

	timeout := time.Duration(0)
	if opts.Config != nil {
		timeout = opts.Config.GetRequestTimeout(opts.RequestTimeout)
	}

	enc := opts.Encoding
	if enc == "" {
		enc = EncodingProtobuf
	}

	extra := map[string]string{}
	if opts.Config != nil {
		for k, v := range opts.Config.Headers() {
			extra[k] = v
		}
	}
	for k, v := range opts.ExtraHeaders {
		extra[k] = v
	}

	return &Transport{
		httpClient: &http.Client{Transport: rt, Timeout: timeout},
		baseURL:    opts.BaseURL,
		cfg:        opts.Config,
		encoding:   enc,
		accessTok:  opts.EnvdAccessTok,
		extra:      extra,
	}
}

// HTTPClient exposes the pooled client for the non-RPC surfaces
// (multipart upload, GET /download, GET /health) that bypass Connect-RPC.
func (t *Transport) HTTPClient() *http.Client { return t.httpClient }

func (t *Transport) BaseURL() string { return t.baseURL }

// applyHeaders sets Authorization: Bearer root, the envd access token
// (when present), and the config's caller-supplied extra headers, which
// are merged last and can never overwrite Authorization. callExtra is a
// further, per-call override — e.g. sbxprocess's AsUser Basic-auth header
// — applied after everything else; unlike the config-level extra headers,
// callExtra is internal to this SDK (never arbitrary user input) and is
// allowed to replace Authorization, since that's the whole point of
// scoping a single call to a non-default envd user.
//
// Headers are applied directly to each request's Header() at call sites
// rather than through a connect interceptor: connect's UnaryInterceptorFunc
// only wraps unary calls, so a streaming-only interceptor would silently
// skip every ServerStream/ClientStream call this SDK makes.
func (t *Transport) applyHeaders(h http.Header, callExtra map[string]string) {
	h.Set("Authorization", "Bearer root")
	if t.accessTok != "" {
		h.Set("X-Access-Token", t.accessTok)
	}
	for k, v := range t.extra {
		if k == "Authorization" {
			continue
		}
		h.Set(k, v)
	}
	for k, v := range callExtra {
		h.Set(k, v)
	}
}

func (t *Transport) clientOptions() []connect.ClientOption {
	var opts []connect.ClientOption
	switch t.encoding {
	case EncodingJSON:
		opts = append(opts, connect.WithCodec(jsonCodec{}))
	default:
		opts = append(opts, connect.WithCodec(protoCodec{}))
	}
	return opts
}

// Unary issues a single Connect-RPC unary call. extraHeaders may be nil;
// when non-nil it is merged in after the transport's own headers (used by
// sbxprocess to scope a single call to a non-default envd user).
func Unary[Req, Resp any](ctx context.Context, t *Transport, procedurePath string, msg *Req, timeout *time.Duration, extraHeaders ...map[string]string) (*Resp, error) {
	client := connect.NewClient[Req, Resp](t.httpClient, t.baseURL+procedurePath, t.clientOptions()...)

	if d := t.cfg.GetRequestTimeout(timeout); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	req := connect.NewRequest(msg)
	t.applyHeaders(req.Header(), mergeExtra(extraHeaders))
	resp, err := client.CallUnary(ctx, req)
	if err != nil {
		return nil, WrapError(ctx, err)
	}
	return resp.Msg, nil
}

// ServerStream opens a Connect-RPC server-streaming call and returns the
// single-pass, cancellable Stream wrapper.
func ServerStream[Req, Frame any](ctx context.Context, t *Transport, procedurePath string, msg *Req, extraHeaders ...map[string]string) (*Stream[Frame], error) {
	client := connect.NewClient[Req, Frame](t.httpClient, t.baseURL+procedurePath, t.clientOptions()...)

	streamCtx, cancel := context.WithCancel(ctx)
	req := connect.NewRequest(msg)
	t.applyHeaders(req.Header(), mergeExtra(extraHeaders))
	stream, err := client.CallServerStream(streamCtx, req)
	if err != nil {
		cancel()
		return nil, WrapError(ctx, err)
	}
	return &Stream[Frame]{raw: stream, cancel: cancel}, nil
}

func mergeExtra(extraHeaders []map[string]string) map[string]string {
	if len(extraHeaders) == 0 {
		return nil
	}
	return extraHeaders[0]
}

// retryRoundTripper retries a request of any method on 500/502/503/504 with
// a small exponential backoff, replaying its body through GetBody when set. It never retries on RPC/application errors,
// only on transport-layer 5xx.
type retryRoundTripper struct {
	next     http.RoundTripper
	attempts int
	backoff  time.Duration
}

func (r *retryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return resp, bodyErr
			}
			req.Body = body
		}
		resp, err = r.next.RoundTrip(req)
		if err == nil && !shouldRetry(resp.StatusCode) {
			return resp, nil
		}
		if attempt == r.attempts-1 {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}
		sleep := r.backoff * time.Duration(1<<attempt)
		if quarter := int64(sleep) / 4; quarter > 0 {
			sleep += time.Duration(rand.Int63n(quarter))
		}
		time.Sleep(sleep)
	}
	return resp, err
}

func shouldRetry(status int) bool {
	switch status {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
