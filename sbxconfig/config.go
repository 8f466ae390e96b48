// Package sbxconfig resolves process configuration for a sandbox connection.
//
// Resolution follows a fixed precedence: explicit option, then environment
// variable, then compiled default. Resolution happens lazily inside
// New, never at package init, so two ConnectionConfig values built in the
// same process never interfere with each other.
package sbxconfig

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const defaultRequestTimeout = 30 * time.Second

// ConnectionConfig is the frozen, process-wide configuration seed consumed
// by every layer of the SDK. Once passed into a SandboxHandle it is treated
// as immutable.
type ConnectionConfig struct {
	domain         string
	apiKey         string
	accessToken    string
	debug          bool
	debugHost      string
	requestTimeout time.Duration // zero means "no timeout"
	noTimeout      bool
	headers        map[string]string
	proxy          string
	logger         zerolog.Logger
}

// Option configures a ConnectionConfig under construction.
type Option func(*draft)

type draft struct {
	domain         *string
	apiKey         *string
	accessToken    *string
	debug          *bool
	debugHost      *string
	requestTimeout *time.Duration
	headers        map[string]string
	proxy          *string
	logger         *zerolog.Logger
}

func WithDomain(domain string) Option { return func(d *draft) { d.domain = &domain } }
func WithAPIKey(key string) Option    { return func(d *draft) { d.apiKey = &key } }
func WithAccessToken(tok string) Option {
	return func(d *draft) { d.accessToken = &tok }
}
func WithDebug(debug bool) Option         { return func(d *draft) { d.debug = &debug } }
func WithDebugHost(host string) Option    { return func(d *draft) { d.debugHost = &host } }
func WithProxy(proxyURL string) Option    { return func(d *draft) { d.proxy = &proxyURL } }
func WithLogger(l zerolog.Logger) Option  { return func(d *draft) { d.logger = &l } }
func WithHeaders(h map[string]string) Option {
	return func(d *draft) {
		if d.headers == nil {
			d.headers = map[string]string{}
		}
		for k, v := range h {
			d.headers[k] = v
		}
	}
}

// WithRequestTimeout sets the default per-request timeout. Zero disables
// the timeout entirely.
func WithRequestTimeout(d time.Duration) Option {
	return func(draft *draft) { draft.requestTimeout = &d }
}

// New resolves a ConnectionConfig from explicit options, environment
// variables (SBX_DOMAIN, SBX_API_KEY, SBX_ACCESS_TOKEN, SBX_DEBUG,
// SBX_DEBUG_HOST), and compiled defaults, in that order of precedence.
func New(opts ...Option) (*ConnectionConfig, error) {
	d := &draft{}
	for _, opt := range opts {
		opt(d)
	}

	cfg := &ConnectionConfig{
		domain:      resolveString(d.domain, "SBX_DOMAIN", "api.scalebox.dev/v1"),
		apiKey:      resolveString(d.apiKey, "SBX_API_KEY", ""),
		accessToken: resolveString(d.accessToken, "SBX_ACCESS_TOKEN", ""),
		debugHost:   resolveString(d.debugHost, "SBX_DEBUG_HOST", "localhost"),
		debug:       resolveBool(d.debug, "SBX_DEBUG", false),
		headers:     d.headers,
		logger:      zerolog.Nop(),
	}
	if cfg.headers == nil {
		cfg.headers = map[string]string{}
	}
	if d.proxy != nil {
		cfg.proxy = *d.proxy
	}
	if d.logger != nil {
		cfg.logger = *d.logger
	}

	if d.requestTimeout != nil {
		if *d.requestTimeout == 0 {
			cfg.noTimeout = true
		} else {
			cfg.requestTimeout = *d.requestTimeout
		}
	} else {
		cfg.requestTimeout = defaultRequestTimeout
	}

	if cfg.domain == "" {
		return nil, errInvalidDomain
	}

	return cfg, nil
}

func resolveString(explicit *string, envVar, def string) string {
	if explicit != nil {
		return *explicit
	}
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		return v
	}
	return def
}

func resolveBool(explicit *bool, envVar string, def bool) bool {
	if explicit != nil {
		return *explicit
	}
	if v, ok := os.LookupEnv(envVar); ok {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func (c *ConnectionConfig) Domain() string         { return c.domain }
func (c *ConnectionConfig) APIKey() string         { return c.apiKey }
func (c *ConnectionConfig) AccessToken() string    { return c.accessToken }
func (c *ConnectionConfig) Debug() bool            { return c.debug }
func (c *ConnectionConfig) DebugHost() string      { return c.debugHost }
func (c *ConnectionConfig) Proxy() string          { return c.proxy }
func (c *ConnectionConfig) Logger() zerolog.Logger { return c.logger }
func (c *ConnectionConfig) ApiURL() string         { return "https://" + c.domain }

// Headers returns a defensive copy so callers cannot mutate the frozen
// config through the returned map.
func (c *ConnectionConfig) Headers() map[string]string {
	out := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		out[k] = v
	}
	return out
}

// GetRequestTimeout applies the same zero-means-none rule at a call site:
// an explicit override of zero disables the timeout for this call; a nil
// override falls back to the config's own default (which may itself be
// "no timeout").
func (c *ConnectionConfig) GetRequestTimeout(override *time.Duration) time.Duration {
	if override != nil {
		if *override == 0 {
			return 0
		}
		return *override
	}
	if c.noTimeout {
		return 0
	}
	return c.requestTimeout
}
