package sandbox

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/scalebox/sbx-go/sbxcode"
	"github.com/scalebox/sbx-go/sbxconfig"
	"github.com/scalebox/sbx-go/sbxfs"
	"github.com/scalebox/sbx-go/sbxmanagement"
	"github.com/scalebox/sbx-go/sbxprocess"
	"github.com/scalebox/sbx-go/sbxrpc"
)

const (
	healthGatePoll    = 300 * time.Millisecond
	healthGateTimeout = 5 * time.Second
)

// CreateOptions configures a new sandbox.
type CreateOptions struct {
	TemplateID          string
	Metadata            map[string]string
	Timeout             int
	EnvVars             map[string]string
	Secure              bool
	AllowInternetAccess bool
	ObjectStorage       map[string]any
	NetworkProxy        map[string]any
}

// Create provisions a new sandbox through the Management API, assembles a
// Handle, and runs the health gate before returning it.
func Create(ctx context.Context, cfg *sbxconfig.ConnectionConfig, opts CreateOptions) (*Handle, error) {
	mgmt := sbxmanagement.New(cfg)

	created, err := mgmt.CreateSandbox(ctx, sbxmanagement.NewSandbox{
		TemplateID:          opts.TemplateID,
		Metadata:            opts.Metadata,
		Timeout:             opts.Timeout,
		EnvVars:             opts.EnvVars,
		Secure:              opts.Secure,
		AllowInternetAccess: opts.AllowInternetAccess,
		ObjectStorage:       opts.ObjectStorage,
		NetworkProxy:        opts.NetworkProxy,
	})
	if err != nil {
		return nil, err
	}

	desc := Descriptor{
		SandboxID:       created.SandboxID,
		SandboxDomain:   created.Domain,
		EnvdVersion:     created.EnvdVersion,
		EnvdAccessToken: created.EnvdAccessToken,
	}

	h := assemble(cfg, mgmt, desc)
	healthGate(ctx, h, cfg.Logger())
	return h, nil
}

// Connect attaches to an existing, already-running sandbox.
func Connect(ctx context.Context, cfg *sbxconfig.ConnectionConfig, sandboxID string) (*Handle, error) {
	mgmt := sbxmanagement.New(cfg)

	info, err := mgmt.GetInfo(ctx, sandboxID)
	if err != nil {
		return nil, err
	}

	desc := Descriptor{
		SandboxID:       info.SandboxID,
		SandboxDomain:   info.SandboxDomain,
		EnvdVersion:     info.EnvdVersion,
		EnvdAccessToken: info.EnvdAccessToken,
		ObjectStorage:   info.ObjectStorage,
		NetworkProxy:    info.NetworkProxy,
	}

	h := assemble(cfg, mgmt, desc)
	healthGate(ctx, h, cfg.Logger())
	return h, nil
}

// Resume reconnects to a sandbox via the Management API's dedicated
// /connect endpoint rather than GetInfo — the path a paused sandbox takes
// back to a live Handle, since a paused sandbox has no envd to question
// and the connect endpoint is what wakes it with a fresh timeout budget.
func Resume(ctx context.Context, cfg *sbxconfig.ConnectionConfig, sandboxID string, timeoutSeconds int) (*Handle, error) {
	mgmt := sbxmanagement.New(cfg)

	result, err := mgmt.Connect(ctx, sandboxID, timeoutSeconds)
	if err != nil {
		return nil, err
	}

	desc := Descriptor{
		SandboxID:       result.SandboxID,
		SandboxDomain:   result.SandboxDomain,
		EnvdVersion:     result.EnvdVersion,
		EnvdAccessToken: result.EnvdAccessToken,
	}

	h := assemble(cfg, mgmt, desc)
	healthGate(ctx, h, cfg.Logger())
	return h, nil
}

func assemble(cfg *sbxconfig.ConnectionConfig, mgmt *sbxmanagement.Client, desc Descriptor) *Handle {
	domain := desc.SandboxDomain
	if domain == "" {
		domain = cfg.Domain()
	}

	transport := sbxrpc.New(sbxrpc.Options{
		BaseURL:       envdApiUrl(cfg, domain),
		Config:        cfg,
		EnvdAccessTok: desc.EnvdAccessToken,
	})

	return buildHandle(cfg, mgmt, transport, desc)
}

// NewHandleForTesting builds a Handle around an already-constructed
// transport, bypassing envdApiUrl's TLS/debug-port resolution so callers
// in other packages can point every subclient at an sbxtest.Envd fake.
func NewHandleForTesting(cfg *sbxconfig.ConnectionConfig, mgmt *sbxmanagement.Client, transport *sbxrpc.Transport, desc Descriptor) *Handle {
	return buildHandle(cfg, mgmt, transport, desc)
}

func buildHandle(cfg *sbxconfig.ConnectionConfig, mgmt *sbxmanagement.Client, transport *sbxrpc.Transport, desc Descriptor) *Handle {
	h := &Handle{
		descriptor: desc,
		cfg:        cfg,
		mgmt:       mgmt,
		transport:  transport,
		user:       defaultEnvdUser,
	}

	signer := urlSigner{token: desc.EnvdAccessToken, user: h.user}
	h.Files = sbxfs.New(transport, signer)
	h.Commands = sbxprocess.New(transport, desc.EnvdVersion)
	h.Pty = sbxprocess.NewPty(transport, desc.EnvdVersion)
	h.Code = sbxcode.New(transport, cfg.Logger())

	return h
}

// healthGate polls GET /health on the envd API URL every 300ms for up to
// 5 seconds. It is advisory: exhausting the budget only logs a warning,
// it never fails Create/Connect.
func healthGate(ctx context.Context, h *Handle, log zerolog.Logger) {
	if h.cfg.Debug() {
		return
	}

	deadline := time.Now().Add(healthGateTimeout)
	client := h.transport.HTTPClient()
	url := h.transport.BaseURL() + "/health"

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := client.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return
				}
			}
		}

		if time.Now().After(deadline) {
			log.Warn().Str("sandboxId", h.descriptor.SandboxID).Msg("health gate exhausted, returning handle anyway")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(healthGatePoll):
		}
	}
}

// Kill destroys the sandbox and releases this handle's pooled resources.
// A 404 is treated as idempotent success.
func (h *Handle) Kill(ctx context.Context) (bool, error) {
	ok, err := h.mgmt.Kill(ctx, h.descriptor.SandboxID)
	h.transport.HTTPClient().CloseIdleConnections()
	return ok, err
}

// SetTimeout extends or shortens the sandbox's remaining lifetime.
func (h *Handle) SetTimeout(ctx context.Context, seconds int) error {
	return h.mgmt.SetTimeout(ctx, h.descriptor.SandboxID, seconds)
}

// GetInfo refreshes and returns the sandbox's full metadata from the
// Management API.
func (h *Handle) GetInfo(ctx context.Context) (*sbxmanagement.SandboxInfo, error) {
	return h.mgmt.GetInfo(ctx, h.descriptor.SandboxID)
}

// GetMetrics returns resource usage samples within [start, end].
func (h *Handle) GetMetrics(ctx context.Context, start, end time.Time) ([]sbxmanagement.SandboxMetrics, error) {
	return h.mgmt.GetMetrics(ctx, h.descriptor.SandboxID, start, end)
}

// Pause suspends the sandbox. A 409 (already paused) is treated as
// success.
func (h *Handle) Pause(ctx context.Context) error {
	return h.mgmt.Pause(ctx, h.descriptor.SandboxID)
}
