// Package sandbox implements the L4/L5 sandbox lifecycle manager and
// handle: create, connect, pause, kill, and the health gate that bridges
// an eventually-ready sandbox into an immediately-usable handle.
package sandbox

import (
	"net/url"
	"time"

	"github.com/scalebox/sbx-go/sbxcode"
	"github.com/scalebox/sbx-go/sbxconfig"
	"github.com/scalebox/sbx-go/sbxfs"
	"github.com/scalebox/sbx-go/sbxmanagement"
	"github.com/scalebox/sbx-go/sbxprocess"
	"github.com/scalebox/sbx-go/sbxrpc"
	"github.com/scalebox/sbx-go/sbxsign"
)

// Descriptor is the identity of a live sandbox, as returned by create,
// connect, or getInfo.
type Descriptor struct {
	SandboxID       string
	SandboxDomain   string
	EnvdVersion     string
	EnvdAccessToken string
	ObjectStorage   map[string]any
	NetworkProxy    map[string]any
}

// Handle composes a Descriptor, its ConnectionConfig, the pooled RPC
// transport, and the four subclients. A Handle exclusively owns its
// Descriptor and transport; it is not safe to share across goroutines
// without external synchronization, though read-only field access
// (SandboxID, Config) is safe.
type Handle struct {
	descriptor Descriptor
	cfg        *sbxconfig.ConnectionConfig
	mgmt       *sbxmanagement.Client
	transport  *sbxrpc.Transport
	user       string

	Files    *sbxfs.Filesystem
	Commands *sbxprocess.Commands
	Pty      *sbxprocess.Pty
	Code     *sbxcode.CodeInterpreter
}

// defaultEnvdUser is used to scope signed URLs when the caller hasn't
// supplied a user via AsUser. Process/PTY calls on a fresh handle do not
// read it; sbxprocess applies its own legacy default user on old envd.
const defaultEnvdUser = "user"

// AsUser returns a copy of the handle whose signed URLs (and, against
// envd builds old enough to still expect it, Basic auth on process/PTY
// calls) are scoped to username instead of the default. Files, Commands
// and Pty are rebuilt for username; Code and the underlying
// transport/pool are shared with the original handle.
func (h *Handle) AsUser(username string) *Handle {
	cp := *h
	cp.user = username
	signer := urlSigner{token: h.descriptor.EnvdAccessToken, user: username}
	cp.Files = sbxfs.New(h.transport, signer)
	cp.Commands = h.Commands.WithDefaultUser(username)
	cp.Pty = h.Pty.WithDefaultUser(username)
	return &cp
}

// SandboxID returns the opaque server-issued identifier.
func (h *Handle) SandboxID() string { return h.descriptor.SandboxID }

// Config returns the immutable connection configuration this handle was
// built from.
func (h *Handle) Config() *sbxconfig.ConnectionConfig { return h.cfg }

// EnvdVersion returns the agent's semver string, or "" if unknown.
func (h *Handle) EnvdVersion() string { return h.descriptor.EnvdVersion }

// envdApiUrl is the base URL for every envd RPC and HTTP surface. domain
// resolves per assemble's rule: sandboxDomain when non-empty, else the
// connection config's own domain. See the design notes on the source's
// inconsistent domain/sandboxDomain handling.
func envdApiUrl(cfg *sbxconfig.ConnectionConfig, domain string) string {
	if cfg.Debug() {
		return "http://" + cfg.DebugHost() + ":8888"
	}
	return "https://" + domain + ":443"
}

// urlSigner adapts sbxsign to the sbxfs.URLSigner interface, scoping every
// signature to this handle's descriptor and config.
type urlSigner struct {
	token string
	user  string
}

func (s urlSigner) SignDownload(path string) url.Values {
	if s.token == "" {
		return nil
	}
	return sbxsign.URL(path, sbxsign.OperationRead, s.user, s.token, signatureTTL)
}

func (s urlSigner) SignUpload(path string) url.Values {
	if s.token == "" {
		return nil
	}
	return sbxsign.URL(path, sbxsign.OperationWrite, s.user, s.token, signatureTTL)
}

const signatureTTL = 10 * time.Minute
