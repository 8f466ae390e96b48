package sbx

import (
	"context"
	"time"

	"github.com/scalebox/sbx-go/sandbox"
	"github.com/scalebox/sbx-go/sbxcode"
	"github.com/scalebox/sbx-go/sbxconfig"
	"github.com/scalebox/sbx-go/sbxfs"
	"github.com/scalebox/sbx-go/sbxmanagement"
	"github.com/scalebox/sbx-go/sbxprocess"
	"github.com/scalebox/sbx-go/sbxtask"
)

// Sandbox is the blocking façade: every method suspends the calling
// goroutine until completion, and code-interpreter handlers fire inline
// on that same goroutine.
type Sandbox struct {
	handle *sandbox.Handle
}

// CreateOptions mirrors sandbox.CreateOptions at the public surface.
type CreateOptions = sandbox.CreateOptions

// New creates a sandbox and returns a ready, health-gated Sandbox handle.
func New(ctx context.Context, cfg *sbxconfig.ConnectionConfig, opts CreateOptions) (*Sandbox, error) {
	h, err := sandbox.Create(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Sandbox{handle: h}, nil
}

// ConnectTo attaches to an existing sandbox by id.
func ConnectTo(ctx context.Context, cfg *sbxconfig.ConnectionConfig, sandboxID string) (*Sandbox, error) {
	h, err := sandbox.Connect(ctx, cfg, sandboxID)
	if err != nil {
		return nil, err
	}
	return &Sandbox{handle: h}, nil
}

// Resume reconnects to a paused sandbox through the Management API's
// /connect endpoint, granting it timeoutSeconds of fresh lifetime.
func Resume(ctx context.Context, cfg *sbxconfig.ConnectionConfig, sandboxID string, timeoutSeconds int) (*Sandbox, error) {
	h, err := sandbox.Resume(ctx, cfg, sandboxID, timeoutSeconds)
	if err != nil {
		return nil, err
	}
	return &Sandbox{handle: h}, nil
}

// List returns every sandbox visible to this API key, without requiring
// any existing handle.
func List(ctx context.Context, cfg *sbxconfig.ConnectionConfig, query sbxmanagement.ListQuery) ([]sbxmanagement.ListedSandbox, error) {
	return sbxmanagement.New(cfg).ListSandboxes(ctx, query)
}

// Kill destroys a sandbox by id without requiring an existing handle.
func Kill(ctx context.Context, cfg *sbxconfig.ConnectionConfig, sandboxID string) (bool, error) {
	return sbxmanagement.New(cfg).Kill(ctx, sandboxID)
}

func (s *Sandbox) SandboxID() string { return s.handle.SandboxID() }

func (s *Sandbox) Config() *sbxconfig.ConnectionConfig { return s.handle.Config() }

// AsUser returns a copy of the Sandbox scoped to username for signed URLs
// and legacy Basic-auth process calls.
func (s *Sandbox) AsUser(username string) *Sandbox {
	return &Sandbox{handle: s.handle.AsUser(username)}
}

func (s *Sandbox) Kill(ctx context.Context) (bool, error) { return s.handle.Kill(ctx) }

func (s *Sandbox) SetTimeout(ctx context.Context, seconds int) error {
	return s.handle.SetTimeout(ctx, seconds)
}

func (s *Sandbox) GetInfo(ctx context.Context) (*sbxmanagement.SandboxInfo, error) {
	return s.handle.GetInfo(ctx)
}

func (s *Sandbox) GetMetrics(ctx context.Context, start, end time.Time) ([]sbxmanagement.SandboxMetrics, error) {
	return s.handle.GetMetrics(ctx, start, end)
}

func (s *Sandbox) Pause(ctx context.Context) error { return s.handle.Pause(ctx) }

// RunCommand starts `cmd` and blocks until it exits.
func (s *Sandbox) RunCommand(ctx context.Context, cmd string, opts sbxprocess.StartOptions, tolerant bool) (sbxprocess.CommandResult, error) {
	return s.handle.Commands.Run(ctx, cmd, opts, tolerant)
}

// StartCommand starts `cmd` in the background and returns a live handle.
func (s *Sandbox) StartCommand(ctx context.Context, cmd string, opts sbxprocess.StartOptions) (*sbxprocess.CommandHandle, error) {
	return s.handle.Commands.Start(ctx, cmd, opts)
}

// RunCode executes code against target, invoking handlers inline on the
// calling goroutine.
func (s *Sandbox) RunCode(ctx context.Context, code string, target sbxcode.RunTarget, h sbxcode.Handlers, opts sbxcode.RunOptions) (*sbxcode.Execution, error) {
	return s.handle.Code.RunCode(ctx, code, target, h, opts, &sbxtask.Inline{})
}

// CreateCodeContext opens a persistent execution context.
func (s *Sandbox) CreateCodeContext(ctx context.Context, language, cwd string) (*sbxcode.Context, error) {
	return s.handle.Code.CreateCodeContext(ctx, language, cwd)
}

// DestroyCodeContext releases a persistent execution context.
func (s *Sandbox) DestroyCodeContext(ctx context.Context, c *sbxcode.Context) {
	s.handle.Code.DestroyContext(ctx, c)
}

// Files exposes the filesystem subclient (read/write/list/stat/watch/...).
func (s *Sandbox) Files() *sbxfs.Filesystem { return s.handle.Files }

// Commands exposes the command subclient directly for operations without
// a dedicated façade method (List, Connect, SendStdin, StreamInput).
func (s *Sandbox) Commands() *sbxprocess.Commands { return s.handle.Commands }

// Pty exposes the pseudo-terminal subclient.
func (s *Sandbox) Pty() *sbxprocess.Pty { return s.handle.Pty }
