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

// AsyncSandbox is the cooperative façade: every method that talks to the
// agent starts its work on a fresh goroutine and returns a *Future
// immediately, so the caller chooses when (or whether) to block. Handlers
// passed to RunCode are dispatched through an errgroup-backed
// sbxtask.Scheduler instead of running inline, so a slow callback never
// stalls the frame demultiplexer. It shares every layer below L7 with
// Sandbox via the same *sandbox.Handle.
type AsyncSandbox struct {
	handle *sandbox.Handle
}

// NewAsync creates a sandbox and returns a ready, health-gated
// AsyncSandbox handle. Create itself still blocks the caller — there is
// no meaningful sense in which provisioning a sandbox can be deferred —
// but every subsequent operation on the returned handle is asynchronous.
func NewAsync(ctx context.Context, cfg *sbxconfig.ConnectionConfig, opts CreateOptions) (*AsyncSandbox, error) {
	h, err := sandbox.Create(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &AsyncSandbox{handle: h}, nil
}

// ConnectToAsync attaches to an existing sandbox by id.
func ConnectToAsync(ctx context.Context, cfg *sbxconfig.ConnectionConfig, sandboxID string) (*AsyncSandbox, error) {
	h, err := sandbox.Connect(ctx, cfg, sandboxID)
	if err != nil {
		return nil, err
	}
	return &AsyncSandbox{handle: h}, nil
}

// ResumeAsync reconnects to a paused sandbox through the Management API's
// /connect endpoint, granting it timeoutSeconds of fresh lifetime.
func ResumeAsync(ctx context.Context, cfg *sbxconfig.ConnectionConfig, sandboxID string, timeoutSeconds int) (*AsyncSandbox, error) {
	h, err := sandbox.Resume(ctx, cfg, sandboxID, timeoutSeconds)
	if err != nil {
		return nil, err
	}
	return &AsyncSandbox{handle: h}, nil
}

func (s *AsyncSandbox) SandboxID() string { return s.handle.SandboxID() }

func (s *AsyncSandbox) Config() *sbxconfig.ConnectionConfig { return s.handle.Config() }

// AsUser returns a copy of the AsyncSandbox scoped to username for signed
// URLs and legacy Basic-auth process calls.
func (s *AsyncSandbox) AsUser(username string) *AsyncSandbox {
	return &AsyncSandbox{handle: s.handle.AsUser(username)}
}

// Kill destroys the sandbox. The Future resolves once the Management API
// confirms it; a 404 (sandbox already gone) resolves as (false, nil), as
// Handle.Kill reports it.
func (s *AsyncSandbox) Kill(ctx context.Context) *Future[bool] {
	return newFuture(func() (bool, error) { return s.handle.Kill(ctx) })
}

func (s *AsyncSandbox) SetTimeout(ctx context.Context, seconds int) *Future[struct{}] {
	return newFuture(func() (struct{}, error) { return struct{}{}, s.handle.SetTimeout(ctx, seconds) })
}

func (s *AsyncSandbox) GetInfo(ctx context.Context) *Future[*sbxmanagement.SandboxInfo] {
	return newFuture(func() (*sbxmanagement.SandboxInfo, error) { return s.handle.GetInfo(ctx) })
}

func (s *AsyncSandbox) GetMetrics(ctx context.Context, start, end time.Time) *Future[[]sbxmanagement.SandboxMetrics] {
	return newFuture(func() ([]sbxmanagement.SandboxMetrics, error) { return s.handle.GetMetrics(ctx, start, end) })
}

func (s *AsyncSandbox) Pause(ctx context.Context) *Future[struct{}] {
	return newFuture(func() (struct{}, error) { return struct{}{}, s.handle.Pause(ctx) })
}

// RunCommand starts cmd and resolves once it exits.
func (s *AsyncSandbox) RunCommand(ctx context.Context, cmd string, opts sbxprocess.StartOptions, tolerant bool) *Future[sbxprocess.CommandResult] {
	return newFuture(func() (sbxprocess.CommandResult, error) {
		return s.handle.Commands.Run(ctx, cmd, opts, tolerant)
	})
}

// StartCommand launches cmd in the background; the Future resolves as
// soon as the start handshake completes, not when the command exits.
func (s *AsyncSandbox) StartCommand(ctx context.Context, cmd string, opts sbxprocess.StartOptions) *Future[*sbxprocess.CommandHandle] {
	return newFuture(func() (*sbxprocess.CommandHandle, error) {
		return s.handle.Commands.Start(ctx, cmd, opts)
	})
}

// RunCode executes code against target. Handlers in h are dispatched
// through an errgroup, not run on the goroutine draining the stream, so a
// slow OnStdout/OnResult callback never delays the next frame's arrival.
func (s *AsyncSandbox) RunCode(ctx context.Context, code string, target sbxcode.RunTarget, h sbxcode.Handlers, opts sbxcode.RunOptions) *Future[*sbxcode.Execution] {
	return newFuture(func() (*sbxcode.Execution, error) {
		return s.handle.Code.RunCode(ctx, code, target, h, opts, sbxtask.NewGroup())
	})
}

func (s *AsyncSandbox) CreateCodeContext(ctx context.Context, language, cwd string) *Future[*sbxcode.Context] {
	return newFuture(func() (*sbxcode.Context, error) {
		return s.handle.Code.CreateCodeContext(ctx, language, cwd)
	})
}

func (s *AsyncSandbox) DestroyCodeContext(ctx context.Context, c *sbxcode.Context) *Future[struct{}] {
	return newFuture(func() (struct{}, error) {
		s.handle.Code.DestroyContext(ctx, c)
		return struct{}{}, nil
	})
}

// Files exposes the filesystem subclient directly: its own streaming
// calls (WatchDir) are already non-blocking by construction, so wrapping
// every method in a Future here would add nothing.
func (s *AsyncSandbox) Files() *sbxfs.Filesystem { return s.handle.Files }

// Commands exposes the command subclient directly for operations without
// a dedicated façade method (List, Connect, SendStdin, StreamInput).
func (s *AsyncSandbox) Commands() *sbxprocess.Commands { return s.handle.Commands }

// Pty exposes the pseudo-terminal subclient.
func (s *AsyncSandbox) Pty() *sbxprocess.Pty { return s.handle.Pty }
