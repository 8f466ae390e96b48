package sbxprocess

import (
	"context"

	"github.com/google/uuid"

	"github.com/scalebox/sbx-go/sbxerr"
	"github.com/scalebox/sbx-go/sbxrpc"
)

// Pty is the L4 subclient for pseudo-terminals.
type Pty struct {
	transport   *sbxrpc.Transport
	envdVersion string
	defaultUser string
}

// NewPty builds a Pty subclient over an already-configured Transport.
func NewPty(transport *sbxrpc.Transport, envdVersion string) *Pty {
	return &Pty{transport: transport, envdVersion: envdVersion}
}

// WithDefaultUser returns a copy of Pty whose calls default to username
// instead of root when the call site doesn't set StartOptions.AsUser.
// Used by SandboxHandle.AsUser.
func (p *Pty) WithDefaultUser(username string) *Pty {
	cp := *p
	cp.defaultUser = username
	return &cp
}

func (p *Pty) resolveUser(asUser string) string {
	if asUser != "" {
		return asUser
	}
	return p.defaultUser
}

// Start launches `/bin/bash -i -l` attached to a pty of the given size.
func (p *Pty) Start(ctx context.Context, size PtySize, opts StartOptions) (*PtyHandle, error) {
	tag := opts.Tag
	if tag == "" {
		tag = uuid.NewString()
	}
	req := &startRequest{
		Cmd:  "/bin/bash",
		Args: []string{"-i", "-l"},
		Envs: opts.Envs,
		Cwd:  opts.Cwd,
		Tag:  tag,
		Pty:  &size,
	}
	stream, err := sbxrpc.ServerStream[startRequest, processFrame](ctx, p.transport, procStart, req, userAuthHeaders(p.resolveUser(opts.AsUser), p.envdVersion))
	if err != nil {
		return nil, err
	}
	h, err := newHandle(stream, p.transport)
	if err != nil {
		return nil, err
	}
	return &PtyHandle{CommandHandle: h}, nil
}

// Connect re-attaches to an existing pty.
func (p *Pty) Connect(ctx context.Context, pid int32, asUser string) (*PtyHandle, error) {
	stream, err := sbxrpc.ServerStream[connectRequest, processFrame](ctx, p.transport, procConnect, &connectRequest{Pid: pid}, userAuthHeaders(p.resolveUser(asUser), p.envdVersion))
	if err != nil {
		return nil, err
	}
	h, err := newHandle(stream, p.transport)
	if err != nil {
		return nil, err
	}
	return &PtyHandle{CommandHandle: h}, nil
}

// Resize updates the pty's terminal geometry via the Update RPC.
func (p *Pty) Resize(ctx context.Context, pid int32, size PtySize) error {
	_, err := sbxrpc.Unary[updateRequest, updateResponse](ctx, p.transport, procUpdate, &updateRequest{Pid: pid, Pty: &size}, nil)
	return err
}

// SendStdin writes bytes to the pty's input side.
func (p *Pty) SendStdin(ctx context.Context, pid int32, data []byte) error {
	_, err := sbxrpc.Unary[sendInputRequest, sendInputResponse](ctx, p.transport, procSendInput, &sendInputRequest{Pid: pid, Data: data}, nil)
	return err
}

// Kill sends SIGKILL to the pty's process.
func (p *Pty) Kill(ctx context.Context, pid int32) (bool, error) {
	resp, err := sbxrpc.Unary[sendSignalRequest, sendSignalResponse](ctx, p.transport, procSendSignal, &sendSignalRequest{Pid: pid, Signal: signalKill}, nil)
	if err != nil {
		if sbxerr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return resp.Found, nil
}

// PtyHandle is like CommandHandle but its chunks carry raw pty bytes
// instead of split stdout/stderr.
type PtyHandle struct {
	*CommandHandle
}

// WaitPty consumes the stream, delivering every chunk (regardless of
// stdout/stderr/pty framing) to onData, and returns the terminal result.
func (h *PtyHandle) WaitPty(ctx context.Context, onData func([]byte)) (CommandResult, error) {
	return h.Wait(ctx, onData, onData, onData, true)
}

// Resize updates this pty's geometry.
func (h *PtyHandle) Resize(ctx context.Context, size PtySize) error {
	_, err := sbxrpc.Unary[updateRequest, updateResponse](ctx, h.CommandHandle.transport, procUpdate, &updateRequest{Pid: h.Pid(), Pty: &size}, nil)
	return err
}
