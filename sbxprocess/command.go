package sbxprocess

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/scalebox/sbx-go/sbxerr"
	"github.com/scalebox/sbx-go/sbxrpc"
)

const (
	procList        = "/sandboxagent.Process/List"
	procStart       = "/sandboxagent.Process/Start"
	procConnect     = "/sandboxagent.Process/Connect"
	procUpdate      = "/sandboxagent.Process/Update"
	procStreamInput = "/sandboxagent.Process/StreamInput"
	procSendInput   = "/sandboxagent.Process/SendInput"
	procSendSignal  = "/sandboxagent.Process/SendSignal"

	signalKill = "SIGKILL"
)

// Commands is the L4 subclient for foreground/background commands.
type Commands struct {
	transport   *sbxrpc.Transport
	envdVersion string
	defaultUser string
}

// New builds a Commands subclient over an already-configured Transport.
// envdVersion gates the legacy-default-user Basic-auth fallback (see
// EnvdVersionDefaultUser); pass "" when the caller doesn't know it.
func New(transport *sbxrpc.Transport, envdVersion string) *Commands {
	return &Commands{transport: transport, envdVersion: envdVersion}
}

// WithDefaultUser returns a copy of Commands whose calls default to
// username instead of root when the call site doesn't set StartOptions.AsUser.
// Used by SandboxHandle.AsUser.
func (c *Commands) WithDefaultUser(username string) *Commands {
	cp := *c
	cp.defaultUser = username
	return &cp
}

func (c *Commands) resolveUser(asUser string) string {
	if asUser != "" {
		return asUser
	}
	return c.defaultUser
}

// List returns every process currently tracked by the agent.
func (c *Commands) List(ctx context.Context) ([]ProcessInfo, error) {
	resp, err := sbxrpc.Unary[listRequest, listResponse](ctx, c.transport, procList, &listRequest{}, nil)
	if err != nil {
		return nil, err
	}
	return resp.Processes, nil
}

// StartOptions configures a new command.
type StartOptions struct {
	Envs map[string]string
	Cwd  string
	Tag  string
	// AsUser scopes this call to an envd user via Basic auth instead of
	// the handle's default root auth. Empty means "use the default",
	// which on pre-EnvdVersionDefaultUser agents still falls back to the
	// legacy "user" account.
	AsUser string
}

// Start launches `/bin/bash -l -c <cmd>` and performs the start handshake:
// the first frame off the stream must be a start event carrying the pid.
func (c *Commands) Start(ctx context.Context, cmd string, opts StartOptions) (*CommandHandle, error) {
	tag := opts.Tag
	if tag == "" {
		// A caller-visible tag lets List/Connect identify a background
		// process later; default to a random one rather than leaving it
		// empty, since the agent treats "" as "no tag" not "generate one".
		tag = uuid.NewString()
	}
	req := &startRequest{
		Cmd:  "/bin/bash",
		Args: []string{"-l", "-c", cmd},
		Envs: opts.Envs,
		Cwd:  opts.Cwd,
		Tag:  tag,
	}
	stream, err := sbxrpc.ServerStream[startRequest, processFrame](ctx, c.transport, procStart, req, userAuthHeaders(c.resolveUser(opts.AsUser), c.envdVersion))
	if err != nil {
		return nil, err
	}
	return newHandle(stream, c.transport)
}

// Connect re-attaches to an existing process, replaying its event stream
// from the server's current replay point. The start handshake is
// identical to Start.
func (c *Commands) Connect(ctx context.Context, pid int32, asUser string) (*CommandHandle, error) {
	stream, err := sbxrpc.ServerStream[connectRequest, processFrame](ctx, c.transport, procConnect, &connectRequest{Pid: pid}, userAuthHeaders(c.resolveUser(asUser), c.envdVersion))
	if err != nil {
		return nil, err
	}
	return newHandle(stream, c.transport)
}

// Run starts cmd and blocks until it exits, returning the accumulated
// result. A non-zero exit raises CommandExit unless tolerant is true.
func (c *Commands) Run(ctx context.Context, cmd string, opts StartOptions, tolerant bool) (CommandResult, error) {
	h, err := c.Start(ctx, cmd, opts)
	if err != nil {
		return CommandResult{}, err
	}
	return h.Wait(ctx, nil, nil, nil, tolerant)
}

// SendStdin delivers bytes to the process's stdin as a single unary call.
func (c *Commands) SendStdin(ctx context.Context, pid int32, data []byte) error {
	_, err := sbxrpc.Unary[sendInputRequest, sendInputResponse](ctx, c.transport, procSendInput, &sendInputRequest{Pid: pid, Data: data}, nil)
	return err
}

// StreamInput opens the high-throughput stdin channel: the first frame
// names the pid, every Send after that carries one chunk of input.
// Callers Send repeatedly then Close (or Cancel to abort).
func (c *Commands) StreamInput(ctx context.Context, pid int32) (*StdinStream, error) {
	s := sbxrpc.ClientStream[sendInputRequest, sendInputResponse](ctx, c.transport, procStreamInput)
	if err := s.Send(&sendInputRequest{Pid: pid}); err != nil {
		s.Cancel()
		return nil, err
	}
	return &StdinStream{pid: pid, sender: s}, nil
}

// StdinStream is the client-streaming stdin channel opened by StreamInput.
type StdinStream struct {
	pid    int32
	sender *sbxrpc.ClientStreamSender[sendInputRequest, sendInputResponse]
}

// Send delivers one chunk of stdin.
func (s *StdinStream) Send(data []byte) error {
	return s.sender.Send(&sendInputRequest{Pid: s.pid, Data: data})
}

// Close finalizes the stream and waits for the agent's acknowledgement.
func (s *StdinStream) Close() error {
	_, err := s.sender.CloseAndReceive()
	return err
}

// Cancel aborts the stream without waiting for an acknowledgement.
func (s *StdinStream) Cancel() { s.sender.Cancel() }

// Kill sends SIGKILL. It returns true unless the server reports the
// process was not found, which is treated as idempotent success (false,
// no error).
func (c *Commands) Kill(ctx context.Context, pid int32) (bool, error) {
	resp, err := sbxrpc.Unary[sendSignalRequest, sendSignalResponse](ctx, c.transport, procSendSignal, &sendSignalRequest{Pid: pid, Signal: signalKill}, nil)
	if err != nil {
		if sbxerr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return resp.Found, nil
}

// CommandHandle is a live process: its stream is drained exactly once by
// Wait. After termination the handle is consumed; further Wait calls
// return the stored result.
type CommandHandle struct {
	pid       int32
	stream    *sbxrpc.Stream[processFrame]
	transport *sbxrpc.Transport

	mu     sync.Mutex
	done   bool
	result CommandResult
	err    error
}

func newHandle(stream *sbxrpc.Stream[processFrame], transport *sbxrpc.Transport) (*CommandHandle, error) {
	if !stream.Receive() {
		err := stream.Err()
		if err == nil {
			err = sbxerr.New(sbxerr.KindSandbox, "process stream closed before start event")
		}
		stream.Close()
		return nil, err
	}
	first := stream.Msg()
	if first.Kind != frameKindStart {
		stream.Close()
		return nil, sbxerr.New(sbxerr.KindSandbox, "expected start event as first frame")
	}
	return &CommandHandle{pid: first.Pid, stream: stream, transport: transport}, nil
}

// Pid returns the process id assigned at start.
func (h *CommandHandle) Pid() int32 { return h.pid }

// Wait consumes the stream to completion, invoking onStdout/onStderr/onPty
// per chunk (any may be nil), and returns the terminal CommandResult. When
// exitCode != 0 and tolerant is false, returns a CommandExitError.
func (h *CommandHandle) Wait(ctx context.Context, onStdout, onStderr, onPty func([]byte), tolerant bool) (CommandResult, error) {
	h.mu.Lock()
	if h.done {
		result, err := h.result, h.err
		h.mu.Unlock()
		return result, err
	}
	h.mu.Unlock()

	var stdout, stderr strings.Builder
	var result CommandResult

	for h.stream.Receive() {
		f := h.stream.Msg()
		switch f.Kind {
		case frameKindStdout:
			stdout.Write(f.Chunk)
			if onStdout != nil {
				onStdout(f.Chunk)
			}
		case frameKindStderr:
			stderr.Write(f.Chunk)
			if onStderr != nil {
				onStderr(f.Chunk)
			}
		case frameKindPty:
			if onPty != nil {
				onPty(f.Chunk)
			}
		case frameKindEnd:
			result = CommandResult{ExitCode: f.ExitCode, Error: f.Error, Stdout: stdout.String(), Stderr: stderr.String()}
		}
	}

	var err error
	if streamErr := h.stream.Err(); streamErr != nil {
		err = streamErr
	} else if result.ExitCode != 0 && !tolerant {
		err = &sbxerr.CommandExitError{
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			ExitCode: int(result.ExitCode),
			Message:  result.Error,
		}
	}

	h.mu.Lock()
	h.done = true
	h.result = result
	h.err = err
	h.mu.Unlock()

	return result, err
}

// Kill sends SIGKILL to this process. It returns false, not an error, when
// the server reports the process is already gone.
func (h *CommandHandle) Kill(ctx context.Context) (bool, error) {
	resp, err := sbxrpc.Unary[sendSignalRequest, sendSignalResponse](ctx, h.transport, procSendSignal, &sendSignalRequest{Pid: h.pid, Signal: signalKill}, nil)
	if err != nil {
		if sbxerr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return resp.Found, nil
}

// Disconnect cancels the stream without killing the process server-side.
// The process may be re-attached later with Commands.Connect.
func (h *CommandHandle) Disconnect() error {
	return h.stream.Close()
}
