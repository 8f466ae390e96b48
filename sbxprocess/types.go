// Package sbxprocess implements the Process & PTY supervisor: starting,
// attaching to, signalling, and streaming I/O for commands and
// pseudo-terminals inside a sandbox.
package sbxprocess

// ProcessInfo describes one running process, as returned by List.
type ProcessInfo struct {
	Pid  int32             `json:"pid"`
	Tag  string            `json:"tag,omitempty"`
	Cmd  string            `json:"cmd"`
	Args []string          `json:"args,omitempty"`
	Envs map[string]string `json:"envs,omitempty"`
	Cwd  string            `json:"cwd,omitempty"`
}

// CommandResult is the terminal result of a foreground run.
type CommandResult struct {
	ExitCode int32  `json:"exitCode"`
	Error    string `json:"error,omitempty"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// PtySize is the terminal geometry for a pseudo-terminal.
type PtySize struct {
	Cols uint32 `json:"cols"`
	Rows uint32 `json:"rows"`
}

// --- wire request/response/frame shapes for the Process RPC service ---

type listRequest struct{}

type listResponse struct {
	Processes []ProcessInfo `json:"processes"`
}

type startRequest struct {
	Cmd  string            `json:"cmd"`
	Args []string          `json:"args,omitempty"`
	Envs map[string]string `json:"envs,omitempty"`
	Cwd  string            `json:"cwd,omitempty"`
	Tag  string            `json:"tag,omitempty"`
	Pty  *PtySize          `json:"pty,omitempty"`
}

type connectRequest struct {
	Pid int32 `json:"pid"`
}

type updateRequest struct {
	Pid int32    `json:"pid"`
	Pty *PtySize `json:"pty,omitempty"`
}

type updateResponse struct{}

type sendInputRequest struct {
	Pid  int32  `json:"pid"`
	Data []byte `json:"data"`
}

type sendInputResponse struct{}

type sendSignalRequest struct {
	Pid    int32  `json:"pid"`
	Signal string `json:"signal"`
}

type sendSignalResponse struct {
	Found bool `json:"found"`
}

// processFrame is one frame of the Start/Connect event stream. Exactly one
// of the payload fields is populated, selected by Kind.
type processFrame struct {
	Kind string `json:"kind"` // "start" | "stdout" | "stderr" | "pty" | "end"

	Pid int32 `json:"pid,omitempty"` // populated on "start"

	Chunk []byte `json:"chunk,omitempty"` // populated on stdout/stderr/pty

	ExitCode int32  `json:"exitCode,omitempty"` // populated on "end"
	Error    string `json:"error,omitempty"`
	Status   string `json:"status,omitempty"`
}

const (
	frameKindStart  = "start"
	frameKindStdout = "stdout"
	frameKindStderr = "stderr"
	frameKindPty    = "pty"
	frameKindEnd    = "end"
)

// EnvdVersionDefaultUser is the lowest envd version that stopped defaulting
// process/PTY calls to the legacy "user" account when no AsUser was given.
// Below this version, an unscoped call must still carry Basic auth for
// "user" or envd rejects it; at or above it, "root" (the transport's
// baseline Bearer auth) is the default.
const EnvdVersionDefaultUser = "v0.4.0"

const legacyDefaultUser = "user"
