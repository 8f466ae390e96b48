// Package sbxcode implements the code interpreter: persistent execution
// contexts and the streaming Execute RPC, demultiplexed into stdout,
// stderr, rich results, and execution errors.
package sbxcode

// Context is a server-owned, language-pinned execution environment. The
// client holds only the id; variable state between RunCode calls lives
// entirely server-side.
type Context struct {
	ID       string
	Language string
	Cwd      string
}

// OutputMessage is a single stdout/stderr line delivered to a handler.
type OutputMessage struct {
	Content string
	Ts      int64
	Error   bool
}

// Chart is the structured chart payload a Result may carry.
type Chart map[string]any

// Result is one MIME-polymorphic output frame. At most one Result in a
// given Execution has IsMainResult set.
type Result struct {
	Text           string            `json:"text,omitempty"`
	HTML           string            `json:"html,omitempty"`
	Markdown       string            `json:"markdown,omitempty"`
	SVG            string            `json:"svg,omitempty"`
	PNG            string            `json:"png,omitempty"`
	JPEG           string            `json:"jpeg,omitempty"`
	PDF            string            `json:"pdf,omitempty"`
	Latex          string            `json:"latex,omitempty"`
	JSON           string            `json:"json,omitempty"`
	JavaScript     string            `json:"javascript,omitempty"`
	Data           string            `json:"data,omitempty"`
	Chart          Chart             `json:"chart,omitempty"`
	ExecutionCount int               `json:"executionCount,omitempty"`
	IsMainResult   bool              `json:"isMainResult,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// ExecutionError is the error surfaced by a failed execution.
type ExecutionError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback"`
}

func (e *ExecutionError) Error() string { return e.Name + ": " + e.Value }

// Logs accumulates raw stdout/stderr text across an Execution.
type Logs struct {
	Stdout []string
	Stderr []string
}

// Execution accumulates the full outcome of one RunCode call.
type Execution struct {
	Results        []Result
	Logs           Logs
	Error          *ExecutionError
	ExecutionCount int
}

// --- wire request/response/frame shapes for the ContextService/Execute RPC ---

type createContextRequest struct {
	Language string `json:"language"`
	Cwd      string `json:"cwd,omitempty"`
}

type createContextResponse struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Cwd      string `json:"cwd"`
}

type destroyContextRequest struct {
	ID string `json:"id"`
}

type destroyContextResponse struct{}

type executeRequest struct {
	Code      string            `json:"code"`
	Language  string            `json:"language,omitempty"`
	ContextID string            `json:"contextId,omitempty"`
	EnvVars   map[string]string `json:"envVars,omitempty"`
}

// executeFrame is one frame of the Execute stream. Exactly one payload
// field is populated, selected by Kind.
type executeFrame struct {
	Kind string `json:"kind"` // "stdout" | "stderr" | "result" | "error"

	Text  string `json:"text,omitempty"`  // stdout/stderr text
	TsNs  int64  `json:"tsNs,omitempty"`  // stdout/stderr timestamp

	Result *wireResult `json:"result,omitempty"`

	ErrorName      string `json:"errorName,omitempty"`
	ErrorValue     string `json:"errorValue,omitempty"`
	ErrorTraceback string `json:"errorTraceback,omitempty"`
}

type wireResult struct {
	Text           string            `json:"text,omitempty"`
	HTML           string            `json:"html,omitempty"`
	Markdown       string            `json:"markdown,omitempty"`
	SVG            string            `json:"svg,omitempty"`
	PNG            string            `json:"png,omitempty"`
	JPEG           string            `json:"jpeg,omitempty"`
	PDF            string            `json:"pdf,omitempty"`
	Latex          string            `json:"latex,omitempty"`
	JSON           string            `json:"json,omitempty"`
	JavaScript     string            `json:"javascript,omitempty"`
	Data           string            `json:"data,omitempty"`
	Chart          Chart             `json:"chart,omitempty"`
	ExecutionCount int               `json:"executionCount,omitempty"`
	IsMainResult   bool              `json:"isMainResult,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

const (
	frameKindStdout = "stdout"
	frameKindStderr = "stderr"
	frameKindResult = "result"
	frameKindError  = "error"
)
