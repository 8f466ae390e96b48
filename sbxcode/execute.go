package sbxcode

import (
	"context"
	"strings"
	"time"

	"github.com/scalebox/sbx-go/sbxerr"
	"github.com/scalebox/sbx-go/sbxrpc"
	"github.com/scalebox/sbx-go/sbxtask"
)

// RunTarget selects how RunCode resolves a language runtime: pinned to an
// explicit language, bound to an existing Context, or left to the server's
// default. This replaces the source's dynamic (language | context)
// keyword-argument overload with one tagged value.
type RunTarget struct {
	kind      targetKind
	language  string
	contextID string
}

type targetKind int

const (
	targetDefault targetKind = iota
	targetLanguage
	targetContext
)

// ForLanguage pins the run to an explicit language, ignoring any context.
func ForLanguage(language string) RunTarget {
	return RunTarget{kind: targetLanguage, language: language}
}

// ForContext runs code against an existing persistent context.
func ForContext(c *Context) RunTarget {
	return RunTarget{kind: targetContext, contextID: c.ID}
}

// DefaultTarget leaves language resolution to the server's default.
func DefaultTarget() RunTarget {
	return RunTarget{kind: targetDefault}
}

// Handlers are the optional per-frame callbacks for RunCode. Any may be
// nil. They are invoked through the supplied sbxtask.Scheduler, so the
// cooperative façade can hand slow handlers off without blocking the
// demultiplexer, while the blocking façade runs them inline.
type Handlers struct {
	OnStdout func(OutputMessage)
	OnStderr func(OutputMessage)
	OnResult func(Result)
	OnError  func(*ExecutionError)
}

// RunOptions configures timeouts for a single RunCode call.
type RunOptions struct {
	EnvVars map[string]string
	// RequestTimeout bounds each individual frame read.
	RequestTimeout time.Duration
	// Timeout bounds the whole execution. Zero disables the execution cap
	// entirely; the call is then bounded only by RequestTimeout per frame.
	Timeout time.Duration
}

// RunCode opens the streaming Execute RPC and demultiplexes its frames
// into the returned Execution, invoking the supplied Handlers as frames
// arrive. language and context are mutually exclusive by construction of
// RunTarget, so no runtime check is needed here beyond target.kind.
func (ci *CodeInterpreter) RunCode(ctx context.Context, code string, target RunTarget, h Handlers, opts RunOptions, sched sbxtask.Scheduler) (*Execution, error) {
	if sched == nil {
		sched = &sbxtask.Inline{}
	}

	req := &executeRequest{Code: code, EnvVars: opts.EnvVars}
	switch target.kind {
	case targetLanguage:
		req.Language = target.language
	case targetContext:
		req.ContextID = target.contextID
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		// The whole call is bounded by one combined deadline; Timeout == 0
		// disables the execution cap and leaves only the per-frame watchdog.
		runCtx, cancel = context.WithTimeout(ctx, opts.RequestTimeout+opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	stream, err := sbxrpc.ServerStream[executeRequest, executeFrame](runCtx, ci.transport, procExecute, req)
	if err != nil {
		return nil, classifyTimeout(err)
	}
	defer stream.Close()

	// RequestTimeout is the per-frame read deadline: the watchdog cancels
	// the stream whenever no frame has arrived within it, and every frame
	// rearms it.
	var watchdog *time.Timer
	if opts.RequestTimeout > 0 {
		watchdog = time.AfterFunc(opts.RequestTimeout, cancel)
		defer watchdog.Stop()
	}

	exec := &Execution{}

	for stream.Receive() {
		if watchdog != nil {
			watchdog.Reset(opts.RequestTimeout)
		}
		f := stream.Msg()
		switch f.Kind {
		case frameKindStdout:
			exec.Logs.Stdout = append(exec.Logs.Stdout, f.Text)
			if h.OnStdout != nil {
				msg := OutputMessage{Content: f.Text, Ts: f.TsNs, Error: false}
				sched.Go(func() error { h.OnStdout(msg); return nil })
			}
		case frameKindStderr:
			exec.Logs.Stderr = append(exec.Logs.Stderr, f.Text)
			if h.OnStderr != nil {
				msg := OutputMessage{Content: f.Text, Ts: f.TsNs, Error: true}
				sched.Go(func() error { h.OnStderr(msg); return nil })
			}
		case frameKindResult:
			r := resultFromWire(f.Result)
			exec.Results = append(exec.Results, r)
			if r.IsMainResult && r.ExecutionCount != 0 {
				exec.ExecutionCount = r.ExecutionCount
			}
			if h.OnResult != nil {
				sched.Go(func() error { h.OnResult(r); return nil })
			}
		case frameKindError:
			execErr := &ExecutionError{Name: f.ErrorName, Value: f.ErrorValue, Traceback: f.ErrorTraceback}
			exec.Error = execErr
			if h.OnError != nil {
				sched.Go(func() error { h.OnError(execErr); return nil })
			}
		}
	}

	if err := sched.Wait(); err != nil {
		return exec, err
	}

	if err := stream.Err(); err != nil {
		return exec, classifyTimeout(err)
	}
	return exec, nil
}

func resultFromWire(w *wireResult) Result {
	if w == nil {
		return Result{}
	}
	return Result{
		Text: w.Text, HTML: w.HTML, Markdown: w.Markdown, SVG: w.SVG,
		PNG: w.PNG, JPEG: w.JPEG, PDF: w.PDF, Latex: w.Latex,
		JSON: w.JSON, JavaScript: w.JavaScript, Data: w.Data, Chart: w.Chart,
		ExecutionCount: w.ExecutionCount, IsMainResult: w.IsMainResult, Extra: w.Extra,
	}
}

// classifyTimeout distinguishes an execution-side timeout (the server
// indicated the run itself took too long) from a pure transport timeout,
// matching the textual trigger the agent reports.
func classifyTimeout(err error) error {
	if err == nil {
		return nil
	}
	if !sbxerr.Is(err, sbxerr.KindTimeout) {
		return err
	}
	if strings.Contains(strings.ToLower(err.Error()), "execution") {
		return sbxerr.Wrap(sbxerr.KindTimeout, err, "execution exceeded its timeout")
	}
	return sbxerr.Wrap(sbxerr.KindTimeout, err, "request exceeded its timeout")
}
