package sbxcode

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalebox/sbx-go/sbxconfig"
	"github.com/scalebox/sbx-go/sbxerr"
	"github.com/scalebox/sbx-go/sbxrpc"
	"github.com/scalebox/sbx-go/sbxtask"
	"github.com/scalebox/sbx-go/sbxtest"
)

func newTestInterpreter(t *testing.T, routes ...sbxtest.Route) (*CodeInterpreter, func()) {
	t.Helper()
	fake := sbxtest.NewEnvd(routes...)
	cfg, err := sbxconfig.New(sbxconfig.WithDebug(true))
	require.NoError(t, err)
	transport := sbxrpc.New(sbxrpc.Options{BaseURL: fake.URL(), Config: cfg, Encoding: sbxrpc.EncodingJSON})
	return New(transport, zerolog.Nop()), fake.Close
}

func TestRunCodeDemultiplexesFramesInline(t *testing.T) {
	route := sbxtest.ServerStream(procExecute, func(ctx context.Context, req *executeRequest, send func(*executeFrame) error) error {
		assert.Equal(t, "print(1)", req.Code)
		if err := send(&executeFrame{Kind: frameKindStdout, Text: "1\n"}); err != nil {
			return err
		}
		return send(&executeFrame{Kind: frameKindResult, Result: &wireResult{Text: "1", IsMainResult: true, ExecutionCount: 1}})
	})
	ci, closeFn := newTestInterpreter(t, route)
	defer closeFn()

	var stdout []string
	var results []Result
	h := Handlers{
		OnStdout: func(m OutputMessage) { stdout = append(stdout, m.Content) },
		OnResult: func(r Result) { results = append(results, r) },
	}

	exec, err := ci.RunCode(context.Background(), "print(1)", DefaultTarget(), h, RunOptions{}, &sbxtask.Inline{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1\n"}, stdout)
	require.Len(t, results, 1)
	assert.Equal(t, 1, exec.ExecutionCount)
	assert.True(t, exec.Results[0].IsMainResult)
}

func TestRunCodeForLanguageSetsLanguageField(t *testing.T) {
	route := sbxtest.ServerStream(procExecute, func(ctx context.Context, req *executeRequest, send func(*executeFrame) error) error {
		assert.Equal(t, "python", req.Language)
		assert.Empty(t, req.ContextID)
		return send(&executeFrame{Kind: frameKindStdout, Text: "ok"})
	})
	ci, closeFn := newTestInterpreter(t, route)
	defer closeFn()

	_, err := ci.RunCode(context.Background(), "1+1", ForLanguage("python"), Handlers{}, RunOptions{}, nil)
	require.NoError(t, err)
}

func TestRunCodeForContextSetsContextID(t *testing.T) {
	route := sbxtest.ServerStream(procExecute, func(ctx context.Context, req *executeRequest, send func(*executeFrame) error) error {
		assert.Equal(t, "ctx-1", req.ContextID)
		assert.Empty(t, req.Language)
		return send(&executeFrame{Kind: frameKindStdout, Text: "ok"})
	})
	ci, closeFn := newTestInterpreter(t, route)
	defer closeFn()

	_, err := ci.RunCode(context.Background(), "1+1", ForContext(&Context{ID: "ctx-1"}), Handlers{}, RunOptions{}, nil)
	require.NoError(t, err)
}

func TestRunCodeCapturesExecutionError(t *testing.T) {
	route := sbxtest.ServerStream(procExecute, func(ctx context.Context, req *executeRequest, send func(*executeFrame) error) error {
		return send(&executeFrame{Kind: frameKindError, ErrorName: "ValueError", ErrorValue: "bad input"})
	})
	ci, closeFn := newTestInterpreter(t, route)
	defer closeFn()

	var gotErr *ExecutionError
	h := Handlers{OnError: func(e *ExecutionError) { gotErr = e }}

	exec, err := ci.RunCode(context.Background(), "raise", DefaultTarget(), h, RunOptions{}, &sbxtask.Inline{})
	require.NoError(t, err)
	require.NotNil(t, exec.Error)
	assert.Equal(t, "ValueError", exec.Error.Name)
	require.NotNil(t, gotErr)
	assert.Equal(t, "bad input", gotErr.Value)
}

// TestRunCodeConcurrentContextsPreserveOrderingPerStream runs several
// contexts' RunCode calls concurrently and checks that each stream's own
// stdout frames still land in the handler in the order the fake server
// emitted them, even though the Group scheduler may dispatch handlers
// from different streams interleaved with one another.
func TestRunCodeConcurrentContextsPreserveOrderingPerStream(t *testing.T) {
	const contexts = 8
	const framesPerContext = 20

	route := sbxtest.ServerStream(procExecute, func(ctx context.Context, req *executeRequest, send func(*executeFrame) error) error {
		for i := 0; i < framesPerContext; i++ {
			if err := send(&executeFrame{Kind: frameKindStdout, Text: fmt.Sprintf("%s:%d", req.ContextID, i)}); err != nil {
				return err
			}
		}
		return nil
	})
	ci, closeFn := newTestInterpreter(t, route)
	defer closeFn()

	var wg sync.WaitGroup
	for c := 0; c < contexts; c++ {
		wg.Add(1)
		go func(contextID string) {
			defer wg.Done()

			var mu sync.Mutex
			var seen []string
			h := Handlers{OnStdout: func(m OutputMessage) {
				mu.Lock()
				seen = append(seen, m.Content)
				mu.Unlock()
			}}

			_, err := ci.RunCode(context.Background(), "noop", ForContext(&Context{ID: contextID}), h, RunOptions{}, sbxtask.NewGroup())
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, seen, framesPerContext)
			for i, got := range seen {
				assert.Equal(t, fmt.Sprintf("%s:%d", contextID, i), got)
			}
		}(fmt.Sprintf("ctx-%d", c))
	}
	wg.Wait()
}

func TestRunCodeRequestTimeoutCancelsStalledStream(t *testing.T) {
	route := sbxtest.ServerStream(procExecute, func(ctx context.Context, req *executeRequest, send func(*executeFrame) error) error {
		if err := send(&executeFrame{Kind: frameKindStdout, Text: "started\n"}); err != nil {
			return err
		}
		// Stall well past the client's per-frame deadline.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
		return send(&executeFrame{Kind: frameKindStdout, Text: "too late\n"})
	})
	ci, closeFn := newTestInterpreter(t, route)
	defer closeFn()

	exec, err := ci.RunCode(context.Background(), "slow()", DefaultTarget(), Handlers{}, RunOptions{RequestTimeout: 200 * time.Millisecond}, nil)
	require.Error(t, err)
	assert.True(t, sbxerr.Is(err, sbxerr.KindTimeout))
	// Frames that arrived before the stall are still on the execution.
	assert.Equal(t, []string{"started\n"}, exec.Logs.Stdout)
}

func TestRunCodeCancelledMidStreamReportsTimeoutKind(t *testing.T) {
	route := sbxtest.ServerStream(procExecute, func(ctx context.Context, req *executeRequest, send func(*executeFrame) error) error {
		if err := send(&executeFrame{Kind: frameKindStdout, Text: "partial\n"}); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	ci, closeFn := newTestInterpreter(t, route)
	defer closeFn()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The inline scheduler runs handlers on the draining goroutine, so
	// cancelling from one cancels between frames.
	h := Handlers{OnStdout: func(OutputMessage) { cancel() }}

	exec, err := ci.RunCode(ctx, "loop_forever()", DefaultTarget(), h, RunOptions{}, &sbxtask.Inline{})
	require.Error(t, err)
	assert.True(t, sbxerr.Is(err, sbxerr.KindTimeout))
	assert.Equal(t, []string{"partial\n"}, exec.Logs.Stdout)
}

func TestCreateAndDestroyContext(t *testing.T) {
	created := sbxtest.Unary(procCreateContext, func(ctx context.Context, req *createContextRequest) (*createContextResponse, error) {
		return &createContextResponse{ID: "ctx-9", Language: req.Language, Cwd: req.Cwd}, nil
	})
	destroyed := sbxtest.Unary(procDestroyContext, func(ctx context.Context, req *destroyContextRequest) (*destroyContextResponse, error) {
		assert.Equal(t, "ctx-9", req.ID)
		return &destroyContextResponse{}, nil
	})
	ci, closeFn := newTestInterpreter(t, created, destroyed)
	defer closeFn()

	c, err := ci.CreateCodeContext(context.Background(), "python", "/home/user")
	require.NoError(t, err)
	assert.Equal(t, "ctx-9", c.ID)

	ci.DestroyContext(context.Background(), c)
}
