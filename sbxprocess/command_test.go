package sbxprocess

import (
	"context"
	"errors"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalebox/sbx-go/sbxconfig"
	"github.com/scalebox/sbx-go/sbxerr"
	"github.com/scalebox/sbx-go/sbxrpc"
	"github.com/scalebox/sbx-go/sbxtest"
)

func newTestCommands(t *testing.T, envdVersion string, routes ...sbxtest.Route) (*Commands, func()) {
	t.Helper()
	fake := sbxtest.NewEnvd(routes...)
	cfg, err := sbxconfig.New(sbxconfig.WithDebug(true))
	require.NoError(t, err)
	transport := sbxrpc.New(sbxrpc.Options{BaseURL: fake.URL(), Config: cfg, Encoding: sbxrpc.EncodingJSON})
	return New(transport, envdVersion), fake.Close
}

func TestRunReturnsAccumulatedOutput(t *testing.T) {
	startRoute := sbxtest.ServerStream(procStart, func(ctx context.Context, req *startRequest, send func(*processFrame) error) error {
		if err := send(&processFrame{Kind: frameKindStart, Pid: 42}); err != nil {
			return err
		}
		if err := send(&processFrame{Kind: frameKindStdout, Chunk: []byte("hi\n")}); err != nil {
			return err
		}
		return send(&processFrame{Kind: frameKindEnd, ExitCode: 0})
	})
	c, closeFn := newTestCommands(t, "v0.5.0", startRoute)
	defer closeFn()

	result, err := c.Run(context.Background(), "echo hi", StartOptions{}, false)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", result.Stdout)
	assert.EqualValues(t, 0, result.ExitCode)
}

func TestRunNonZeroExitIsCommandExitUnlessTolerant(t *testing.T) {
	startRoute := sbxtest.ServerStream(procStart, func(ctx context.Context, req *startRequest, send func(*processFrame) error) error {
		if err := send(&processFrame{Kind: frameKindStart, Pid: 7}); err != nil {
			return err
		}
		return send(&processFrame{Kind: frameKindEnd, ExitCode: 1, Error: "not found"})
	})
	c, closeFn := newTestCommands(t, "v0.5.0", startRoute)
	defer closeFn()

	_, err := c.Run(context.Background(), "false", StartOptions{}, false)
	var exitErr *sbxerr.CommandExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode)

	result, err := c.Run(context.Background(), "false", StartOptions{}, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.ExitCode)
}

func TestKillTreatsNotFoundAsIdempotentSuccess(t *testing.T) {
	route := sbxtest.Unary(procSendSignal, func(ctx context.Context, req *sendSignalRequest) (*sendSignalResponse, error) {
		return nil, connect.NewError(connect.CodeNotFound, errors.New("no such process"))
	})
	c, closeFn := newTestCommands(t, "v0.5.0", route)
	defer closeFn()

	found, err := c.Kill(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBackgroundKillThenWaitReturnsNonZeroExit(t *testing.T) {
	killed := make(chan struct{})
	startRoute := sbxtest.ServerStream(procStart, func(ctx context.Context, req *startRequest, send func(*processFrame) error) error {
		if err := send(&processFrame{Kind: frameKindStart, Pid: 5}); err != nil {
			return err
		}
		select {
		case <-killed:
		case <-ctx.Done():
			return ctx.Err()
		}
		return send(&processFrame{Kind: frameKindEnd, ExitCode: 137, Status: "killed"})
	})
	signalRoute := sbxtest.Unary(procSendSignal, func(ctx context.Context, req *sendSignalRequest) (*sendSignalResponse, error) {
		assert.Equal(t, signalKill, req.Signal)
		close(killed)
		return &sendSignalResponse{Found: true}, nil
	})
	c, closeFn := newTestCommands(t, "v0.5.0", startRoute, signalRoute)
	defer closeFn()

	h, err := c.Start(context.Background(), "sleep 30", StartOptions{})
	require.NoError(t, err)

	ok, err := h.Kill(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	result, err := h.Wait(context.Background(), nil, nil, nil, true)
	require.NoError(t, err)
	assert.EqualValues(t, 137, result.ExitCode)

	// The handle is consumed: a second Wait returns the stored result.
	again, err := h.Wait(context.Background(), nil, nil, nil, true)
	require.NoError(t, err)
	assert.Equal(t, result, again)
}

func TestDisconnectThenWaitReturnsCancelled(t *testing.T) {
	startRoute := sbxtest.ServerStream(procStart, func(ctx context.Context, req *startRequest, send func(*processFrame) error) error {
		if err := send(&processFrame{Kind: frameKindStart, Pid: 3}); err != nil {
			return err
		}
		// The process keeps running; only the client goes away.
		<-ctx.Done()
		return ctx.Err()
	})
	c, closeFn := newTestCommands(t, "v0.5.0", startRoute)
	defer closeFn()

	h, err := c.Start(context.Background(), "sleep 30", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, h.Disconnect())

	// A disconnected handle must not report a clean zero exit: the
	// process never finished, the stream was cancelled.
	_, err = h.Wait(context.Background(), nil, nil, nil, true)
	require.Error(t, err)
	assert.True(t, sbxerr.Is(err, sbxerr.KindTimeout))

	// The handle is consumed; a second Wait replays the same outcome.
	_, err = h.Wait(context.Background(), nil, nil, nil, true)
	require.Error(t, err)
}

func TestWithDefaultUserScopesStart(t *testing.T) {
	startRoute := sbxtest.ServerStream(procStart, func(ctx context.Context, req *startRequest, send func(*processFrame) error) error {
		return send(&processFrame{Kind: frameKindStart, Pid: 1})
	})
	c, closeFn := newTestCommands(t, "v0.3.0", startRoute)
	defer closeFn()
	c = c.WithDefaultUser("alice")

	assert.Equal(t, "alice", c.resolveUser(""))
	assert.Equal(t, "bob", c.resolveUser("bob"))

	h, err := c.Start(context.Background(), "true", StartOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.Pid())
}
