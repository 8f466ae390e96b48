package sbxprocess

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalebox/sbx-go/sbxconfig"
	"github.com/scalebox/sbx-go/sbxerr"
	"github.com/scalebox/sbx-go/sbxrpc"
	"github.com/scalebox/sbx-go/sbxtest"
)

func newTestPty(t *testing.T, routes ...sbxtest.Route) (*Pty, func()) {
	t.Helper()
	fake := sbxtest.NewEnvd(routes...)
	cfg, err := sbxconfig.New(sbxconfig.WithDebug(true))
	require.NoError(t, err)
	transport := sbxrpc.New(sbxrpc.Options{BaseURL: fake.URL(), Config: cfg, Encoding: sbxrpc.EncodingJSON})
	return NewPty(transport, "v0.5.0"), fake.Close
}

func TestPtyStartSendsSizeAndInteractiveShell(t *testing.T) {
	startRoute := sbxtest.ServerStream(procStart, func(ctx context.Context, req *startRequest, send func(*processFrame) error) error {
		assert.Equal(t, "/bin/bash", req.Cmd)
		assert.Equal(t, []string{"-i", "-l"}, req.Args)
		require.NotNil(t, req.Pty)
		assert.EqualValues(t, 80, req.Pty.Cols)
		assert.EqualValues(t, 24, req.Pty.Rows)
		if err := send(&processFrame{Kind: frameKindStart, Pid: 11}); err != nil {
			return err
		}
		if err := send(&processFrame{Kind: frameKindPty, Chunk: []byte("$ ")}); err != nil {
			return err
		}
		return send(&processFrame{Kind: frameKindEnd, ExitCode: 0})
	})
	p, closeFn := newTestPty(t, startRoute)
	defer closeFn()

	h, err := p.Start(context.Background(), PtySize{Cols: 80, Rows: 24}, StartOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 11, h.Pid())

	var data []byte
	result, err := h.WaitPty(context.Background(), func(chunk []byte) { data = append(data, chunk...) })
	require.NoError(t, err)
	assert.EqualValues(t, 0, result.ExitCode)
	assert.Equal(t, []byte("$ "), data)
}

func TestPtyResizeRoutesThroughUpdate(t *testing.T) {
	var gotPid int32
	var gotSize *PtySize
	update := sbxtest.Unary(procUpdate, func(ctx context.Context, req *updateRequest) (*updateResponse, error) {
		gotPid = req.Pid
		gotSize = req.Pty
		return &updateResponse{}, nil
	})
	p, closeFn := newTestPty(t, update)
	defer closeFn()

	require.NoError(t, p.Resize(context.Background(), 11, PtySize{Cols: 120, Rows: 40}))
	assert.EqualValues(t, 11, gotPid)
	require.NotNil(t, gotSize)
	assert.EqualValues(t, 120, gotSize.Cols)
}

func TestPtyDisconnectThenWaitReturnsCancelled(t *testing.T) {
	startRoute := sbxtest.ServerStream(procStart, func(ctx context.Context, req *startRequest, send func(*processFrame) error) error {
		if err := send(&processFrame{Kind: frameKindStart, Pid: 9}); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	p, closeFn := newTestPty(t, startRoute)
	defer closeFn()

	h, err := p.Start(context.Background(), PtySize{Cols: 80, Rows: 24}, StartOptions{})
	require.NoError(t, err)
	require.NoError(t, h.Disconnect())

	_, err = h.WaitPty(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, sbxerr.Is(err, sbxerr.KindTimeout))
}

func TestStreamInputSendsPidThenChunks(t *testing.T) {
	var frames []sendInputRequest
	route := sbxtest.ClientStream(procStreamInput, func(ctx context.Context, receive func() (*sendInputRequest, bool), errFn func() error) (*sendInputResponse, error) {
		for {
			msg, ok := receive()
			if !ok {
				break
			}
			frames = append(frames, *msg)
		}
		return &sendInputResponse{}, errFn()
	})
	fake := sbxtest.NewEnvd(route)
	defer fake.Close()
	cfg, err := sbxconfig.New(sbxconfig.WithDebug(true))
	require.NoError(t, err)
	transport := sbxrpc.New(sbxrpc.Options{BaseURL: fake.URL(), Config: cfg, Encoding: sbxrpc.EncodingJSON})
	c := New(transport, "v0.5.0")

	stdin, err := c.StreamInput(context.Background(), 11)
	require.NoError(t, err)
	require.NoError(t, stdin.Send([]byte("line one\n")))
	require.NoError(t, stdin.Send([]byte("line two\n")))
	require.NoError(t, stdin.Close())

	require.Len(t, frames, 3)
	assert.EqualValues(t, 11, frames[0].Pid)
	assert.Empty(t, frames[0].Data)
	assert.Equal(t, []byte("line one\n"), frames[1].Data)
	assert.Equal(t, []byte("line two\n"), frames[2].Data)
}
