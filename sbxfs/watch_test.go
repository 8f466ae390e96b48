package sbxfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalebox/sbx-go/sbxerr"
	"github.com/scalebox/sbx-go/sbxtest"
)

func TestCreateWatcherPollAndStop(t *testing.T) {
	create := sbxtest.Unary(procCreateWatcher, func(ctx context.Context, req *createWatcherRequest) (*createWatcherResponse, error) {
		assert.Equal(t, "/tmp/watched", req.Path)
		return &createWatcherResponse{WatcherID: "w-1"}, nil
	})
	events := sbxtest.Unary(procWatcherEvents, func(ctx context.Context, req *getWatcherEventsRequest) (*getWatcherEventsResponse, error) {
		assert.Equal(t, "w-1", req.WatcherID)
		return &getWatcherEventsResponse{Events: []wireEvent{
			{Name: "f", Type: "CREATE"},
			{Name: "f", Type: "WRITE"},
			{Name: "g", Type: "FUTURE_EVENT_KIND"},
		}}, nil
	})
	remove := sbxtest.Unary(procRemoveWatcher, func(ctx context.Context, req *removeWatcherRequest) (*removeWatcherResponse, error) {
		return &removeWatcherResponse{}, nil
	})
	fs, fake := newTestFilesystem(t, nil, create, events, remove)
	defer fake.Close()

	w, err := fs.CreateWatcher(context.Background(), "/tmp/watched", false, "")
	require.NoError(t, err)

	got, err := w.GetNewEvents(context.Background())
	require.NoError(t, err)
	// The unrecognized event kind is dropped, not surfaced.
	require.Len(t, got, 2)
	assert.Equal(t, FilesystemEvent{Name: "f", Type: EventCreate}, got[0])
	assert.Equal(t, FilesystemEvent{Name: "f", Type: EventWrite}, got[1])

	require.NoError(t, w.Stop(context.Background()))
}

func TestGetNewEventsFailsAfterStop(t *testing.T) {
	create := sbxtest.Unary(procCreateWatcher, func(ctx context.Context, req *createWatcherRequest) (*createWatcherResponse, error) {
		return &createWatcherResponse{WatcherID: "w-2"}, nil
	})
	remove := sbxtest.Unary(procRemoveWatcher, func(ctx context.Context, req *removeWatcherRequest) (*removeWatcherResponse, error) {
		return &removeWatcherResponse{}, nil
	})
	fs, fake := newTestFilesystem(t, nil, create, remove)
	defer fake.Close()

	w, err := fs.CreateWatcher(context.Background(), "/tmp", false, "")
	require.NoError(t, err)
	require.NoError(t, w.Stop(context.Background()))

	_, err = w.GetNewEvents(context.Background())
	require.Error(t, err)
	assert.True(t, sbxerr.Is(err, sbxerr.KindInvalidArgument))

	// Stop twice is fine.
	require.NoError(t, w.Stop(context.Background()))
}

func TestWatchDirStreamsRecognizedEvents(t *testing.T) {
	route := sbxtest.ServerStream(procWatchDir, func(ctx context.Context, req *watchDirRequest, send func(*wireEvent) error) error {
		assert.Equal(t, "/tmp/watched", req.Path)
		if err := send(&wireEvent{Name: "a", Type: "CREATE"}); err != nil {
			return err
		}
		if err := send(&wireEvent{Name: "b", Type: "NOT_A_KIND"}); err != nil {
			return err
		}
		return send(&wireEvent{Name: "c", Type: "REMOVE"})
	})
	fs, fake := newTestFilesystem(t, nil, route)
	defer fake.Close()

	stream, err := fs.WatchDir(context.Background(), "/tmp/watched", false, "")
	require.NoError(t, err)
	defer stream.Close()

	var got []FilesystemEvent
	for stream.Receive() {
		got = append(got, stream.Msg())
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []FilesystemEvent{
		{Name: "a", Type: EventCreate},
		{Name: "c", Type: EventRemove},
	}, got)
}

func TestWatchDirCloseMidStreamReportsCancellation(t *testing.T) {
	route := sbxtest.ServerStream(procWatchDir, func(ctx context.Context, req *watchDirRequest, send func(*wireEvent) error) error {
		if err := send(&wireEvent{Name: "a", Type: "CREATE"}); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	fs, fake := newTestFilesystem(t, nil, route)
	defer fake.Close()

	stream, err := fs.WatchDir(context.Background(), "/tmp/watched", false, "")
	require.NoError(t, err)

	require.True(t, stream.Receive())
	assert.Equal(t, FilesystemEvent{Name: "a", Type: EventCreate}, stream.Msg())

	require.NoError(t, stream.Close())
	assert.False(t, stream.Receive())
	require.Error(t, stream.Err())
	assert.True(t, sbxerr.Is(stream.Err(), sbxerr.KindTimeout))
}

func TestRecursiveWatchRequiresNewEnoughEnvd(t *testing.T) {
	fs, fake := newTestFilesystem(t, nil)
	defer fake.Close()

	_, err := fs.CreateWatcher(context.Background(), "/tmp", true, "v0.0.9")
	require.Error(t, err)
	assert.True(t, sbxerr.Is(err, sbxerr.KindTemplate))

	_, err = fs.WatchDir(context.Background(), "/tmp", true, "0.0.1")
	require.Error(t, err)
	assert.True(t, sbxerr.Is(err, sbxerr.KindTemplate))
}
