package sbxfs

import (
	"context"
	"sync"

	"golang.org/x/mod/semver"

	"github.com/scalebox/sbx-go/sbxerr"
	"github.com/scalebox/sbx-go/sbxrpc"
)

// minRecursiveWatchVersion is the lowest envd version that supports
// recursive directory watching. Requests for recursive watches against an
// older envd fail locally with a Template error asking for a rebuild.
const minRecursiveWatchVersion = "v0.1.0"

// WatchHandle is the legacy polling watcher: the server buffers events
// under a watcherId until the client drains them with GetNewEvents.
type WatchHandle struct {
	fs        *Filesystem
	watcherID string
	mu        sync.Mutex
	closed    bool
}

// CreateWatcher starts a legacy polling watcher on path. recursive requires
// envdVersion >= minRecursiveWatchVersion; pass "" to skip the check (e.g.
// when the caller doesn't know the agent's version).
func (f *Filesystem) CreateWatcher(ctx context.Context, path string, recursive bool, envdVersion string) (*WatchHandle, error) {
	if recursive {
		if err := checkRecursiveSupport(envdVersion); err != nil {
			return nil, err
		}
	}
	resp, err := sbxrpc.Unary[createWatcherRequest, createWatcherResponse](ctx, f.transport, procCreateWatcher, &createWatcherRequest{Path: path, Recursive: recursive}, nil)
	if err != nil {
		return nil, err
	}
	return &WatchHandle{fs: f, watcherID: resp.WatcherID}, nil
}

// GetNewEvents drains buffered events since the last call. It fails after
// Stop has been called.
func (w *WatchHandle) GetNewEvents(ctx context.Context) ([]FilesystemEvent, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return nil, sbxerr.New(sbxerr.KindInvalidArgument, "watcher already stopped")
	}

	resp, err := sbxrpc.Unary[getWatcherEventsRequest, getWatcherEventsResponse](ctx, w.fs.transport, procWatcherEvents, &getWatcherEventsRequest{WatcherID: w.watcherID}, nil)
	if err != nil {
		return nil, err
	}
	return decodeEvents(resp.Events), nil
}

// Stop finalizes the watcher server-side. Safe to call more than once.
func (w *WatchHandle) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	_, err := sbxrpc.Unary[removeWatcherRequest, removeWatcherResponse](ctx, w.fs.transport, procRemoveWatcher, &removeWatcherRequest{WatcherID: w.watcherID}, nil)
	return err
}

// WatchStream wraps the raw WatchDir stream, skipping frames whose event
// type the client doesn't recognize instead of surfacing them — the same
// forward-compatibility rule CreateWatcher/GetNewEvents applies via
// decodeEvents.
type WatchStream struct {
	raw *sbxrpc.Stream[wireEvent]
	cur FilesystemEvent
}

// Receive advances to the next recognized event, silently skipping any it
// doesn't understand. Returns false at end-of-stream or on error.
func (w *WatchStream) Receive() bool {
	for w.raw.Receive() {
		e := w.raw.Msg()
		typ, ok := parseEventType(e.Type)
		if !ok {
			continue
		}
		w.cur = FilesystemEvent{Name: e.Name, Type: typ}
		return true
	}
	return false
}

// Msg returns the most recently received event.
func (w *WatchStream) Msg() FilesystemEvent { return w.cur }

// Err returns the terminal stream error, if any.
func (w *WatchStream) Err() error { return w.raw.Err() }

// Close cancels the stream and releases its connection.
func (w *WatchStream) Close() error { return w.raw.Close() }

// WatchDir opens a streaming watcher that yields events until the
// returned stream is closed or the context is cancelled.
func (f *Filesystem) WatchDir(ctx context.Context, path string, recursive bool, envdVersion string) (*WatchStream, error) {
	if recursive {
		if err := checkRecursiveSupport(envdVersion); err != nil {
			return nil, err
		}
	}
	raw, err := sbxrpc.ServerStream[watchDirRequest, wireEvent](ctx, f.transport, procWatchDir, &watchDirRequest{Path: path, Recursive: recursive})
	if err != nil {
		return nil, err
	}
	return &WatchStream{raw: raw}, nil
}

func checkRecursiveSupport(envdVersion string) error {
	if envdVersion == "" {
		return nil
	}
	v := envdVersion
	if v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return nil
	}
	if semver.Compare(v, minRecursiveWatchVersion) < 0 {
		return sbxerr.Newf(sbxerr.KindTemplate, "recursive watch requires envd %s or newer, rebuild the template", minRecursiveWatchVersion)
	}
	return nil
}

func decodeEvents(wire []wireEvent) []FilesystemEvent {
	out := make([]FilesystemEvent, 0, len(wire))
	for _, e := range wire {
		typ, ok := parseEventType(e.Type)
		if !ok {
			continue
		}
		out = append(out, FilesystemEvent{Name: e.Name, Type: typ})
	}
	return out
}
