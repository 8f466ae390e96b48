// Package sbxfs implements the filesystem driver: typed stat/list/mkdir/
// move/remove RPCs over Connect-RPC, raw read/write over the agent's
// download/upload HTTP surface, and the two directory-watch protocols
// (legacy polling and streaming).
package sbxfs

import "time"

// EntryType distinguishes a filesystem entry kind.
type EntryType string

const (
	EntryFile EntryType = "FILE"
	EntryDir  EntryType = "DIR"
)

// EntryInfo describes one filesystem entry.
type EntryInfo struct {
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	Type          EntryType `json:"type"`
	Size          int64     `json:"size"`
	Mode          uint32    `json:"mode"`
	Permissions   string    `json:"permissions"`
	Owner         string    `json:"owner"`
	Group         string    `json:"group"`
	ModifiedTime  time.Time `json:"modifiedTime"`
	SymlinkTarget string    `json:"symlinkTarget,omitempty"`
}

// WriteInfo is the result of a single write.
type WriteInfo struct {
	Path string    `json:"path"`
	Name string    `json:"name"`
	Type EntryType `json:"type"`
}

// EventType is the kind of change a watcher reports.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventWrite  EventType = "WRITE"
	EventRemove EventType = "REMOVE"
	EventRename EventType = "RENAME"
	EventChmod  EventType = "CHMOD"
)

// FilesystemEvent is one change reported by a watcher.
type FilesystemEvent struct {
	Name string    `json:"name"`
	Type EventType `json:"type"`
}

// parseEventType maps the server's wire string to EventType. Unrecognized
// values return ("", false) so callers can drop them, keeping the client
// forward-compatible with new server event kinds.
func parseEventType(s string) (EventType, bool) {
	switch EventType(s) {
	case EventCreate, EventWrite, EventRemove, EventRename, EventChmod:
		return EventType(s), true
	default:
		return "", false
	}
}

// --- wire request/response shapes for the Filesystem RPC service ---

type statRequest struct {
	Path string `json:"path"`
}

type statResponse struct {
	Entry EntryInfo `json:"entry"`
}

type listDirRequest struct {
	Path  string `json:"path"`
	Depth int    `json:"depth"`
}

type listDirResponse struct {
	Entries []EntryInfo `json:"entries"`
}

type makeDirRequest struct {
	Path string `json:"path"`
}

type makeDirResponse struct {
	Created bool `json:"created"`
}

type moveRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

type moveResponse struct {
	Entry EntryInfo `json:"entry"`
}

type removeRequest struct {
	Path string `json:"path"`
}

type removeResponse struct{}

type createWatcherRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type createWatcherResponse struct {
	WatcherID string `json:"watcherId"`
}

type getWatcherEventsRequest struct {
	WatcherID string `json:"watcherId"`
}

type getWatcherEventsResponse struct {
	Events []wireEvent `json:"events"`
}

type removeWatcherRequest struct {
	WatcherID string `json:"watcherId"`
}

type removeWatcherResponse struct{}

type watchDirRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type wireEvent struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
