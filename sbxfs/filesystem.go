package sbxfs

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/scalebox/sbx-go/sbxerr"
	"github.com/scalebox/sbx-go/sbxrpc"
)

const (
	procStat          = "/sandboxagent.Filesystem/Stat"
	procListDir       = "/sandboxagent.Filesystem/ListDir"
	procMakeDir       = "/sandboxagent.Filesystem/MakeDir"
	procMove          = "/sandboxagent.Filesystem/Move"
	procRemove        = "/sandboxagent.Filesystem/Remove"
	procCreateWatcher = "/sandboxagent.Filesystem/CreateWatcher"
	procWatcherEvents = "/sandboxagent.Filesystem/GetWatcherEvents"
	procRemoveWatcher = "/sandboxagent.Filesystem/RemoveWatcher"
	procWatchDir      = "/sandboxagent.Filesystem/WatchDir"
)

// Filesystem is the L3 filesystem driver, one per SandboxHandle.
type Filesystem struct {
	transport *sbxrpc.Transport
	signer    URLSigner
}

// URLSigner produces the query parameters appended to download/upload URLs
// when the sandbox carries an envd access token. SandboxHandle supplies the
// concrete implementation backed by sbxsign.
type URLSigner interface {
	SignDownload(path string) url.Values
	SignUpload(path string) url.Values
}

// New builds a Filesystem driver over an already-configured Transport.
// signer may be nil when the sandbox has no envd access token.
func New(transport *sbxrpc.Transport, signer URLSigner) *Filesystem {
	return &Filesystem{transport: transport, signer: signer}
}

// ReadMode selects the shape of Read's result.
type ReadMode int

const (
	ReadText ReadMode = iota
	ReadBytes
	ReadStream
)

// ReadResult carries exactly one populated field depending on the
// requested ReadMode.
type ReadResult struct {
	Text   string
	Bytes  []byte
	Stream io.ReadCloser
}

// Read downloads path via the agent's zero-copy download endpoint.
// ReadStream returns the live response body; callers must Close it. The
// other two modes drain and close the body themselves.
func (f *Filesystem) Read(ctx context.Context, path string, mode ReadMode) (ReadResult, error) {
	u := f.downloadURL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ReadResult{}, err
	}

	resp, err := f.transport.HTTPClient().Do(req)
	if err != nil {
		return ReadResult{}, err
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return ReadResult{}, sbxrpc.FromHTTPResponse(resp.StatusCode, string(body))
	}

	if mode == ReadStream {
		return ReadResult{Stream: resp.Body}, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ReadResult{}, err
	}
	if mode == ReadText {
		return ReadResult{Text: string(data)}, nil
	}
	return ReadResult{Bytes: data}, nil
}

func (f *Filesystem) downloadURL(path string) string {
	u := f.transport.BaseURL() + "/download/" + strings.TrimPrefix(path, "/")
	if f.signer != nil {
		if q := f.signer.SignDownload(path); len(q) > 0 {
			u += "?" + q.Encode()
		}
	}
	return u
}

// WriteEntry is one file to write in a batch.
type WriteEntry struct {
	Path string
	Data []byte
}

// Write uploads a single file and returns its WriteInfo.
func (f *Filesystem) Write(ctx context.Context, path string, data []byte) (WriteInfo, error) {
	infos, err := f.WriteBatch(ctx, []WriteEntry{{Path: path, Data: data}})
	if err != nil {
		return WriteInfo{}, err
	}
	return infos[0], nil
}

// WriteBatch uploads zero or more files in a single multipart POST. An
// empty batch returns an empty slice without making a request.
func (f *Filesystem) WriteBatch(ctx context.Context, entries []WriteEntry) ([]WriteInfo, error) {
	if len(entries) == 0 {
		return []WriteInfo{}, nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, e := range entries {
		if err := mw.WriteField("path", e.Path); err != nil {
			return nil, err
		}
		part, err := mw.CreateFormFile("file", pathBase(e.Path))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(e.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	u := f.transport.BaseURL() + "/upload"
	if f.signer != nil {
		if q := f.signer.SignUpload(""); len(q) > 0 {
			u += "?" + q.Encode()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := f.transport.HTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, sbxrpc.FromHTTPResponse(resp.StatusCode, string(body))
	}

	infos := make([]WriteInfo, len(entries))
	for i, e := range entries {
		infos[i] = WriteInfo{Path: e.Path, Name: pathBase(e.Path), Type: EntryFile}
	}
	return infos, nil
}

func pathBase(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Stat returns metadata for a single entry.
func (f *Filesystem) Stat(ctx context.Context, path string) (EntryInfo, error) {
	resp, err := sbxrpc.Unary[statRequest, statResponse](ctx, f.transport, procStat, &statRequest{Path: path}, nil)
	if err != nil {
		return EntryInfo{}, err
	}
	return resp.Entry, nil
}

// Exists reports whether path exists, treating a "no such file" response
// from Stat as false rather than an error.
func (f *Filesystem) Exists(ctx context.Context, path string) (bool, error) {
	_, err := f.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if sbxerr.IsNotFound(err) || isNoSuchFile(err) {
		return false, nil
	}
	return false, err
}

func isNoSuchFile(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no such file or directory")
}

// ListDir lists the contents of path up to depth levels. depth < 1 is
// rejected locally without contacting the server.
func (f *Filesystem) ListDir(ctx context.Context, path string, depth int) ([]EntryInfo, error) {
	if depth < 1 {
		return nil, sbxerr.New(sbxerr.KindInvalidArgument, "listDir depth must be >= 1")
	}
	resp, err := sbxrpc.Unary[listDirRequest, listDirResponse](ctx, f.transport, procListDir, &listDirRequest{Path: path, Depth: depth}, nil)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// MakeDir creates a directory. It returns false (not an error) when the
// server reports the directory already exists.
func (f *Filesystem) MakeDir(ctx context.Context, path string) (bool, error) {
	resp, err := sbxrpc.Unary[makeDirRequest, makeDirResponse](ctx, f.transport, procMakeDir, &makeDirRequest{Path: path}, nil)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "directory already exists") {
			return false, nil
		}
		return false, err
	}
	return resp.Created, nil
}

// Move renames/moves source to destination.
func (f *Filesystem) Move(ctx context.Context, source, destination string) (EntryInfo, error) {
	resp, err := sbxrpc.Unary[moveRequest, moveResponse](ctx, f.transport, procMove, &moveRequest{Source: source, Destination: destination}, nil)
	if err != nil {
		return EntryInfo{}, err
	}
	return resp.Entry, nil
}

// Remove deletes path.
func (f *Filesystem) Remove(ctx context.Context, path string) error {
	_, err := sbxrpc.Unary[removeRequest, removeResponse](ctx, f.transport, procRemove, &removeRequest{Path: path}, nil)
	return err
}
