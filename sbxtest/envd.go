package sbxtest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"connectrpc.com/connect"
)

// jsonCodec mirrors sbxrpc's own JSON codec: every message this SDK
// defines is a plain Go struct with json tags, so both the client and
// this fake speak the same "json" Connect-RPC subprotocol during tests.
// Production traffic additionally supports a protobuf-wire encoding that
// this fake deliberately never implements — tests build their Transport
// with sbxrpc.EncodingJSON.
type jsonCodec struct{}

func (jsonCodec) Name() string                      { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Route pairs a Connect-RPC procedure path with its handler, ready to
// register on a mux.
type Route struct {
	Procedure string
	Handler   http.Handler
}

// Unary builds a Route for a unary RPC.
func Unary[Req, Resp any](procedure string, fn func(context.Context, *Req) (*Resp, error)) Route {
	h := connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Resp], error) {
			resp, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, err
			}
			return connect.NewResponse(resp), nil
		},
		connect.WithCodec(jsonCodec{}),
	)
	return Route{Procedure: procedure, Handler: h}
}

// ServerStream builds a Route for a server-streaming RPC. fn receives a
// send function it may call any number of times before returning; the
// stream ends cleanly when fn returns nil, or with the returned error
// otherwise.
func ServerStream[Req, Frame any](procedure string, fn func(ctx context.Context, req *Req, send func(*Frame) error) error) Route {
	h := connect.NewServerStreamHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req], stream *connect.ServerStream[Frame]) error {
			return fn(ctx, req.Msg, stream.Send)
		},
		connect.WithCodec(jsonCodec{}),
	)
	return Route{Procedure: procedure, Handler: h}
}

// ClientStream builds a Route for a client-streaming RPC (used by
// sbxprocess's StreamInput). fn drains the client's messages via receive
// and returns the single response.
func ClientStream[Req, Resp any](procedure string, fn func(ctx context.Context, receive func() (*Req, bool), err func() error) (*Resp, error)) Route {
	h := connect.NewClientStreamHandler(procedure,
		func(ctx context.Context, stream *connect.ClientStream[Req]) (*connect.Response[Resp], error) {
			receive := func() (*Req, bool) {
				if !stream.Receive() {
					return nil, false
				}
				return stream.Msg(), true
			}
			resp, err := fn(ctx, receive, stream.Err)
			if err != nil {
				return nil, err
			}
			return connect.NewResponse(resp), nil
		},
		connect.WithCodec(jsonCodec{}),
	)
	return Route{Procedure: procedure, Handler: h}
}

// Envd is a fake envd agent serving a fixed set of Connect-RPC routes plus
// a 200-OK /health endpoint, matching the real agent's health-gate
// surface that sandbox.healthGate polls.
type Envd struct {
	routeMux *http.ServeMux
	server   *httptest.Server
}

// NewEnvd starts a fake envd agent. Construct routes with Unary/
// ServerStream/ClientStream.
func NewEnvd(routes ...Route) *Envd {
	mux := http.NewServeMux()
	for _, r := range routes {
		mux.Handle(r.Procedure, r.Handler)
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &Envd{routeMux: mux, server: httptest.NewServer(mux)}
}

func (e *Envd) mux() *http.ServeMux { return e.routeMux }

// URL is the base URL to pass as sbxrpc.Options.BaseURL. Callers must
// also set sbxconfig.WithDebug(true) so the Transport skips its HTTP/2
// upgrade, since httptest.Server speaks plain HTTP/1.1.
func (e *Envd) URL() string { return e.server.URL }

func (e *Envd) Close() { e.server.Close() }

// HandleDownload registers a plain-HTTP GET responder under /download/,
// matching the raw byte-serving surface sbxfs.Filesystem.Read hits
// alongside its Connect-RPC calls.
func (e *Envd) HandleDownload(path string, body []byte) {
	e.mux().HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	})
}

// HandleUpload registers the multipart POST /upload surface. Each received
// part pair (path form field, file part) is recorded and handed to fn; fn
// may be nil when the test only cares that the upload landed.
func (e *Envd) HandleUpload(fn func(path string, data []byte)) {
	e.mux().HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var lastPath string
		for {
			part, err := reader.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "path":
				lastPath = string(data)
			case "file":
				if fn != nil {
					fn(lastPath, data)
				}
			}
			part.Close()
		}
		w.WriteHeader(http.StatusOK)
	})
}
