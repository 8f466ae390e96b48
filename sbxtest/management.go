// Package sbxtest provides httptest-backed fakes for the two server
// surfaces every package in this module talks to: the Management API
// (plain REST/JSON) and the envd agent (Connect-RPC). Every package's unit
// tests build one of these instead of reaching the network, so `go test`
// never depends on a live sandbox.
package sbxtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Management is a fake Management API: callers register one handler per
// "METHOD path" route, the same shape the real API exposes (see
// sbxmanagement.Client).
type Management struct {
	mux    *http.ServeMux
	server *httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
}

// RecordedRequest captures one inbound request for assertions.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
}

// NewManagement starts a fake Management API with no routes registered;
// call Handle to add them before use.
func NewManagement() *Management {
	m := &Management{mux: http.NewServeMux()}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

func (m *Management) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone()})
	m.mu.Unlock()
	m.mux.ServeHTTP(w, r)
}

// Handle registers fn for method+path, matching net/http.ServeMux's exact
// path matching (no wildcards — callers register one route per sandbox id
// they intend to exercise).
func (m *Management) Handle(method, path string, fn func(w http.ResponseWriter, r *http.Request)) {
	m.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.NotFound(w, r)
			return
		}
		fn(w, r)
	})
}

// HandleJSON is Handle for the common case: decode nothing, encode body as
// the JSON response with status 200.
func (m *Management) HandleJSON(method, path string, body any) {
	m.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})
}

// HandleError registers a route that always fails with the given HTTP
// status and message, shaped like the real API's {"message": ...} error
// envelope.
func (m *Management) HandleError(method, path string, status int, message string) {
	m.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"message": message})
	})
}

// Requests returns every request observed so far, in arrival order.
func (m *Management) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// URL is the base URL to pass as sbxconfig.WithDomain (stripped of its
// scheme) or used directly as an override.
func (m *Management) URL() string { return m.server.URL }

// Close shuts down the underlying httptest.Server.
func (m *Management) Close() { m.server.Close() }
