package sbxrpc

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// loggingRoundTripper wraps a base http.RoundTripper and emits one zerolog
// debug line per outbound request/response pair (method, URL, status,
// latency). It only ever logs: it never mutates the request or response,
// so wrapping it around any transport (plain, http2, retrying) is safe.
// This gives a host application visibility into envd/management traffic
// without the SDK owning a process-wide logger.
type loggingRoundTripper struct {
	next http.RoundTripper
	log  zerolog.Logger
}

func newLoggingRoundTripper(next http.RoundTripper, log zerolog.Logger) http.RoundTripper {
	if log.GetLevel() > zerolog.DebugLevel {
		return next
	}
	return &loggingRoundTripper{next: next, log: log}
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	ev := t.log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Dur("elapsed", time.Since(start))
	if err != nil {
		ev.Err(err).Msg("envd request failed")
		return resp, err
	}
	ev.Int("status", resp.StatusCode).Msg("envd request")
	return resp, nil
}
