package sbxrpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/scalebox/sbx-go/sbxerr"
)

// WrapError maps a Connect-RPC error (or a context deadline) into this
// SDK's sbxerr.Error.
func WrapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return sbxerr.New(sbxerr.KindTimeout, "request timed out")
	}
	if ctx.Err() == context.Canceled || errors.Is(err, context.Canceled) {
		return sbxerr.New(sbxerr.KindTimeout, "request cancelled")
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		switch connectErr.Code() {
		case connect.CodeInvalidArgument:
			return sbxerr.Wrap(sbxerr.KindInvalidArgument, err, connectErr.Message())
		case connect.CodeUnauthenticated, connect.CodePermissionDenied:
			return sbxerr.Wrap(sbxerr.KindAuthentication, err, connectErr.Message())
		case connect.CodeNotFound:
			return sbxerr.Wrap(sbxerr.KindNotFound, err, connectErr.Message())
		case connect.CodeResourceExhausted:
			return sbxerr.Wrap(sbxerr.KindRateLimit, err, connectErr.Message())
		case connect.CodeDeadlineExceeded, connect.CodeCanceled:
			return sbxerr.Wrap(sbxerr.KindTimeout, err, connectErr.Message())
		case connect.CodeUnavailable:
			return sbxerr.Wrap(sbxerr.KindSandbox, err, connectErr.Message())
		default:
			return sbxerr.Wrap(sbxerr.KindSandbox, err, connectErr.Message())
		}
	}

	return sbxerr.Wrap(sbxerr.KindSandbox, err, err.Error())
}

// FromHTTPResponse maps a plain HTTP error response (used by the
// Management API client and the filesystem download/upload surface,
// neither of which speaks Connect-RPC) into an sbxerr.Error. message is
// the body's {"message": ...} field when present, else the raw body text.
func FromHTTPResponse(status int, message string) error {
	return sbxerr.FromHTTPStatus(status, message)
}
