package sbxcode

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/scalebox/sbx-go/sbxrpc"
)

const (
	procCreateContext  = "/sandboxagent.ContextService/CreateContext"
	procDestroyContext = "/sandboxagent.ContextService/DestroyContext"
	procExecute        = "/sandboxagent.ExecutionService/Execute"
)

// CodeInterpreter is the L6 subclient composing the Process service's
// ExecutionService and ContextService.
type CodeInterpreter struct {
	transport *sbxrpc.Transport
	log       zerolog.Logger
}

// New builds a CodeInterpreter over an already-configured Transport.
func New(transport *sbxrpc.Transport, log zerolog.Logger) *CodeInterpreter {
	return &CodeInterpreter{transport: transport, log: log}
}

// CreateCodeContext opens a new persistent execution context. language is
// passed through to the server verbatim; an empty string means "use the
// server's default".
func (ci *CodeInterpreter) CreateCodeContext(ctx context.Context, language, cwd string) (*Context, error) {
	resp, err := sbxrpc.Unary[createContextRequest, createContextResponse](ctx, ci.transport, procCreateContext, &createContextRequest{Language: language, Cwd: cwd}, nil)
	if err != nil {
		return nil, err
	}
	return &Context{ID: resp.ID, Language: resp.Language, Cwd: resp.Cwd}, nil
}

// DestroyContext releases a context. It is idempotent: server errors are
// logged and swallowed rather than returned.
func (ci *CodeInterpreter) DestroyContext(ctx context.Context, c *Context) {
	_, err := sbxrpc.Unary[destroyContextRequest, destroyContextResponse](ctx, ci.transport, procDestroyContext, &destroyContextRequest{ID: c.ID}, nil)
	if err != nil {
		ci.log.Warn().Err(err).Str("contextId", c.ID).Msg("destroy context failed, ignoring")
	}
}
