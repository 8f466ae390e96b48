package sbxrpc

import (
	"context"

	"connectrpc.com/connect"
)

// ClientStreamSender is the caller-facing half of a client-streaming RPC:
// repeated Send calls push one frame at a time, CloseAndReceive finalizes
// the call and returns the single response message.
type ClientStreamSender[Req, Resp any] struct {
	raw    *connect.ClientStreamForClient[Req, Resp]
	cancel context.CancelFunc
}

// Send pushes one request frame.
func (s *ClientStreamSender[Req, Resp]) Send(msg *Req) error {
	return s.raw.Send(msg)
}

// CloseAndReceive finalizes the send side and waits for the single
// response message.
func (s *ClientStreamSender[Req, Resp]) CloseAndReceive() (*Resp, error) {
	resp, err := s.raw.CloseAndReceive()
	if err != nil {
		s.cancel()
		return nil, WrapError(context.Background(), err)
	}
	return resp.Msg, nil
}

// Cancel aborts the stream without waiting for a response.
func (s *ClientStreamSender[Req, Resp]) Cancel() {
	s.cancel()
}

// ClientStream opens a Connect-RPC client-streaming call, used for the
// process service's high-throughput stdin delivery.
func ClientStream[Req, Resp any](ctx context.Context, t *Transport, procedurePath string) *ClientStreamSender[Req, Resp] {
	client := connect.NewClient[Req, Resp](t.httpClient, t.baseURL+procedurePath, t.clientOptions()...)
	streamCtx, cancel := context.WithCancel(ctx)
	sender := client.CallClientStream(streamCtx)
	t.applyHeaders(sender.RequestHeader(), nil)
	return &ClientStreamSender[Req, Resp]{raw: sender, cancel: cancel}
}
