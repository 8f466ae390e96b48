package sbxprocess

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/scalebox/sbx-go/sbxrpc"
)

// Hand-rolled protowire encodings for the three hot-path message types on
// the Process service's streaming surface: startRequest and
// sendInputRequest on the send side, processFrame on the receive side.
// Everything else on the wire goes through the proto codec's JSON
// fallback; these three are the ones that move bulk bytes per frame.

const (
	startFieldCmd  = 1
	startFieldArgs = 2
	startFieldEnvs = 3
	startFieldCwd  = 4
	startFieldTag  = 5
	startFieldPty  = 6

	ptyFieldCols = 1
	ptyFieldRows = 2

	inputFieldPid  = 1
	inputFieldData = 2

	frameFieldKind     = 1
	frameFieldPid      = 2
	frameFieldChunk    = 3
	frameFieldExitCode = 4
	frameFieldError    = 5
	frameFieldStatus   = 6

	mapFieldKey   = 1
	mapFieldValue = 2
)

func (r *startRequest) MarshalProtoWire() ([]byte, error) {
	buf := sbxrpc.AppendTaggedString(nil, startFieldCmd, r.Cmd)
	for _, arg := range r.Args {
		// Repeated fields keep every element, empty strings included, or
		// the args vector changes length on the way to the agent.
		buf = protowire.AppendTag(buf, startFieldArgs, protowire.BytesType)
		buf = protowire.AppendBytes(buf, []byte(arg))
	}
	for k, v := range r.Envs {
		entry := sbxrpc.AppendTaggedString(nil, mapFieldKey, k)
		entry = sbxrpc.AppendTaggedString(entry, mapFieldValue, v)
		buf = sbxrpc.AppendTaggedBytes(buf, startFieldEnvs, entry)
	}
	buf = sbxrpc.AppendTaggedString(buf, startFieldCwd, r.Cwd)
	buf = sbxrpc.AppendTaggedString(buf, startFieldTag, r.Tag)
	if r.Pty != nil {
		pty := sbxrpc.AppendTaggedVarint(nil, ptyFieldCols, uint64(r.Pty.Cols))
		pty = sbxrpc.AppendTaggedVarint(pty, ptyFieldRows, uint64(r.Pty.Rows))
		buf = protowire.AppendTag(buf, startFieldPty, protowire.BytesType)
		buf = protowire.AppendBytes(buf, pty)
	}
	return buf, nil
}

func (r *startRequest) UnmarshalProtoWire(data []byte) error {
	*r = startRequest{}
	return sbxrpc.ConsumeFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case startFieldCmd:
			r.Cmd = string(val)
		case startFieldArgs:
			r.Args = append(r.Args, string(val))
		case startFieldEnvs:
			if r.Envs == nil {
				r.Envs = map[string]string{}
			}
			var k, v string
			if err := sbxrpc.ConsumeFields(val, func(n protowire.Number, _ protowire.Type, entry []byte) error {
				switch n {
				case mapFieldKey:
					k = string(entry)
				case mapFieldValue:
					v = string(entry)
				}
				return nil
			}); err != nil {
				return err
			}
			r.Envs[k] = v
		case startFieldCwd:
			r.Cwd = string(val)
		case startFieldTag:
			r.Tag = string(val)
		case startFieldPty:
			size := &PtySize{}
			if err := sbxrpc.ConsumeFields(val, func(n protowire.Number, _ protowire.Type, entry []byte) error {
				u, err := consumeVarintField(entry)
				if err != nil {
					return err
				}
				switch n {
				case ptyFieldCols:
					size.Cols = uint32(u)
				case ptyFieldRows:
					size.Rows = uint32(u)
				}
				return nil
			}); err != nil {
				return err
			}
			r.Pty = size
		}
		return nil
	})
}

func (r *sendInputRequest) MarshalProtoWire() ([]byte, error) {
	buf := sbxrpc.AppendTaggedVarint(nil, inputFieldPid, uint64(r.Pid))
	return sbxrpc.AppendTaggedBytes(buf, inputFieldData, r.Data), nil
}

func (r *sendInputRequest) UnmarshalProtoWire(data []byte) error {
	*r = sendInputRequest{}
	return sbxrpc.ConsumeFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case inputFieldPid:
			u, err := consumeVarintField(val)
			if err != nil {
				return err
			}
			r.Pid = int32(u)
		case inputFieldData:
			r.Data = append([]byte(nil), val...)
		}
		return nil
	})
}

func (f *processFrame) MarshalProtoWire() ([]byte, error) {
	buf := sbxrpc.AppendTaggedString(nil, frameFieldKind, f.Kind)
	buf = sbxrpc.AppendTaggedVarint(buf, frameFieldPid, uint64(f.Pid))
	buf = sbxrpc.AppendTaggedBytes(buf, frameFieldChunk, f.Chunk)
	buf = sbxrpc.AppendTaggedVarint(buf, frameFieldExitCode, uint64(f.ExitCode))
	buf = sbxrpc.AppendTaggedString(buf, frameFieldError, f.Error)
	return sbxrpc.AppendTaggedString(buf, frameFieldStatus, f.Status), nil
}

func (f *processFrame) UnmarshalProtoWire(data []byte) error {
	*f = processFrame{}
	return sbxrpc.ConsumeFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case frameFieldKind:
			f.Kind = string(val)
		case frameFieldPid:
			u, err := consumeVarintField(val)
			if err != nil {
				return err
			}
			f.Pid = int32(u)
		case frameFieldChunk:
			f.Chunk = append([]byte(nil), val...)
		case frameFieldExitCode:
			u, err := consumeVarintField(val)
			if err != nil {
				return err
			}
			f.ExitCode = int32(u)
		case frameFieldError:
			f.Error = string(val)
		case frameFieldStatus:
			f.Status = string(val)
		}
		return nil
	})
}

func consumeVarintField(val []byte) (uint64, error) {
	u, n := protowire.ConsumeVarint(val)
	if n < 0 {
		return 0, fmt.Errorf("sbxprocess: malformed varint field")
	}
	return u, nil
}
