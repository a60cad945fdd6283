package websocket

import (
	"encoding/binary"

	gorillaws "github.com/gorilla/websocket"

	"github.com/yourusername/littleweb/pkg/littleweb/stream"
)

// Frame is one parsed WebSocket frame (spec.md §4.6 "Frame codec").
// Payload is already unmasked when the frame arrived masked.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// ReadFrame parses one frame off in, following spec.md §4.6's bit
// layout exactly: first byte fin/rsv/opcode, second byte mask/len,
// extended length fields always big-endian per RFC 6455 (the open
// question in spec.md §9 is resolved in favor of the RFC, not any
// little-endian source behavior).
func ReadFrame(in *stream.Input, maxPayload int64) (Frame, error) {
	head, err := in.ReadExact(2)
	if err != nil {
		return Frame{}, err
	}
	b0, b1 := head[0], head[1]

	fin := b0&0x80 != 0
	rsv := b0 & 0x70
	opcode := Opcode(b0 & 0x0F)
	masked := b1&0x80 != 0
	lenField := uint64(b1 & 0x7F)

	if rsv != 0 {
		return Frame{}, ErrNotWebSocket
	}
	switch opcode {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
	default:
		return Frame{}, ErrUnknownOpcode
	}
	if opcode.isControl() && !fin {
		return Frame{}, ErrFragmentedControl
	}

	length := lenField
	switch lenField {
	case 126:
		ext, err := in.ReadExact(2)
		if err != nil {
			return Frame{}, err
		}
		length = uint64(binary.BigEndian.Uint16(ext))
	case 127:
		ext, err := in.ReadExact(8)
		if err != nil {
			return Frame{}, err
		}
		length = binary.BigEndian.Uint64(ext)
	}
	if opcode.isControl() && length > MaxControlFramePayload {
		return Frame{}, ErrFrameTooLarge
	}
	if maxPayload > 0 && int64(length) > maxPayload {
		return Frame{}, ErrFrameTooLarge
	}

	var maskKey [4]byte
	if masked {
		key, err := in.ReadExact(4)
		if err != nil {
			return Frame{}, err
		}
		copy(maskKey[:], key)
	}

	var payload []byte
	if length > 0 {
		payload, err = in.ReadExact(int(length))
		if err != nil {
			return Frame{}, err
		}
		if masked {
			maskBytes(payload, maskKey)
		}
	}

	return Frame{Fin: fin, Opcode: opcode, Masked: masked, MaskKey: maskKey, Payload: payload}, nil
}

// WriteFrame writes a single, unmasked frame to out. Server-to-client
// frames are never masked (spec.md §4.6 "Writing").
func WriteFrame(out *stream.Output, opcode Opcode, fin bool, payload []byte) error {
	var head [10]byte
	b0 := byte(opcode)
	if fin {
		b0 |= 0x80
	}
	head[0] = b0

	n := len(payload)
	var headerLen int
	switch {
	case n <= 125:
		head[1] = byte(n)
		headerLen = 2
	case n <= 0xFFFF:
		head[1] = 126
		binary.BigEndian.PutUint16(head[2:4], uint16(n))
		headerLen = 4
	default:
		head[1] = 127
		binary.BigEndian.PutUint64(head[2:10], uint64(n))
		headerLen = 10
	}

	if err := out.WriteBytes(head[:headerLen]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if err := out.WriteBytes(payload); err != nil {
			return err
		}
	}
	return out.Flush()
}

// WriteClose writes a close control frame carrying code and reason
// (spec.md §4.6 "Writing": "a close write sends opcode 0x8 with a
// 2-byte big-endian status code followed by an optional reason").
// The payload itself is built with gorilla/websocket's
// FormatCloseMessage rather than hand-rolled, since it already
// encodes the big-endian code RFC 6455 requires.
func WriteClose(out *stream.Output, code uint16, reason string) error {
	payload := gorillaws.FormatCloseMessage(int(code), reason)
	return WriteFrame(out, OpcodeClose, true, payload)
}
