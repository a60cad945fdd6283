package websocket

import (
	"unicode/utf8"

	"github.com/yourusername/littleweb/pkg/littleweb/stream"
)

// Handler receives the events a WebSocket connection surfaces to
// application code (spec.md §4.6 "Events surfaced to the handler").
// Ping frames are answered transparently by Conn and never reach
// Handler. Any method may be left nil; Conn no-ops a nil callback.
type Handler struct {
	Connected    func()
	Text         func(msg string)
	Binary       func(msg []byte)
	Pong         func(payload []byte)
	Close        func(code uint16, reason string)
	Disconnected func()
}

// Conn runs the server-side frame loop for one upgraded connection
// (spec.md §4.6). It owns the raw byte streams handed off by the
// worker after the upgrade response was sent.
type Conn struct {
	in  *stream.Input
	out *stream.Output

	handler Handler

	closeSent bool
	maxMessage int64
}

// DefaultMaxMessageSize bounds reassembled message size to guard
// against unbounded fragmentation (spec.md §4.6 "Message assembly").
const DefaultMaxMessageSize = 32 << 20

// NewConn wraps the request worker's byte streams for the frame loop.
// maxMessageSize <= 0 selects DefaultMaxMessageSize.
func NewConn(in *stream.Input, out *stream.Output, handler Handler, maxMessageSize int64) *Conn {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Conn{in: in, out: out, handler: handler, maxMessage: maxMessageSize}
}

// Run executes the frame loop until the connection closes, either by
// peer close frame, protocol violation, stream error, or cancellation
// of done. It always leaves exactly one close frame written on the
// wire before returning (spec.md §4.6 "Writing"): a normal close echo,
// 1001 GoingAway on cancellation, or 1011 InternalServerError on any
// other exit path that has not already sent one.
func (c *Conn) Run(done <-chan struct{}) error {
	if c.handler.Connected != nil {
		c.handler.Connected()
	}
	defer func() {
		if c.handler.Disconnected != nil {
			c.handler.Disconnected()
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- c.loop() }()

	select {
	case err := <-errCh:
		if err != nil && !c.closeSent {
			c.sendClose(CloseInternalServerErr, "")
		}
		return err
	case <-done:
		if !c.closeSent {
			c.sendClose(CloseGoingAway, "")
		}
		return nil
	}
}

func (c *Conn) loop() error {
	var assembling bool
	var assembledOpcode Opcode
	var assembled []byte

	for {
		frame, err := ReadFrame(c.in, c.maxMessage)
		if err == ErrUnknownOpcode {
			c.sendClose(CloseUnsupportedData, "")
			return nil
		}
		if err == ErrFragmentedControl {
			c.sendClose(CloseInvalidFramePayload, "")
			return nil
		}
		if err != nil {
			return err
		}
		if !frame.Masked {
			c.sendClose(CloseInvalidFramePayload, "")
			return nil
		}

		switch frame.Opcode {
		case OpcodePing:
			if err := WriteFrame(c.out, OpcodePong, true, frame.Payload); err != nil {
				return err
			}
			continue
		case OpcodePong:
			if c.handler.Pong != nil {
				c.handler.Pong(frame.Payload)
			}
			continue
		case OpcodeClose:
			code, reason := parseCloseFrame(frame.Payload)
			if c.handler.Close != nil {
				c.handler.Close(code, reason)
			}
			if !c.closeSent {
				c.sendClose(code, "")
			}
			return nil
		case OpcodeContinuation:
			if !assembling {
				c.sendClose(ClosePolicyViolation, "")
				return nil
			}
			assembled = append(assembled, frame.Payload...)
			if int64(len(assembled)) > c.maxMessage {
				c.sendClose(CloseInvalidFramePayload, "")
				return nil
			}
			if frame.Fin {
				if err := c.dispatchMessage(assembledOpcode, assembled); err != nil {
					return nil
				}
				assembling = false
				assembled = nil
			}
		case OpcodeText, OpcodeBinary:
			if assembling {
				c.sendClose(ClosePolicyViolation, "")
				return nil
			}
			if frame.Fin {
				if err := c.dispatchMessage(frame.Opcode, frame.Payload); err != nil {
					return nil
				}
			} else {
				assembling = true
				assembledOpcode = frame.Opcode
				assembled = append([]byte(nil), frame.Payload...)
			}
		default:
			c.sendClose(CloseUnsupportedData, "")
			return nil
		}
	}
}

// dispatchMessage surfaces a reassembled Text/Binary message to the
// handler, closing with 1007 on invalid UTF-8 (spec.md §4.6 "On text,
// invalid UTF-8 closes with 1007"). A non-nil return means the
// connection was already closed and the loop should stop.
func (c *Conn) dispatchMessage(opcode Opcode, payload []byte) error {
	if opcode == OpcodeText {
		if !utf8.Valid(payload) {
			c.sendClose(CloseInvalidFramePayload, "")
			return ErrInvalidUTF8
		}
		if c.handler.Text != nil {
			c.handler.Text(string(payload))
		}
		return nil
	}
	if c.handler.Binary != nil {
		c.handler.Binary(payload)
	}
	return nil
}

func (c *Conn) sendClose(code uint16, reason string) {
	c.closeSent = true
	_ = WriteClose(c.out, code, reason)
}

func parseCloseFrame(payload []byte) (code uint16, reason string) {
	if len(payload) < 2 {
		return CloseNormalClosure, ""
	}
	code = uint16(payload[0])<<8 | uint16(payload[1])
	if len(payload) > 2 {
		reason = string(payload[2:])
	}
	return code, reason
}

// WriteText sends a single final text frame (spec.md §4.6 "Writing").
func (c *Conn) WriteText(msg string) error { return WriteFrame(c.out, OpcodeText, true, []byte(msg)) }

// WriteBinary sends a single final binary frame.
func (c *Conn) WriteBinary(msg []byte) error { return WriteFrame(c.out, OpcodeBinary, true, msg) }
