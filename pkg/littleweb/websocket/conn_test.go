package websocket

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/littleweb/pkg/littleweb/stream"
)

// sendMaskedFrame writes a single client->server frame, masked as
// RFC 6455 requires of every client-originated frame.
func sendMaskedFrame(t *testing.T, client net.Conn, opcode Opcode, fin bool, payload []byte) {
	t.Helper()
	first := byte(opcode)
	if fin {
		first |= 0x80
	}
	head := []byte{first, 0x80 | byte(len(payload))}
	maskKey := [4]byte{0xAA, 0xBB, 0xCC, 0xDD}
	masked := append([]byte(nil), payload...)
	maskBytes(masked, maskKey)

	_, err := client.Write(head)
	require.NoError(t, err)
	_, err = client.Write(maskKey[:])
	require.NoError(t, err)
	_, err = client.Write(masked)
	require.NoError(t, err)
}

func readServerFrame(t *testing.T, client net.Conn) Frame {
	t.Helper()
	in := stream.NewInput(client, -1)
	frame, err := ReadFrame(in, 0)
	require.NoError(t, err)
	return frame
}

func TestConnEchoesTextMessage(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	client.SetDeadline(time.Now().Add(2 * time.Second))

	var conn *Conn
	conn = NewConn(stream.NewInput(server, -1), stream.NewOutput(server), Handler{
		Text: func(msg string) { _ = conn.WriteText(msg) },
	}, 0)

	done := make(chan struct{})
	go func() { _ = conn.Run(done) }()

	sendMaskedFrame(t, client, OpcodeText, true, []byte("hi"))

	frame := readServerFrame(t, client)
	assert.Equal(t, OpcodeText, frame.Opcode)
	assert.Equal(t, "hi", string(frame.Payload))
	close(done)
}

func TestConnAnswersPingWithPong(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	client.SetDeadline(time.Now().Add(2 * time.Second))

	conn := NewConn(stream.NewInput(server, -1), stream.NewOutput(server), Handler{}, 0)
	done := make(chan struct{})
	go func() { _ = conn.Run(done) }()

	sendMaskedFrame(t, client, OpcodePing, true, []byte("ping-payload"))

	frame := readServerFrame(t, client)
	assert.Equal(t, OpcodePong, frame.Opcode)
	assert.Equal(t, "ping-payload", string(frame.Payload))
	close(done)
}

func TestConnRejectsUnmaskedClientFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	client.SetDeadline(time.Now().Add(2 * time.Second))

	conn := NewConn(stream.NewInput(server, -1), stream.NewOutput(server), Handler{}, 0)
	done := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- conn.Run(done) }()

	_, err := client.Write([]byte{0x80 | byte(OpcodeText), 0x02, 'h', 'i'})
	require.NoError(t, err)

	frame := readServerFrame(t, client)
	assert.Equal(t, OpcodeClose, frame.Opcode)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after sending an unmasked-frame close")
	}
}

func TestConnClosesWithInvalidUTF8(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	client.SetDeadline(time.Now().Add(2 * time.Second))

	var closedCode uint16
	conn := NewConn(stream.NewInput(server, -1), stream.NewOutput(server), Handler{
		Close: func(code uint16, reason string) { closedCode = code },
	}, 0)
	done := make(chan struct{})
	go func() { _ = conn.Run(done) }()

	sendMaskedFrame(t, client, OpcodeText, true, []byte{0xff, 0xfe, 0xfd})

	frame := readServerFrame(t, client)
	assert.Equal(t, OpcodeClose, frame.Opcode)
	assert.Equal(t, uint16(0), closedCode)
}

func TestConnRunSendsGoingAwayOnDone(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	client.SetDeadline(time.Now().Add(2 * time.Second))

	conn := NewConn(stream.NewInput(server, -1), stream.NewOutput(server), Handler{}, 0)
	done := make(chan struct{})
	close(done)

	errCh := make(chan error, 1)
	go func() { errCh <- conn.Run(done) }()

	frame := readServerFrame(t, client)
	assert.Equal(t, OpcodeClose, frame.Opcode)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after done was closed")
	}
}
