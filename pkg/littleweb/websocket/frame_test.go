package websocket

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/littleweb/pkg/littleweb/stream"
)

// pipe returns an Input reading from one end of a net.Pipe and an
// Output writing to the other, so frame round trips can be exercised
// without a real socket.
func pipe(t *testing.T) (*stream.Input, *stream.Output, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	return stream.NewInput(server, -1), stream.NewOutput(client), client
}

func TestWriteFrameThenReadFrameRoundTrip(t *testing.T) {
	in, _, client := pipe(t)
	clientOut := stream.NewOutput(client)

	go func() {
		_ = WriteFrame(clientOut, OpcodeText, true, []byte("hello"))
	}()

	frame, err := ReadFrame(in, 0)
	require.NoError(t, err)
	assert.Equal(t, OpcodeText, frame.Opcode)
	assert.True(t, frame.Fin)
	assert.False(t, frame.Masked)
	assert.Equal(t, []byte("hello"), frame.Payload)
}

func TestReadFrameUnmasksClientPayload(t *testing.T) {
	in, _, client := pipe(t)

	payload := []byte("ping")
	maskKey := [4]byte{0x11, 0x22, 0x33, 0x44}
	masked := append([]byte(nil), payload...)
	maskBytes(masked, maskKey)

	go func() {
		head := []byte{0x80 | byte(OpcodeText), 0x80 | byte(len(payload))}
		_, _ = client.Write(head)
		_, _ = client.Write(maskKey[:])
		_, _ = client.Write(masked)
	}()

	frame, err := ReadFrame(in, 0)
	require.NoError(t, err)
	assert.True(t, frame.Masked)
	assert.Equal(t, payload, frame.Payload)
}

func TestReadFrameRejectsOversizedPayload(t *testing.T) {
	in, _, client := pipe(t)

	go func() {
		head := []byte{0x80 | byte(OpcodeBinary), 126, 0x00, 0xFF}
		_, _ = client.Write(head)
	}()

	_, err := ReadFrame(in, 10)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameRejectsFragmentedControlFrame(t *testing.T) {
	in, _, client := pipe(t)

	go func() {
		// fin=0, opcode=Ping: control frames must not be fragmented.
		head := []byte{byte(OpcodePing), 0x00}
		_, _ = client.Write(head)
	}()

	_, err := ReadFrame(in, 0)
	assert.ErrorIs(t, err, ErrFragmentedControl)
}

func TestComputeAcceptKeyMatchesRFC6455Example(t *testing.T) {
	// The canonical example from RFC 6455 section 1.3.
	got := ComputeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", got)
}
