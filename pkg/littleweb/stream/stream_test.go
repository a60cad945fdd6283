package stream

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (server, client net.Conn) {
	t.Helper()
	server, client = net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	return server, client
}

func TestInputReadExactReadsFullCount(t *testing.T) {
	server, client := pipe(t)
	in := NewInput(server, -1)

	go func() { _, _ = client.Write([]byte("hello world")) }()

	got, err := in.ReadExact(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestInputReadExactFailsOnShortStream(t *testing.T) {
	server, client := pipe(t)
	in := NewInput(server, -1)

	go func() {
		_, _ = client.Write([]byte("ab"))
		client.Close()
	}()

	_, err := in.ReadExact(10)
	assert.Error(t, err)
}

func TestInputContentLengthLimitStopsAtBoundary(t *testing.T) {
	server, client := pipe(t)
	in := NewInput(server, 5)
	in.EnableContentLengthLimit(5)

	go func() { _, _ = client.Write([]byte("hello-more-data-the-client-never-should-see")) }()

	body, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.True(t, in.FullyConsumed())
}

func TestInputChunkedDecodesFramingTransparently(t *testing.T) {
	server, client := pipe(t)
	in := NewInput(server, -1)
	in.EnableChunked()

	go func() {
		_, _ = client.Write([]byte("5\r\nhello\r\n0\r\n\r\n"))
	}()

	body, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.True(t, in.FullyConsumed())
}

func TestOutputWriteUTF8LineAppendsCRLF(t *testing.T) {
	server, client := pipe(t)
	out := NewOutput(client)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	require.NoError(t, out.WriteUTF8Line("HTTP/1.1 200 OK"))
	require.NoError(t, out.Flush())

	got := <-done
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", string(got))
}
