package http11

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/littleweb/pkg/littleweb/stream"
)

func writerPipe(t *testing.T) (*Writer, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	return NewWriter(stream.NewOutput(server), ""), client
}

func drain(t *testing.T, client net.Conn) string {
	t.Helper()
	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, _ := client.Read(buf)
	return string(buf[:n])
}

func TestWriteResponseBytesBodySetsContentLength(t *testing.T) {
	w, client := writerPipe(t)
	req := &Request{Version: "HTTP/1.1", Header: &Header{}}
	resp := NewResponse()
	resp.SetBytes("text/plain", []byte("hi"))

	done := make(chan string, 1)
	go func() { done <- drain(t, client) }()

	require.NoError(t, w.WriteResponse(req, resp))
	got := <-done
	assert.Contains(t, got, "HTTP/1.1 200 OK\r\n")
	assert.Contains(t, got, "Content-Length: 2\r\n")
	assert.Contains(t, got, "hi")
}

func TestWriteResponseClosesOnHTTP10(t *testing.T) {
	w, client := writerPipe(t)
	req := &Request{Version: "HTTP/1.0", Header: &Header{}}
	resp := NewResponse()
	resp.SetBytes("text/plain", []byte("x"))

	done := make(chan string, 1)
	go func() { done <- drain(t, client) }()

	require.NoError(t, w.WriteResponse(req, resp))
	got := <-done
	assert.Contains(t, got, "Connection: close\r\n")
}

func TestWriteResponseConditionalNotModified(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/file.txt"
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	w, client := writerPipe(t)
	req := &Request{Version: "HTTP/1.1", Header: &Header{}}
	future := time.Now().Add(time.Hour)
	req.Header.Set("If-Modified-Since", future.UTC().Format(http1123))

	resp := NewResponse()
	resp.SetFile(path, nil, nil)

	done := make(chan string, 1)
	go func() { done <- drain(t, client) }()

	require.NoError(t, w.WriteResponse(req, resp))
	got := <-done
	assert.Contains(t, got, "304")
}

func TestWriteResponseIfNoneMatchWildcardReturns304(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/file.txt"
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	w, client := writerPipe(t)
	req := &Request{Version: "HTTP/1.1", Header: &Header{}}
	req.Header.Set("If-None-Match", "*")

	resp := NewResponse()
	resp.SetFile(path, nil, nil)

	done := make(chan string, 1)
	go func() { done <- drain(t, client) }()

	require.NoError(t, w.WriteResponse(req, resp))
	got := <-done
	assert.Contains(t, got, "304")
}

func TestWriteResponseIfMatchMismatchIsNotHandledAsNotModified(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/file.txt"
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	w, client := writerPipe(t)
	req := &Request{Version: "HTTP/1.1", Header: &Header{}}
	req.Header.Set("If-Match", `"some-other-etag"`)

	resp := NewResponse()
	resp.SetFile(path, nil, nil)

	done := make(chan string, 1)
	go func() { done <- drain(t, client) }()

	require.NoError(t, w.WriteResponse(req, resp))
	got := <-done
	assert.Contains(t, got, "200")
	assert.Contains(t, got, "0123456789")
}

func TestWriteResponseSingleRangeReturns206(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/file.txt"
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	w, client := writerPipe(t)
	req := &Request{Version: "HTTP/1.1", Header: &Header{}}
	req.Header.Set("Range", "bytes=2-4")

	resp := NewResponse()
	resp.SetFile(path, nil, nil)

	done := make(chan string, 1)
	go func() { done <- drain(t, client) }()

	require.NoError(t, w.WriteResponse(req, resp))
	got := <-done
	assert.Contains(t, got, "206")
	assert.Contains(t, got, "Content-Range: bytes 2-4/10")
	assert.Contains(t, got, "234")
}

func TestWriteResponseUnsatisfiableRangeReturns416(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/file.txt"
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	w, client := writerPipe(t)
	req := &Request{Version: "HTTP/1.1", Header: &Header{}}
	req.Header.Set("Range", "bytes=100-200")

	resp := NewResponse()
	resp.SetFile(path, nil, nil)

	done := make(chan string, 1)
	go func() { done <- drain(t, client) }()

	require.NoError(t, w.WriteResponse(req, resp))
	got := <-done
	assert.Contains(t, got, "416")
	assert.Contains(t, got, "Content-Range: bytes */10")
}

func TestWriteResponseSessionCookieLifecycle(t *testing.T) {
	w, client := writerPipe(t)
	req := &Request{Version: "HTTP/1.1", Header: &Header{}}
	resp := NewResponse()
	resp.SetBytes("text/plain", []byte("x"))
	resp.SessionPresented = true
	resp.Session = nil

	done := make(chan string, 1)
	go func() { done <- drain(t, client) }()

	require.NoError(t, w.WriteResponse(req, resp))
	got := <-done
	assert.Contains(t, got, "Set-Cookie: littleweb_sid=; Path=/; Max-Age=0; HttpOnly")
}
