package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/littleweb/pkg/littleweb/http11"
	"github.com/yourusername/littleweb/pkg/littleweb/route"
)

func newTestServer(t *testing.T) (*Server, net.Listener, string) {
	t.Helper()
	controller := route.NewController()
	require.NoError(t, controller.Handle(http11.MethodGET, "/ping", func(req *http11.Request, ids map[string]http11.Identity) *http11.Response {
		resp := http11.NewResponse()
		resp.SetBytes("text/plain", []byte("pong"))
		return resp
	}))
	hosts := route.NewHostRegistry(controller)

	srv := New(Config{
		Hosts:        hosts,
		TempLocation: t.TempDir(),
		Limits:       DefaultLimits(4),
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { srv.Close() })

	return srv, ln, ln.Addr().String()
}

func TestServeRoutesMatchedRequest(t *testing.T) {
	_, _, addr := newTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte("GET /ping HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, statusLine, "200")

	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}
	buf := make([]byte, 4)
	_, err = io.ReadFull(reader, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf))
}

func TestServeUnmatchedRouteIs404(t *testing.T) {
	_, _, addr := newTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte("GET /nope HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, statusLine, "404")
}

func TestMalformedHeaderReturns400AndFiresServerError(t *testing.T) {
	controller := route.NewController()
	hosts := route.NewHostRegistry(controller)

	var mu sync.Mutex
	var gotErr error
	srv := New(Config{
		Hosts:        hosts,
		TempLocation: t.TempDir(),
		Limits:       DefaultLimits(4),
		Events: Events{
			OnServerError: func(err error) {
				mu.Lock()
				gotErr = err
				mu.Unlock()
			},
		},
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { srv.Close() })

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: example.com\r\nX-Evil: bad\x01value\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, statusLine, "400")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotErr != nil
	}, time.Second, 10*time.Millisecond)
}

func TestFirstRequestTimeoutReturns408AndFiresEvent(t *testing.T) {
	controller := route.NewController()
	hosts := route.NewHostRegistry(controller)

	var mu sync.Mutex
	var timedOutConn string
	srv := New(Config{
		Hosts:                 hosts,
		TempLocation:          t.TempDir(),
		Limits:                DefaultLimits(4),
		InitialRequestTimeout: 50 * time.Millisecond,
		Events: Events{
			OnRequestTimeout: func(connID string) {
				mu.Lock()
				timedOutConn = connID
				mu.Unlock()
			},
		},
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { srv.Close() })

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, statusLine, "408")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return timedOutConn != ""
	}, time.Second, 10*time.Millisecond)
}

func TestShutdownOfIdleServerMarksSchedulerStopping(t *testing.T) {
	srv, ln, _ := newTestServer(t)
	_ = ln

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.True(t, srv.scheduler.Stopping())
}
