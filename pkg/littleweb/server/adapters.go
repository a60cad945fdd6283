package server

import (
	"os"

	"github.com/yourusername/littleweb/pkg/littleweb/http11"
	"github.com/yourusername/littleweb/pkg/littleweb/stream"
	"github.com/yourusername/littleweb/pkg/littleweb/websocket"
)

// WebSocketHandler adapts a per-request websocket.Handler builder into
// a route.Handler: it rejects non-upgrade requests with 400, and
// otherwise returns a Response carrying Queue=QueueWebSocket and an
// Upgrade func that performs the handshake and runs the frame loop
// (spec.md §4.6 "Upgrade", §4.4 step 9's queue hop). build is called
// once the upgrade is confirmed, so it may close over req-derived state
// (e.g. a chat room keyed by a path identity).
func WebSocketHandler(build func(req *http11.Request) websocket.Handler) func(req *http11.Request, identities map[string]http11.Identity) *http11.Response {
	return func(req *http11.Request, identities map[string]http11.Identity) *http11.Response {
		resp := http11.NewResponse()
		if !websocket.IsUpgradeRequest(req) {
			resp.Status = 400
			resp.SetBytes("text/plain; charset=utf-8", []byte("400 expected websocket upgrade"))
			return resp
		}
		resp.Queue = string(QueueWebSocket)
		resp.Upgrade = func(r *http11.Request, in *stream.Input, out *stream.Output, done <-chan struct{}) error {
			if err := websocket.WriteUpgradeResponse(out, r); err != nil {
				return err
			}
			conn := websocket.NewConn(in, out, build(r), 0)
			return conn.Run(done)
		}
		return resp
	}
}

// removeTempFile deletes a multipart upload's staged temp file. A
// missing file (already moved by a handler that took ownership of it)
// is not an error (spec.md §4.2 "temp upload lifetime").
func removeTempFile(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
