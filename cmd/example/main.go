// Command example wires littleweb's pieces together end to end: a
// small in-memory note store exposed as a JSON REST resource plus a
// WebSocket echo endpoint, both served by a single server.Server. It
// exists only to exercise the library, not as a product in itself.
package main

import (
	"fmt"
	"log"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/littleweb/pkg/littleweb/codec"
	"github.com/yourusername/littleweb/pkg/littleweb/http11"
	"github.com/yourusername/littleweb/pkg/littleweb/route"
	"github.com/yourusername/littleweb/pkg/littleweb/server"
	"github.com/yourusername/littleweb/pkg/littleweb/session"
	"github.com/yourusername/littleweb/pkg/littleweb/socket"
	"github.com/yourusername/littleweb/pkg/littleweb/stream"
	"github.com/yourusername/littleweb/pkg/littleweb/websocket"
)

type note struct {
	Text string `json:"text"`
}

type noteStore struct {
	mu    sync.Mutex
	notes map[string]note
	next  int
}

func newNoteStore() *noteStore {
	return &noteStore{notes: map[string]note{}}
}

func (s *noteStore) create(n note) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("%d", s.next)
	s.notes[id] = n
	return id
}

func (s *noteStore) get(id string) (note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	return n, ok
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()

	store := newNoteStore()

	notes := codec.CRUD{
		Codec: codec.JSON,
		New:   func() interface{} { return &note{} },
		Create: func(_ *http11.Request, body interface{}) (interface{}, error) {
			n := *body.(*note)
			id := store.create(n)
			return map[string]string{"id": id}, nil
		},
		Read: func(_ *http11.Request, id string) (interface{}, error) {
			n, ok := store.get(id)
			if !ok {
				return nil, fmt.Errorf("note %s not found", id)
			}
			return n, nil
		},
	}

	controller := route.NewController()
	controller.SetFallback(func(req *http11.Request, _ map[string]http11.Identity) *http11.Response {
		resp := http11.NewResponse()
		resp.Status = 500
		resp.SetBytes("text/plain", []byte("internal error"))
		return resp
	})

	if err := controller.Handle(http11.MethodGET, "/notes/:id", notes.Handler()); err != nil {
		log.Fatalf("registering /notes/:id GET: %v", err)
	}
	if err := controller.Handle(http11.MethodPOST, "/notes", notes.Handler()); err != nil {
		log.Fatalf("registering /notes POST: %v", err)
	}

	if err := controller.Handle(http11.MethodGET, "/ws/echo", echoUpgradeHandler); err != nil {
		log.Fatalf("registering /ws/echo: %v", err)
	}

	hosts := route.NewHostRegistry(controller)

	cfg := server.Config{
		Addr:                 ":8080",
		Limits:               server.DefaultLimits(256),
		KeepAliveMaxRequests: 1000,
		TempLocation:         "/tmp/littleweb-example",
		ServerName:           "littleweb-example",
		Hosts:                hosts,
		Sessions:             session.NewManager(30 * time.Minute),
		Logger:               logger,
		SocketProfile:        socket.ProfileLowLatency,
	}

	srv := server.New(cfg)
	logger.Info("listening", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

// echoUpgradeHandler hops the connection onto the websocket queue and
// echoes every text message back to the client until it disconnects.
func echoUpgradeHandler(req *http11.Request, _ map[string]http11.Identity) *http11.Response {
	if !websocket.IsUpgradeRequest(req) {
		resp := http11.NewResponse()
		resp.Status = 400
		resp.SetBytes("text/plain", []byte("expected a websocket upgrade"))
		return resp
	}

	resp := http11.NewResponse()
	resp.Queue = "websocket"
	resp.Upgrade = func(req *http11.Request, in *stream.Input, out *stream.Output, done <-chan struct{}) error {
		if err := websocket.WriteUpgradeResponse(out, req); err != nil {
			return err
		}
		var conn *websocket.Conn
		conn = websocket.NewConn(in, out, websocket.Handler{
			Text: func(msg string) { _ = conn.WriteText(msg) },
		}, websocket.DefaultMaxMessageSize)
		return conn.Run(done)
	}
	return resp
}
