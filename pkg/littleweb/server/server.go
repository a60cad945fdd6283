package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/littleweb/pkg/littleweb/http11"
	"github.com/yourusername/littleweb/pkg/littleweb/lwerr"
	"github.com/yourusername/littleweb/pkg/littleweb/route"
	"github.com/yourusername/littleweb/pkg/littleweb/socket"
	"github.com/yourusername/littleweb/pkg/littleweb/stream"
)

// Server runs the accept loop and the per-connection workers described
// in spec.md §4.4: each accepted connection is handed to a worker under
// the request queue, which reads and dispatches requests until the
// connection closes, keep-alive is refused, or a handler hops it onto
// a different queue (most commonly the WebSocket queue).
type Server struct {
	cfg       Config
	scheduler *Scheduler
	parser    *http11.Parser

	mu       sync.Mutex
	listener net.Listener
	conns    map[*http11.Connection]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Server from cfg, applying defaults for anything left
// zero (spec.md §6).
func New(cfg Config) *Server {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		scheduler: NewScheduler(cfg.Limits, cfg.HopPollInterval),
		parser:    http11.NewParser(http11.DefaultParserConfig(cfg.TempLocation)),
		conns:     map[*http11.Connection]struct{}{},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ListenAndServe opens cfg.Addr and serves it until Shutdown or Close.
func (s *Server) ListenAndServe() error {
	ln, err := Listen(s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve runs the accept loop on an already-open listener (spec.md §4.4
// step 1). One worker goroutine is spawned per accepted connection
// under QueueRequest; Serve returns nil once Shutdown closes ln.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	_ = socket.ApplyListener(ln, s.cfg.Socket)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.scheduler.Stopping() {
				return nil
			}
			return err
		}
		if err := s.scheduler.Acquire(s.ctx, QueueRequest); err != nil {
			conn.Close()
			if errors.Is(err, lwerr.ErrShutdownInProgress) {
				return nil
			}
			continue
		}
		s.wg.Add(1)
		go s.runWorker(conn)
	}
}

// Shutdown stops accepting new connections, marks the scheduler
// stopping so in-flight Acquire/Hop calls unblock with
// lwerr.ErrShutdownInProgress, cancels every worker's done channel so
// long-lived upgrades (WebSocket) get a chance to close cleanly, then
// waits up to ctx's deadline before force-closing stragglers (spec.md
// §5 "Graceful shutdown").
func (s *Server) Shutdown(ctx context.Context) error {
	s.scheduler.Shutdown()
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.closeAllConns()
		return ctx.Err()
	}
}

// Close forcibly closes the listener and every tracked connection
// without waiting for workers to finish (spec.md §5 "Close").
func (s *Server) Close() error {
	s.scheduler.Shutdown()
	s.cancel()
	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Unlock()
	s.closeAllConns()
	return err
}

func (s *Server) closeAllConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

func (s *Server) trackConn(c *http11.Connection) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(c *http11.Connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// runWorker owns one accepted connection end to end (spec.md §4.4
// steps 2-11): it holds a QueueRequest slot for as long as it keeps
// reading requests off the connection, releasing or hopping that slot
// exactly once on every exit path.
func (s *Server) runWorker(netConn net.Conn) {
	defer s.wg.Done()

	_ = socket.Apply(netConn, s.cfg.Socket)

	conn := http11.NewConnection(netConn, "http")
	s.trackConn(conn)
	defer s.untrackConn(conn)
	defer conn.Close()

	s.emitClientConnected(conn.ID)
	reason := "connection closed"
	defer func() { s.emitClientDisconnected(conn.ID, reason) }()

	// heldQueue is the queue currently holding this worker's slot, or ""
	// once that slot has been released (by a successful or failed Hop,
	// which always releases "from" itself — see Scheduler.Hop). Tracking
	// it explicitly, instead of always releasing currentQueue on exit,
	// avoids double-releasing a slot Hop already gave back.
	heldQueue := QueueRequest
	defer func() {
		if heldQueue != "" {
			s.scheduler.Release(heldQueue)
		}
	}()

	in := stream.NewInput(netConn, -1)
	out := stream.NewOutput(netConn)

	currentQueue := QueueRequest
	firstRequest := true
	for {
		if s.scheduler.Stopping() {
			reason = "server shutting down"
			return
		}
		select {
		case <-s.ctx.Done():
			reason = "server shutting down"
			return
		default:
		}

		head, err := s.readRequestLine(netConn, in, firstRequest)
		if err != nil {
			if firstRequest && isTimeout(err) {
				reason = "first request read timed out"
				s.emitRequestTimeout(conn.ID)
				s.writeErrorResponse(out, 408, "408 request timeout")
				s.emitError(lwerr.MalformedRequest("request head read timed out"))
				return
			}
			reason = "request head read failed"
			if !isBenignEOF(err) {
				s.emitError(err)
			}
			return
		}
		firstRequest = false
		conn.IncrementRequestCount()

		header, err := s.parser.ParseHeaders(in)
		if err != nil {
			reason = "header parse failed"
			s.emitError(err)
			s.writeErrorResponse(out, 400, "400 bad request")
			return
		}

		req, err := s.parser.FinishRequest(conn, in, head, header)
		if err != nil {
			reason = "body decode failed"
			s.emitError(err)
			s.writeErrorResponse(out, 400, "400 bad request")
			return
		}

		presented := s.attachSession(req)

		controller := s.cfg.Hosts.Resolve(header.Host())
		resp := s.dispatch(controller, req)

		s.finalizeSession(resp, presented)

		keepAlive := s.decideKeepAlive(req, conn)
		if !keepAlive {
			resp.Header.Set("Connection", "close")
		}

		if resp.Queue != "" && QueueName(resp.Queue) != currentQueue {
			target := QueueName(resp.Queue)
			if err := s.scheduler.Hop(s.ctx, currentQueue, target); err != nil {
				heldQueue = ""
				s.emitError(lwerr.QueueHopError(string(target), err))
				s.cleanupUploads(req)
				reason = "queue hop failed"
				return
			}
			currentQueue = target
			heldQueue = target
			s.cfg.Logger.Debug("queue hop", zap.String("conn", conn.ID), zap.String("to", string(target)))
		}

		if resp.Upgrade != nil {
			_ = resp.Upgrade(req, in, out, s.ctx.Done())
			s.cleanupUploads(req)
			reason = "upgraded"
			return
		}

		writer := http11.NewWriter(out, s.cfg.ServerName)
		if err := writer.WriteResponse(req, resp); err != nil {
			reason = "response write failed"
			if !isBenignEOF(err) {
				s.emitError(err)
			}
			s.cleanupUploads(req)
			return
		}
		s.cleanupUploads(req)

		if !s.drainBody(req) {
			conn.MarkDead()
		}

		if !keepAlive || !conn.Alive() {
			return
		}
	}
}

// isTimeout reports whether err (or anything it wraps) is a net.Error
// that timed out, the signal spec.md §4.4 step 2's first-request
// deadline produces.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isBenignEOF reports whether err is simply the other end closing the
// connection, which spec.md §7 says is expected rather than an error
// worth forwarding to the serverError hook.
func isBenignEOF(err error) bool {
	return errors.Is(err, lwerr.ErrEndOfStream)
}

// emitClientConnected signals spec.md §4.4 step 1.
func (s *Server) emitClientConnected(connID string) {
	s.cfg.Logger.Debug("client connected", zap.String("conn", connID))
	if s.cfg.Events.OnClientConnected != nil {
		s.cfg.Events.OnClientConnected(connID)
	}
}

// emitClientDisconnected signals spec.md §4.4 step 12 ("signal
// clientDisconnected with a reason").
func (s *Server) emitClientDisconnected(connID, reason string) {
	s.cfg.Logger.Debug("client disconnected", zap.String("conn", connID), zap.String("reason", reason))
	if s.cfg.Events.OnClientDisconnected != nil {
		s.cfg.Events.OnClientDisconnected(connID, reason)
	}
}

// emitRequestTimeout signals spec.md §4.4 step 2 ("a timeout signals
// readRequestTimedOut and closes the connection").
func (s *Server) emitRequestTimeout(connID string) {
	s.cfg.Logger.Warn("read request timed out", zap.String("conn", connID))
	if s.cfg.Events.OnRequestTimeout != nil {
		s.cfg.Events.OnRequestTimeout(connID)
	}
}

// emitError is spec.md §7's serverError(callback) hook: "Every error is
// forwarded ... for observability; no error is silently swallowed."
// Every framing, hop and write failure the worker loop would otherwise
// just return on funnels through here instead.
func (s *Server) emitError(err error) {
	s.cfg.Logger.Error("server error", zap.Error(err))
	if s.cfg.Events.OnServerError != nil {
		s.cfg.Events.OnServerError(err)
	}
}

// readRequestLine reads the request line, applying
// Config.InitialRequestTimeout only to the very first request on a
// freshly accepted connection (spec.md §4.4 step 2): a client that
// opens a connection and never sends anything is reclaimed, but a
// client idling between keep-alive requests is not.
func (s *Server) readRequestLine(netConn net.Conn, in *stream.Input, firstRequest bool) (http11.RequestHead, error) {
	if firstRequest && s.cfg.InitialRequestTimeout > 0 {
		netConn.SetReadDeadline(time.Now().Add(s.cfg.InitialRequestTimeout))
		defer netConn.SetReadDeadline(time.Time{})
	}
	return s.parser.ParseRequestLine(in)
}

// attachSession looks up the session named by Config.SessionCookie in
// req's Cookie header and attaches it to req.Session when found and
// live (spec.md §4.5 session collaborator contract). It reports
// whether a session cookie was presented at all, which the writer
// needs to know whether to expire a stale cookie.
func (s *Server) attachSession(req *http11.Request) bool {
	if s.cfg.Sessions == nil {
		return false
	}
	for _, c := range req.Header.Cookies() {
		if c.Name != s.cfg.SessionCookie {
			continue
		}
		if sess, ok := s.cfg.Sessions.Get(c.Value); ok {
			req.Session = sess
		}
		return true
	}
	return false
}

// finalizeSession persists a session a handler created or mutated and
// tags resp with the cookie bookkeeping Writer.WriteResponse needs
// (spec.md §4.5).
func (s *Server) finalizeSession(resp *http11.Response, presented bool) {
	resp.SessionPresented = presented
	resp.SessionCookieName = s.cfg.SessionCookie
	if s.cfg.Sessions != nil && resp.Session != nil {
		s.cfg.Sessions.Save(resp.Session)
	}
}

// decideKeepAlive folds Config.KeepAliveMaxRequests into the
// HTTP-version/Connection-header rule that http11.Writer already
// applies on its own (spec.md §4.4 step 10, §4.5): the writer cannot
// see the connection's request count, so the worker enforces the cap
// by forcing "Connection: close" onto the response before it's written.
func (s *Server) decideKeepAlive(req *http11.Request, conn *http11.Connection) bool {
	if req.Version != "HTTP/1.1" {
		return false
	}
	for _, t := range req.Header.ConnectionTokens() {
		if strings.EqualFold(t, "close") {
			return false
		}
	}
	if s.cfg.KeepAliveMaxRequests > 0 && conn.RequestCount() >= s.cfg.KeepAliveMaxRequests {
		return false
	}
	return true
}

// dispatch resolves a route for req and invokes its handler, recovering
// a panicking handler into the controller's fallback (or a bare 500
// when none is installed) and translating route-resolution failures
// into 404/405 (spec.md §4.3, §7).
func (s *Server) dispatch(controller *route.Controller, req *http11.Request) (resp *http11.Response) {
	handler, identities, err := controller.Resolve(req.Method, req.Path, req.QueryItems)
	if err != nil {
		return s.routeErrorResponse(err)
	}
	req.Identities = identities

	defer func() {
		if r := recover(); r != nil {
			err := lwerr.HandlerError(errFromRecover(r))
			s.emitError(err)
			resp = s.handlerErrorResponse(controller, err)
		}
	}()
	return handler(req, identities)
}

func errFromRecover(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New("handler panic")
}

func (s *Server) routeErrorResponse(err error) *http11.Response {
	resp := http11.NewResponse()
	if containsMethodNotAllowed(err) {
		resp.Status = 405
		resp.SetBytes("text/plain; charset=utf-8", []byte("405 method not allowed"))
		return resp
	}
	resp.Status = 404
	resp.SetBytes("text/plain; charset=utf-8", []byte("404 not found"))
	return resp
}

func containsMethodNotAllowed(err error) bool {
	var e *lwerr.Error
	if errors.As(err, &e) {
		return e.Detail == "method not allowed"
	}
	return false
}

func (s *Server) handlerErrorResponse(controller *route.Controller, err error) *http11.Response {
	if fb := controller.Fallback(); fb != nil {
		return fb(nil, nil)
	}
	resp := http11.NewResponse()
	resp.Status = 500
	resp.SetBytes("text/plain; charset=utf-8", []byte("500 internal server error"))
	return resp
}

// writeErrorResponse writes a bare status/body response with no
// request context, used for framing failures (400) and the
// first-request read timeout (408) that happen before a *Request
// exists (spec.md §7).
func (s *Server) writeErrorResponse(out *stream.Output, status int, body string) {
	w := http11.NewWriter(out, s.cfg.ServerName)
	resp := http11.NewResponse()
	resp.Status = status
	resp.SetBytes("text/plain; charset=utf-8", []byte(body))
	_ = w.WriteResponse(nil, resp)
}

// cleanupUploads removes any multipart temp files the parser staged
// for req, unless a handler already consumed or relocated them
// (spec.md §4.2 "temp upload lifetime").
func (s *Server) cleanupUploads(req *http11.Request) {
	for _, f := range req.UploadedFiles {
		_ = removeTempFile(f.TempPath)
	}
}

// drainBody consumes any unread body bytes so the connection can be
// reused for the next keep-alive request (spec.md §4.4 step 11);
// returning false means the stream could not be brought back into a
// known state and the connection must be closed instead of reused.
func (s *Server) drainBody(req *http11.Request) bool {
	in, ok := req.Body.(*stream.Input)
	if !ok || in == nil {
		return true
	}
	if in.FullyConsumed() {
		return true
	}
	return in.Drain() == nil
}
