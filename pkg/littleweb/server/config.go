package server

import (
	"net"
	"strings"
	"time"

	"github.com/yourusername/littleweb/pkg/littleweb/route"
	"github.com/yourusername/littleweb/pkg/littleweb/session"
	"github.com/yourusername/littleweb/pkg/littleweb/socket"
	"go.uber.org/zap"
)

// QueueName identifies a worker queue: the built-in "request" and
// "websocket" queues, or a custom name a handler hops to (spec.md §3
// WorkerQueue).
type QueueName string

const (
	QueueRequest   QueueName = "request"
	QueueWebSocket QueueName = "websocket"
)

// Limits carries the scheduler's per-queue and global concurrency caps
// (spec.md §4.4). -1 means unbounded; the request queue must have a
// defined entry.
type Limits struct {
	MaxPerQueue map[QueueName]int
	MaxTotal    int
}

// DefaultLimits returns a Limits with the request queue bounded and
// everything else unbounded.
func DefaultLimits(maxRequestWorkers int) Limits {
	return Limits{
		MaxPerQueue: map[QueueName]int{QueueRequest: maxRequestWorkers},
		MaxTotal:    -1,
	}
}

// Events carries the lifecycle callbacks spec.md §2(7)/§4.4/§7 name:
// clientConnected and clientDisconnected bracket a worker's hold on a
// connection, OnRequestTimeout fires when the first-request read
// deadline trips, and OnServerError is the serverError(callback) hook
// spec.md §7 requires for every error a worker would otherwise swallow
// (framing failures, hop failures, write failures). Every field is
// optional; Config.Logger always receives the same events regardless of
// what Events sets, so a caller that only wants logs can leave Events
// zero.
type Events struct {
	OnClientConnected    func(connID string)
	OnClientDisconnected func(connID, reason string)
	OnRequestTimeout     func(connID string)
	OnServerError        func(err error)
}

// Config configures a Server (spec.md §4.4, §6 "Address and listener
// configuration").
type Config struct {
	// Addr is either "host:port" (ipv4/ipv6, port 0 for first
	// available), or "unix://<path>" for a Unix domain socket.
	Addr string

	Limits Limits

	// InitialRequestTimeout bounds the first request-head read on a
	// freshly accepted connection; zero disables the timeout.
	InitialRequestTimeout time.Duration

	// KeepAliveMaxRequests caps requests served per connection before
	// keep-alive is refused; zero means unlimited.
	KeepAliveMaxRequests int32

	// ThreadStopTimeout bounds how long shutdown waits for each
	// worker to finish before force-closing its connection.
	ThreadStopTimeout time.Duration

	// HopPollInterval is the cadence waitForQueueToBeAvailable spins
	// at; defaults to 100ms (spec.md §4.4 "Backpressure").
	HopPollInterval time.Duration

	TempLocation string
	ServerName   string

	Hosts         *route.HostRegistry
	Sessions      *session.Manager
	SessionCookie string
	Logger        *zap.Logger

	// Events receives the spec.md §7 lifecycle/error callbacks. Zero
	// value means "logging only" — every event still reaches Logger.
	Events Events

	// Socket carries the TCP tuning options applied to the listener
	// and to every accepted connection (spec.md §6 "Address and
	// listener configuration"); nil is replaced by the SocketProfile
	// preset (DefaultConfig for an empty profile), so tuning always runs.
	Socket *socket.Config

	// SocketProfile selects a built-in socket.Config preset when
	// Socket itself is left nil, so a config decoded from a plain map
	// (see pkg/littleweb/config) can pick a tuning profile by name
	// instead of constructing a socket.Config literal.
	SocketProfile socket.Profile
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.HopPollInterval <= 0 {
		out.HopPollInterval = 100 * time.Millisecond
	}
	if out.ThreadStopTimeout <= 0 {
		out.ThreadStopTimeout = 10 * time.Second
	}
	if out.SessionCookie == "" {
		out.SessionCookie = "littleweb_sid"
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.Limits.MaxPerQueue == nil {
		out.Limits = DefaultLimits(256)
	}
	if out.Socket == nil {
		out.Socket = socket.ConfigForProfile(out.SocketProfile)
	}
	return out
}

// ResolveListenAddr parses Config.Addr into a network and address pair
// for net.Listen, supporting "unix://<path>" and ipv4/ipv6 host:port
// forms (spec.md §6).
func ResolveListenAddr(addr string) (network, address string) {
	if strings.HasPrefix(addr, "unix://") {
		return "unix", strings.TrimPrefix(addr, "unix://")
	}
	return "tcp", addr
}

// Listen opens a listener for addr. Port 0 in a host:port address
// is handled by net.Listen itself, which binds the first available
// port; the caller reads it back via listener.Addr() (spec.md §6).
func Listen(addr string) (net.Listener, error) {
	network, address := ResolveListenAddr(addr)
	return net.Listen(network, address)
}
