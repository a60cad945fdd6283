// Package lwerr defines the error taxonomy shared across littleweb's
// subsystems: byte streams, the HTTP/1.1 parser, the route matcher,
// the connection scheduler and the WebSocket layer.
//
// Every kind wraps an underlying cause (when one exists) with
// github.com/pkg/errors so callers can still recover the root cause
// via errors.Cause while the kind gives dispatchers (the request
// worker, the serverError hook) a stable switch target.
package lwerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind discriminates error categories without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindStream
	KindMalformedRequest
	KindBodyDecode
	KindRoute
	KindHandler
	KindQueueHop
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindMalformedRequest:
		return "malformed_request"
	case KindBodyDecode:
		return "body_decode"
	case KindRoute:
		return "route"
	case KindHandler:
		return "handler"
	case KindQueueHop:
		return "queue_hop"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error is the common shape for every littleweb error: a Kind, an
// implementation-specific Detail and an optional wrapped Cause.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("littleweb: %s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("littleweb: %s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(k Kind, detail string, cause error) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: k, Detail: detail, Cause: cause}
}

// StreamError wraps a byte-stream I/O failure (spec §4.1/§7).
func StreamError(detail string, cause error) *Error { return newErr(KindStream, detail, cause) }

// MalformedRequest wraps an invalid request line, header block,
// chunked framing or multipart framing failure (spec §4.2/§7).
func MalformedRequest(detail string) *Error { return newErr(KindMalformedRequest, detail, nil) }

// BodyDecodeError wraps a urlencoded-form or multipart decode failure.
// detail is used as given: the multipart text-part UTF-8 failure names
// the part in it, while file-part and other part-read failures do not.
func BodyDecodeError(detail string, cause error) *Error {
	return newErr(KindBodyDecode, detail, cause)
}

// RouteError wraps "no matching route", "method not allowed" and
// transform failures (spec §4.3/§7).
func RouteError(detail string) *Error { return newErr(KindRoute, detail, nil) }

// HandlerError wraps an error surfaced by a user handler (spec §7).
func HandlerError(cause error) *Error { return newErr(KindHandler, "handler error", cause) }

// QueueHopError wraps a failure during a worker-queue hop (spec §4.4/§7).
func QueueHopError(queue string, cause error) *Error {
	return newErr(KindQueueHop, fmt.Sprintf("hop to queue %q failed", queue), cause)
}

// ErrShutdownInProgress is terminal and non-retryable (spec §7).
var ErrShutdownInProgress = newErr(KindShutdown, "server is shutting down", nil)

// Sentinel leaf errors used by the byte-stream and parser layers.
var (
	ErrEndOfStream               = errors.New("lwerr: end of stream")
	ErrMalformedLine             = errors.New("lwerr: malformed line (invalid UTF-8 or missing CRLF)")
	ErrInvalidRequestHead        = errors.New("lwerr: invalid request head")
	ErrMalformedHeader           = errors.New("lwerr: malformed header")
	ErrBoundaryNotFound          = errors.New("lwerr: multipart boundary not found")
	ErrUnexpectedBoundaryTrailer = errors.New("lwerr: unexpected multipart boundary trailer")
	ErrBodyAlreadyConsumed       = errors.New("lwerr: request body already consumed")
)

// Is allows errors.Is(err, lwerr.KindRoute) style checks against the
// Kind by comparing *Error.Kind, since Kind does not implement error.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
