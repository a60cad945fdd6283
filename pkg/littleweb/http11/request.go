package http11

import (
	"io"

	"github.com/yourusername/littleweb/pkg/littleweb/lwerr"
)

// UploadedFile describes a file received through a multipart/form-data
// part that carried a filename (spec.md §3). It is owned by the
// Request until a queue hop transfers ownership to the new worker;
// whichever worker ultimately releases the request removes the temp
// file unless ownership was transferred.
type UploadedFile struct {
	FieldName    string // multipart part name
	DeclaredName string // filename as sent by the client
	TempPath     string // on-disk path under the configured upload directory
	ContentType  string
}

// Identity is a single captured path segment value produced by the
// route matcher (spec.md §4.3): Raw is always the matched string,
// Transformed holds the typed value when the segment carried a
// transform, and is nil otherwise.
type Identity struct {
	Raw         string
	Transformed interface{}
}

// Request is the immutable view handed to a handler once parsing
// completes (spec.md §3). Its body stream is consumed at most once;
// callers that need the raw bytes more than once must buffer them
// themselves.
type Request struct {
	Method   uint8
	Scheme   string
	Path     string // percent-decoded context path
	RawQuery string

	QueryItems []QueryItem
	Version    string // "HTTP/1.1" etc, echoed from the request line

	Header *Header

	UploadedFiles []UploadedFile

	// Body is the lazily-read stream selected by the parser's body
	// rules (spec.md §4.2); nil when the method defines no body.
	Body interface {
		Read(p []byte) (int, error)
	}

	// Session is attached by the session collaborator before the
	// handler runs, when a valid session cookie was presented.
	Session interface{}

	Identities map[string]Identity

	Connection   *Connection
	bodyConsumed bool
}

// QueryValue returns the first query item (from either the raw query
// string or a decoded form body) stored under name.
func (r *Request) QueryValue(name string) (string, bool) { return Get(r.QueryItems, name) }

// QueryValues returns every query item stored under name, in the
// order they were appended (spec.md §3: duplicates preserved).
func (r *Request) QueryValues(name string) []string { return GetAll(r.QueryItems, name) }

// Identity returns the captured path value for name and whether it
// was present in the matched route (spec.md §4.3).
func (r *Request) Identity(name string) (Identity, bool) {
	id, ok := r.Identities[name]
	return id, ok
}

// MethodString returns the canonical method token, e.g. "GET".
func (r *Request) MethodString() string { return MethodString(r.Method) }

// BodyConsumed reports whether the body stream has already been read
// from, matching the at-most-once invariant (spec.md §3).
func (r *Request) BodyConsumed() bool { return r.bodyConsumed }

// MarkBodyConsumed records that the body stream has been read from.
// Called by the parser's body-decoding helpers and by any handler
// collaborator that reads the stream directly.
func (r *Request) MarkBodyConsumed() { r.bodyConsumed = true }

// ConsumeBody hands back the request's body reader for a one-time read,
// enforcing spec.md §3's invariant that "a request's body stream is
// consumed at most once": a second call fails with
// lwerr.ErrBodyAlreadyConsumed instead of silently returning an already
// exhausted (or nil'd-out) reader. r.Body itself may legitimately be
// nil on the first call too, meaning the request has no body at all.
func (r *Request) ConsumeBody() (io.Reader, error) {
	if r.bodyConsumed {
		return nil, lwerr.StreamError("consume body", lwerr.ErrBodyAlreadyConsumed)
	}
	r.bodyConsumed = true
	return r.Body, nil
}
