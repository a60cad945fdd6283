package http11

import (
	"fmt"
	"mime"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/littleweb/pkg/littleweb/lwerr"
	"github.com/yourusername/littleweb/pkg/littleweb/session"
	"github.com/yourusername/littleweb/pkg/littleweb/stream"
)

// BodyKind discriminates the Response body variants named in spec.md §3.
type BodyKind int

const (
	EmptyBody BodyKind = iota
	BytesBody
	FileBody
	StreamBody
)

// StreamFunc is a custom body writer given the request's input stream
// (or an empty one when none applies) and the response output stream
// (spec.md §4.5 "Body writing").
type StreamFunc func(in *stream.Input, out *stream.Output) error

// Response is the mutable builder a handler populates (spec.md §3).
// Status defaults to 200 if left zero at finalization.
type Response struct {
	Status int
	Reason string
	Header Header

	BodyKind BodyKind

	BytesValue       []byte
	BytesContentType string

	FilePath    string
	FileRange   *stream.ByteRange
	FileLimiter *stream.RateLimiter

	Stream StreamFunc

	// Queue is the worker queue the response asks to be written from;
	// when it differs from the queue the request arrived on, the
	// scheduler performs a hop before writing (spec.md §4.4 step 9).
	Queue string

	// Session, when set, drives the cookie lifecycle in Finalize
	// (spec.md §4.5). A nil Session with SessionPresented true means
	// "the request carried a session cookie that should be expired".
	Session           *session.Session
	SessionPresented  bool
	SessionCookieName string

	// Upgrade, when set, takes over the connection instead of going
	// through Writer: the worker hops to Queue (if different from the
	// one it is running on) and then calls Upgrade directly with the
	// raw streams, skipping content negotiation, conditional/range
	// handling and the session cookie lifecycle entirely (spec.md §4.6
	// "Upgrade"). done is closed when the server begins a graceful
	// shutdown, so a long-lived protocol loop can exit cleanly.
	Upgrade UpgradeFunc
}

// UpgradeFunc hands a protocol handoff (the WebSocket layer, for
// instance) the request and the raw connection streams once the
// worker has stopped treating the connection as HTTP/1.1 request/response.
type UpgradeFunc func(req *Request, in *stream.Input, out *stream.Output, done <-chan struct{}) error

// NewResponse returns a Response defaulted to 200 OK with no body.
func NewResponse() *Response {
	return &Response{Status: 200, SessionCookieName: "littleweb_sid"}
}

// SetBytes sets an in-memory byte body with an explicit content type.
func (r *Response) SetBytes(contentType string, body []byte) {
	r.BodyKind = BytesBody
	r.BytesValue = body
	r.BytesContentType = contentType
}

// SetFile sets a file-path body, optionally scoped to rng and paced by limiter.
func (r *Response) SetFile(path string, rng *stream.ByteRange, limiter *stream.RateLimiter) {
	r.BodyKind = FileBody
	r.FilePath = path
	r.FileRange = rng
	r.FileLimiter = limiter
}

// SetStream sets a custom streaming body.
func (r *Response) SetStream(fn StreamFunc) {
	r.BodyKind = StreamBody
	r.Stream = fn
}

// Writer finalizes and writes a Response onto an output stream
// (spec.md §4.5). One Writer is used per response; sendHeadIfNeeded
// sends the status line and headers only once, so a StreamFunc that
// issues multiple write passes does not re-emit the head.
type Writer struct {
	out        *stream.Output
	headerSent bool
	serverName string
}

// NewWriter wraps out for a single response, tagging the Server header
// with serverName (empty disables the header).
func NewWriter(out *stream.Output, serverName string) *Writer {
	return &Writer{out: out, serverName: serverName}
}

// WriteResponse finalizes resp against req (content negotiation,
// session cookie lifecycle, conditional/range handling) and writes it.
func (w *Writer) WriteResponse(req *Request, resp *Response) error {
	if resp.Status == 0 {
		resp.Status = 200
	}

	w.applySessionCookies(resp)
	w.applyContentNegotiation(resp)

	keepAlive := w.decideConnectionHeader(req, resp)

	if handled, err := w.applyConditionalAndRange(req, resp); err != nil {
		return err
	} else if handled {
		if err := w.sendHeadIfNeeded(resp); err != nil {
			return err
		}
		if !keepAlive {
			return w.out.Close()
		}
		return w.out.Flush()
	}

	if err := w.sendHeadIfNeeded(resp); err != nil {
		return err
	}
	if err := w.writeBody(req, resp); err != nil {
		return err
	}
	if resp.Header.IsChunked() {
		return w.out.Close()
	}
	if !keepAlive {
		return w.out.Close()
	}
	return w.out.Flush()
}

// applySessionCookies implements spec.md §4.5's cookie finalization
// order: expire stale session cookies, then set or remove the active one.
func (w *Writer) applySessionCookies(resp *Response) {
	if resp.Session == nil {
		if resp.SessionPresented {
			resp.Header.Add("Set-Cookie", fmt.Sprintf("%s=; Path=/; Max-Age=0; HttpOnly", resp.SessionCookieName))
		}
		return
	}
	if resp.Session.Invalidated || resp.Session.Empty() {
		resp.Header.Add("Set-Cookie", fmt.Sprintf("%s=; Path=/; Max-Age=0; HttpOnly", resp.SessionCookieName))
		return
	}
	resp.Header.Add("Set-Cookie", fmt.Sprintf("%s=%s; Path=/; HttpOnly", resp.SessionCookieName, resp.Session.ID))
}

// applyContentNegotiation fills in Content-Type when unset, by the
// body's declared type or (for file bodies) by extension (spec.md §4.5).
func (w *Writer) applyContentNegotiation(resp *Response) {
	if resp.Header.Has("Content-Type") {
		return
	}
	switch resp.BodyKind {
	case BytesBody:
		if resp.BytesContentType != "" {
			resp.Header.Set("Content-Type", resp.BytesContentType)
		}
	case FileBody:
		if ct := mime.TypeByExtension(extOf(resp.FilePath)); ct != "" {
			resp.Header.Set("Content-Type", ct)
		}
	}
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx:]
}

// decideConnectionHeader applies spec.md §4.5's Connection header rule
// and returns whether the connection should stay open.
func (w *Writer) decideConnectionHeader(req *Request, resp *Response) bool {
	if req == nil || req.Version != "HTTP/1.1" {
		resp.Header.Set("Connection", "close")
		return false
	}
	tokens := req.Header.ConnectionTokens()
	for _, t := range tokens {
		if strings.EqualFold(t, "close") {
			resp.Header.Set("Connection", "close")
			return false
		}
	}
	resp.Header.Set("Connection", "keep-alive")
	return true
}

// sendHeadIfNeeded emits the status line and headers exactly once per
// response (spec.md §4.5).
func (w *Writer) sendHeadIfNeeded(resp *Response) error {
	if w.headerSent {
		return nil
	}
	w.headerSent = true

	if !resp.Header.Has("Date") {
		resp.Header.Set("Date", time.Now().UTC().Format(http1123))
	}
	if w.serverName != "" && !resp.Header.Has("Server") {
		resp.Header.Set("Server", w.serverName)
	}

	if !resp.Header.Has("Content-Length") && !resp.Header.Has("Transfer-Encoding") {
		if n, ok := computableLength(resp); ok {
			resp.Header.Set("Content-Length", strconv.FormatInt(n, 10))
		} else {
			resp.Header.Set("Transfer-Encoding", "chunked")
			w.out.EnableChunked()
		}
	} else if resp.Header.IsChunked() {
		w.out.EnableChunked()
	}

	reason := resp.Reason
	if reason == "" {
		reason = ReasonPhrase(resp.Status)
	}
	if err := w.out.WriteUTF8Line(fmt.Sprintf("HTTP/1.1 %d %s", resp.Status, reason)); err != nil {
		return err
	}
	if err := resp.Header.WriteTo(w.out); err != nil {
		return err
	}
	return w.out.WriteUTF8Line("")
}

const http1123 = "Mon, 02 Jan 2006 15:04:05 GMT"

// fileETag derives a weak entity tag from a file's modification time
// and size, the same inputs spec.md §4.5's conditional resolution
// already stats for If-Modified-Since, so If-Match/If-None-Match can be
// resolved without a second filesystem round trip or a caller-supplied
// tag.
func fileETag(modTime time.Time, size int64) string {
	return fmt.Sprintf(`W/"%x-%x"`, modTime.UnixNano(), size)
}

// etagMatchesAny reports whether etag satisfies any entry in tags,
// honoring the "*" wildcard (spec.md §4.5 "if the resource matches
// If-Match/If-None-Match").
func etagMatchesAny(etag string, tags []string) bool {
	for _, t := range tags {
		if t == "*" || t == etag || strings.TrimPrefix(t, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}

func computableLength(resp *Response) (int64, bool) {
	switch resp.BodyKind {
	case EmptyBody:
		return 0, true
	case BytesBody:
		return int64(len(resp.BytesValue)), true
	case FileBody:
		if resp.FileRange != nil && resp.FileRange.Hi >= resp.FileRange.Lo {
			return resp.FileRange.Hi - resp.FileRange.Lo + 1, true
		}
		info, err := os.Stat(resp.FilePath)
		if err != nil {
			return 0, false
		}
		return info.Size(), true
	default:
		return 0, false
	}
}

// writeBody dispatches to the variant-specific writer (spec.md §4.5
// "Body writing").
func (w *Writer) writeBody(req *Request, resp *Response) error {
	switch resp.BodyKind {
	case EmptyBody:
		return nil
	case BytesBody:
		return w.out.WriteBytes(resp.BytesValue)
	case FileBody:
		return w.writeFileBody(resp)
	case StreamBody:
		var in *stream.Input
		if req != nil {
			if bi, ok := req.Body.(*stream.Input); ok {
				in = bi
			}
		}
		return resp.Stream(in, w.out)
	default:
		return nil
	}
}

func (w *Writer) writeFileBody(resp *Response) error {
	f, err := os.Open(resp.FilePath)
	if err != nil {
		return lwerr.StreamError("open response file", err)
	}
	defer f.Close()

	rng := stream.ByteRange{Lo: 0, Hi: -1}
	if resp.FileRange != nil {
		rng = *resp.FileRange
	}
	_, err = w.out.WriteContentsOfFile(f, rng, resp.FileLimiter)
	return err
}

// rangeSpec is one parsed "a-b" / "a-" / "-n" entry from a Range header.
type rangeSpec struct {
	Lo, Hi int64 // Hi == -1 means "to end"
}

// applyConditionalAndRange resolves conditional-request headers and
// Range requests before the body is written (spec.md §4.5 "Range
// semantics"). It returns handled=true when it has already produced
// the full response (304/416) and no further body write is needed; a
// 206 returns false with resp rewritten for the normal body write.
func (w *Writer) applyConditionalAndRange(req *Request, resp *Response) (handled bool, err error) {
	if req == nil || resp.BodyKind != FileBody {
		return false, nil
	}
	info, statErr := os.Stat(resp.FilePath)
	if statErr != nil {
		return false, nil
	}
	modTime := info.ModTime()
	size := info.Size()
	etag := fileETag(modTime, size)

	if ims, ok := req.Header.IfModifiedSince(); ok && !modTime.After(ims) {
		resp.Status = 304
		resp.BodyKind = EmptyBody
		resp.Header.Set("Last-Modified", modTime.UTC().Format(http1123))
		resp.Header.Set("ETag", etag)
		return true, nil
	}
	if tags := req.Header.IfMatch(); len(tags) > 0 && etagMatchesAny(etag, tags) {
		resp.Status = 304
		resp.BodyKind = EmptyBody
		resp.Header.Set("Last-Modified", modTime.UTC().Format(http1123))
		resp.Header.Set("ETag", etag)
		return true, nil
	}
	if tags := req.Header.IfNoneMatch(); len(tags) > 0 && etagMatchesAny(etag, tags) {
		resp.Status = 304
		resp.BodyKind = EmptyBody
		resp.Header.Set("Last-Modified", modTime.UTC().Format(http1123))
		resp.Header.Set("ETag", etag)
		return true, nil
	}

	rawRange, hasRange := req.Header.Range()
	if !hasRange {
		return false, nil
	}
	specs, ok := parseRangeHeader(rawRange, size)
	if !ok {
		resp.Status = 416
		resp.BodyKind = EmptyBody
		resp.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		return true, nil
	}

	if len(specs) == 1 {
		resp.Status = 206
		resp.FileRange = &stream.ByteRange{Lo: specs[0].Lo, Hi: specs[0].Hi}
		resp.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", specs[0].Lo, specs[0].Hi, size))
		return false, nil
	}

	return w.writeMultipartByteranges(resp, specs, size)
}

// writeMultipartByteranges replaces resp's body with a StreamBody that
// emits each range as a multipart/byteranges sub-part (spec.md §4.5).
func (w *Writer) writeMultipartByteranges(resp *Response, specs []rangeSpec, size int64) (bool, error) {
	boundary := uuid.NewString()
	innerType := resp.Header.Get("Content-Type")
	path := resp.FilePath

	resp.Status = 206
	resp.Header.Set("Content-Type", "multipart/byteranges; boundary="+boundary)
	resp.Header.Del("Content-Length")
	resp.Header.Set("Transfer-Encoding", "chunked")

	resp.SetStream(func(in *stream.Input, out *stream.Output) error {
		f, err := os.Open(path)
		if err != nil {
			return lwerr.StreamError("open response file", err)
		}
		defer f.Close()
		for _, s := range specs {
			if err := out.WriteUTF8Line("--" + boundary); err != nil {
				return err
			}
			if innerType != "" {
				if err := out.WriteUTF8Line("Content-Type: " + innerType); err != nil {
					return err
				}
			}
			if err := out.WriteUTF8Line(fmt.Sprintf("Content-Range: bytes %d-%d/%d", s.Lo, s.Hi, size)); err != nil {
				return err
			}
			if err := out.WriteUTF8Line(""); err != nil {
				return err
			}
			if _, err := out.WriteContentsOfFile(f, stream.ByteRange{Lo: s.Lo, Hi: s.Hi}, nil); err != nil {
				return err
			}
			if err := out.WriteUTF8Line(""); err != nil {
				return err
			}
		}
		return out.WriteUTF8Line("--" + boundary + "--")
	})
	return false, nil
}

// parseRangeHeader parses "bytes=a-b,c-d,..." into inclusive,
// size-clamped specs. Unsatisfiable specifiers are dropped; returns
// ok=false when every specifier is unsatisfiable or any is malformed
// (spec.md §4.5).
func parseRangeHeader(raw string, size int64) ([]rangeSpec, bool) {
	if !strings.HasPrefix(raw, "bytes=") {
		return nil, false
	}
	raw = strings.TrimPrefix(raw, "bytes=")
	var specs []rangeSpec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		dash := strings.IndexByte(part, '-')
		if dash < 0 {
			return nil, false
		}
		loStr, hiStr := part[:dash], part[dash+1:]
		var spec rangeSpec
		switch {
		case loStr == "": // "-n": last n bytes
			n, err := strconv.ParseInt(hiStr, 10, 64)
			if err != nil || n <= 0 {
				return nil, false
			}
			if n > size {
				n = size
			}
			spec = rangeSpec{Lo: size - n, Hi: size - 1}
		case hiStr == "": // "a-": from a to end
			lo, err := strconv.ParseInt(loStr, 10, 64)
			if err != nil || lo < 0 {
				return nil, false
			}
			if lo >= size {
				continue
			}
			spec = rangeSpec{Lo: lo, Hi: size - 1}
		default: // "a-b"
			lo, err1 := strconv.ParseInt(loStr, 10, 64)
			hi, err2 := strconv.ParseInt(hiStr, 10, 64)
			if err1 != nil || err2 != nil || lo < 0 || hi < lo {
				return nil, false
			}
			if lo >= size {
				continue
			}
			if hi >= size {
				hi = size - 1
			}
			spec = rangeSpec{Lo: lo, Hi: hi}
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, false
	}
	sort.SliceStable(specs, func(i, j int) bool { return specs[i].Lo < specs[j].Lo })
	return specs, true
}
