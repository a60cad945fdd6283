package http11

import (
	"net/url"
	"strings"

	"github.com/yourusername/littleweb/pkg/littleweb/lwerr"
	"github.com/yourusername/littleweb/pkg/littleweb/stream"
)

// ParserConfig carries the knobs the worker loop supplies to a Parser
// (spec.md §4.4 steps 5-7): where multipart uploads are staged and how
// large a request line/header block is tolerated.
type ParserConfig struct {
	TempLocation       string
	MaxRequestLineSize int
	MaxHeadersSize     int
}

// DefaultParserConfig returns the size limits from constants.go.
func DefaultParserConfig(tempLocation string) ParserConfig {
	return ParserConfig{
		TempLocation:       tempLocation,
		MaxRequestLineSize: MaxRequestLineSize,
		MaxHeadersSize:     MaxHeadersSize,
	}
}

// Parser turns a connection's byte stream into a Request, following
// the wire rules of spec.md §4.2.
type Parser struct {
	cfg ParserConfig
}

// NewParser constructs a Parser bound to cfg.
func NewParser(cfg ParserConfig) *Parser { return &Parser{cfg: cfg} }

// RequestHead is the parsed, not-yet-validated result of the request
// line (spec.md §4.2 "Request head").
type RequestHead struct {
	Method    uint8
	RawTarget string
	Path      string
	RawQuery  string
	Version   string
}

// ParseRequestLine reads one line from in and splits it into method,
// raw-request-target and version, rejecting malformed heads per
// spec.md §4.2.
func (p *Parser) ParseRequestLine(in *stream.Input) (RequestHead, error) {
	line, err := in.ReadLine()
	if err != nil {
		return RequestHead{}, err
	}
	if len(line) > p.limitOr(p.cfg.MaxRequestLineSize, MaxRequestLineSize) {
		return RequestHead{}, lwerr.MalformedRequest("request line too long")
	}
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return RequestHead{}, invalidRequestHead(line)
	}
	methodTok, target, version := parts[0], parts[1], parts[2]
	if !strings.HasPrefix(version, "HTTP/") {
		return RequestHead{}, invalidRequestHead(line)
	}
	methodID := ParseMethodID(methodTok)
	if methodID == MethodUnknown {
		return RequestHead{}, invalidRequestHead(line)
	}

	rawPath := target
	rawQuery := ""
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		rawPath = target[:idx]
		rawQuery = target[idx+1:]
	}
	decodedPath, err := url.PathUnescape(rawPath)
	if err != nil {
		return RequestHead{}, invalidRequestHead(line)
	}

	return RequestHead{
		Method:    methodID,
		RawTarget: target,
		Path:      decodedPath,
		RawQuery:  rawQuery,
		Version:   version,
	}, nil
}

// invalidRequestHead wraps lwerr.ErrInvalidRequestHead as the cause,
// matching spec §7's InvalidRequestHead(line) error kind.
func invalidRequestHead(line string) error {
	e := lwerr.MalformedRequest("invalid request head: " + line)
	e.Cause = lwerr.ErrInvalidRequestHead
	return e
}

func (p *Parser) limitOr(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}

// ParseHeaders reads lines until a blank line, splitting each on the
// first ": " and canonicalizing known field names (spec.md §4.2
// "Headers").
func (p *Parser) ParseHeaders(in *stream.Input) (*Header, error) {
	h := &Header{}
	total := 0
	for {
		line, err := in.ReadLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		total += len(line)
		if total > p.limitOr(p.cfg.MaxHeadersSize, MaxHeadersSize) {
			return nil, lwerr.MalformedRequest("headers too large")
		}
		name, value := splitHeaderLine(line)
		if containsControlChar(name) {
			return nil, malformedHeaderErr("control character in header name: " + line)
		}
		if containsControlChar(value) {
			return nil, malformedHeaderErr("control character in header value: " + line)
		}
		if err := h.Add(name, value); err != nil {
			return nil, malformedHeaderErr("malformed header: " + line)
		}
	}
	return h, nil
}

// splitHeaderLine splits on the first ": ". A line with no such
// separator is stored with an empty value, matching spec.md §4.2's
// edge case.
func splitHeaderLine(line string) (name, value string) {
	idx := strings.Index(line, ": ")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], line[idx+2:]
}

// containsControlChar reports whether s holds a C0 control byte other
// than tab, the check spec.md §4.2's edge case applies to both header
// names and values ("control characters inside header values fail with
// MalformedHeader").
func containsControlChar(s string) bool {
	for _, b := range []byte(s) {
		if b < 0x20 && b != '\t' {
			return true
		}
	}
	return false
}

// malformedHeaderErr wraps lwerr.ErrMalformedHeader as the cause of a
// MalformedRequest, giving callers a stable sentinel to match via
// errors.Is alongside the human-readable detail.
func malformedHeaderErr(detail string) error {
	e := lwerr.MalformedRequest(detail)
	e.Cause = lwerr.ErrMalformedHeader
	return e
}

// BodyMode discriminates how the request body is framed on the wire.
type BodyMode int

const (
	BodyNone BodyMode = iota
	BodyChunked
	BodyContentLength
)

// SelectBodyMode applies spec.md §4.2's body-selection rules in order.
func SelectBodyMode(h *Header, methodID uint8) (BodyMode, int64) {
	if h.IsChunked() {
		return BodyChunked, -1
	}
	if n, ok := h.ContentLength(); ok && n >= 0 {
		if n == 0 {
			return BodyNone, 0
		}
		return BodyContentLength, n
	}
	return BodyNone, 0
}

// ParseRequest drives the full pipeline for one request on conn: the
// request line, headers, body-mode selection, and (when the
// content-type calls for it) urlencoded or multipart decoding into
// query items and uploaded files (spec.md §4.2, §4.4 steps 2-7).
func (p *Parser) ParseRequest(conn *Connection, in *stream.Input) (*Request, error) {
	head, err := p.ParseRequestLine(in)
	if err != nil {
		return nil, err
	}
	header, err := p.ParseHeaders(in)
	if err != nil {
		return nil, err
	}
	return p.FinishRequest(conn, in, head, header)
}

// FinishRequest completes request construction once the head and
// headers are already in hand: body-mode selection and, when the
// content-type calls for it, urlencoded or multipart decoding into
// query items and uploaded files (spec.md §4.2, §4.4 steps 5-7). The
// worker loop calls this directly so it can apply the first-request
// read deadline around ParseRequestLine alone (spec.md §4.4 step 2)
// without it covering body decoding too.
func (p *Parser) FinishRequest(conn *Connection, in *stream.Input, head RequestHead, header *Header) (*Request, error) {
	mode, length := SelectBodyMode(header, head.Method)
	bodyIn := in
	switch mode {
	case BodyChunked:
		bodyIn.EnableChunked()
	case BodyContentLength:
		bodyIn.EnableContentLengthLimit(length)
	}

	req := &Request{
		Method:     head.Method,
		Scheme:     conn.Scheme,
		Path:       head.Path,
		RawQuery:   head.RawQuery,
		QueryItems: ParseQueryItems(head.RawQuery),
		Version:    head.Version,
		Header:     header,
		Identities: map[string]Identity{},
		Connection: conn,
	}
	if mode != BodyNone {
		req.Body = bodyIn
	}

	mediaType, params := header.ContentType()
	switch {
	case strings.EqualFold(mediaType, "application/x-www-form-urlencoded"):
		if err := decodeURLEncodedBody(req, bodyIn, mode); err != nil {
			return nil, err
		}
	case strings.EqualFold(mediaType, "multipart/form-data"):
		boundary := params["boundary"]
		if boundary == "" {
			return nil, lwerr.MalformedRequest("multipart content-type missing boundary")
		}
		if err := decodeMultipartBody(req, bodyIn, boundary, p.cfg.TempLocation); err != nil {
			return nil, err
		}
	}

	return req, nil
}
