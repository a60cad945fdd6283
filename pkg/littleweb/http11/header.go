package http11

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/littleweb/pkg/littleweb/lwerr"
)

// field is a single stored header occurrence, preserving the name's
// canonical casing and, for Set-Cookie, each occurrence separately.
type field struct {
	name  string // title-hyphen canonical form, e.g. "Content-Type"
	value string
}

// Header is a case-insensitive, order-preserving header collection
// (spec.md §3). Duplicated headers accumulate as a comma-joined value
// except for Set-Cookie, which preserves each occurrence (spec.md §4.2).
type Header struct {
	fields []field
}

// canonicalName title-cases a header name the way RFC 7230 examples
// conventionally render it ("content-type" -> "Content-Type"). Header.Add
// applies it to every name, so unknown fields are title-cased as well;
// no name is kept in its original spelling.
func canonicalName(name string) string {
	parts := strings.Split(name, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}

func isSetCookie(name string) bool { return strings.EqualFold(name, "Set-Cookie") }

// Add appends a header occurrence, applying spec.md §4.2's duplicate
// rule: Set-Cookie values are kept as separate occurrences, every
// other repeated name is merged into one comma-joined value.
func (h *Header) Add(name, value string) error {
	for _, b := range []byte(value) {
		if b == '\r' || b == '\n' {
			return lwerr.MalformedRequest("header value contains CR or LF")
		}
	}
	cname := canonicalName(name)
	if !isSetCookie(cname) {
		for i := range h.fields {
			if strings.EqualFold(h.fields[i].name, cname) {
				h.fields[i].value = h.fields[i].value + ", " + value
				return nil
			}
		}
	}
	h.fields = append(h.fields, field{name: cname, value: value})
	return nil
}

// Set replaces any existing occurrences of name with a single value.
func (h *Header) Set(name, value string) {
	cname := canonicalName(name)
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.name, cname) {
			out = append(out, f)
		}
	}
	h.fields = append(out, field{name: cname, value: value})
}

// Get returns the first value stored for name, or "" if absent.
func (h *Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return f.value
		}
	}
	return ""
}

// Values returns every occurrence stored for name, in insertion order
// (used for Set-Cookie, which is never comma-joined).
func (h *Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			out = append(out, f.value)
		}
	}
	return out
}

// Has reports whether name has at least one stored occurrence.
func (h *Header) Has(name string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return true
		}
	}
	return false
}

// Del removes every occurrence of name.
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// VisitAll calls visitor for each stored header in insertion order.
// Iteration stops if visitor returns false.
func (h *Header) VisitAll(visitor func(name, value string) bool) {
	for _, f := range h.fields {
		if !visitor(f.name, f.value) {
			return
		}
	}
}

// Len returns the number of stored header occurrences.
func (h *Header) Len() int { return len(h.fields) }

// Reset clears all headers for reuse.
func (h *Header) Reset() { h.fields = h.fields[:0] }

// Clone returns a deep copy safe to mutate independently.
func (h *Header) Clone() *Header {
	c := &Header{fields: make([]field, len(h.fields))}
	copy(c.fields, h.fields)
	return c
}

// --- Typed accessors (spec.md §3, expanded in SPEC_FULL.md §4.2.1) ---

// Host returns the Host header value.
func (h *Header) Host() string { return h.Get("Host") }

// ConnectionTokens returns the comma-separated Connection header
// tokens, lower-cased and trimmed (e.g. ["close"] or ["keep-alive"]).
func (h *Header) ConnectionTokens() []string {
	return splitCSV(strings.ToLower(h.Get("Connection")))
}

// ContentType returns the media type and any parameters (charset,
// boundary, ...) from the Content-Type header.
func (h *Header) ContentType() (mediaType string, params map[string]string) {
	raw := h.Get("Content-Type")
	if raw == "" {
		return "", nil
	}
	parts := strings.Split(raw, ";")
	mediaType = strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return mediaType, nil
	}
	params = make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		params[key] = val
	}
	return mediaType, params
}

// ContentLength returns the parsed Content-Length header and whether
// it was present and well-formed.
func (h *Header) ContentLength() (int64, bool) {
	raw := h.Get("Content-Length")
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// TransferEncodings returns the ordered Transfer-Encoding tokens.
func (h *Header) TransferEncodings() []string { return splitCSV(h.Get("Transfer-Encoding")) }

// IsChunked reports whether chunked is among the transfer encodings.
func (h *Header) IsChunked() bool {
	for _, tok := range h.TransferEncodings() {
		if strings.EqualFold(tok, "chunked") {
			return true
		}
	}
	return false
}

// Cookie is a single Cookie-header name/value pair as sent by a client.
type Cookie struct {
	Name  string
	Value string
}

// Cookies parses the Cookie header into name/value pairs.
func (h *Header) Cookies() []Cookie {
	raw := h.Get("Cookie")
	if raw == "" {
		return nil
	}
	var out []Cookie
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out = append(out, Cookie{Name: strings.TrimSpace(kv[0]), Value: strings.TrimSpace(kv[1])})
	}
	return out
}

// SetCookies returns the Set-Cookie header occurrences, one per entry.
func (h *Header) SetCookies() []string { return h.Values("Set-Cookie") }

// QValue is a header token with its RFC 7231 quality value, used for
// Accept/Accept-Language/Accept-Encoding ordering.
type QValue struct {
	Value string
	Q     float64
}

func parseQList(raw string) []QValue {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]QValue, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		q := 1.0
		segs := strings.Split(p, ";")
		value := strings.TrimSpace(segs[0])
		for _, seg := range segs[1:] {
			seg = strings.TrimSpace(seg)
			if strings.HasPrefix(seg, "q=") {
				if parsed, err := strconv.ParseFloat(strings.TrimPrefix(seg, "q="), 64); err == nil {
					q = parsed
				}
			}
		}
		out = append(out, QValue{Value: value, Q: q})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Q > out[j].Q })
	return out
}

// Accept returns the Accept header entries ordered by descending q-value.
func (h *Header) Accept() []QValue { return parseQList(h.Get("Accept")) }

// AcceptLanguage returns the Accept-Language header entries ordered by
// descending q-value.
func (h *Header) AcceptLanguage() []QValue { return parseQList(h.Get("Accept-Language")) }

// AcceptEncoding returns the Accept-Encoding header entries ordered by
// descending q-value.
func (h *Header) AcceptEncoding() []QValue { return parseQList(h.Get("Accept-Encoding")) }

// Range returns the raw Range header value (e.g. "bytes=0-9,20-29").
func (h *Header) Range() (string, bool) {
	v := h.Get("Range")
	return v, v != ""
}

// IfModifiedSince parses the If-Modified-Since header as HTTP-date.
func (h *Header) IfModifiedSince() (time.Time, bool) {
	return parseHTTPDate(h.Get("If-Modified-Since"))
}

// IfUnmodifiedSince parses the If-Unmodified-Since header as HTTP-date.
func (h *Header) IfUnmodifiedSince() (time.Time, bool) {
	return parseHTTPDate(h.Get("If-Unmodified-Since"))
}

func parseHTTPDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC1123, raw)
	if err != nil {
		t, err = time.Parse(time.RFC1123Z, raw)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}

// IfMatch returns the If-Match header's comma-separated entity tags.
func (h *Header) IfMatch() []string { return splitCSV(h.Get("If-Match")) }

// IfNoneMatch returns the If-None-Match header's comma-separated entity tags.
func (h *Header) IfNoneMatch() []string { return splitCSV(h.Get("If-None-Match")) }

// Upgrade returns the Upgrade header value (e.g. "websocket").
func (h *Header) Upgrade() string { return h.Get("Upgrade") }

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WriteTo serializes every stored header as "Name: Value\r\n" pairs, in
// insertion order, used by the response writer (spec.md §4.5).
func (h *Header) WriteTo(w interface{ WriteUTF8Line(string) error }) error {
	var err error
	h.VisitAll(func(name, value string) bool {
		err = w.WriteUTF8Line(fmt.Sprintf("%s: %s", name, value))
		return err == nil
	})
	return err
}
