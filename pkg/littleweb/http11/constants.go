// Package http11 implements the HTTP/1.1 wire engine: request-line and
// header parsing, body framing (content-length, chunked, multipart,
// urlencoded), route dispatch glue and response finalization.
package http11

// HTTP Method IDs for O(1) switching.
const (
	MethodUnknown uint8 = iota
	MethodGET
	MethodPOST
	MethodPUT
	MethodDELETE
	MethodPATCH
	MethodHEAD
	MethodOPTIONS
	MethodCONNECT
	MethodTRACE
)

// HTTP/1.1 protocol version components.
const (
	ProtoHTTP11Major = 1
	ProtoHTTP11Minor = 1
)

// Size limits (RFC 7230 recommendations and DoS-prevention defaults).
const (
	MaxRequestLineSize = 8192
	MaxHeadersSize     = 8192
	MaxHeaderValueSize = 8192
)

// reasonPhrases gives the default reason phrase for a status code when
// the caller does not supply one (spec.md §3 Response).
var reasonPhrases = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	406: "Not Acceptable",
	408: "Request Timeout",
	409: "Conflict",
	410: "Gone",
	411: "Length Required",
	412: "Precondition Failed",
	413: "Payload Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	416: "Range Not Satisfiable",
	429: "Too Many Requests",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

// ReasonPhrase returns the default reason phrase for code, or "" if unknown.
func ReasonPhrase(code int) string { return reasonPhrases[code] }
