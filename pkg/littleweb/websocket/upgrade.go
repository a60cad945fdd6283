package websocket

import (
	"strings"

	"github.com/yourusername/littleweb/pkg/littleweb/http11"
	"github.com/yourusername/littleweb/pkg/littleweb/stream"
)

// IsUpgradeRequest reports whether req carries the headers RFC 6455
// §4.2.1 requires for an opening handshake (spec.md §4.6 "Upgrade").
func IsUpgradeRequest(req *http11.Request) bool {
	if req.Header == nil {
		return false
	}
	return hasToken(req.Header.Upgrade(), "websocket") &&
		hasToken(req.Header.Get("Connection"), "upgrade") &&
		req.Header.Get("Sec-WebSocket-Key") != ""
}

func hasToken(raw, token string) bool {
	for _, part := range strings.Split(raw, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// WriteUpgradeResponse writes the 101 Switching Protocols handshake
// response directly (bypassing http11.Writer, since an upgrade
// response carries no body and none of the content-negotiation or
// session-cookie machinery applies) (spec.md §4.6 "Upgrade").
func WriteUpgradeResponse(out *stream.Output, req *http11.Request) error {
	key := req.Header.Get("Sec-WebSocket-Key")
	accept := ComputeAcceptKey(key)

	if err := out.WriteUTF8Line("HTTP/1.1 101 Switching Protocols"); err != nil {
		return err
	}
	if err := out.WriteUTF8Line("Upgrade: websocket"); err != nil {
		return err
	}
	if err := out.WriteUTF8Line("Connection: Upgrade"); err != nil {
		return err
	}
	if err := out.WriteUTF8Line("Sec-WebSocket-Accept: " + accept); err != nil {
		return err
	}
	if err := out.WriteUTF8Line(""); err != nil {
		return err
	}
	return out.Flush()
}
