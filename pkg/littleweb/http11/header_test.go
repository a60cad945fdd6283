package http11

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderAddMergesDuplicatesExceptSetCookie(t *testing.T) {
	var h Header
	require.NoError(t, h.Add("Accept", "text/html"))
	require.NoError(t, h.Add("Accept", "application/json"))
	assert.Equal(t, "text/html, application/json", h.Get("Accept"))

	require.NoError(t, h.Add("Set-Cookie", "a=1"))
	require.NoError(t, h.Add("Set-Cookie", "b=2"))
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
}

func TestHeaderAddRejectsCRLFInjection(t *testing.T) {
	var h Header
	err := h.Add("X-Evil", "value\r\nSet-Cookie: hijack=1")
	assert.Error(t, err)
}

func TestHeaderCaseInsensitiveLookup(t *testing.T) {
	var h Header
	require.NoError(t, h.Add("content-type", "text/plain"))
	assert.Equal(t, "text/plain", h.Get("Content-Type"))
	assert.True(t, h.Has("CONTENT-TYPE"))
}

func TestHeaderContentLength(t *testing.T) {
	var h Header
	require.NoError(t, h.Add("Content-Length", "42"))
	n, ok := h.ContentLength()
	assert.True(t, ok)
	assert.EqualValues(t, 42, n)

	var empty Header
	_, ok = empty.ContentLength()
	assert.False(t, ok)
}

func TestHeaderIsChunked(t *testing.T) {
	var h Header
	require.NoError(t, h.Add("Transfer-Encoding", "chunked"))
	assert.True(t, h.IsChunked())
}

func TestHeaderAcceptQValueOrdering(t *testing.T) {
	var h Header
	require.NoError(t, h.Add("Accept", "text/plain;q=0.5, text/html;q=0.9, */*;q=0.1"))
	got := h.Accept()
	require.Len(t, got, 3)
	assert.Equal(t, "text/html", got[0].Value)
	assert.Equal(t, "text/plain", got[1].Value)
	assert.Equal(t, "*/*", got[2].Value)
}

func TestHeaderConditionalTimestamps(t *testing.T) {
	var h Header
	require.NoError(t, h.Add("If-Modified-Since", "Sun, 06 Nov 1994 08:49:37 GMT"))
	_, ok := h.IfModifiedSince()
	assert.True(t, ok)

	var empty Header
	_, ok = empty.IfModifiedSince()
	assert.False(t, ok)
}
