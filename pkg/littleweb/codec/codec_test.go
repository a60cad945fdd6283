package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name string `json:"name"`
}

func TestJSONEncodeDecodeRoundTrip(t *testing.T) {
	body, contentType, err := JSON.Encode(widget{Name: "bolt"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	var got widget
	require.NoError(t, JSON.Decode(bytes.NewReader(body), &got))
	assert.Equal(t, "bolt", got.Name)
}

func TestJSONDecodeRejectsMalformedBody(t *testing.T) {
	var got widget
	err := JSON.Decode(bytes.NewReader([]byte("{not json")), &got)
	assert.Error(t, err)
}
