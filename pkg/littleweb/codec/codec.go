// Package codec supplies the body encode/decode step that REST-style
// handlers need, as an interface rather than the generic-overload
// dispatch some frameworks use for it: a concrete Encoder/Decoder pair
// is paired with a small Handler adapter so CRUD wiring stays in one
// place instead of being baked into the route matcher itself.
package codec

import (
	"encoding/json"
	"io"
)

// Encoder turns a value into a response body and its content type.
type Encoder interface {
	Encode(v interface{}) (body []byte, contentType string, err error)
}

// Decoder reads a request body into v.
type Decoder interface {
	Decode(r io.Reader, v interface{}) error
}

// Codec bundles an Encoder and Decoder for a single wire format.
type Codec interface {
	Encoder
	Decoder
}

// JSON is the default Codec, backed by encoding/json. No third-party
// JSON library appears anywhere in the retrieval pack's non-test code
// relevant to this spec's REST helpers, so the stdlib encoder/decoder
// is used as-is rather than reached past for an ecosystem substitute.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) Encode(v interface{}) ([]byte, string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return body, "application/json", nil
}

func (jsonCodec) Decode(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}
