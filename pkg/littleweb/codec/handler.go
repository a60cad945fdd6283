package codec

import (
	"net/http"

	"github.com/yourusername/littleweb/pkg/littleweb/http11"
	"github.com/yourusername/littleweb/pkg/littleweb/route"
)

// CRUD is the small set of operations a resource-backed route.Handler
// adapter needs: decode the request body into a domain value, run it,
// encode the result. Any method may be left nil; a nil Create/Read/
// Update/Delete responds 405, the same status the server gives a path
// that is registered only under other methods.
type CRUD struct {
	Codec Codec

	// New returns a fresh, zero value for Decode to populate. Called
	// once per Create/Update request.
	New func() interface{}

	Create func(req *http11.Request, body interface{}) (interface{}, error)
	Read   func(req *http11.Request, id string) (interface{}, error)
	Update func(req *http11.Request, id string, body interface{}) (interface{}, error)
	Delete func(req *http11.Request, id string) error
	List   func(req *http11.Request) (interface{}, error)

	// IDParam names the path identity carrying the resource id
	// (typically the route's `:id` segment); defaults to "id".
	IDParam string
}

// Handler adapts a CRUD definition into a route.Handler, dispatching
// on method the way spec.md's route matcher already keys routes (one
// route.Handler per method+pattern; CRUD just saves repeating the
// encode/decode/error-mapping boilerplate across each of the four).
func (c CRUD) Handler() route.Handler {
	codecImpl := c.Codec
	if codecImpl == nil {
		codecImpl = JSON
	}
	idParam := c.IDParam
	if idParam == "" {
		idParam = "id"
	}

	return func(req *http11.Request, identities map[string]http11.Identity) *http11.Response {
		switch req.Method {
		case http11.MethodGET:
			if id, ok := identities[idParam]; ok && c.Read != nil {
				return c.respondOne(codecImpl, func() (interface{}, error) { return c.Read(req, id.Raw) })
			}
			if c.List != nil {
				return c.respondOne(codecImpl, func() (interface{}, error) { return c.List(req) })
			}
		case http11.MethodPOST:
			if c.Create != nil {
				return c.respondBody(codecImpl, req, func(body interface{}) (interface{}, error) {
					return c.Create(req, body)
				})
			}
		case http11.MethodPUT, http11.MethodPATCH:
			if id, ok := identities[idParam]; ok && c.Update != nil {
				return c.respondBody(codecImpl, req, func(body interface{}) (interface{}, error) {
					return c.Update(req, id.Raw, body)
				})
			}
		case http11.MethodDELETE:
			if id, ok := identities[idParam]; ok && c.Delete != nil {
				resp := http11.NewResponse()
				if err := c.Delete(req, id.Raw); err != nil {
					resp.Status = http.StatusInternalServerError
					return resp
				}
				resp.Status = http.StatusNoContent
				return resp
			}
		}

		resp := http11.NewResponse()
		resp.Status = http.StatusMethodNotAllowed
		return resp
	}
}

func (c CRUD) respondOne(codecImpl Codec, fn func() (interface{}, error)) *http11.Response {
	resp := http11.NewResponse()
	v, err := fn()
	if err != nil {
		resp.Status = http.StatusInternalServerError
		return resp
	}
	body, contentType, err := codecImpl.Encode(v)
	if err != nil {
		resp.Status = http.StatusInternalServerError
		return resp
	}
	resp.SetBytes(contentType, body)
	return resp
}

func (c CRUD) respondBody(codecImpl Codec, req *http11.Request, fn func(interface{}) (interface{}, error)) *http11.Response {
	resp := http11.NewResponse()
	if c.New == nil {
		resp.Status = http.StatusBadRequest
		return resp
	}
	body, err := req.ConsumeBody()
	if err != nil || body == nil {
		resp.Status = http.StatusBadRequest
		return resp
	}
	target := c.New()
	if err := codecImpl.Decode(body, target); err != nil {
		resp.Status = http.StatusBadRequest
		return resp
	}
	return c.respondOne(codecImpl, func() (interface{}, error) { return fn(target) })
}
