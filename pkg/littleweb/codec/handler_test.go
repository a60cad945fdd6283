package codec

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/littleweb/pkg/littleweb/http11"
)

func TestCRUDHandlerReadByID(t *testing.T) {
	c := CRUD{
		Read: func(req *http11.Request, id string) (interface{}, error) {
			return widget{Name: "widget-" + id}, nil
		},
	}
	handler := c.Handler()
	req := &http11.Request{Method: http11.MethodGET}
	resp := handler(req, map[string]http11.Identity{"id": {Raw: "7"}})

	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "application/json", resp.BytesContentType)
	assert.JSONEq(t, `{"name":"widget-7"}`, string(resp.BytesValue))
}

func TestCRUDHandlerListWithoutID(t *testing.T) {
	c := CRUD{
		List: func(req *http11.Request) (interface{}, error) {
			return []widget{{Name: "a"}, {Name: "b"}}, nil
		},
	}
	handler := c.Handler()
	req := &http11.Request{Method: http11.MethodGET}
	resp := handler(req, map[string]http11.Identity{})

	assert.Equal(t, 200, resp.Status)
	assert.JSONEq(t, `[{"name":"a"},{"name":"b"}]`, string(resp.BytesValue))
}

func TestCRUDHandlerCreateDecodesBody(t *testing.T) {
	var created widget
	c := CRUD{
		New: func() interface{} { return &widget{} },
		Create: func(req *http11.Request, body interface{}) (interface{}, error) {
			created = *body.(*widget)
			return created, nil
		},
	}
	handler := c.Handler()
	req := &http11.Request{Method: http11.MethodPOST, Body: strings.NewReader(`{"name":"new"}`)}
	resp := handler(req, map[string]http11.Identity{})

	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "new", created.Name)
}

func TestCRUDHandlerUpdateRequiresID(t *testing.T) {
	c := CRUD{
		New: func() interface{} { return &widget{} },
		Update: func(req *http11.Request, id string, body interface{}) (interface{}, error) {
			return *body.(*widget), nil
		},
	}
	handler := c.Handler()
	req := &http11.Request{Method: http11.MethodPUT, Body: strings.NewReader(`{"name":"x"}`)}

	resp := handler(req, map[string]http11.Identity{})
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Status)

	resp = handler(req, map[string]http11.Identity{"id": {Raw: "1"}})
	assert.Equal(t, 200, resp.Status)
}

func TestCRUDHandlerDeleteReturnsNoContent(t *testing.T) {
	var deletedID string
	c := CRUD{
		Delete: func(req *http11.Request, id string) error {
			deletedID = id
			return nil
		},
	}
	handler := c.Handler()
	req := &http11.Request{Method: http11.MethodDELETE}
	resp := handler(req, map[string]http11.Identity{"id": {Raw: "9"}})

	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Equal(t, "9", deletedID)
}

func TestCRUDHandlerDeleteErrorMapsTo500(t *testing.T) {
	c := CRUD{
		Delete: func(req *http11.Request, id string) error { return errors.New("boom") },
	}
	handler := c.Handler()
	req := &http11.Request{Method: http11.MethodDELETE}
	resp := handler(req, map[string]http11.Identity{"id": {Raw: "9"}})

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}

func TestCRUDHandlerUnhandledMethodIs405(t *testing.T) {
	c := CRUD{}
	handler := c.Handler()
	req := &http11.Request{Method: http11.MethodGET}
	resp := handler(req, map[string]http11.Identity{})

	assert.Equal(t, http.StatusMethodNotAllowed, resp.Status)
}

func TestCRUDHandlerCreateWithoutBodyIsBadRequest(t *testing.T) {
	c := CRUD{
		New:    func() interface{} { return &widget{} },
		Create: func(req *http11.Request, body interface{}) (interface{}, error) { return body, nil },
	}
	handler := c.Handler()
	req := &http11.Request{Method: http11.MethodPOST}
	resp := handler(req, map[string]http11.Identity{})

	require.Equal(t, http.StatusBadRequest, resp.Status)
}
