package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/littleweb/pkg/littleweb/http11"
)

func TestCompileRejectsPatternWithoutLeadingSlash(t *testing.T) {
	_, err := Compile("users/:id")
	assert.Error(t, err)
}

func TestMatchLiteralSegment(t *testing.T) {
	pp, err := Compile("/users/list")
	require.NoError(t, err)

	_, ok := pp.Match("/users/list", nil)
	assert.True(t, ok)

	_, ok = pp.Match("/users/other", nil)
	assert.False(t, ok)
}

func TestMatchIdentifierWithUIntTransform(t *testing.T) {
	pp, err := Compile("/users/:id<UInt>")
	require.NoError(t, err)

	identities, ok := pp.Match("/users/42", nil)
	require.True(t, ok)
	id, present := identities["id"]
	require.True(t, present)
	assert.Equal(t, "42", id.Raw)
	assert.EqualValues(t, 42, id.Transformed)

	_, ok = pp.Match("/users/abc", nil)
	assert.False(t, ok, "a failing transform must be a non-match, not an error")
}

func TestMatchAnyHereafterMustBeLast(t *testing.T) {
	_, err := Compile("/files/**/name")
	assert.Error(t, err)

	pp, err := Compile("/files/**")
	require.NoError(t, err)
	_, ok := pp.Match("/files/a/b/c", nil)
	assert.True(t, ok)
}

func TestMatchRegexConstrainedIdentifier(t *testing.T) {
	pp, err := Compile("/items/:sku{[A-Z]{3}-[0-9]+}")
	require.NoError(t, err)

	_, ok := pp.Match("/items/ABC-123", nil)
	assert.True(t, ok)
	_, ok = pp.Match("/items/abc-123", nil)
	assert.False(t, ok)
}

func TestControllerSpecificityPrefersLiteralOverWildcard(t *testing.T) {
	c := NewController()
	var which string

	require.NoError(t, c.Handle(http11.MethodGET, "/users/*", func(_ *http11.Request, _ map[string]http11.Identity) *http11.Response {
		which = "wildcard"
		return nil
	}))
	require.NoError(t, c.Handle(http11.MethodGET, "/users/me", func(_ *http11.Request, _ map[string]http11.Identity) *http11.Response {
		which = "literal"
		return nil
	}))

	handler, _, err := c.Resolve(http11.MethodGET, "/users/me", nil)
	require.NoError(t, err)
	handler(nil, nil)
	assert.Equal(t, "literal", which)
}
