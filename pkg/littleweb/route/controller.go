package route

import (
	"github.com/yourusername/littleweb/pkg/littleweb/http11"
	"github.com/yourusername/littleweb/pkg/littleweb/lwerr"
)

// Handler produces a Response for a matched Request.
type Handler func(req *http11.Request, identities map[string]http11.Identity) *http11.Response

// registeredRoute pairs a compiled pattern with its handler and
// registration order, used for specificity tie-breaks (spec.md §4.3:
// "ties on specificity prefer the earlier-registered route").
type registeredRoute struct {
	pattern *PathPattern
	handler Handler
	order   int
}

// Controller is a per-host routing tree mapping method to compiled
// routes (spec.md §3 RouteController).
type Controller struct {
	routes   map[uint8][]registeredRoute
	fallback Handler
	counter  int
}

// NewController returns an empty Controller.
func NewController() *Controller {
	return &Controller{routes: map[uint8][]registeredRoute{}}
}

// Handle registers handler for method+pattern.
func (c *Controller) Handle(method uint8, pattern string, handler Handler) error {
	pp, err := Compile(pattern)
	if err != nil {
		return err
	}
	c.routes[method] = append(c.routes[method], registeredRoute{pattern: pp, handler: handler, order: c.counter})
	c.counter++
	return nil
}

// SetFallback installs the internal-error handler invoked when a
// matched handler panics; a failed transform is a non-match and never
// reaches it (spec.md §3 "fallback internal-error handler").
func (c *Controller) SetFallback(h Handler) { c.fallback = h }

// Fallback returns the installed internal-error handler, or nil.
func (c *Controller) Fallback() Handler { return c.fallback }

// Resolve finds the best-matching route for method+path+queryItems.
// It returns lwerr.RouteError("no matching route") when no route under
// any method matches the path, and a distinct method-not-allowed error
// when the path matches under a different method.
func (c *Controller) Resolve(method uint8, path string, queryItems []http11.QueryItem) (Handler, map[string]http11.Identity, error) {
	candidates := c.routes[method]
	best, identities, found := pickBest(candidates, path, queryItems)
	if found {
		return best.handler, identities, nil
	}

	for m, routes := range c.routes {
		if m == method {
			continue
		}
		if _, _, ok := pickBest(routes, path, queryItems); ok {
			return nil, nil, lwerr.RouteError("method not allowed")
		}
	}
	return nil, nil, lwerr.RouteError("no matching route")
}

func pickBest(candidates []registeredRoute, path string, queryItems []http11.QueryItem) (registeredRoute, map[string]http11.Identity, bool) {
	var best registeredRoute
	var bestIdentities map[string]http11.Identity
	bestSpecificity := -1
	found := false

	for _, rr := range candidates {
		identities, ok := rr.pattern.Match(path, queryItems)
		if !ok {
			continue
		}
		spec := rr.pattern.Specificity()
		if !found || spec > bestSpecificity || (spec == bestSpecificity && rr.order < best.order) {
			best = rr
			bestIdentities = identities
			bestSpecificity = spec
			found = true
		}
	}
	return best, bestIdentities, found
}

// HostRegistry maps a Host header value to its Controller, falling
// back to a default controller for missing or unknown hosts (spec.md
// §6 "Host selection").
type HostRegistry struct {
	byHost       map[string]*Controller
	fallbackHost *Controller
}

// NewHostRegistry returns a registry whose unmatched-host lookups fall
// back to defaultController.
func NewHostRegistry(defaultController *Controller) *HostRegistry {
	return &HostRegistry{byHost: map[string]*Controller{}, fallbackHost: defaultController}
}

// Register binds host to controller.
func (hr *HostRegistry) Register(host string, controller *Controller) {
	hr.byHost[host] = controller
}

// Resolve returns the controller for host, or the default when host is
// empty or unregistered.
func (hr *HostRegistry) Resolve(host string) *Controller {
	if c, ok := hr.byHost[host]; ok {
		return c
	}
	return hr.fallbackHost
}
