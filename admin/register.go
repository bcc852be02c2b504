package admin

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// Verb names an HTTP method an admin endpoint is registered under. The
// admin surface is read-only, so only the GET family is ever used, but the
// registry supports the full set the way the rest of the stack's endpoint
// registries do.
type Verb int

const (
	Unknown Verb = iota
	GET
	DELETE
	POST
	PUT
	PATCH
)

// Method is one registered admin endpoint.
type Method struct {
	Verb    Verb
	Path    string
	Handler func(c *gin.Context)
}

// registry accumulates the Methods that server.go's New registers via
// RegisterMethod, then New's router setup drains it into gin routes.
type registry struct {
	methods map[string]Method
}

func newRegistry() *registry {
	return &registry{methods: make(map[string]Method)}
}

// RegisterMethod adds a handler for verb+path to r.
func (r *registry) RegisterMethod(verb Verb, path string, h func(c *gin.Context)) error {
	key := fmt.Sprintf("%d_%s", verb, path)
	if _, exists := r.methods[key]; exists {
		return fmt.Errorf("admin: handler for %s already registered", key)
	}
	r.methods[key] = Method{Verb: verb, Path: path, Handler: h}
	return nil
}

func (r *registry) all() []Method {
	out := make([]Method, 0, len(r.methods))
	for _, m := range r.methods {
		out = append(out, m)
	}
	return out
}
