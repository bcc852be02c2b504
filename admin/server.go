// Package admin implements the read-only diagnostics HTTP surface for a
// running LocalStore coordinator: queue depth, per-target matched keys, and
// reference counts, gated behind Okta bearer-token verification, with a
// Swagger UI for browsing the endpoints.
package admin

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/sharedcode/localstore/admin/docs"
	"github.com/sharedcode/localstore/auth"
	"github.com/sharedcode/localstore/store"
)

// Server wires a gin router around a LocalStore and an auth.Verifier.
type Server struct {
	router   *gin.Engine
	verifier *auth.Verifier
	reg      *registry
}

// New builds an admin Server for s, gating every endpoint behind verifier.
func New(s *store.LocalStore, verifier *auth.Verifier) *Server {
	srv := &Server{
		router:   gin.Default(),
		verifier: verifier,
		reg:      newRegistry(),
	}
	docs.SwaggerInfo.BasePath = "/api/v1"

	diag := newDiagnosticsAPI(s)
	srv.reg.RegisterMethod(GET, "/stats", diag.GetStats)
	srv.reg.RegisterMethod(GET, "/targets/:targetId/keys", diag.GetTargetKeys)
	srv.reg.RegisterMethod(GET, "/references", diag.GetReferenceCount)
	srv.reg.RegisterMethod(GET, "/documents", diag.GetDocument)

	srv.mount()
	return srv
}

func (s *Server) requireAuth(h func(c *gin.Context)) func(c *gin.Context) {
	return func(c *gin.Context) {
		userID, err := s.verifier.VerifyHeader(c.Request.Header.Get("Authorization"))
		if err != nil {
			c.String(http.StatusUnauthorized, err.Error())
			c.Abort()
			return
		}
		c.Set("userID", userID)
		h(c)
	}
}

func (s *Server) mount() {
	v1 := s.router.Group("/api/v1")
	for _, m := range s.reg.all() {
		handler := s.requireAuth(m.Handler)
		switch m.Verb {
		case GET:
			v1.GET(m.Path, handler)
		case DELETE:
			v1.DELETE(m.Path, handler)
		case POST:
			v1.POST(m.Path, handler)
		case PUT:
			v1.PUT(m.Path, handler)
		case PATCH:
			v1.PATCH(m.Path, handler)
		default:
			panic(fmt.Sprintf("admin: verb %d not supported", m.Verb))
		}
	}
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
}

// Run blocks serving the admin API on addr (e.g. "localhost:8080").
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
