// Package api exposes the router's HTTP surface: agent registration, event
// publish/pull, admin lifecycle operations, and reporting reads.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/contextrouter/pkg/audit"
	"github.com/agentmesh/contextrouter/pkg/config"
	"github.com/agentmesh/contextrouter/pkg/ingest"
	"github.com/agentmesh/contextrouter/pkg/store"
	"github.com/agentmesh/contextrouter/pkg/whitelist"
)

// Server is the HTTP front of the router.
type Server struct {
	cfg       *config.Config
	pipeline  *ingest.Pipeline
	whitelist *whitelist.Store
	store     *store.SessionStore
	audit     *audit.Sink
	admin     *adminSessions
	startedAt time.Time

	echo    *echo.Echo
	httpSrv *http.Server
}

// NewServer wires the handlers and routes.
func NewServer(cfg *config.Config, pipeline *ingest.Pipeline, wl *whitelist.Store, st *store.SessionStore, sink *audit.Sink) *Server {
	s := &Server{
		cfg:       cfg,
		pipeline:  pipeline,
		whitelist: wl,
		store:     st,
		audit:     sink,
		admin:     newAdminSessions(cfg.AdminPassword),
		startedAt: time.Now(),
	}

	e := echo.New()
	e.Use(securityHeaders())

	// Agent-facing surface.
	e.POST("/agents/register", s.registerAgentHandler)
	e.POST("/mcp/events/publish", s.publishHandler)
	e.GET("/mcp/sessions/:sessionKey/events", s.sessionEventsHandler)
	e.GET("/health", s.healthHandler)

	// Admin authentication.
	e.POST("/admin/login", s.adminLoginHandler)
	e.POST("/admin/logout", s.adminLogoutHandler)
	e.GET("/admin/session", s.adminSessionHandler)

	// Admin lifecycle + reporting (authenticated).
	e.GET("/admin/agents/pending", s.requireAdmin(s.pendingAgentsHandler))
	e.GET("/admin/agents/approved", s.requireAdmin(s.approvedAgentsHandler))
	e.POST("/admin/agents/approve", s.requireAdmin(s.approveAgentHandler))
	e.POST("/admin/agents/reject", s.requireAdmin(s.rejectAgentHandler))
	e.GET("/admin/api/metrics", s.requireAdmin(s.metricsHandler))
	e.GET("/admin/api/sessions", s.requireAdmin(s.sessionRollupHandler))
	e.GET("/admin/api/loops", s.requireAdmin(s.loopDecisionsHandler))
	e.GET("/admin/api/deliveries", s.requireAdmin(s.deliveriesHandler))

	s.echo = e
	return s
}

// Handler exposes the underlying http.Handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
