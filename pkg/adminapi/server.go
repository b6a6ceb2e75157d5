// Package adminapi implements the daemon's read-only operator console: a
// gin HTTP API over the live application and resource state, plus a
// websocket stream of EXC state transitions.
package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/bbque-go/bbqued/internal/config"
	"github.com/bbque-go/bbqued/pkg/accounter"
	"github.com/bbque-go/bbqued/pkg/app"
	"github.com/bbque-go/bbqued/pkg/appmanager"
	"github.com/bbque-go/bbqued/pkg/restree"
	"github.com/bbque-go/bbqued/pkg/trigger"
)

// Server is the admin API's HTTP/websocket frontend over the daemon's
// live state.
type Server struct {
	log zerolog.Logger

	acc      *accounter.Accounter
	mgr      *appmanager.Manager
	tree     *restree.Tree
	triggers *trigger.Registry

	hub    *hub
	router *gin.Engine
	server *http.Server
}

// New builds the admin API's router and wires it to the given state.
// Call Start to begin serving and Shutdown to stop.
func New(cfg config.AdminAPIConfig, acc *accounter.Accounter, mgr *appmanager.Manager, tree *restree.Tree, triggers *trigger.Registry, log zerolog.Logger) *Server {
	log = log.With().Str("component", "adminapi").Logger()
	h := newHub(log)

	s := &Server{
		log: log, acc: acc, mgr: mgr, tree: tree, triggers: triggers,
		hub: h,
	}

	mgr.SetObserver(func(a *app.App, old, newState app.State) {
		h.Publish(EventMessage{
			Type: "exc_state_change", UID: a.UID().String(),
			From: old.String(), To: newState.String(), Timestamp: time.Now(),
		})
	})

	s.router = s.buildRouter(cfg)
	s.server = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// corsConfig translates the operator-facing CorsConfig into gin-contrib/cors'
// own Config, falling back to allow-all when no origin list is configured
// (a bare AdminAPIConfig{} must still start a router, not panic).
func corsConfig(cfg config.CorsConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     cfg.AllowedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           time.Duration(cfg.MaxAgeSeconds) * time.Second,
	}
	if len(cfg.AllowedOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
	}
	return c
}

func (s *Server) buildRouter(cfg config.AdminAPIConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.Cors)))
	router.Use(rateLimitMiddleware(cfg.RateLimit))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware(cfg.JWT))
	{
		v1.GET("/apps", s.listApps)
		v1.GET("/apps/:uid", s.getApp)
		v1.GET("/resources", s.listResources)
		v1.GET("/views", s.listViews)
		v1.GET("/triggers", s.listTriggers)
		v1.GET("/ws/events", s.hub.handle)
	}
	return router
}

// Start runs the hub loop and begins serving in background goroutines.
func (s *Server) Start() {
	go s.hub.run()
	s.log.Info().Str("address", s.server.Addr).Msg("starting admin API server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("admin API server error")
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down admin API server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying gin engine, for use in tests via
// httptest without binding a real port.
func (s *Server) Handler() http.Handler {
	return s.router
}
