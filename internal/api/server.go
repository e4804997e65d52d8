// Package api is the HTTP surface: a gin server exposing OpenAI, Anthropic,
// and Gemini-native chat routes plus the amp passthrough surface, all
// backed by internal/dispatcher.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/AprilNEA/BYOKEY/internal/config"
	"github.com/AprilNEA/BYOKEY/internal/dispatcher"
)

// Server owns the gin engine and the underlying http.Server, mirroring the
// teacher's own server-as-a-struct shape (sdk/cliproxy/service.go's
// Start/Shutdown split) but scoped to just the HTTP surface here — process
// lifecycle (auth store, watcher, executors) lives one layer up in
// cmd/byokey.
type Server struct {
	cfg        *config.Snapshot
	dispatcher *dispatcher.Dispatcher
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer builds the gin engine, registers every route spec.md §6 lists,
// and wraps it in an *http.Server bound to cfg's current host:port.
func NewServer(cfg *config.Snapshot, disp *dispatcher.Dispatcher) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), requestLogger())

	s := &Server{cfg: cfg, dispatcher: disp, engine: engine}
	s.registerRoutes()

	c := cfg.Load()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", c.Host, c.Port),
		Handler:           engine,
		ReadHeaderTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.POST("/v1/chat/completions", s.handleChatCompletions)
	s.engine.POST("/v1/messages", s.handleMessages)
	s.engine.POST("/v1beta/models/:modelAction", s.handleGeminiNative)
	s.engine.GET("/v1/models", s.handleListModels)

	s.engine.GET("/amp/v1/login", s.handleAmpLogin)
	s.engine.POST("/amp/v1/chat/completions", s.handleAmpChatCompletions)
	s.engine.Any("/amp/v0/management/*path", s.handleAmpManagement)
}

// Start blocks serving HTTP until the server is shut down, returning
// http.ErrServerClosed on a clean Shutdown (the caller should not treat
// that as a failure — mirrors net/http's own convention).
func (s *Server) Start() error {
	log.Infof("api: listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logStreamError(c *gin.Context, err error) {
	log.WithFields(log.Fields{
		"request_id": correlationID(c),
		"path":       c.Request.URL.Path,
	}).Warnf("api: stream ended with error after headers sent: %v", err)
}
