// Package server exposes chat normalization and the playground over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/n0madic/go-callview/internal/chat"
	"github.com/n0madic/go-callview/internal/config"
	"github.com/n0madic/go-callview/internal/playground"
	"github.com/n0madic/go-callview/internal/types"
)

// maxBodyBytes limits the size of incoming request bodies.
const maxBodyBytes = 10 * 1024 * 1024 // 10 MB

// ChatBuilder derives display chats from calls.
type ChatBuilder interface {
	Build(ctx context.Context, call *types.Call) (*chat.Chat, error)
}

// Runner replays playground states.
type Runner interface {
	Run(ctx context.Context, state playground.State) (*types.ChatCompletion, error)
}

// Server is the HTTP API.
type Server struct {
	cfg        config.ServerConfig
	builder    ChatBuilder
	runner     Runner
	log        *zap.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New creates a server with all routes registered. runner may be nil, in
// which case playground runs are rejected.
func New(cfg config.ServerConfig, serviceName string, builder ChatBuilder, runner Runner, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cfg: cfg, builder: builder, runner: runner, log: log}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		accessLogMiddleware(log),
		corsMiddleware(),
		otelgin.Middleware(serviceName),
		bodyLimitMiddleware(maxBodyBytes),
		authMiddleware(cfg.AccessToken),
	)

	r.GET("/", s.handleHealth)
	r.GET("/health", s.handleHealth)

	calls := r.Group("/v1/calls")
	calls.POST("/classify", s.handleClassify)
	calls.POST("/refs", s.handleRefs)
	calls.POST("/chat", s.handleChat)
	calls.POST("/normalize", s.handleNormalize)

	pg := r.Group("/v1/playground")
	pg.POST("/state", s.handlePlaygroundState)
	pg.POST("/run", s.handlePlaygroundRun)

	s.engine = r
	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 600 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	s.log.Info("server.listen", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
