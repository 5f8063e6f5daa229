package web

import (
	"context"
	"net/http"

	"order-analyst/config"
	"order-analyst/web/handlers"
	"order-analyst/web/middleware"
	"order-analyst/web/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	router   *gin.Engine
	sessions *services.SessionService
	limiter  *middleware.SessionRateLimiter
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	config   *config.Config
}

// NewServer wires the chat routes. gatherer backs /metrics; nil disables it.
func NewServer(sessions *services.SessionService, gatherer prometheus.Gatherer, logger *zap.Logger, cfg *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		c.Set("logger", logger)
		c.Next()
	})

	server := &Server{
		router:   router,
		sessions: sessions,
		limiter: middleware.NewSessionRateLimiter(middleware.RateLimiterConfig{
			MessagesPerMinute: cfg.RateLimitMessagesPerMin,
			BurstSize:         cfg.RateLimitBurstSize,
			CleanupInterval:   cfg.CleanupInterval,
		}, logger),
		gatherer: gatherer,
		logger:   logger,
		config:   cfg,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	// Charts are written here by the visualization tool.
	s.router.Static("/static", s.config.StaticDir)
	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	chatHandler := handlers.NewChatHandler(s.sessions, services.NewStreamService(s.logger), s.logger)

	chat := s.router.Group("/")
	chat.Use(middleware.SessionMiddleware())
	chat.GET("/", chatHandler.Index)
	chat.GET("/chat/history", chatHandler.History)
	chat.GET("/ws", chatHandler.Socket)

	limited := chat.Group("/")
	limited.Use(middleware.RateLimitMiddleware(s.limiter))
	limited.POST("/chat", chatHandler.SendMessage)
	limited.GET("/chat/stream", chatHandler.StreamResponse)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.limiter.Stop()
		return err
	}

	s.logger.Info("Shutting down web server")
	s.limiter.Stop()
	return srv.Shutdown(context.Background())
}
