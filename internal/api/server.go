package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/aegis/consult/pkg/config"
	"github.com/wonny/aegis/consult/pkg/logger"
)

// writeSlack is added to the longest run so the response is not cut off
const writeSlack = 10 * time.Second

// Server represents the HTTP API server
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	config     *config.Config
}

// New creates a new API server.
// The write timeout follows the consultation limits, since POST /api/consult
// answers only when the run is done.
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: writeTimeout(cfg.Consult),
			IdleTimeout:  60 * time.Second,
		},
		logger: log,
		config: cfg,
	}
}

func writeTimeout(c config.ConsultConfig) time.Duration {
	longest := c.RunDeadline
	if longest <= 0 {
		// 자동 데드라인: 요청마다 다르므로 넉넉히
		longest = 10 * c.PerCallTimeout
	}
	return longest + writeSlack
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"port":          s.config.Port,
		"env":           s.config.Env,
		"write_timeout": s.httpServer.WriteTimeout.String(),
	}).Info("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
