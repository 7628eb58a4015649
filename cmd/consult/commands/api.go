package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wonny/aegis/consult/internal/api"
	"github.com/wonny/aegis/consult/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 컨설테이션 트리거 엔드포인트 제공
- CONSULT_SCHEDULE 설정 시 스케줄러 동시 실행

Endpoints:
  GET  /health          - Health check
  GET  /metrics         - Prometheus metrics
  POST /api/consult     - 컨설테이션 1회 실행
  GET  /api/instances   - 활성 인스턴스 목록
  GET  /api/jobs        - 스케줄 작업 통계

Example:
  go run ./cmd/consult api
  go run ./cmd/consult api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Consultation API Server ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	a.log.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
		"env":  a.cfg.Env,
	}).Info("Initializing API server")

	engine, err := a.engine()
	if err != nil {
		return err
	}

	// Optional scheduler
	var jobsHandler *handlers.JobsHandler
	if a.cfg.Consult.Schedule != "" {
		sched, err := a.scheduler(a.cfg.Consult.Schedule)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()

		jobsHandler = handlers.NewJobsHandler(sched)
		a.log.WithField("jobs", sched.GetAllJobs()).Info("Scheduler started")
	}

	var gatherer prometheus.Gatherer
	if a.cfg.MetricsEnabled {
		gatherer = prometheus.DefaultGatherer
	}

	consultHandler := handlers.NewConsultHandler(engine, a.instances, a.log)
	router := api.NewRouter(consultHandler, jobsHandler, gatherer, a.log)
	server := api.New(a.cfg, a.log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	ctx, stop := signalContext()
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
