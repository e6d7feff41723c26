package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/stopthephish/phishwatch/api"
	"github.com/stopthephish/phishwatch/config"
	"github.com/stopthephish/phishwatch/internal/logger"
	"github.com/stopthephish/phishwatch/internal/tracing"
	"github.com/stopthephish/phishwatch/services"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, err
	}
	opentracing.SetGlobalTracer(tracer)

	// Initialize services
	svcs, err := services.InitServices(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		// Create a new span for the panic
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		// Mark span as failed
		ext.Error.Set(span, true)

		// Log panic details
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

// Run starts the monitor and the status API and blocks until a termination
// signal arrives or the monitor hits a fatal error.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api.RegisterRoutes(ctx, s.router, s.services)

	// Start HTTP server in a goroutine with panic recovery
	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting status API on port %s", s.config.AppConfig.APIPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})

	// Run the monitor in a goroutine; a fatal monitor error ends the process
	monitorErr := make(chan error, 1)
	go s.wrapGoroutine("monitor", func() {
		monitorErr <- s.services.MonitorService.Run(ctx)
	})

	s.log.Info("phishwatch is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown(cancel, monitorErr)
}

func (s *Server) waitForShutdown(cancel context.CancelFunc, monitorErr <-chan error) error {
	defer s.recoverWithJaeger("shutdown")

	// Set up signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-stop:
		s.log.Info("Shutting down...")
		if err := s.services.MonitorService.Stop(); err != nil {
			s.log.Warnf("Monitor stop error: %v", err)
		}
		cancel()

		// Give the monitor a bounded window to log out cleanly
		select {
		case <-monitorErr:
			s.log.Info("Monitor stopped gracefully")
		case <-time.After(10 * time.Second):
			s.log.Warn("Monitor stop timed out, forcing exit")
		}

	case err := <-monitorErr:
		if err != nil && err != context.Canceled {
			s.log.Errorf("Monitor terminated: %v", err)
			runErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	}

	return runErr
}
