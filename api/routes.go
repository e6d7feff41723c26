package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/stopthephish/phishwatch/api/handlers"
	"github.com/stopthephish/phishwatch/internal/tracing"
	"github.com/stopthephish/phishwatch/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services) {
	if s == nil {
		panic("Services cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	r.GET("/health", tracing.TracingEnhancer(ctx, "GET /health"), handlers.HealthCheck)
	r.GET("/status", tracing.TracingEnhancer(ctx, "GET /status"), handlers.Status(s.MonitorService))
}
