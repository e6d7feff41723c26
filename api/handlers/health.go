package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stopthephish/phishwatch/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the current state of the monitored mailbox session
func Status(monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, monitor.Status())
	}
}
