package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthLive handles GET /health/live, the liveness probe.
func (s *Server) HealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HealthReady handles GET /health/ready, the readiness probe.
func (s *Server) HealthReady(c *gin.Context) {
	checks := make(map[string]string)
	allHealthy := true

	if err := s.store.Ping(c.Request.Context()); err != nil {
		checks["store"] = "error"
		allHealthy = false
	} else {
		checks["store"] = "ok"
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	body := gin.H{"status": status, "checks": checks}
	if s.pools != nil {
		body["workers"] = s.pools.Metrics()
	}
	c.JSON(httpStatus, body)
}
