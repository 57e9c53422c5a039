package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"pushgate.io/pushgate/internal/api/handlers"
	"pushgate.io/pushgate/internal/api/middleware"
	"pushgate.io/pushgate/internal/config"
	"pushgate.io/pushgate/internal/pkg/logger"
)

func newRouter(cfg *config.Config, server *handlers.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))

	server.RegisterRoutes(router.Group("/api/v1"))
	server.RegisterHealthRoutes(router)

	// Runtime log level: GET returns the level, PUT {"level":"debug"} changes it.
	router.Any("/log/level", gin.WrapH(logger.LevelHandler()))
	return router
}

// buildCORSConfig derives the CORS policy from server configuration.
// Wildcard origins are stripped from the allowlist; allowing all origins
// requires the explicit unsafe flag and forces credentials off, since
// browsers reject Access-Control-Allow-Credentials with a wildcard origin.
func buildCORSConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
		return corsCfg
	}

	origins := make([]string, 0, len(cfg.Server.CORSOrigins))
	for _, origin := range cfg.Server.CORSOrigins {
		if origin == "*" {
			continue
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	corsCfg.AllowOrigins = origins
	return corsCfg
}
