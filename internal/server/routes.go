package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers the playground endpoints on rg.
//
//	GET    /playground/health
//	GET    /playground/canvas
//	DELETE /playground/canvas
//	POST   /playground/canvas/roots
//	POST   /playground/canvas/arrange
//	PATCH  /playground/canvas/nodes/:id
//	POST   /playground/canvas/nodes/:id/collapse
//	GET    /playground/iterations
//	DELETE /playground/iterations
//	POST   /playground/iterations/scan
//	POST   /playground/iterations/poll
//	DELETE /playground/iterations/poll
//	POST   /playground/generate
//	DELETE /playground/generate
//	GET    /playground/generate/status
//	GET    /playground/generate/log
//	GET    /playground/models
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	pg := rg.Group("/playground")
	{
		pg.GET("/health", h.HandleHealth)

		pg.GET("/canvas", h.HandleCanvas)
		pg.DELETE("/canvas", h.HandleClearCanvas)
		pg.POST("/canvas/roots", h.HandlePlaceRoot)
		pg.POST("/canvas/arrange", h.HandleArrange)
		pg.PATCH("/canvas/nodes/:id", h.HandleUpdateNode)
		pg.POST("/canvas/nodes/:id/collapse", h.HandleToggleCollapse)

		pg.GET("/iterations", h.HandleListIterations)
		pg.DELETE("/iterations", h.HandleDeleteIteration)
		pg.POST("/iterations/scan", h.HandleScan)
		pg.POST("/iterations/poll", h.HandleStartPolling)
		pg.DELETE("/iterations/poll", h.HandleStopPolling)

		pg.POST("/generate", h.HandleGenerate)
		pg.DELETE("/generate", h.HandleCancelGeneration)
		pg.GET("/generate/status", h.HandleGenerationStatus)
		pg.GET("/generate/log", h.HandleGenerationLog)

		pg.GET("/models", h.HandleModels)
	}
}

// NewRouter returns an engine serving h under /v1 plus /metrics.
func NewRouter(h *Handlers, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestIDMiddleware(), accessLog(logger))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	RegisterRoutes(router.Group("/v1"), h)
	return router
}

// accessLog logs one line per request.
func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", requestID(c),
		)
	}
}
