// Package api exposes the operator surface: health, ledger statistics and
// an iCalendar feed of upcoming releases.
package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates the HTTP server with all routes configured.
func NewServer(handler *Handler) *gin.Engine {
	// Gin mode can still be overridden via the GIN_MODE environment variable
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	setupRoutes(r, handler)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)
	r.GET("/calendar.ics", handler.GetCalendar)

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service": "htb-relay",
			"version": handler.version,
			"endpoints": map[string]string{
				"health":   "/health",
				"stats":    "/stats",
				"calendar": "/calendar.ics",
			},
		})
	})

	// Return 204 to avoid 404 noise in the access log
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
