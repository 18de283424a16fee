// Package api exposes scans over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/linkscan/api/handler"
	"github.com/use-agent/linkscan/api/middleware"
	"github.com/use-agent/linkscan/cache"
	"github.com/use-agent/linkscan/config"
	"github.com/use-agent/linkscan/scraper"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(cfg *config.Config, scans *handler.Scans, store *cache.Store, stats func() scraper.Stats, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(stats, store, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/scans", scans.Post())
	protected.GET("/scans/:id", scans.Get())
	protected.DELETE("/scans/:id", scans.Delete())

	return r
}
