package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/linkscan/cache"
	"github.com/use-agent/linkscan/models"
	"github.com/use-agent/linkscan/scraper"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Health returns a handler for GET /api/v1/health. stats is nil when
// rendering is disabled.
//
// Status degrades when more than 80% of browser contexts are in use.
func Health(stats func() scraper.Stats, store *cache.Store, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		if stats != nil {
			s := stats()
			if s.MaxContexts > 0 && s.Active > int(float64(s.MaxContexts)*0.8) {
				status = "degraded"
			}
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			Version:    Version,
			Render:     stats != nil,
			ActiveJobs: store.Active(),
		})
	}
}
