package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/listforge/listforge/internal/logger"
)

// getStats returns the aggregate operational overview
// GET /api/v1/stats
func (r *Router) getStats(c *gin.Context) {
	stats, err := r.stats.GetStats(c.Request.Context())
	if err != nil {
		r.logger.Error("failed to get stats",
			logger.Error(err),
			logger.String("path", c.Request.URL.Path))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve statistics",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}
