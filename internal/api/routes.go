package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures the API routes
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Webhook and viewer-facing endpoints
	r.POST("/github", h.Webhook)
	r.GET("/", h.Dashboard)
	r.GET("/events/:token", h.StreamEvents)

	// Admin endpoints. Viewer auth is out of scope; deploy these behind the
	// fronting proxy's admin restriction.
	admin := r.Group("/admin")
	{
		admin.GET("/repos", h.ListUnapprovedRepositories)
		admin.POST("/approve", h.ApproveRepository)
	}

	return r
}
