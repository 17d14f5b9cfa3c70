package search_http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes mounts the API under /api/v1. The feedback route is
// rate limited per client IP since it is the one unauthenticated write.
func RegisterRoutes(e *echo.Echo, h *Handler, feedbackRate rate.Limit, feedbackBurst int) {
	e.Validator = NewRequestValidator()

	v1 := e.Group("/api/v1")
	v1.GET("/search", h.Search)
	v1.GET("/stats", h.Stats)

	limiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:  feedbackRate,
			Burst: feedbackBurst,
		}),
	})
	v1.POST("/search/feedback", h.Feedback, limiter)

	v1.POST("/rerank/init", h.RerankInit)
	v1.GET("/rerank/status", h.RerankStatus)
	v1.POST("/rerank", h.Rerank)
}
