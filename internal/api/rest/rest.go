package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/smartico/promo-importer/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Import upload (requires API key authentication)
		v1.POST("/imports", middleware.APIKeyAuth(authCfg), handler.CreateImport)

		// User endpoints (public read access)
		v1.GET("/users/:smartico_id", handler.GetUser)
		v1.GET("/users/:smartico_id/promotions", handler.ListUserPromotions)

		// Promotion endpoints (public read access)
		v1.GET("/promotions/:name", handler.GetPromotion)
		v1.GET("/promotions/:name/history", handler.GetPromotionHistory)
	}
}
