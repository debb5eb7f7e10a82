package resources

import (
	"reserver/internal/shared/config"
	"reserver/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupResourceRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config) {
	// Authenticated users can browse resources and their schedules.
	userResources := router.Group("/resources")
	userResources.Use(middleware.JWTAuthWithConfig(cfg))
	{
		userResources.GET("", controller.ListResources)
		userResources.GET("/:id", controller.GetResource)
		userResources.GET("/:id/schedule", controller.GetSchedule)
	}

	// Admin routes manage the resource catalogue and availability.
	adminResources := router.Group("/admin/resources")
	adminResources.Use(middleware.JWTAuthWithConfig(cfg), middleware.RequireAdmin())
	{
		adminResources.POST("", controller.CreateResource)
		adminResources.PUT("/:id", controller.UpdateResource)
		adminResources.POST("/:id/unavailable", controller.SetUnavailable)
		adminResources.POST("/:id/available", controller.SetAvailable)
		adminResources.PUT("/:id/business-hours", controller.SetBusinessHours)
		adminResources.POST("/:id/blackouts", controller.AddBlackoutDate)
		adminResources.DELETE("/:id/blackouts/:blackoutId", controller.RemoveBlackoutDate)
	}
}
