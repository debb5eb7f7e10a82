package reservations

import (
	"reserver/internal/shared/config"
	"reserver/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupReservationRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config) {
	reservations := router.Group("/reservations")
	reservations.Use(middleware.JWTAuthWithConfig(cfg))
	{
		reservations.POST("", controller.CreateReservation)
		reservations.POST("/recurring", controller.CreateRecurringSeries)
		reservations.GET("", controller.ListMyReservations)
		reservations.GET("/:id", controller.GetReservation)
		reservations.GET("/:id/audit", controller.GetAudit)
		reservations.DELETE("/:id", controller.CancelReservation)
		reservations.DELETE("/:id/series", controller.CancelSeries)
	}

	// Day availability sits under the resource path but is served by the
	// reservations module, which owns the window data.
	availability := router.Group("/resources")
	availability.Use(middleware.JWTAuthWithConfig(cfg))
	{
		availability.GET("/:id/availability", controller.GetResourceDay)
	}
}
