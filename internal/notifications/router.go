package notifications

import (
	"reserver/internal/shared/config"
	"reserver/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupNotificationRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config) {
	notifications := router.Group("/notifications")
	notifications.Use(middleware.JWTAuthWithConfig(cfg))
	{
		notifications.GET("", controller.List)
		notifications.PATCH("/:id/read", controller.MarkRead)
		notifications.PATCH("/read-all", controller.MarkAllRead)
	}
}
