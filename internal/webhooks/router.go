package webhooks

import (
	"reserver/internal/shared/config"
	"reserver/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupWebhookRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config) {
	webhooks := router.Group("/webhooks")
	webhooks.Use(middleware.JWTAuthWithConfig(cfg))
	{
		webhooks.POST("", controller.Create)
		webhooks.GET("", controller.List)
		webhooks.GET("/:id", controller.Get)
		webhooks.PATCH("/:id", controller.Update)
		webhooks.DELETE("/:id", controller.Delete)
		webhooks.GET("/:id/deliveries", controller.ListDeliveries)
		webhooks.POST("/:id/test", controller.TestFire)
	}
}
