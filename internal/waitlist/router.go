package waitlist

import (
	"reserver/internal/shared/config"
	"reserver/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupWaitlistRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config) {
	waitlist := router.Group("/waitlist")
	waitlist.Use(middleware.JWTAuthWithConfig(cfg))
	{
		waitlist.POST("", controller.Join)
		waitlist.GET("", controller.ListMine)
		waitlist.GET("/position/:resourceId", controller.GetPosition)
		waitlist.DELETE("/:id", controller.Leave)
		waitlist.POST("/:id/accept", controller.Accept)
		waitlist.POST("/:id/decline", controller.Decline)
	}
}
