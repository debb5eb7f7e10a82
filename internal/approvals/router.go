package approvals

import (
	"reserver/internal/shared/config"
	"reserver/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupApprovalRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config) {
	approvals := router.Group("/approvals")
	approvals.Use(middleware.JWTAuthWithConfig(cfg))
	{
		approvals.GET("/pending", controller.ListPending)
		approvals.POST("/:id/approve", controller.Approve)
		approvals.POST("/:id/reject", controller.Reject)
	}
}
