package sockets

import (
	"github.com/gin-gonic/gin"
)

func SetupSocketRoutes(router *gin.RouterGroup, controller Controller) {
	router.GET("/ws", controller.Connect)
}
