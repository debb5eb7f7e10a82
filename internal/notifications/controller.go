package notifications

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"reserver/internal/shared/middleware"
	"reserver/internal/shared/utils/response"
)

type Controller interface {
	List(c *gin.Context)
	MarkRead(c *gin.Context)
	MarkAllRead(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) List(c *gin.Context) {
	var query NotificationListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}

	notifications, err := ctrl.service.List(c.Request.Context(), middleware.GetUserID(c), query)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Notifications retrieved successfully", notifications, nil)
}

func (ctrl *controller) MarkRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid notification id", nil, nil)
		return
	}

	if err := ctrl.service.MarkRead(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Notification marked as read", nil, nil)
}

func (ctrl *controller) MarkAllRead(c *gin.Context) {
	updated, err := ctrl.service.MarkAllRead(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "All notifications marked as read",
		gin.H{"updated": updated}, nil)
}
