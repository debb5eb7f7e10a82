package waitlist

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"reserver/internal/shared/middleware"
	"reserver/internal/shared/utils/response"
)

type Controller interface {
	Join(c *gin.Context)
	Leave(c *gin.Context)
	Accept(c *gin.Context)
	Decline(c *gin.Context)
	ListMine(c *gin.Context)
	GetPosition(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) Join(c *gin.Context) {
	var req JoinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	entry, err := ctrl.service.Join(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Joined waitlist successfully", entry, nil)
}

func (ctrl *controller) Leave(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	if err := ctrl.service.Leave(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Left waitlist successfully", nil, nil)
}

func (ctrl *controller) Accept(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	reservation, err := ctrl.service.Accept(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Offer accepted, reservation created", reservation, nil)
}

func (ctrl *controller) Decline(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	if err := ctrl.service.Decline(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Offer declined", nil, nil)
}

func (ctrl *controller) ListMine(c *gin.Context) {
	entries, err := ctrl.service.ListMine(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Waitlist entries retrieved successfully", entries, nil)
}

func (ctrl *controller) GetPosition(c *gin.Context) {
	resourceID, err := strconv.ParseInt(c.Param("resourceId"), 10, 64)
	if err != nil || resourceID <= 0 {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid resource id", nil, nil)
		return
	}

	position, err := ctrl.service.GetPosition(c.Request.Context(), middleware.GetUserID(c), resourceID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Waitlist position retrieved successfully", position, nil)
}

func entryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid waitlist entry id", nil, nil)
		return 0, false
	}
	return id, true
}
