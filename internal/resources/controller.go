package resources

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"reserver/internal/shared/middleware"
	"reserver/internal/shared/utils/response"
)

type Controller interface {
	CreateResource(c *gin.Context)
	GetResource(c *gin.Context)
	ListResources(c *gin.Context)
	UpdateResource(c *gin.Context)
	SetUnavailable(c *gin.Context)
	SetAvailable(c *gin.Context)
	SetBusinessHours(c *gin.Context)
	GetSchedule(c *gin.Context)
	AddBlackoutDate(c *gin.Context)
	RemoveBlackoutDate(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) CreateResource(c *gin.Context) {
	var req CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	resource, err := ctrl.service.CreateResource(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Resource created successfully", resource, nil)
}

func (ctrl *controller) GetResource(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resource, err := ctrl.service.GetResource(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Resource retrieved successfully", resource, nil)
}

func (ctrl *controller) ListResources(c *gin.Context) {
	var query ResourceListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}

	resources, err := ctrl.service.ListResources(c.Request.Context(), query)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Resources retrieved successfully", resources, nil)
}

func (ctrl *controller) UpdateResource(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req UpdateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	resource, err := ctrl.service.UpdateResource(c.Request.Context(), id, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Resource updated successfully", resource, nil)
}

func (ctrl *controller) SetUnavailable(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resource, err := ctrl.service.SetUnavailable(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Resource marked unavailable", resource, nil)
}

func (ctrl *controller) SetAvailable(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resource, err := ctrl.service.SetAvailable(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Resource marked available", resource, nil)
}

func (ctrl *controller) SetBusinessHours(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req BusinessHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	hours, err := ctrl.service.SetBusinessHours(c.Request.Context(), id, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Business hours updated successfully", hours, nil)
}

func (ctrl *controller) GetSchedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	schedule, err := ctrl.service.GetSchedule(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Schedule retrieved successfully", schedule, nil)
}

func (ctrl *controller) AddBlackoutDate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req BlackoutDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	blackout, err := ctrl.service.AddBlackoutDate(c.Request.Context(), id, middleware.GetUserID(c), req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Blackout date added successfully", blackout, nil)
}

func (ctrl *controller) RemoveBlackoutDate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	blackoutID, ok := pathID(c, "blackoutId")
	if !ok {
		return
	}

	if err := ctrl.service.RemoveBlackoutDate(c.Request.Context(), id, blackoutID); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Blackout date removed successfully", nil, nil)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid "+name, nil, nil)
		return 0, false
	}
	return id, true
}
