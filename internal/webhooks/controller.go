package webhooks

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"reserver/internal/shared/middleware"
	"reserver/internal/shared/utils/response"
)

type Controller interface {
	Create(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	ListDeliveries(c *gin.Context)
	TestFire(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) Create(c *gin.Context) {
	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	webhook, err := ctrl.service.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Webhook created successfully", webhook, nil)
}

func (ctrl *controller) List(c *gin.Context) {
	webhooks, err := ctrl.service.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Webhooks retrieved successfully", webhooks, nil)
}

func (ctrl *controller) Get(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}

	webhook, err := ctrl.service.Get(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Webhook retrieved successfully", webhook, nil)
}

func (ctrl *controller) Update(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}

	var req UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	webhook, err := ctrl.service.Update(c.Request.Context(), middleware.GetUserID(c), id, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Webhook updated successfully", webhook, nil)
}

func (ctrl *controller) Delete(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}

	if err := ctrl.service.Delete(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Webhook deleted successfully", nil, nil)
}

func (ctrl *controller) ListDeliveries(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}

	var query DeliveryListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}

	deliveries, err := ctrl.service.ListDeliveries(c.Request.Context(), middleware.GetUserID(c), id, query)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Deliveries retrieved successfully", deliveries, nil)
}

func (ctrl *controller) TestFire(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}

	delivery, err := ctrl.service.TestFire(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusAccepted, "Test delivery queued", delivery, nil)
}

func webhookID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid webhook id", nil, nil)
		return 0, false
	}
	return id, true
}
