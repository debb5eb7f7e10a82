package approvals

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"reserver/internal/shared/middleware"
	"reserver/internal/shared/utils/response"
)

type Controller interface {
	ListPending(c *gin.Context)
	Approve(c *gin.Context)
	Reject(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) ListPending(c *gin.Context) {
	var query ApprovalListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}

	requests, err := ctrl.service.ListPending(c.Request.Context(), middleware.GetUserID(c), query)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Pending approvals retrieved successfully", requests, nil)
}

func (ctrl *controller) Approve(c *gin.Context) {
	ctrl.decide(c, true)
}

func (ctrl *controller) Reject(c *gin.Context) {
	ctrl.decide(c, false)
}

func (ctrl *controller) decide(c *gin.Context, approve bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid approval request id", nil, nil)
		return
	}

	var req DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
			return
		}
	}

	var (
		result  *ApprovalResponse
		message string
	)
	if approve {
		result, err = ctrl.service.Approve(c.Request.Context(), middleware.GetUserID(c), id, req.Message)
		message = "Reservation approved successfully"
	} else {
		result, err = ctrl.service.Reject(c.Request.Context(), middleware.GetUserID(c), id, req.Message)
		message = "Reservation rejected successfully"
	}
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, message, result, nil)
}
