package reservations

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"reserver/internal/shared/middleware"
	"reserver/internal/shared/utils/response"
)

type Controller interface {
	CreateReservation(c *gin.Context)
	CreateRecurringSeries(c *gin.Context)
	CancelReservation(c *gin.Context)
	CancelSeries(c *gin.Context)
	GetReservation(c *gin.Context)
	ListMyReservations(c *gin.Context)
	GetResourceDay(c *gin.Context)
	GetAudit(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) CreateReservation(c *gin.Context) {
	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	reservation, err := ctrl.service.CreateReservation(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	status := http.StatusCreated
	message := "Reservation created successfully"
	if reservation.Status == StatusPendingApproval {
		status = http.StatusAccepted
		message = "Reservation pending approval"
	}
	response.RespondJSON(c, "success", status, message, reservation, nil)
}

func (ctrl *controller) CreateRecurringSeries(c *gin.Context) {
	var req CreateRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	series, err := ctrl.service.CreateRecurringSeries(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Recurring series created successfully", series, nil)
}

func (ctrl *controller) CancelReservation(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}

	var req CancelReservationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
			return
		}
	}

	reservation, err := ctrl.service.CancelReservation(
		c.Request.Context(), middleware.GetUserID(c), middleware.IsAdmin(c), id, req.Reason)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Reservation cancelled successfully", reservation, nil)
}

func (ctrl *controller) CancelSeries(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}

	var req CancelReservationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
			return
		}
	}

	cancelled, err := ctrl.service.CancelSeries(
		c.Request.Context(), middleware.GetUserID(c), middleware.IsAdmin(c), id, req.Reason)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Series cancelled successfully",
		gin.H{"cancelled_occurrences": cancelled}, nil)
}

func (ctrl *controller) GetReservation(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}

	reservation, err := ctrl.service.GetReservation(
		c.Request.Context(), middleware.GetUserID(c), middleware.IsAdmin(c), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Reservation retrieved successfully", reservation, nil)
}

func (ctrl *controller) ListMyReservations(c *gin.Context) {
	var query ReservationListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}

	reservations, err := ctrl.service.ListUserReservations(c.Request.Context(), middleware.GetUserID(c), query)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Reservations retrieved successfully", reservations, nil)
}

func (ctrl *controller) GetResourceDay(c *gin.Context) {
	resourceIDParam, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || resourceIDParam <= 0 {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid resource id", nil, nil)
		return
	}
	date := c.Query("date")
	if date == "" {
		response.RespondJSON(c, "error", http.StatusBadRequest, "date query parameter is required", nil, nil)
		return
	}

	day, err := ctrl.service.GetResourceDay(c.Request.Context(), resourceIDParam, date)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Availability retrieved successfully", day, nil)
}

func (ctrl *controller) GetAudit(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}

	entries, err := ctrl.service.GetAudit(
		c.Request.Context(), middleware.GetUserID(c), middleware.IsAdmin(c), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Audit history retrieved successfully", entries, nil)
}

func reservationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid reservation id", nil, nil)
		return 0, false
	}
	return id, true
}
