package response

import (
	"errors"

	"reserver/internal/shared/apperrors"

	"github.com/gin-gonic/gin"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errs interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errs,
	})
}

// RespondError maps a service error onto the standard envelope using the
// apperrors HTTP mapping. Conflict errors additionally carry the occupied
// windows so clients can re-pick a slot.
func RespondError(c *gin.Context, err error) {
	code := apperrors.HTTPStatus(err)

	var conflict *apperrors.ConflictError
	if errors.As(err, &conflict) {
		RespondJSON(c, "error", code, err.Error(), nil, conflict)
		return
	}

	RespondJSON(c, "error", code, err.Error(), nil, nil)
}
