package utils

import (
	"errors"
	"net/http"

	"hemodialysis-scheduler/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// SuccessResponse sends a standard success JSON response
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// CreatedResponse sends a success response for a created resource
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    data,
	})
}

// ErrorResponse sends a standard error JSON response
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   message,
	})
}

// HandleError maps a service error onto the matching status code.
// Unknown errors are reported as 500 without leaking their text.
func HandleError(c *gin.Context, err error) {
	var (
		inputErr      *apperrors.InputError
		transitionErr *apperrors.TransitionError
	)
	if conflict, ok := apperrors.AsConflict(err); ok {
		body := gin.H{"success": false, "error": conflict.Error()}
		if conflict.SessionID != 0 {
			body["conflicting_session_id"] = conflict.SessionID
		}
		c.JSON(http.StatusConflict, body)
		return
	}

	switch {
	case errors.As(err, &inputErr):
		ErrorResponse(c, http.StatusBadRequest, inputErr.Error())
	case errors.As(err, &transitionErr):
		ErrorResponse(c, http.StatusConflict, transitionErr.Error())
	case errors.Is(err, apperrors.ErrNoBedAvailable):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	default:
		_ = c.Error(err)
		ErrorResponse(c, http.StatusInternalServerError, "Internal server error")
	}
}
