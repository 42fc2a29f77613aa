package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/catalog-admin/internal/app/model"
)

// ErrorResponse is the standard error body
type ErrorResponse struct {
	Error      string            `json:"error"`   // code, see codes.go
	Message    string            `json:"message"` // human readable
	Fields     map[string]string `json:"fields,omitempty"`
	Violations []model.Violation `json:"violations,omitempty"`
}

// RespondWithError writes an error body with the given status and code
func RespondWithError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// Shorthands for frequent responses

func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "authentication required"
	}
	RespondWithError(c, http.StatusUnauthorized, AuthUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "access denied"
	}
	RespondWithError(c, http.StatusForbidden, AuthzForbidden, message)
}

func BadRequest(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusBadRequest, errorCode, message)
}

func NotFound(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusNotFound, errorCode, message)
}

func Conflict(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusConflict, errorCode, message)
}

func InternalError(c *gin.Context, message string) {
	if message == "" {
		message = "internal server error, please try again later"
	}
	RespondWithError(c, http.StatusInternalServerError, InternalServerError, message)
}

// RespondWithValidationError reports every violated rule at once
func RespondWithValidationError(c *gin.Context, violations model.ValidationErrors) {
	c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:      ValidationFailed,
		Message:    violations.Error(),
		Fields:     violations.Fields(),
		Violations: violations,
	})
}
