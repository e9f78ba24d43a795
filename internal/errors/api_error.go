package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(message string, details map[string]any) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}

// AbortWith sends an APIError with the given status and aborts the request.
func AbortWith(c *gin.Context, status int, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, NewAPIError(message, details))
}

// AbortWithBadRequest sends a 400 Bad Request response and aborts the request.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]any) {
	AbortWith(c, http.StatusBadRequest, message, details)
}

// AbortWithUnauthorized sends a 401 Unauthorized response and aborts the request.
func AbortWithUnauthorized(c *gin.Context, message string, details map[string]any) {
	AbortWith(c, http.StatusUnauthorized, message, details)
}

// AbortWithInternal sends a 500 Internal Server Error response and aborts the request.
func AbortWithInternal(c *gin.Context, message string, details map[string]any) {
	AbortWith(c, http.StatusInternalServerError, message, details)
}

// AbortWithUnavailable sends a 503 Service Unavailable response and aborts the request.
// Push-based delivery platforms treat 503 as retryable and redeliver the event.
func AbortWithUnavailable(c *gin.Context, message string, details map[string]any) {
	AbortWith(c, http.StatusServiceUnavailable, message, details)
}
