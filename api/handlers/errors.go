// Package handlers provides the panel HTTP API request handlers.
package handlers

import (
	"github.com/gin-gonic/gin"
)

// Error codes returned in ErrorResponse.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "LIFT_NOT_FOUND"
	CodeNotConnected = "NOT_CONNECTED"
	CodeInternal     = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func sendError(c *gin.Context, statusCode int, code, message string) {
	sendErrorDetails(c, statusCode, code, message, nil)
}

func sendErrorDetails(c *gin.Context, statusCode int, code, message string, details map[string]interface{}) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message, Details: details},
	})
}
