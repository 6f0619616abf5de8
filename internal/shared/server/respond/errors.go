package respond

import (
	"github.com/gin-gonic/gin"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/telemetry"
)

// ErrorResponse is the error envelope returned by every endpoint.
// Code and Data are only set for pipeline failures that produced a record.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Error sends an error response and aborts the chain.
func Error(c *gin.Context, status int, message string, details interface{}) {
	Write(c, status, ErrorResponse{Error: message, Details: details})
}

// Write logs and sends a fully populated error envelope.
func Write(c *gin.Context, status int, body ErrorResponse) {
	fields := map[string]any{
		"status":     status,
		"message":    body.Error,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if body.Code != "" {
		fields["code"] = body.Code
	}
	if analysisID := c.GetString("analysisId"); analysisID != "" {
		fields["analysis_id"] = analysisID
	}
	telemetry.Error("http.error", fields)

	c.AbortWithStatusJSON(status, body)
}
