package respond

import "github.com/gin-gonic/gin"

// SuccessResponse wraps a successful payload.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Success writes {success:true, data} with the given status.
func Success(c *gin.Context, status int, data interface{}) {
	JSON(c, status, SuccessResponse{Success: true, Data: data})
}
