package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope every handler writes. Data carries the
// operation's payload, Error the underlying failure message.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success writes a successful envelope. A zero status defaults to 200 OK.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error aborts the request and writes the failure envelope.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	c.Abort()

	resp := Response{Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	if len(data) > 0 {
		resp.Data = data[0]
	}

	c.JSON(code, resp)
}
