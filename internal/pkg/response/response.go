package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// retryAfterSeconds is advertised on 503s. Every operation behind them is idempotent.
const retryAfterSeconds = "2"

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// Unavailable reports a transient store failure the client may retry as-is.
func Unavailable(c *gin.Context, message string) {
	c.Header("Retry-After", retryAfterSeconds)
	Error(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", message)
}

// CustomError writes an error envelope and aborts the chain. Used by middleware.
func CustomError(c *gin.Context, statusCode int, code string, message string) {
	Error(c, statusCode, code, message)
	c.Abort()
}
