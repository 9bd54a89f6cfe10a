package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/carhire/internal/pkg"
)

// renderError sends the JSON error envelope. The message falls back to the
// standard status text when empty.
func renderError(c *gin.Context, code int, message string) {
	if message == "" {
		message = defaultStatusText(code)
	}
	c.JSON(code, pkg.Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// defaultStatusText returns a short lower-case label for an error code.
func defaultStatusText(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusNotFound:
		return "not found"
	case http.StatusMethodNotAllowed:
		return "method not allowed"
	case http.StatusRequestTimeout:
		return "request timeout"
	case http.StatusTooManyRequests:
		return "too many requests"
	case http.StatusInternalServerError:
		return "internal server error"
	default:
		return "error"
	}
}
