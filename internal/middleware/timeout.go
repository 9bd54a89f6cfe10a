package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"

	"github.com/simp-lee/carhire/internal/pkg"
)

// Timeout answers 408 with the JSON envelope once d has elapsed, whether or
// not the handler honours its request context. The handler runs against a
// buffered writer, so a late response is dropped.
//
// Long-lived upgrade requests (websocket snapshot streams) are skipped.
func Timeout(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	isWebsocket := ginx.Custom(func(c *gin.Context) bool { return c.IsWebsocket() })

	return ginx.NewChain().
		WithErrorFormat(envelopeError).
		Unless(isWebsocket, ginx.Timeout(ginx.WithTimeout(d))).
		Build()
}

// envelopeError renders ginx middleware errors in the API response envelope.
func envelopeError(status int, message string) any {
	return pkg.Response{Code: status, Message: message}
}
