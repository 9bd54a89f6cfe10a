package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/simp-lee/logger"
)

const (
	sessionHeader     = "X-Session-ID"
	sessionContextKey = "session_id"

	// DefaultSessionCookie is the cookie carrying the browsing session id.
	DefaultSessionCookie = "sid"
)

// SessionConfig controls how the browsing session id is carried.
type SessionConfig struct {
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

// DefaultSessionConfig returns a session cookie lasting one day.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		CookieName: DefaultSessionCookie,
		MaxAge:     24 * time.Hour,
	}
}

// Session returns a gin middleware that ties every request to a browsing
// session. The id is read from the session cookie, then from the
// X-Session-ID header for non-browser clients. A missing or malformed id
// is replaced with a fresh UUID and the cookie is (re)issued.
//
// The id is echoed in the X-Session-ID response header and added to the
// logging context.
func Session(cfg SessionConfig) gin.HandlerFunc {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultSessionCookie
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}

	return func(c *gin.Context) {
		id, fromCookie := "", false
		if v, err := c.Cookie(cfg.CookieName); err == nil && isValidSessionID(v) {
			id, fromCookie = v, true
		} else if v := c.GetHeader(sessionHeader); isValidSessionID(v) {
			id = v
		}
		if id == "" {
			id = uuid.NewString()
		}
		if !fromCookie {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cfg.CookieName, id, int(cfg.MaxAge/time.Second), "/", "", cfg.Secure, true)
		}

		c.Set(sessionContextKey, id)
		c.Header(sessionHeader, id)

		ctx := logger.WithContextAttrs(c.Request.Context(), slog.String("session_id", id))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func isValidSessionID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// GetSessionID extracts the session id from the gin.Context.
// Returns an empty string if the Session middleware did not run.
func GetSessionID(c *gin.Context) string {
	return c.GetString(sessionContextKey)
}
