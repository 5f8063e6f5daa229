package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const SessionCookieName = "order_analyst_session"
const CookieMaxAge = 30 * 24 * 60 * 60 // 30 days

// SessionMiddleware resolves the session cookie, issuing a new session id
// when the cookie is missing or unreadable.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sessionID uuid.UUID
		cookie, err := c.Cookie(SessionCookieName)
		if err == nil {
			sessionID, err = uuid.Parse(cookie)
		}
		if err != nil {
			if err != http.ErrNoCookie {
				if logger := loggerFrom(c); logger != nil {
					logger.Debug("Replacing unreadable session cookie")
				}
			}
			sessionID = uuid.New()
			c.SetCookie(SessionCookieName, sessionID.String(), CookieMaxAge, "/", "", false, true)
		}

		c.Set("sessionID", sessionID)
		c.Next()
	}
}
