package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/CorrelAid/registration_uploader/models"
	"github.com/gin-gonic/gin"
)

const SessionKey = "session_id"

// SessionStore is the part of the session store the middleware needs.
type SessionStore interface {
	Create() (*models.Session, error)
	Get(id string) (*models.Session, error)
}

// SessionMiddleware resolves the form session from its cookie, starting a
// new one when the cookie is missing or the session has expired.
func SessionMiddleware(store SessionStore, cookie string, maxAge int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := c.Cookie(cookie); err == nil && id != "" {
			if _, err := store.Get(id); err == nil {
				c.Set(SessionKey, id)
				c.Next()
				return
			} else if !errors.Is(err, models.ErrSessionNotFound) {
				slog.Error("load session", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, Message{
					Status: "Request Failed",
					Body:   "Could not load the form session.",
				})
				return
			}
		}

		session, err := store.Create()
		if err != nil {
			slog.Error("create session", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, Message{
				Status: "Request Failed",
				Body:   "Could not start a form session.",
			})
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookie, session.ID, maxAge, "/", "", false, true)
		c.Set(SessionKey, session.ID)
		c.Next()
	}
}
