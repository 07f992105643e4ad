package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DomainWhitelistMiddleware rejects requests whose Host is not listed. An
// empty list allows every host.
func DomainWhitelistMiddleware(allowedDomains []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(allowedDomains) == 0 {
			c.Next()
			return
		}

		host := c.Request.Host
		allowed := false
		for _, domain := range allowedDomains {
			if strings.EqualFold(domain, host) {
				allowed = true
				break
			}
		}

		if !allowed {
			slog.Info("host not whitelisted", "host", host)
			c.AbortWithStatusJSON(http.StatusForbidden, Message{
				Status: "Request Failed",
				Body:   "Permission denied",
			})
			return
		}

		c.Next()
	}
}
