package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth/limiter"
	"github.com/gin-gonic/gin"
)

// RateLimit is a per-client token bucket: PerMinute refills, Burst is the
// bucket size.
type RateLimit struct {
	PerMinute float64
	Burst     int
}

// RateLimitMiddleware returns one limiter. Attach the same handler to every
// route that should share a client's budget.
func RateLimitMiddleware(rl RateLimit) gin.HandlerFunc {
	burst := rl.Burst
	if burst < 1 {
		burst = 1
	}

	lmt := tollbooth.NewLimiter(rl.PerMinute/60.0, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	lmt.SetBurst(burst)
	lmt.SetIPLookups([]string{"RemoteAddr", "X-Forwarded-For", "X-Real-IP"})

	return func(c *gin.Context) {
		if httpError := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpError != nil {
			slog.Info("rate limited", "ip", c.ClientIP(), "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, Message{
				Status: "Request Failed",
				Body:   "Too many attempts, try again later.",
			})
			return
		}
		c.Next()
	}
}

type Message struct {
	Status string `json:"status"`
	Body   string `json:"body"`
}
