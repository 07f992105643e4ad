package handlers

import (
	"net/http"

	"github.com/CorrelAid/registration_uploader/inits"
	"github.com/CorrelAid/registration_uploader/metrics"
	"github.com/CorrelAid/registration_uploader/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter builds the gateway's gin engine.
func SetupRouter(conf *inits.Config, h *Handler, sessions middleware.SessionStore, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	// Set a lower memory limit for multipart forms (default is 32 MiB)
	r.MaxMultipartMemory = conf.Server.MaxMultipartMemory

	if len(conf.Server.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     conf.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "CF-Turnstile-Response"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	maxAge := int(conf.Session.TTL.Seconds())
	form := r.Group("/register",
		middleware.DomainWhitelistMiddleware(conf.Server.AllowedDomains),
		middleware.SessionMiddleware(sessions, conf.Session.Cookie, maxAge),
	)
	// Only the calls that reach the image host or the backend are limited.
	limit := middleware.RateLimitMiddleware(middleware.RateLimit{
		PerMinute: conf.Server.RateLimit,
		Burst:     conf.Server.RateBurst,
	})
	{
		form.GET("", h.Show)
		form.PATCH("/fields", h.Fields)
		form.POST("/upload", limit, h.Upload)
		form.POST("/submit", limit, h.Submit)
	}
	r.GET(loginLinkPath, h.Login)

	return r
}
