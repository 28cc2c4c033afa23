package handlers

import (
	"net/http"

	"musiclocker-backend/config"
	"musiclocker-backend/web"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires every route of the locker.
func NewRouter(cfg *config.Config, h *LockerHandler) *gin.Engine {
	router := gin.Default()
	router.MaxMultipartMemory = cfg.MaxUploadBytes()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Range", "X-Requested-With"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "Content-Range", "Accept-Ranges"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	maxUpload := cfg.MaxUploadBytes()
	limitBody := func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload)
		c.Next()
	}

	router.GET("/", web.Index)

	// API Routes
	api := router.Group("/api/v1")
	{
		api.GET("/health", h.HealthCheck)

		session := api.Group("", h.Session)
		session.POST("/login", h.Login)
		session.POST("/logout", h.Logout)
		session.GET("/session", h.GetSession)

		track := session.Group("/track", h.RequireAuth)
		{
			track.POST("", limitBody, h.UploadTrack)
			track.DELETE("", h.RemoveTrack)
			track.GET("/:id/audio", h.StreamAudio)
			track.GET("/:id/cover", h.Cover)
			track.GET("/:id/download", h.Download)
			track.GET("/:id/export.wav", h.ExportWAV)
		}
	}

	return router
}
