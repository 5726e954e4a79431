package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"finchat/internal/config"
)

// Handlers groups the handlers served by the router.
type Handlers struct {
	Chat      *ChatHandler
	Settings  *SettingsHandler
	Watchlist *WatchlistHandler
}

func NewRouter(ctx context.Context, cfg *config.Config, h Handlers) *gin.Engine {
	router := gin.New()

	// middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	// health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"llm":       h.Chat.chatService.Available(),
			"timestamp": time.Now().Unix(),
		})
	})

	api := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		api.Use(RateLimit(ctx, cfg.RateLimit))
	}
	{
		api.POST("/chat/message", h.Chat.StreamChat)

		settings := api.Group("/settings")
		{
			settings.GET("/gemini-keys", h.Settings.GetKeyStatus)
			settings.POST("/gemini-keys", h.Settings.UpdateKey)
		}

		watchlist := api.Group("/watchlist")
		{
			watchlist.GET("/:user_id", h.Watchlist.Get)
			watchlist.POST("/:user_id/add", h.Watchlist.Add)
			watchlist.DELETE("/:user_id/remove/:symbol", h.Watchlist.Remove)
		}
	}

	return router
}
