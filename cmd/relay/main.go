package main

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SuleymanovTahir/beauty-crm-sub001/config"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/relay"
)

func main() {
	cfg := config.Load()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	presence, err := relay.ConnectPresence(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer presence.Close()
	log.Info().Msg("redis connection established")

	hub := relay.NewHub()
	auth := relay.NewAuthenticator(cfg.JWTSecret, 24*time.Hour)
	handler := relay.NewHandler(hub, presence, auth)

	router := gin.Default()
	router.Use(relay.OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": hub.Count()})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/login", auth.Login)
		api.GET("/presence/:userId", func(c *gin.Context) {
			online, err := presence.IsOnline(c.Param("userId"))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "presence lookup failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"user_id": c.Param("userId"), "online": online})
		})
	}

	router.GET("/ws", handler.Serve)

	log.Info().Str("port", cfg.Port).Msg("starting call relay")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
