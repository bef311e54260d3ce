package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/config"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/relay"
)

func SetupRouter(cfg *config.Config, hub *relay.Hub, store *relay.InviteStore) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.POST("/invites", relay.CreateInviteHandler(store))
	api.GET("/invites/:inviteId", relay.ResolveInviteHandler(store))

	r.GET("/ws", relay.SignalHandler(hub))

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
