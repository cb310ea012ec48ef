package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sageteck/tuneup-relay/internal/adapters/ws"
	"github.com/sageteck/tuneup-relay/internal/app"
	"github.com/sageteck/tuneup-relay/internal/config"
	"github.com/sageteck/tuneup-relay/internal/store"
)

// SetupRouter wires every route. history may be nil when no database is
// configured; the relay works without it.
func SetupRouter(ctx context.Context, cfg *config.Config, disp *app.Dispatcher, chatStore *store.Store) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(TenantCORSMiddleware(cfg.CORS.Policy()))

	handlers := &Handlers{Dispatcher: disp}
	ctl := ws.NewController(disp, cfg)

	r.GET("/ws/chat", func(c *gin.Context) {
		ctl.HandleChat(ctx, c)
	})

	api := r.Group("/", APIKeyMiddleware(cfg.APIKey))
	api.GET("/", handlers.Health)
	api.POST("/send-message", handlers.SendMessage)
	api.POST("/typing-status", handlers.TypingStatus)
	api.POST("/mark-read", handlers.MarkRead)
	api.POST("/emit", handlers.Emit)
	api.POST("/test-broadcast", handlers.TestBroadcast)
	api.GET("/connected-clients", handlers.ConnectedClients)

	if chatStore != nil {
		history := &HistoryHandlers{Store: chatStore, Dispatcher: disp}
		api.GET("/conversations", history.Conversations)
		api.GET("/conversations/:id/messages", history.Messages)
		api.POST("/conversations/:id/messages", history.PostMessage)
		api.POST("/conversations/:id/read", history.MarkRead)
		log.Info().Str("module", "adapters.http").Msg("history endpoints enabled")
	}

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
