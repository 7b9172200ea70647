package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/p2p-signaling/config"
	"github.com/mossy-p/p2p-signaling/internal/middleware"
	"github.com/mossy-p/p2p-signaling/internal/registry"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP surface needs. Presence may be nil.
type Deps struct {
	Config   *config.Config
	Registry *registry.Registry
	Presence PresenceReader
	Logger   *zap.Logger
}

// NewRouter wires every route of the signaling server. ctx is the server
// lifetime and is handed to each signaling connection.
func NewRouter(ctx context.Context, deps Deps) *gin.Engine {
	cfg := deps.Config

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(deps.Logger))

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		// Admin token endpoint (public)
		apiGroup.POST("/auth/login", Login(cfg.JWTSecret, cfg.Admin))

		// Presence lookup (public)
		apiGroup.GET("/presence/:login", GetPresence(deps.Presence))

		// Registry listing (requires JWT)
		apiGroup.GET("/logins", middleware.JWTAuth(cfg.JWTSecret), ListLogins(deps.Registry))
	}

	// WebSocket signaling endpoint
	router.GET("/ws", HandleSignaling(ctx, deps.Registry, cfg.Socket, deps.Logger))

	return router
}
