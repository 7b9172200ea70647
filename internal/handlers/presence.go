package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/p2p-signaling/internal/models"
	"github.com/mossy-p/p2p-signaling/internal/redis"
	"github.com/mossy-p/p2p-signaling/internal/registry"
)

// PresenceReader looks up mirrored presence records
type PresenceReader interface {
	Get(ctx context.Context, login string) (*models.Presence, error)
}

// GetPresence reports whether a login is online according to the
// presence mirror (public)
func GetPresence(presence PresenceReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if presence == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Presence store disabled"})
			return
		}

		login := c.Param("login")
		record, err := presence.Get(c.Request.Context(), login)
		if errors.Is(err, redis.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.Presence{Login: login})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read presence"})
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

// ListLogins returns the live registry entries (requires admin token)
func ListLogins(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries := reg.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"logins": entries,
			"count":  len(entries),
		})
	}
}
