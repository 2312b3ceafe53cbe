package bridge

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/udisondev/saferespawn/internal/icon"
	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/respawn"
)

// ImageSource serves registered icons by digest (icon.Library).
type ImageSource interface {
	Image(digest string) (icon.Image, error)
}

// StatusSource reports service state (respawn.Service).
type StatusSource interface {
	Status() respawn.Status
}

// GrantInvalidator forgets cached permission answers (permission.Cache).
type GrantInvalidator interface {
	Invalidate(player model.PlayerID) int
}

// NewRouter builds the HTTP surface: the host websocket, read-only
// endpoints and the grant invalidation hook used by saferespawnctl.
// images may be nil when icons are disabled.
func NewRouter(b *Bridge, status StatusSource, images ImageSource, grants GrantInvalidator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/ws", b.handleWS)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"host_connected": b.Connected(),
		})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"host_connected": b.Connected(),
			"service":        status.Status(),
		})
	})

	r.GET("/icons/:digest", func(c *gin.Context) {
		if images == nil {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		img, err := images.Image(c.Param("digest"))
		if errors.Is(err, icon.ErrNotFound) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Cache-Control", "public, max-age=86400, immutable")
		c.Data(http.StatusOK, img.ContentType, img.Data)
	})

	r.POST("/permissions/:player/invalidate", func(c *gin.Context) {
		player, err := model.ParsePlayerID(c.Param("player"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		removed := grants.Invalidate(player)
		slog.Info("permission cache invalidated", "player", player, "removed", removed)
		c.JSON(http.StatusOK, gin.H{
			"player":  player.String(),
			"removed": removed,
		})
	})

	return r
}

func (b *Bridge) handleWS(c *gin.Context) {
	if b.Connected() {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "host already connected"})
		return
	}

	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	b.serve(conn)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
