// Package httpserver exposes the gateway over HTTP: the websocket endpoint
// plus health and stats probes.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-groupchat/internal/ws"
)

func SetupRouter(mode string, hub *ws.Hub) *gin.Engine {
	if mode == gin.ReleaseMode || mode == gin.DebugMode || mode == gin.TestMode {
		gin.SetMode(mode)
	}

	r := gin.New()
	if mode == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/ws", func(c *gin.Context) {
		ws.ServeWS(hub, c.Writer, c.Request)
	})

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.Stats())
	})

	slog.Debug("[HTTP] Router configured", "mode", gin.Mode())
	return r
}

// CreateServer wraps handler with production timeouts. Upgraded websocket
// connections clear these deadlines.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Shutdown stops accepting requests and waits up to timeout for in-flight
// ones to finish.
func Shutdown(server *http.Server, timeout time.Duration) error {
	slog.Info("[HTTP] Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("[HTTP] HTTP server shutdown error", "error", err)
		return err
	}

	slog.Info("[HTTP] HTTP server shutdown completed")
	return nil
}
