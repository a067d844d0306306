package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// HandleWebSocket subscribes the client to the live event feed.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	if h.deps.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event feed disabled"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	h.deps.Hub.Register(conn)

	// The feed is one-way; reading only detects the client going away.
	go func() {
		defer h.deps.Hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
