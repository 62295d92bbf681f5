package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/hostwell/guildvault/internal/logging"
	"github.com/hostwell/guildvault/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Token auth already ran in middleware; cross-origin panels are fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades subscribers onto the progress hub.
type WSHandler struct {
	hub *ws.Hub
}

// NewWSHandler creates a websocket handler.
func NewWSHandler(hub *ws.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// SubscribeBackups attaches the caller to a workspace's backup event room.
func (h *WSHandler) SubscribeBackups(c *gin.Context) {
	workspaceID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.L().Warn("ws_upgrade_failed", "workspace_id", workspaceID, "error", err)
		return
	}

	client := ws.NewClient(workspaceID, conn)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump(h.hub)
}
