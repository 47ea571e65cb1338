package streaming

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the API is local-first; browsers connect from arbitrary origins
		return true
	},
}

// RegisterRoutes mounts the attempt stream endpoint on the router.
func (h *Hub) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/v1/stream/attempts/:id/ws", h.handleAttemptStream)
}

// handleAttemptStream upgrades the connection and attaches it to the
// attempt named in the path.
func (h *Hub) handleAttemptStream(c *gin.Context) {
	attemptID := c.Param("id")
	if attemptID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "attempt id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), attemptID, conn, h, h.logger)
	h.Register(client)

	go client.WritePump()
	client.ReadPump(c.Request.Context())
}
