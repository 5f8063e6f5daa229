package handlers

import (
	"net/http"
	"strings"
	"sync"

	"order-analyst/web/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || strings.HasSuffix(origin, "://"+r.Host)
}

// Socket serves questions over a websocket: each text frame carries a
// ChatRequest and is answered with progress, answer and end frames.
func (h *ChatHandler) Socket(c *gin.Context) {
	sessionID := c.MustGet("sessionID").(uuid.UUID)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	var writeMu sync.Mutex
	write := func(data types.StreamData) error {
		return h.stream.WriteWSData(conn, data, &writeMu)
	}

	for {
		var req types.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Websocket closed", zap.String("session_id", sessionID.String()), zap.Error(err))
			}
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			write(types.StreamData{Type: types.StreamError, Content: "Message cannot be empty"})
			continue
		}
		h.run(ctx, sessionID, req.Message, write)
	}
}
