package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	apperrors "order-analyst/errors"
	"order-analyst/web/services"
	"order-analyst/web/templates/components"
	"order-analyst/web/templates/pages"
	"order-analyst/web/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ChatHandler struct {
	sessions *services.SessionService
	stream   *services.StreamService
	logger   *zap.Logger
}

func NewChatHandler(sessions *services.SessionService, stream *services.StreamService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		sessions: sessions,
		stream:   stream,
		logger:   logger,
	}
}

func (h *ChatHandler) Index(c *gin.Context) {
	sessionID := c.MustGet("sessionID").(uuid.UUID)
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := pages.ChatPage(sessionID, h.sessions.History(sessionID)).Render(c.Request.Context(), c.Writer); err != nil {
		h.logger.Error("Failed to render chat page", zap.String("session_id", sessionID.String()), zap.Error(err))
	}
}

// SendMessage answers a question in one request, without progress updates.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req types.ChatRequest
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		respondWithClientError(c, http.StatusBadRequest, "Message cannot be empty")
		return
	}
	sessionID := c.MustGet("sessionID").(uuid.UUID)

	h.logger.Info("Processing chat message", zap.String("session_id", sessionID.String()), zap.String("message", req.Message))
	reply, err := h.sessions.Ask(c.Request.Context(), sessionID, req.Message, func(string) {})
	if err != nil {
		respondWithRunError(c, err, sessionID, h.logger)
		return
	}
	c.JSON(http.StatusOK, types.ChatResponse{Output: reply.Content, Plan: reply.Plan, HTML: reply.HTML, RunID: reply.RunID})
}

// StreamResponse answers ?message= over server-sent events: progress phrases
// while the run goes, then the rendered answer and an end marker.
func (h *ChatHandler) StreamResponse(c *gin.Context) {
	message := strings.TrimSpace(c.Query("message"))
	if message == "" {
		respondWithClientError(c, http.StatusBadRequest, "Message cannot be empty")
		return
	}
	sessionID := c.MustGet("sessionID").(uuid.UUID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	var writeMu sync.Mutex
	write := func(data types.StreamData) error {
		return h.stream.WriteSSEData(ctx, c.Writer, data, &writeMu)
	}

	if err := write(types.StreamData{Type: "connection_established"}); err != nil {
		h.logger.Error("Failed to open event stream", zap.Error(err))
		return
	}
	h.run(ctx, sessionID, message, write)
}

// run executes one question and reports it through write. Shared by the SSE
// and websocket transports.
func (h *ChatHandler) run(ctx context.Context, sessionID uuid.UUID, message string, write func(types.StreamData) error) {
	reply, err := h.sessions.Ask(ctx, sessionID, message, h.stream.Notifier(write))
	if err != nil {
		content := "The assistant could not answer this question."
		if errors.Is(err, apperrors.ErrServiceUnavailable) {
			content = "A question is already running in this session."
		}
		write(types.StreamData{Type: types.StreamError, Content: content})
		return
	}
	var buf bytes.Buffer
	answer := reply.HTML
	if err := components.AnswerBlock(reply.HTML, reply.Plan).Render(ctx, &buf); err != nil {
		h.logger.Warn("Failed to render answer block", zap.String("run_id", reply.RunID), zap.Error(err))
	} else {
		answer = buf.String()
	}
	if err := write(types.StreamData{Type: types.StreamAnswer, Content: answer}); err != nil {
		h.logger.Error("Failed to send answer", zap.Error(err))
		return
	}
	if err := write(types.StreamData{Type: types.StreamEnd}); err != nil {
		h.logger.Error("Failed to send end message", zap.Error(err))
	}
}

func (h *ChatHandler) History(c *gin.Context) {
	sessionID := c.MustGet("sessionID").(uuid.UUID)
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID.String(),
		"messages":   h.sessions.History(sessionID),
	})
}
