package handlers

import (
	"errors"
	"net/http"

	apperrors "order-analyst/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondWithRunError maps a failed assistant run to a response. A run
// already in progress for the session is a conflict; anything else is logged
// against the session and hidden behind a generic message.
func respondWithRunError(c *gin.Context, err error, sessionID uuid.UUID, logger *zap.Logger) {
	if errors.Is(err, apperrors.ErrServiceUnavailable) {
		respondWithClientError(c, http.StatusConflict, "A question is already running in this session.")
		return
	}
	if logger != nil {
		logger.Error("Assistant run failed",
			zap.String("session_id", sessionID.String()),
			zap.String("route", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "The assistant could not answer this question."})
}

// respondWithClientError rejects a request without logging it.
func respondWithClientError(c *gin.Context, statusCode int, userMessage string) {
	c.AbortWithStatusJSON(statusCode, gin.H{"error": userMessage})
}
