package types

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one entry of a session's conversation.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	HTML      string    `json:"html,omitempty"`
	Plan      string    `json:"plan,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the in-memory state of one browser session.
type Session struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	LastActive time.Time
	Messages   []ChatMessage
}

// StreamData is one server-sent event or websocket frame.
type StreamData struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

const (
	StreamProgress = "progress"
	StreamAnswer   = "answer"
	StreamError    = "error"
	StreamEnd      = "end"
)

// ChatRequest is the body of POST /chat and of websocket frames.
type ChatRequest struct {
	Message string `json:"message" form:"message" binding:"required"`
}

type ChatResponse struct {
	Output string `json:"output"`
	Plan   string `json:"plan"`
	HTML   string `json:"html"`
	RunID  string `json:"run_id"`
}
