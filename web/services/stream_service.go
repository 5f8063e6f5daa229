package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"order-analyst/web/types"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type StreamService struct {
	logger *zap.Logger
}

func NewStreamService(logger *zap.Logger) *StreamService {
	return &StreamService{logger: logger}
}

// WriteSSEData writes one server-sent event and flushes it.
func (ss *StreamService) WriteSSEData(ctx context.Context, w http.ResponseWriter, data types.StreamData, mu *sync.Mutex) error {
	mu.Lock()
	defer mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// WriteWSData writes one websocket text frame. gorilla connections allow a
// single concurrent writer, so callers share mu.
func (ss *StreamService) WriteWSData(conn *websocket.Conn, data types.StreamData, mu *sync.Mutex) error {
	mu.Lock()
	defer mu.Unlock()
	return conn.WriteJSON(data)
}

// Notifier adapts a writer into a progress callback, logging write errors.
func (ss *StreamService) Notifier(write func(types.StreamData) error) func(string) {
	return func(phrase string) {
		if err := write(types.StreamData{Type: types.StreamProgress, Content: phrase}); err != nil {
			ss.logger.Debug("Dropped progress update", zap.String("phrase", phrase), zap.Error(err))
		}
	}
}
