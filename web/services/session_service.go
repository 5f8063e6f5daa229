package services

import (
	"context"
	"sync"
	"time"

	apperrors "order-analyst/errors"
	"order-analyst/orchestrator"
	"order-analyst/progress"
	"order-analyst/table"
	"order-analyst/web/format"
	"order-analyst/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssistantFactory builds a fresh orchestrator bound to one session's data
// store, conversation memory and progress sink.
type AssistantFactory func(store *table.Store, memory *orchestrator.Memory, sink *progress.Sink) *orchestrator.Orchestrator

type chatSession struct {
	info   types.Session
	store  *table.Store
	memory *orchestrator.Memory
	// running is held for the whole of a run; sessions run one at a time.
	running sync.Mutex
}

type SessionService struct {
	factory      AssistantFactory
	memoryWindow int
	sessions     map[uuid.UUID]*chatSession
	mu           sync.Mutex
	logger       *zap.Logger
}

func NewSessionService(factory AssistantFactory, memoryWindow int, logger *zap.Logger) *SessionService {
	return &SessionService{
		factory:      factory,
		memoryWindow: memoryWindow,
		sessions:     make(map[uuid.UUID]*chatSession),
		logger:       logger,
	}
}

func (ss *SessionService) get(id uuid.UUID) *chatSession {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.sessions[id]
	if !ok {
		now := time.Now()
		s = &chatSession{
			info:   types.Session{ID: id, CreatedAt: now, LastActive: now},
			store:  table.NewStore(),
			memory: orchestrator.NewMemory(ss.memoryWindow),
		}
		ss.sessions[id] = s
		ss.logger.Debug("Session created", zap.String("session_id", id.String()))
	}
	s.info.LastActive = time.Now()
	return s
}

// Ask runs question in the session. notify receives progress phrases as the
// run goes. A session that is already running returns ErrServiceUnavailable.
func (ss *SessionService) Ask(ctx context.Context, id uuid.UUID, question string, notify func(string)) (*types.ChatMessage, error) {
	s := ss.get(id)
	if !s.running.TryLock() {
		return nil, apperrors.WrapError(apperrors.ErrServiceUnavailable, "a question is already running in this session")
	}
	defer s.running.Unlock()

	ss.appendMessage(s, types.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: id.String(),
		Role:      "user",
		Content:   question,
		CreatedAt: time.Now(),
	})

	assistant := ss.factory(s.store, s.memory, progress.NewLive(notify))
	res, err := assistant.Orchestrate(ctx, question, "")
	if err != nil {
		ss.logger.Error("Run failed",
			zap.String("session_id", id.String()),
			zap.String("run_id", assistant.RunID()),
			zap.Error(err))
		return nil, err
	}

	reply := types.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: id.String(),
		Role:      "assistant",
		Content:   res.Output,
		HTML:      format.ToHTML(res.Output),
		Plan:      res.Plan,
		RunID:     assistant.RunID(),
		CreatedAt: time.Now(),
	}
	ss.appendMessage(s, reply)
	return &reply, nil
}

func (ss *SessionService) appendMessage(s *chatSession, m types.ChatMessage) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s.info.Messages = append(s.info.Messages, m)
	s.info.LastActive = time.Now()
}

// History returns a copy of the session's messages, oldest first.
func (ss *SessionService) History(id uuid.UUID) []types.ChatMessage {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.sessions[id]
	if !ok {
		return []types.ChatMessage{}
	}
	return append([]types.ChatMessage{}, s.info.Messages...)
}

// DeleteStale drops idle sessions whose last activity is before cutoff and
// returns how many were removed. Sessions with a run in flight are kept.
func (ss *SessionService) DeleteStale(cutoff time.Time) int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	deleted := 0
	for id, s := range ss.sessions {
		if !s.info.LastActive.Before(cutoff) {
			continue
		}
		if !s.running.TryLock() {
			continue
		}
		delete(ss.sessions, id)
		s.running.Unlock()
		deleted++
	}
	return deleted
}

func (ss *SessionService) Count() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}
