package orchestrator

import (
	"sync"

	"order-analyst/llmclient"
)

// Memory keeps the last k exchanges of a conversation.
type Memory struct {
	k         int
	mu        sync.Mutex
	exchanges [][2]string
}

func NewMemory(k int) *Memory {
	return &Memory{k: k}
}

func (m *Memory) Add(problem, output string) {
	if m == nil || m.k <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, [2]string{problem, output})
	if len(m.exchanges) > m.k {
		m.exchanges = m.exchanges[len(m.exchanges)-m.k:]
	}
}

// Messages returns the remembered exchanges as alternating user and
// assistant messages, oldest first.
func (m *Memory) Messages() []llmclient.Message {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llmclient.Message, 0, 2*len(m.exchanges))
	for _, ex := range m.exchanges {
		out = append(out,
			llmclient.Message{Role: llmclient.RoleUser, Content: ex[0]},
			llmclient.Message{Role: llmclient.RoleAssistant, Content: ex[1]},
		)
	}
	return out
}

func (m *Memory) Clear() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.exchanges = nil
	m.mu.Unlock()
}
