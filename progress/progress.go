// Package progress reports what the orchestrating agent is doing, either live
// to a UI callback or into an in-memory trace that ends up in the run log.
package progress

import (
	"encoding/json"
	"fmt"
	"sync"

	"order-analyst/tools"
)

// FinishedMessage is emitted once after the agent produces its final answer.
const FinishedMessage = "Finished executing the plan."

// Step is one entry of the logged trace. The completion marker serializes as
// a bare string, every other step as an object.
type Step struct {
	Action  string         `json:"action"`
	Kwargs  map[string]any `json:"kwargs"`
	Message string         `json:"message,omitempty"`
	Marker  bool           `json:"-"`
	Text    string         `json:"-"`
}

func (s Step) MarshalJSON() ([]byte, error) {
	if s.Marker {
		return json.Marshal(s.Text)
	}
	type plain Step
	p := plain(s)
	if p.Kwargs == nil {
		p.Kwargs = map[string]any{}
	} else {
		p.Kwargs = serializable(p.Kwargs).(map[string]any)
	}
	return json.Marshal(p)
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = Step{Marker: true, Text: text}
		return nil
	}
	type plain Step
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Step(p)
	return nil
}

type kind int

const (
	live kind = iota
	logging
)

// Sink is either live or logging, fixed at construction.
type Sink struct {
	kind   kind
	notify func(string)

	mu    sync.Mutex
	steps []Step
}

// NewLive forwards progress phrases to notify.
func NewLive(notify func(string)) *Sink {
	return &Sink{kind: live, notify: notify}
}

// NewLogging records steps for the run log.
func NewLogging() *Sink {
	return &Sink{kind: logging}
}

func (s *Sink) IsLogging() bool { return s != nil && s.kind == logging }

// Step reports one tool invocation. Live sinks only announce tools that carry
// a progress label; logging sinks record every invocation.
func (s *Sink) Step(action string, kwargs map[string]any, d tools.Descriptor) {
	if s == nil {
		return
	}
	switch s.kind {
	case live:
		if d.ProgressLabel != "" && s.notify != nil {
			s.notify(d.ProgressLabel)
		}
	case logging:
		s.mu.Lock()
		s.steps = append(s.steps, Step{Action: action, Kwargs: kwargs, Message: d.ProgressLabel})
		s.mu.Unlock()
	}
}

func (s *Sink) Finish() {
	if s == nil {
		return
	}
	switch s.kind {
	case live:
		if s.notify != nil {
			s.notify(FinishedMessage)
		}
	case logging:
		s.mu.Lock()
		s.steps = append(s.steps, Step{Marker: true, Text: FinishedMessage})
		s.mu.Unlock()
	}
}

// Steps returns a copy of the recorded trace. Live sinks record nothing.
func (s *Sink) Steps() []Step {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Step(nil), s.steps...)
}

// serializable replaces values encoding/json cannot encode with their
// fmt representation, descending into maps and slices.
func serializable(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = serializable(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = serializable(item)
		}
		return out
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}
