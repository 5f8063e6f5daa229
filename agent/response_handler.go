package agent

import (
	"regexp"
	"strings"

	"order-analyst/llmclient"
)

const finalAnswerMarker = "Final Answer:"

var lookupAction = regexp.MustCompile(`(?s)Action\s*:\s*RAGTool\s*\n\s*Action\s*Input\s*:\s*(.+?)(?:\n\s*Observation\s*:|$)`)

// ResponseHandler interprets analyst replies and assembles the transcript.
type ResponseHandler struct {
	messages []llmclient.Message
}

func NewResponseHandler(system, question string) *ResponseHandler {
	return &ResponseHandler{messages: []llmclient.Message{
		{Role: llmclient.RoleSystem, Content: system},
		{Role: llmclient.RoleUser, Content: "Question: " + question},
	}}
}

func (r *ResponseHandler) Messages() []llmclient.Message {
	return append([]llmclient.Message(nil), r.messages...)
}

// AddTurn appends the model's reply and what came back from acting on it.
func (r *ResponseHandler) AddTurn(reply, observation string) {
	r.messages = append(r.messages,
		llmclient.Message{Role: llmclient.RoleAssistant, Content: strings.TrimSpace(reply)},
		llmclient.Message{Role: llmclient.RoleUser, Content: "Observation:\n" + observation},
	)
}

// FinalAnswer returns the answer when the reply gives one before any code
// block.
func FinalAnswer(reply string) (string, bool) {
	idx := strings.Index(reply, finalAnswerMarker)
	if idx == -1 {
		return "", false
	}
	if fence := strings.Index(reply, "```"); fence != -1 && fence < idx {
		return "", false
	}
	return strings.TrimSpace(reply[idx+len(finalAnswerMarker):]), true
}

// LookupQuery returns the documentation query of a RAGTool action.
func LookupQuery(reply string) (string, bool) {
	m := lookupAction.FindStringSubmatch(reply)
	if m == nil {
		return "", false
	}
	q := strings.Trim(strings.TrimSpace(m[1]), `"'`)
	return q, q != ""
}

func IsEmpty(reply string) bool {
	return strings.TrimSpace(reply) == ""
}
