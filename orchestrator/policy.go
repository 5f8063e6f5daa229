package orchestrator

import (
	"context"
	"regexp"
	"strings"

	apperrors "order-analyst/errors"
	"order-analyst/llmclient"
	"order-analyst/prompts"
	"order-analyst/tools"
)

const finalAnswerMarker = "Final Answer:"

var actionPattern = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)

// Action is a tool call chosen by the policy.
type Action struct {
	Tool  string
	Input string
}

// Exchange is one completed step of the current run.
type Exchange struct {
	Raw         string
	Action      *Action
	Observation string
}

// Turn is everything a policy sees when choosing the next step.
type Turn struct {
	Prompt     string
	History    []llmclient.Message
	Scratchpad []Exchange
}

// Decision is either an Action or a final answer. Raw is the model text it
// came from and is set even when parsing fails.
type Decision struct {
	Raw    string
	Action *Action
	Final  string
}

// Policy chooses the next step of the agent loop. A reply that cannot be
// interpreted is returned as an error wrapping ErrMalformedOutput.
type Policy interface {
	Next(ctx context.Context, turn Turn) (Decision, error)
}

// ReActPolicy asks a model for Thought/Action/Action Input steps.
type ReActPolicy struct {
	model     llmclient.Model
	catalog   []tools.Descriptor
	maxTokens int
}

func NewReActPolicy(model llmclient.Model, catalog []tools.Descriptor, maxTokens int) *ReActPolicy {
	return &ReActPolicy{model: model, catalog: catalog, maxTokens: maxTokens}
}

func (p *ReActPolicy) Next(ctx context.Context, turn Turn) (Decision, error) {
	resp, err := p.model.Complete(ctx, llmclient.Request{
		Messages:  p.messages(turn),
		MaxTokens: p.maxTokens,
		Stop:      []string{"\nObservation:"},
	})
	if err != nil {
		return Decision{}, err
	}
	return ParseReAct(resp.Content)
}

func (p *ReActPolicy) messages(turn Turn) []llmclient.Message {
	names := make([]string, len(p.catalog))
	for i, d := range p.catalog {
		names[i] = d.Name
	}
	system := prompts.Render(prompts.ReAct(), map[string]string{
		"tools":      tools.Catalog(p.catalog),
		"tool_names": strings.Join(names, ", "),
	})

	msgs := []llmclient.Message{{Role: llmclient.RoleSystem, Content: system}}
	msgs = append(msgs, turn.History...)
	msgs = append(msgs, llmclient.Message{Role: llmclient.RoleUser, Content: turn.Prompt})
	for _, ex := range turn.Scratchpad {
		msgs = append(msgs,
			llmclient.Message{Role: llmclient.RoleAssistant, Content: strings.TrimSpace(ex.Raw)},
			llmclient.Message{Role: llmclient.RoleUser, Content: "Observation: " + ex.Observation},
		)
	}
	return msgs
}

// ParseReAct interprets one ReAct reply. An action written before a final
// answer wins.
func ParseReAct(text string) (Decision, error) {
	d := Decision{Raw: text}
	finalIdx := strings.Index(text, finalAnswerMarker)

	if loc := actionPattern.FindStringSubmatchIndex(text); loc != nil && (finalIdx == -1 || loc[0] < finalIdx) {
		tool := strings.TrimSpace(text[loc[2]:loc[3]])
		input := strings.TrimSpace(text[loc[4]:loc[5]])
		if finalIdx > loc[0] {
			input = strings.TrimSpace(text[loc[4]:finalIdx])
		}
		if len(input) > 1 && strings.HasPrefix(input, `"`) && strings.HasSuffix(input, `"`) {
			input = input[1 : len(input)-1]
		}
		d.Action = &Action{Tool: tool, Input: input}
		return d, nil
	}
	if finalIdx != -1 {
		d.Final = strings.TrimSpace(text[finalIdx+len(finalAnswerMarker):])
		return d, nil
	}
	if strings.Contains(text, "Action:") {
		return d, apperrors.WrapError(apperrors.ErrMalformedOutput, "Invalid Format: Missing 'Action Input:' after 'Action:'")
	}
	return d, apperrors.WrapError(apperrors.ErrMalformedOutput, "Invalid Format: Missing 'Action:' after 'Thought:'")
}
