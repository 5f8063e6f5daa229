// Package components holds the HTML fragments shared by the chat page and
// the streamed replies.
package components

import (
	"context"
	"io"

	"order-analyst/web/types"

	"github.com/a-h/templ"
)

// UserMessage renders one question bubble.
func UserMessage(content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div class="msg user">`+templ.EscapeString(content)+`</div>`)
		return err
	})
}

// AnswerBlock renders the body of an assistant reply. html is trusted output
// of the markdown renderer; the plan is escaped and folded away.
func AnswerBlock(html, plan string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div class="answer">`); err != nil {
			return err
		}
		if err := templ.Raw(html).Render(ctx, w); err != nil {
			return err
		}
		if plan != "" {
			if _, err := io.WriteString(w, `<details class="plan"><summary>Plan</summary><pre>`+
				templ.EscapeString(plan)+`</pre></details>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

// AssistantMessage is AnswerBlock inside a message bubble.
func AssistantMessage(html, plan string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div class="msg assistant">`); err != nil {
			return err
		}
		if err := AnswerBlock(html, plan).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

// Message picks the bubble matching m.Role.
func Message(m types.ChatMessage) templ.Component {
	if m.Role == "assistant" {
		return AssistantMessage(m.HTML, m.Plan)
	}
	return UserMessage(m.Content)
}
