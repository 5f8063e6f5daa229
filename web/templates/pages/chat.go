// Package pages renders full HTML documents.
package pages

import (
	"context"
	_ "embed"
	"io"

	"order-analyst/web/templates/components"
	"order-analyst/web/types"

	"github.com/a-h/templ"
	"github.com/google/uuid"
)

//go:embed chat.css
var chatStyle string

//go:embed chat.js
var chatScript string

// ChatPage renders the chat UI with the session's history already in place.
// New questions are streamed from /chat/stream by the embedded script.
func ChatPage(sessionID uuid.UUID, messages []types.ChatMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		head := `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Order Analyst</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>
` + chatStyle + `</style>
</head>
<body data-session="` + templ.EscapeString(sessionID.String()) + `">
<h1>Order Analyst</h1>
<div id="log">
`
		if _, err := io.WriteString(w, head); err != nil {
			return err
		}
		for _, m := range messages {
			if err := components.Message(m).Render(ctx, w); err != nil {
				return err
			}
		}
		tail := `</div>
<form id="ask">
  <input id="message" autocomplete="off" placeholder="Ask about orders, vendors, revenue...">
  <button type="submit">Send</button>
</form>
<script>
` + chatScript + `</script>
</body>
</html>
`
		_, err := io.WriteString(w, tail)
		return err
	})
}
