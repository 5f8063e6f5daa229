package components

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"order-analyst/web/types"
)

func render(t *testing.T, m types.ChatMessage) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Message(m).Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     types.ChatMessage
		want    []string
		notWant []string
	}{
		{
			name:    "user text is escaped",
			msg:     types.ChatMessage{Role: "user", Content: "<b>orders</b> & vendors"},
			want:    []string{`<div class="msg user">`, "&lt;b&gt;orders&lt;/b&gt; &amp; vendors"},
			notWant: []string{"<b>"},
		},
		{
			name: "assistant html is kept and plan escaped",
			msg:  types.ChatMessage{Role: "assistant", HTML: "<p><strong>12</strong> orders</p>", Plan: "1. load <data>"},
			want: []string{`<div class="msg assistant">`, "<p><strong>12</strong> orders</p>", "<summary>Plan</summary>", "1. load &lt;data&gt;"},
		},
		{
			name:    "assistant without plan",
			msg:     types.ChatMessage{Role: "assistant", HTML: "<p>done</p>"},
			want:    []string{`<div class="answer"><p>done</p></div>`},
			notWant: []string{"<details"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := render(t, tt.msg)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output %q missing %q", got, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("output %q contains %q", got, w)
				}
			}
		})
	}
}
