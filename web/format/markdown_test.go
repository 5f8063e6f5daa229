package format

import (
	"strings"
	"testing"
)

func TestNormalizeMarkdownLists(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paragraph then list", "**Top vendors:**\n- A\n- B", "**Top vendors:**\n\n- A\n- B"},
		{"numbered", "Steps\n1. load\n2. count", "Steps\n\n1. load\n2. count"},
		{"already spaced", "Intro\n\n- A", "Intro\n\n- A"},
		{"no list", "one\ntwo", "one\ntwo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeMarkdownLists(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreprocessAssistantText(t *testing.T) {
	if got := PreprocessAssistantText("\u201cA\u201d and \u2018b\u2019"); got != `"A" and 'b'` {
		t.Errorf("got %q", got)
	}
}

func TestToHTML(t *testing.T) {
	got := ToHTML("There were **12** orders:\n- A\n- B\n\n[chart](http://localhost/static/x.png)")
	for _, want := range []string{"<strong>12</strong>", "<ul>", "<li>B</li>", `target="_blank"`} {
		if !strings.Contains(got, want) {
			t.Errorf("html missing %q:\n%s", want, got)
		}
	}
}
