package format

import (
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

var numberedItem = regexp.MustCompile(`^\d+\.\s`)

// PreprocessAssistantText normalizes LLM output.
func PreprocessAssistantText(text string) string {
	if text == "" {
		return text
	}
	return strings.NewReplacer(
		"“", "\"",
		"”", "\"",
		"‘", "'",
		"’", "'",
	).Replace(text)
}

func isListItem(line string) bool {
	return strings.HasPrefix(line, "- ") ||
		strings.HasPrefix(line, "* ") ||
		strings.HasPrefix(line, "+ ") ||
		numberedItem.MatchString(line)
}

// normalizeMarkdownLists inserts the blank line markdown needs before a list
// that directly follows a paragraph line.
func normalizeMarkdownLists(text string) string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	for i, line := range lines {
		if i > 0 && isListItem(strings.TrimSpace(line)) {
			prev := strings.TrimSpace(lines[i-1])
			if prev != "" && !isListItem(prev) {
				result = append(result, "")
			}
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

// ToHTML renders an assistant answer. Links open in a new tab so chart
// references do not navigate away from the chat.
func ToHTML(text string) string {
	text = normalizeMarkdownLists(PreprocessAssistantText(text))
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return string(markdown.ToHTML([]byte(text), p, r))
}
