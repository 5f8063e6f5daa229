// Package engine runs analyst-generated code against a loaded table. Each
// caller works in its own session so concurrent analyses never share state.
package engine

import (
	"context"
	"strings"

	"order-analyst/table"
)

const (
	LanguagePython = "python"
	LanguageSQL    = "sql"
)

// Engine executes code in a per-session environment holding one table.
//
// Execute returns a transport or setup failure as an error. Failures of the
// code itself come back as output starting with "Error:" so the analyst can
// read and correct them.
type Engine interface {
	Language() string
	Load(ctx context.Context, session string, t *table.Table) error
	Execute(ctx context.Context, session, code string) (string, error)
	Release(session string)
}

// IsErrorOutput reports whether output describes a failed execution.
func IsErrorOutput(output string) bool {
	trimmed := strings.TrimSpace(output)
	return strings.HasPrefix(trimmed, "Error:") || strings.Contains(trimmed, "Traceback (most recent call last)")
}

// ExtractCode extracts code for lang from markdown fences. An explicit
// ```lang fence wins; otherwise the first generic fence is used if its body
// looks like lang.
func ExtractCode(text, lang string) string {
	tags := []string{lang}
	if lang == LanguageSQL {
		// longest first so ```sql does not swallow ```sqlite
		tags = []string{"sqlite", lang}
	}
	for _, tag := range tags {
		fence := "```" + tag
		if startIdx := strings.Index(text, fence); startIdx != -1 {
			codeStart := startIdx + len(fence)
			if codeStart < len(text) && text[codeStart] == '\n' {
				codeStart++
			}
			if endRel := strings.Index(text[codeStart:], "```"); endRel != -1 {
				return strings.TrimSpace(text[codeStart : codeStart+endRel])
			}
			return ""
		}
	}

	open := "```"
	gStart := strings.Index(text, open)
	if gStart == -1 {
		return ""
	}
	codeStart := gStart + len(open)
	if nl := strings.IndexByte(text[codeStart:], '\n'); nl != -1 && !strings.ContainsAny(text[codeStart:codeStart+nl], " (=") {
		// drop an unrecognized language tag
		codeStart += nl + 1
	}
	gEndRel := strings.Index(text[codeStart:], open)
	if gEndRel == -1 {
		return ""
	}
	candidate := strings.TrimSpace(text[codeStart : codeStart+gEndRel])
	switch lang {
	case LanguagePython:
		if looksLikePython(candidate) {
			return candidate
		}
	case LanguageSQL:
		if looksLikeSQL(candidate) {
			return candidate
		}
	}
	return ""
}

// looksLikePython returns true if the snippet contains pythonic tokens.
func looksLikePython(code string) bool {
	lc := strings.ToLower(code)
	tokens := []string{
		"import ", "from ", "pd.", "df[", "df.", "df =", "print(", "def ", "for ", "np.",
	}
	for _, t := range tokens {
		if strings.Contains(lc, t) {
			return true
		}
	}
	return false
}

func looksLikeSQL(code string) bool {
	lc := strings.ToLower(strings.TrimSpace(code))
	for _, kw := range []string{"select ", "with ", "pragma "} {
		if strings.HasPrefix(lc, kw) {
			return true
		}
	}
	return false
}
