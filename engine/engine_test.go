package engine

import (
	"testing"
	"time"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		text string
		lang string
		want string
	}{
		{"python_fence", "Let me check.\n```python\nprint(df.shape)\n```", LanguagePython, "print(df.shape)"},
		{"generic_python", "```\nprint(len(df))\n```", LanguagePython, "print(len(df))"},
		{"generic_not_python", "```\nhello world\n```", LanguagePython, ""},
		{"unclosed", "```python\nprint(1)", LanguagePython, ""},
		{"no_fence", "Final Answer: 42", LanguagePython, ""},
		{"sql_fence", "```sql\nSELECT COUNT(*) FROM df\n```", LanguageSQL, "SELECT COUNT(*) FROM df"},
		{"sqlite_fence", "```sqlite\nSELECT 1\n```", LanguageSQL, "SELECT 1"},
		{"generic_sql", "```\nselect vendor from df\n```", LanguageSQL, "select vendor from df"},
		{"python_for_sql_engine", "```python\nprint(1)\n```", LanguageSQL, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCode(tt.text, tt.lang); got != tt.want {
				t.Errorf("ExtractCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsErrorOutput(t *testing.T) {
	tests := []struct {
		out  string
		want bool
	}{
		{"Error: no such column: qty", true},
		{"Traceback (most recent call last):\n  KeyError", true},
		{"42", false},
	}
	for _, tt := range tests {
		if got := IsErrorOutput(tt.out); got != tt.want {
			t.Errorf("IsErrorOutput(%q) = %v, want %v", tt.out, got, tt.want)
		}
	}
}

func TestExecutorPoolRoundRobinAndCooldown(t *testing.T) {
	pool, err := newExecutorPool([]string{"a:1", "b:1", "a:1", " "}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if pool.Size() != 2 {
		t.Fatalf("Size() = %d, want 2 after dedup", pool.Size())
	}

	first, _ := pool.Next()
	second, _ := pool.Next()
	if first != "a:1" || second != "b:1" {
		t.Errorf("round robin = %s,%s", first, second)
	}

	pool.MarkFailure("a:1")
	for i := 0; i < 3; i++ {
		if got, _ := pool.Next(); got != "b:1" {
			t.Errorf("Next() = %s while a:1 cools down", got)
		}
	}

	pool.MarkFailure("b:1")
	if _, err := pool.Next(); err == nil {
		t.Error("expected error when every node is cooling down")
	}

	pool.MarkSuccess("a:1")
	if got, _ := pool.Next(); got != "a:1" {
		t.Errorf("Next() = %s after recovery", got)
	}
}

func TestNewExecutorPoolRejectsEmpty(t *testing.T) {
	if _, err := newExecutorPool([]string{"", "  "}, time.Second); err == nil {
		t.Error("expected error for empty address list")
	}
}
