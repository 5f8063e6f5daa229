package prompts

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars map[string]string
		want string
	}{
		{"simple", "Task: {problem}", map[string]string{"problem": "top vendors"}, "Task: top vendors"},
		{"json_braces_kept", `{"input": {problem}}`, map[string]string{"problem": "x"}, `{"input": x}`},
		{"unknown_left", "{a} {b}", map[string]string{"a": "1"}, "1 {b}"},
		{"no_rescan", "{a}", map[string]string{"a": "{b}", "b": "2"}, "{b}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.tmpl, tt.vars); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEmbeddedPromptsHavePlaceholders(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		needle []string
	}{
		{"orchestrator", Orchestrator(), []string{"{problem}", "{tools}", "{output_format}", "{start_date}", "{end_date}", "{chart_contract}", "{extra}"}},
		{"plan_validator", PlanValidator(), []string{"{problem}", "{data_description}", "{tools}", "{plan}", "{format_instructions}"}},
		{"judge", Judge(), []string{"{question}", "{reference_answer}", "{generated_answer}"}},
		{"fix_output", FixOutput(), []string{"{instructions}", "{completion}", "{error}"}},
		{"react", ReAct(), []string{"{tools}", "{tool_names}"}},
		{"analyst", Analyst(), []string{"{language}", "{data_context}", "{lookup}"}},
		{"reformulate", Reformulate(), []string{"{question}", "{answer}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, n := range tt.needle {
				if !strings.Contains(tt.text, n) {
					t.Errorf("%s prompt missing %s", tt.name, n)
				}
			}
		})
	}
}
