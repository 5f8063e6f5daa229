package prompts

import (
	_ "embed"
	"strings"
)

// Embedded prompt files

//go:embed orchestrator.txt
var orchestrator string

//go:embed react.txt
var react string

//go:embed plan_validator.txt
var planValidator string

//go:embed judge.txt
var judge string

//go:embed fix_output.txt
var fixOutput string

//go:embed analyst.txt
var analyst string

//go:embed reformulate.txt
var reformulate string

func Orchestrator() string  { return orchestrator }
func ReAct() string         { return react }
func PlanValidator() string { return planValidator }
func Judge() string         { return judge }
func FixOutput() string     { return fixOutput }
func Analyst() string       { return analyst }
func Reformulate() string   { return reformulate }

// Render substitutes {key} placeholders in a single pass. Unknown
// placeholders and other braces are left untouched.
func Render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
