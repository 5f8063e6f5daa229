// Package plan checks an analysis plan against the problem, the data
// description and the available tools before the agent executes it.
package plan

import (
	"context"
	"fmt"

	apperrors "order-analyst/errors"
	"order-analyst/llmclient"
	"order-analyst/outparse"
	"order-analyst/prompts"
	"order-analyst/tools"

	"go.uber.org/zap"
)

const verdictSchema = `{
  "type": "object",
  "properties": {
    "valid": {"type": "boolean", "description": "Is the plan valid?"},
    "comment": {"type": "string", "description": "Comment on the plan's validity."}
  },
  "required": ["valid", "comment"]
}`

type Verdict struct {
	Valid   bool   `json:"valid"`
	Comment string `json:"comment"`
}

// Validator asks a model whether a plan satisfies the validity constraints.
type Validator struct {
	model           llmclient.Model
	parser          *outparse.Parser
	dataDescription string
	maxTokens       int
	logger          *zap.Logger
}

func NewValidator(model llmclient.Model, dataDescription string, maxTokens int, logger *zap.Logger) *Validator {
	return &Validator{
		model:           model,
		parser:          outparse.MustNew("plan verdict", verdictSchema, model, logger),
		dataDescription: dataDescription,
		maxTokens:       maxTokens,
		logger:          logger,
	}
}

func (v *Validator) Validate(ctx context.Context, problem, plan string, catalog []tools.Descriptor) (*Verdict, error) {
	prompt := prompts.Render(prompts.PlanValidator(), map[string]string{
		"problem":             problem,
		"data_description":    v.dataDescription,
		"tools":               tools.Catalog(catalog),
		"plan":                plan,
		"format_instructions": v.parser.FormatInstructions(),
	})
	req := llmclient.Prompt("", prompt)
	req.MaxTokens = v.maxTokens
	req.Temperature = llmclient.Temperature(0)

	resp, err := v.model.Complete(ctx, req)
	if err != nil {
		return nil, apperrors.WrapError(err, "plan validation request")
	}
	var verdict Verdict
	if err := v.parser.Parse(ctx, resp.Content, &verdict); err != nil {
		return nil, err
	}
	v.logger.Debug("Plan validated", zap.Bool("valid", verdict.Valid), zap.String("comment", verdict.Comment))
	return &verdict, nil
}

type problemKey struct{}

// WithProblem attaches the problem being solved so the validator tool can
// judge plans against it.
func WithProblem(ctx context.Context, problem string) context.Context {
	return context.WithValue(ctx, problemKey{}, problem)
}

func ProblemFrom(ctx context.Context) string {
	p, _ := ctx.Value(problemKey{}).(string)
	return p
}

const ToolName = "PlanValidatorTool"

// Tool exposes the validator to the agent. The problem comes from the
// context and the catalog from the callback, both read at call time.
type Tool struct {
	validator *Validator
	catalog   func() []tools.Descriptor
}

func NewTool(validator *Validator, catalog func() []tools.Descriptor) *Tool {
	return &Tool{validator: validator, catalog: catalog}
}

func (t *Tool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:          ToolName,
		Description:   "Validates a step-by-step plan for solving a given problem using available tools. Input: the plan as numbered steps.",
		InputContract: "plain-text plan",
		ProgressLabel: "Validating the plan",
	}
}

func (t *Tool) Run(ctx context.Context, input string) string {
	verdict, err := t.validator.Validate(ctx, ProblemFrom(ctx), input, t.catalog())
	if err != nil {
		return fmt.Sprintf("❌ Error during validation: %v", err)
	}
	if verdict.Valid {
		return "✅ Valid plan."
	}
	comment := verdict.Comment
	if comment == "" {
		comment = "No comment provided"
	}
	return "❌ Invalid plan:\n" + comment
}
