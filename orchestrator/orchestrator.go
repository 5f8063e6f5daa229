// Package orchestrator runs the conversational agent loop that turns a user
// problem into a validated plan, executes it with tools and returns a
// schema-checked answer.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "order-analyst/errors"
	"order-analyst/llmclient"
	"order-analyst/metrics"
	"order-analyst/outparse"
	"order-analyst/plan"
	"order-analyst/progress"
	"order-analyst/prompts"
	"order-analyst/runlog"
	"order-analyst/tools"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "order-analyst/orchestrator"

// StoppedMessage is the raw final text when a limit ends the loop.
const StoppedMessage = "Agent stopped due to iteration limit or time limit."

const runIDLayout = "20060102_150405"

const resultSchema = `{
  "type": "object",
  "properties": {
    "output": {"type": "string", "description": "The output to show to the user in markdown format so it is readable"},
    "plan": {"type": "string", "description": "The plan / steps to follow to do the task"}
  },
  "required": ["output", "plan"]
}`

type Result struct {
	Output string `json:"output"`
	Plan   string `json:"plan"`
	// Tools lists the tools invoked during the run, in call order.
	Tools []string `json:"-"`
}

type Options struct {
	StartDate        string
	EndDate          string
	MaxIterations    int
	MaxExecutionTime time.Duration
	LogsDir          string
}

// Orchestrator owns one progress sink and one run id for its lifetime.
type Orchestrator struct {
	registry *tools.Registry
	policy   Policy
	parser   *outparse.Parser
	sink     *progress.Sink
	memory   *Memory
	opts     Options
	runID    string
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New builds an orchestrator. fixer repairs final answers that fail the
// output schema. sink and memory may be nil to disable progress reporting
// and conversation memory.
func New(registry *tools.Registry, policy Policy, fixer llmclient.Model, sink *progress.Sink, memory *Memory,
	opts Options, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 15
	}
	if opts.StartDate == "" {
		opts.StartDate = "2024-12-01"
	}
	if opts.EndDate == "" {
		opts.EndDate = "2025-05-20"
	}
	return &Orchestrator{
		registry: registry,
		policy:   policy,
		parser:   outparse.MustNew("orchestrator output", resultSchema, fixer, logger),
		sink:     sink,
		memory:   memory,
		opts:     opts,
		runID:    time.Now().Format(runIDLayout),
		metrics:  m,
		logger:   logger,
	}
}

func (o *Orchestrator) RunID() string { return o.runID }

// BuildPrompt renders the task prompt for problem.
func (o *Orchestrator) BuildPrompt(problem, extra string) string {
	return prompts.Render(prompts.Orchestrator(), map[string]string{
		"start_date":     o.opts.StartDate,
		"end_date":       o.opts.EndDate,
		"tools":          tools.Catalog(o.registry.Descriptors()),
		"chart_contract": tools.ChartInputSchema,
		"problem":        problem,
		"output_format":  o.parser.FormatInstructions(),
		"extra":          extra,
	})
}

func (o *Orchestrator) Orchestrate(ctx context.Context, problem, extra string) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "orchestrator.run",
		trace.WithAttributes(attribute.String("run_id", o.runID)))
	defer span.End()

	res, err := o.orchestrate(ctx, problem, extra)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	o.metrics.OrchestrationDone(err)
	return res, err
}

func (o *Orchestrator) orchestrate(ctx context.Context, problem, extra string) (*Result, error) {
	ctx = plan.WithProblem(ctx, problem)
	turn := Turn{Prompt: o.BuildPrompt(problem, extra), History: o.memory.Messages()}

	var deadline time.Time
	if o.opts.MaxExecutionTime > 0 {
		deadline = time.Now().Add(o.opts.MaxExecutionTime)
	}

	o.logger.Info("Orchestration started", zap.String("run_id", o.runID), zap.String("problem", problem))

	raw := StoppedMessage
	var invoked []string
	for i := 0; i < o.opts.MaxIterations; i++ {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			o.logger.Info("Orchestration hit the time limit", zap.String("run_id", o.runID))
			break
		}
		decision, err := o.policy.Next(ctx, turn)
		if err != nil {
			if !apperrors.IsMalformedOutput(err) {
				return nil, apperrors.WrapError(err, "agent step")
			}
			o.logger.Debug("Unparseable agent step", zap.Error(err))
			turn.Scratchpad = append(turn.Scratchpad, Exchange{
				Raw:         decision.Raw,
				Observation: err.Error() + ". Reply with an Action or a Final Answer.",
			})
			continue
		}
		if decision.Action == nil {
			raw = decision.Final
			break
		}
		obs := o.invoke(ctx, i, *decision.Action)
		invoked = append(invoked, decision.Action.Tool)
		turn.Scratchpad = append(turn.Scratchpad, Exchange{Raw: decision.Raw, Action: decision.Action, Observation: obs})
	}
	o.sink.Finish()

	var out Result
	if err := o.parser.Parse(ctx, raw, &out); err != nil {
		o.logger.Warn("Final answer failed validation", zap.String("run_id", o.runID), zap.Error(err))
		return nil, err
	}
	out.Tools = invoked
	o.memory.Add(problem, out.Output)

	if o.sink.IsLogging() {
		log := runlog.Log{Input: problem, Output: out, Steps: o.sink.Steps()}
		if err := runlog.Write(o.opts.LogsDir, o.runID, log); err != nil {
			o.logger.Warn("Failed to write run log", zap.String("run_id", o.runID), zap.Error(err))
		}
	}
	o.logger.Info("Orchestration finished", zap.String("run_id", o.runID), zap.Int("steps", len(turn.Scratchpad)))
	return &out, nil
}

// invoke runs one tool call and returns the observation. Unknown tools are
// reported back to the agent with a suggestion.
func (o *Orchestrator) invoke(ctx context.Context, iteration int, action Action) string {
	kwargs := map[string]any{"run_id": o.runID, "iteration": iteration + 1}
	label := fmt.Sprintf("%s(%s)", action.Tool, action.Input)

	tool, ok := o.registry.Lookup(action.Tool)
	if !ok {
		o.sink.Step(label, kwargs, tools.Descriptor{Name: action.Tool})
		obs := fmt.Sprintf("%s is not a valid tool, try one of [%s].", action.Tool, strings.Join(o.registry.Names(), ", "))
		if s := o.registry.Suggest(action.Tool); s != "" {
			obs += fmt.Sprintf(" Did you mean %s?", s)
		}
		o.logger.Warn("Agent called unknown tool", zap.String("tool", action.Tool))
		return obs
	}

	desc := tool.Descriptor()
	o.sink.Step(label, kwargs, desc)
	o.metrics.ToolInvoked(desc.Name)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "tool."+desc.Name)
	defer span.End()
	start := time.Now()
	obs := tool.Run(ctx, action.Input)
	o.logger.Debug("Tool finished",
		zap.String("tool", desc.Name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("observation_length", len(obs)))
	return obs
}
