// Package agent implements the analyst: a code-writing sub-agent that answers
// one question about a table by running code in a query engine.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"order-analyst/engine"
	apperrors "order-analyst/errors"
	"order-analyst/llmclient"
	"order-analyst/prompts"
	"order-analyst/table"
	"order-analyst/tools"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	VariantDefault = "default"
	VariantRAG     = "rag"
)

// StoppedMessage is the answer when a limit ends the analysis early.
const StoppedMessage = "Agent stopped due to iteration limit or time limit."

const headRows = 5

// Options bound one analysis.
type Options struct {
	Variant           string
	MaxIterations     int
	MaxExecutionTime  time.Duration
	ConsecutiveErrors int
	MaxTokens         int
}

// Analyst answers questions about a table. It is safe for concurrent use;
// every Ask runs in its own engine session.
type Analyst struct {
	model  llmclient.Model
	engine engine.Engine
	lookup tools.Tool
	opts   Options
	logger *zap.Logger
}

// NewAnalyst builds an analyst. lookup is the documentation tool offered in
// the rag variant and may be nil otherwise.
func NewAnalyst(model llmclient.Model, eng engine.Engine, lookup tools.Tool, opts Options, logger *zap.Logger) (*Analyst, error) {
	if opts.Variant == "" {
		opts.Variant = VariantDefault
	}
	if opts.Variant != VariantDefault && opts.Variant != VariantRAG {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "unknown analyst variant %q", opts.Variant)
	}
	if opts.Variant == VariantRAG && lookup == nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "rag variant needs a documentation lookup")
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 15
	}
	return &Analyst{model: model, engine: eng, lookup: lookup, opts: opts, logger: logger}, nil
}

func (a *Analyst) Ask(ctx context.Context, t *table.Table, question string) (string, error) {
	if t == nil {
		return "", apperrors.ErrNoData
	}
	session := uuid.NewString()
	if err := a.engine.Load(ctx, session, t); err != nil {
		return "", apperrors.WrapError(err, "load table into engine")
	}
	defer a.engine.Release(session)

	a.logger.Info("Analyst started",
		zap.String("session_id", session),
		zap.String("variant", a.opts.Variant),
		zap.Int("rows", t.Len()))

	handler := NewResponseHandler(a.systemPrompt(t), question)
	coordinator := NewExecutionCoordinator(a.engine, session, a.logger)
	loop := NewConversationLoop(a.opts.MaxIterations, a.opts.ConsecutiveErrors, a.opts.MaxExecutionTime, a.logger)

	var lastError string
	for turn := 0; ; turn++ {
		if ok, reason := loop.ShouldContinue(turn); !ok {
			if reason == "consecutive errors" {
				return "", apperrors.WrapErrorf(apperrors.ErrPythonExecution,
					"%d consecutive failed executions, last: %s", loop.ConsecutiveErrors(), lastError)
			}
			return StoppedMessage, nil
		}

		req := llmclient.Request{
			Messages:    handler.Messages(),
			Temperature: llmclient.Temperature(0),
			MaxTokens:   a.opts.MaxTokens,
			Stop:        []string{"\nObservation:"},
		}
		resp, err := a.model.Complete(ctx, req)
		if err != nil {
			return "", apperrors.WrapError(err, "analyst request")
		}
		reply := resp.Content
		if IsEmpty(reply) {
			loop.RecordError()
			lastError = "empty reply"
			handler.AddTurn(reply, "Your reply was empty. Run code or give the Final Answer.")
			continue
		}

		if answer, ok := FinalAnswer(reply); ok {
			a.logger.Info("Analyst finished", zap.String("session_id", session), zap.Int("turns", turn+1))
			return answer, nil
		}

		if a.opts.Variant == VariantRAG {
			if query, ok := LookupQuery(reply); ok {
				handler.AddTurn(reply, a.lookup.Run(ctx, query))
				loop.RecordSuccess()
				continue
			}
		}

		exec, err := coordinator.ProcessResponse(ctx, reply)
		if err != nil {
			return "", apperrors.WrapError(err, "execute analyst code")
		}
		if !exec.WasCodeExecuted {
			loop.RecordError()
			lastError = "no code block"
			handler.AddTurn(reply, fmt.Sprintf(
				"No ```%s code block found. Reply with one code block, or with 'Final Answer: ...' when done.",
				a.engine.Language()))
			continue
		}
		if exec.HasError {
			loop.RecordError()
			lastError = exec.Result
		} else {
			loop.RecordSuccess()
		}
		handler.AddTurn(reply, exec.Result)
	}
}

func (a *Analyst) systemPrompt(t *table.Table) string {
	lang := a.engine.Language()
	dataName := "the pandas dataframe `df`"
	if lang == engine.LanguageSQL {
		dataName = "the SQLite table `df`"
	}

	var lookup, dataContext string
	switch a.opts.Variant {
	case VariantRAG:
		lookup = "\nTo find out which columns matter for the question, reply with:\n\n" +
			"Action: RAGTool\nAction Input: What attributes are related to [concept]?\n\n" +
			"The matching column documentation is returned to you.\n"
		dataContext = "\nColumns: " + strings.Join(t.Columns, ", ") + "\n"
	default:
		dataContext = fmt.Sprintf("\nThis is the result of printing the first %d rows:\n%s\n", headRows, t.Head(headRows).Markdown())
	}
	return prompts.Render(prompts.Analyst(), map[string]string{
		"data_name":    dataName,
		"language":     lang,
		"lookup":       lookup,
		"data_context": dataContext,
	})
}
