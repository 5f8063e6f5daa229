package tools

import (
	"context"
	"fmt"

	"order-analyst/table"

	"go.uber.org/zap"
)

const QueryToolName = "PandasAgentTool"

// QueryRunner answers a natural-language question about a table.
type QueryRunner interface {
	Ask(ctx context.Context, t *table.Table, question string) (string, error)
}

// QueryTool hands questions about the current table to an analyst.
type QueryTool struct {
	store  *table.Store
	runner QueryRunner
	logger *zap.Logger
}

// NewQueryTool builds the tool. A nil store means no table source was wired.
func NewQueryTool(store *table.Store, runner QueryRunner, logger *zap.Logger) *QueryTool {
	return &QueryTool{store: store, runner: runner, logger: logger}
}

func (q *QueryTool) Descriptor() Descriptor {
	return Descriptor{
		Name: QueryToolName,
		Description: "Asks a natural-language question about the currently loaded order data. " +
			"An analyst writes and runs code against the data to answer it. " +
			"Load data with data_loader first. Input: the question as plain text.",
		InputContract: "plain-text question",
		ProgressLabel: "Performing data analysis on the data",
	}
}

func (q *QueryTool) Run(ctx context.Context, input string) string {
	if q.store == nil {
		return "No DataFrame callback provided. Please set a callback first."
	}
	t := q.store.Get()
	if t == nil {
		return "Callback did not return a valid DataFrame."
	}
	answer, err := q.runner.Ask(ctx, t, input)
	if err != nil {
		q.logger.Warn("Analyst query failed", zap.String("question", input), zap.Error(err))
		return fmt.Sprintf("Error executing query: %v", err)
	}
	return answer
}
