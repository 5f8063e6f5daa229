package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"order-analyst/rag"
)

const DocsToolName = "RAGTool"

const noColumnsFound = "No relevant columns found matching your query."

// Searcher finds documented columns relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]rag.Hit, error)
}

// DocsTool looks up column documentation for the analyst.
type DocsTool struct {
	index Searcher
	k     int
}

func NewDocsTool(index Searcher, k int) *DocsTool {
	if k <= 0 {
		k = 5
	}
	return &DocsTool{index: index, k: k}
}

func (d *DocsTool) Descriptor() Descriptor {
	return Descriptor{
		Name: DocsToolName,
		Description: "Finds the columns of the order data most relevant to a question, with their description " +
			"and data type. Phrase the query as 'What attributes are related to [concept] where [optional condition]?', " +
			"for example 'What attributes are related to vendor contact where the order is pending?'.",
		InputContract: "plain-text query",
	}
}

func (d *DocsTool) Run(ctx context.Context, input string) string {
	hits, err := d.index.Search(ctx, input, d.k)
	if err != nil {
		return fmt.Sprintf("Error searching documentation: %v", err)
	}
	if len(hits) == 0 {
		return noColumnsFound
	}
	out, err := json.Marshal(hits)
	if err != nil {
		return fmt.Sprintf("Error searching documentation: %v", err)
	}
	return string(out)
}
