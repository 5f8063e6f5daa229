package bench

import (
	"context"
	"strings"

	"order-analyst/llmclient"
	"order-analyst/prompts"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reformulate rewrites each raw reference answer as a short natural language
// sentence. Out of scope rows and rows whose rewrite fails keep their
// raw answer. Order is preserved.
func Reformulate(ctx context.Context, model llmclient.Model, rows []DatasetRow, workers int, logger *zap.Logger) []DatasetRow {
	if workers <= 0 {
		workers = 4
	}
	out := make([]DatasetRow, len(rows))
	copy(out, rows)

	var g errgroup.Group
	g.SetLimit(workers)
	for i, row := range rows {
		if row.Type == TypeOutOfScope {
			continue
		}
		g.Go(func() error {
			prompt := prompts.Render(prompts.Reformulate(), map[string]string{
				"question": row.Questions,
				"answer":   row.Answers,
			})
			req := llmclient.Prompt("", prompt)
			req.Temperature = llmclient.Temperature(0)
			resp, err := model.Complete(ctx, req)
			if err != nil {
				logger.Warn("Reformulation failed, keeping raw answer", zap.Int("row", i), zap.Error(err))
				return nil
			}
			if answer := strings.TrimSpace(resp.Content); answer != "" {
				out[i].Answers = answer
			}
			return nil
		})
	}
	g.Wait()
	return out
}
