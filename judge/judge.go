// Package judge decides whether a generated answer matches a reference
// answer, first by embedding similarity and then by asking a second model.
package judge

import (
	"context"
	"fmt"
	"math"

	apperrors "order-analyst/errors"
	"order-analyst/llmclient"
	"order-analyst/metrics"
	"order-analyst/outparse"
	"order-analyst/prompts"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	MethodSimilarity = "similarity"
	MethodLLM        = "secondary-LLM"
)

// DefaultThreshold is the similarity above which answers are accepted
// without asking the model.
const DefaultThreshold = 0.8

const verdictSchema = `{
  "type": "object",
  "properties": {
    "verdict": {"type": "boolean", "description": "Is the generated answer and the reference answer similar?"}
  },
  "required": ["verdict"]
}`

type Verdict struct {
	Verdict     bool    `json:"verdict"`
	Explanation string  `json:"explanation,omitempty"`
	Method      string  `json:"method"`
	Score       float64 `json:"score"`
	Raw         string  `json:"raw,omitempty"`
}

// Similarity scores how close two texts are, 1 meaning identical.
type Similarity func(ctx context.Context, a, b string) (float64, error)

// EmbeddingSimilarity is the cosine similarity of the texts' embeddings.
func EmbeddingSimilarity(embedder llmclient.Embedder) Similarity {
	return func(ctx context.Context, a, b string) (float64, error) {
		va, err := embedder.Embed(ctx, a)
		if err != nil {
			return 0, err
		}
		vb, err := embedder.Embed(ctx, b)
		if err != nil {
			return 0, err
		}
		return Cosine(va, vb)
	}
}

func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "cannot compare vectors of length %d and %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

type Judge struct {
	similarity Similarity
	model      llmclient.Model
	parser     *outparse.Parser
	threshold  float64
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New builds a judge. A nil similarity sends every answer to the model.
func New(similarity Similarity, model llmclient.Model, threshold float64, m *metrics.Metrics, logger *zap.Logger) *Judge {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Judge{
		similarity: similarity,
		model:      model,
		parser:     outparse.MustNew("judge verdict", verdictSchema, model, logger),
		threshold:  threshold,
		metrics:    m,
		logger:     logger,
	}
}

// Evaluate never fails: errors become a negative verdict with an explanation.
func (j *Judge) Evaluate(ctx context.Context, question, reference, generated string) Verdict {
	ctx, span := otel.Tracer("order-analyst/judge").Start(ctx, "judge.evaluate")
	defer span.End()

	v := j.evaluate(ctx, question, reference, generated)
	span.SetAttributes(
		attribute.String("method", v.Method),
		attribute.Bool("verdict", v.Verdict),
		attribute.Float64("score", v.Score))
	j.metrics.JudgeVerdict(v.Method, v.Verdict)
	return v
}

func (j *Judge) evaluate(ctx context.Context, question, reference, generated string) Verdict {
	var score float64
	if j.similarity != nil {
		s, err := j.similarity(ctx, generated, reference)
		if err != nil {
			j.logger.Warn("Similarity scoring failed, falling back to the judge model", zap.Error(err))
		} else {
			score = s
			if score > j.threshold {
				return Verdict{
					Verdict:     true,
					Explanation: fmt.Sprintf("The generated answer is similar to the reference answer based on similarity score of %.2f", score),
					Method:      MethodSimilarity,
					Score:       score,
				}
			}
		}
	}

	prompt := prompts.Render(prompts.Judge(), map[string]string{
		"question":            question,
		"reference_answer":    reference,
		"generated_answer":    generated,
		"format_instructions": j.parser.FormatInstructions(),
	})
	req := llmclient.Prompt("", prompt)
	req.Temperature = llmclient.Temperature(0)

	resp, err := j.model.Complete(ctx, req)
	if err != nil {
		return failed(score, err)
	}
	var out struct {
		Verdict bool `json:"verdict"`
	}
	if err := j.parser.Parse(ctx, resp.Content, &out); err != nil {
		j.logger.Debug("Judge output unusable", zap.String("raw", resp.Content), zap.Error(err))
		v := failed(score, err)
		v.Raw = resp.Content
		return v
	}
	return Verdict{Verdict: out.Verdict, Method: MethodLLM, Score: score, Raw: resp.Content}
}

func failed(score float64, err error) Verdict {
	return Verdict{
		Verdict:     false,
		Explanation: fmt.Sprintf("Error during evaluation: %v", err),
		Method:      MethodLLM,
		Score:       score,
	}
}
