package agent

import (
	"context"
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"order-analyst/engine"

	"go.uber.org/zap"
)

// maxObservation caps how much execution output is fed back to the model.
const maxObservation = 4000

var whitespace = regexp.MustCompile(`\s+`)

// ExecutionCoordinator handles code detection, execution and result
// processing for one analyst session.
type ExecutionCoordinator struct {
	engine  engine.Engine
	session string
	seen    map[string]string
	logger  *zap.Logger
}

// ExecutionResult contains the outcome of processing a model response.
type ExecutionResult struct {
	WasCodeExecuted bool
	Code            string
	Result          string
	HasError        bool
	Repeated        bool
}

func NewExecutionCoordinator(eng engine.Engine, session string, logger *zap.Logger) *ExecutionCoordinator {
	return &ExecutionCoordinator{
		engine:  eng,
		session: session,
		seen:    make(map[string]string),
		logger:  logger,
	}
}

// ProcessResponse executes the code block in response, if any. Code identical
// to an earlier block is not re-run; its previous output is returned with a
// note so the model moves on.
func (e *ExecutionCoordinator) ProcessResponse(ctx context.Context, response string) (*ExecutionResult, error) {
	code := engine.ExtractCode(response, e.engine.Language())
	if code == "" {
		return &ExecutionResult{}, nil
	}

	hash := codeHash(code)
	if prev, ok := e.seen[hash]; ok {
		e.logger.Debug("Skipping repeated code", zap.String("session_id", e.session), zap.String("hash", hash))
		return &ExecutionResult{
			WasCodeExecuted: true,
			Code:            code,
			Result:          prev + "\n\n(This exact code already ran. Use the output above or try something different.)",
			HasError:        engine.IsErrorOutput(prev),
			Repeated:        true,
		}, nil
	}

	result, err := e.engine.Execute(ctx, e.session, code)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(result) == "" {
		result = "(no output; print the values you need)"
	}
	result = truncate(result, maxObservation)
	e.seen[hash] = result

	hasError := engine.IsErrorOutput(result)
	if hasError {
		e.logger.Warn("Analyst code resulted in error",
			zap.String("session_id", e.session),
			zap.String("error_preview", result[:min(200, len(result))]))
	}
	return &ExecutionResult{
		WasCodeExecuted: true,
		Code:            code,
		Result:          result,
		HasError:        hasError,
	}, nil
}

// codeHash returns a short hash of code with whitespace collapsed.
func codeHash(code string) string {
	normalized := whitespace.ReplaceAllString(strings.TrimSpace(code), " ")
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum[:8])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("\n... (truncated %d characters)", len(s)-n)
}
