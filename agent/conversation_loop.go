package agent

import (
	"time"

	"go.uber.org/zap"
)

// ConversationLoop bounds the analyst's turns by count, wall-clock time and
// consecutive failed executions.
type ConversationLoop struct {
	maxIterations     int
	maxErrors         int
	deadline          time.Time
	consecutiveErrors int
	logger            *zap.Logger
}

// NewConversationLoop starts the clock. A zero maxDuration means no time limit.
func NewConversationLoop(maxIterations, maxErrors int, maxDuration time.Duration, logger *zap.Logger) *ConversationLoop {
	c := &ConversationLoop{
		maxIterations: maxIterations,
		maxErrors:     maxErrors,
		logger:        logger,
	}
	if maxDuration > 0 {
		c.deadline = time.Now().Add(maxDuration)
	}
	return c
}

// ShouldContinue checks if the loop should continue based on turn count, time
// and consecutive errors. If not, reason says which limit was hit.
func (c *ConversationLoop) ShouldContinue(turn int) (bool, string) {
	if c.maxErrors > 0 && c.consecutiveErrors >= c.maxErrors {
		c.logger.Warn("Analyst produced consecutive errors, giving up",
			zap.Int("consecutive_errors", c.consecutiveErrors))
		return false, "consecutive errors"
	}
	if turn >= c.maxIterations {
		c.logger.Info("Reached maximum iterations", zap.Int("max_iterations", c.maxIterations))
		return false, "iteration limit"
	}
	if !c.deadline.IsZero() && !time.Now().Before(c.deadline) {
		c.logger.Info("Reached maximum execution time")
		return false, "time limit"
	}
	return true, ""
}

func (c *ConversationLoop) RecordError() {
	c.consecutiveErrors++
	c.logger.Debug("Recorded execution error", zap.Int("consecutive_errors", c.consecutiveErrors))
}

// RecordSuccess resets the consecutive error counter.
func (c *ConversationLoop) RecordSuccess() {
	if c.consecutiveErrors > 0 {
		c.logger.Debug("Resetting consecutive error count after successful execution")
		c.consecutiveErrors = 0
	}
}

func (c *ConversationLoop) ConsecutiveErrors() int {
	return c.consecutiveErrors
}
