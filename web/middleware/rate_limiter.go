package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	MessagesPerMinute int           // Max messages per session per minute
	BurstSize         int           // Allow burst of N requests
	CleanupInterval   time.Duration // How often idle limiters are dropped
}

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SessionRateLimiter manages rate limits per session
type SessionRateLimiter struct {
	config   RateLimiterConfig
	limiters map[uuid.UUID]*sessionLimiter
	mu       sync.Mutex
	logger   *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionRateLimiter creates a limiter and starts its cleanup routine
// when a cleanup interval is configured.
func NewSessionRateLimiter(config RateLimiterConfig, logger *zap.Logger) *SessionRateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	limiter := &SessionRateLimiter{
		config:   config,
		limiters: make(map[uuid.UUID]*sessionLimiter),
		logger:   logger,
		stop:     make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go limiter.cleanupRoutine()
	}
	return limiter
}

func (srl *SessionRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(srl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			srl.cleanup(time.Now().Add(-srl.config.CleanupInterval))
		case <-srl.stop:
			return
		}
	}
}

// cleanup drops limiters not used since cutoff.
func (srl *SessionRateLimiter) cleanup(cutoff time.Time) {
	srl.mu.Lock()
	defer srl.mu.Unlock()
	removed := 0
	for id, l := range srl.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(srl.limiters, id)
			removed++
		}
	}
	if removed > 0 {
		srl.logger.Debug("Dropped idle rate limiters", zap.Int("removed", removed), zap.Int("remaining", len(srl.limiters)))
	}
}

func (srl *SessionRateLimiter) Stop() {
	srl.stopOnce.Do(func() { close(srl.stop) })
}

func (srl *SessionRateLimiter) limiterFor(sessionID uuid.UUID) *rate.Limiter {
	srl.mu.Lock()
	defer srl.mu.Unlock()
	l, ok := srl.limiters[sessionID]
	if !ok {
		every := rate.Limit(float64(srl.config.MessagesPerMinute) / 60.0)
		l = &sessionLimiter{limiter: rate.NewLimiter(every, srl.config.BurstSize)}
		srl.limiters[sessionID] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

// AllowMessage checks if a message can be sent for the given session
func (srl *SessionRateLimiter) AllowMessage(sessionID uuid.UUID) bool {
	return srl.limiterFor(sessionID).Allow()
}

// Remaining returns the tokens left for a session, and the burst size.
func (srl *SessionRateLimiter) Remaining(sessionID uuid.UUID) (remaining int, limit int) {
	tokens := srl.limiterFor(sessionID).Tokens()
	return int(math.Max(0, math.Floor(tokens))), srl.config.BurstSize
}

// RateLimitMiddleware rejects requests of sessions over their message rate.
// It must run after SessionMiddleware.
func RateLimitMiddleware(limiter *SessionRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionIDValue, exists := c.Get("sessionID")
		if !exists {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session not initialized"})
			return
		}
		sessionID := sessionIDValue.(uuid.UUID)

		allowed := limiter.AllowMessage(sessionID)
		remaining, limit := limiter.Remaining(sessionID)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			if logger := loggerFrom(c); logger != nil {
				logger.Warn("Rate limit exceeded",
					zap.String("session_id", sessionID.String()),
					zap.Int("limit", limit))
			}
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"limit":       limit,
				"remaining":   remaining,
				"retry_after": 60,
			})
			return
		}
		c.Next()
	}
}

func loggerFrom(c *gin.Context) *zap.Logger {
	logger, _ := c.Get("logger")
	zapLogger, _ := logger.(*zap.Logger)
	return zapLogger
}
