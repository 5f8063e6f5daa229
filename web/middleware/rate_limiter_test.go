package middleware

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestSessionRateLimiter(t *testing.T) {
	l := NewSessionRateLimiter(RateLimiterConfig{MessagesPerMinute: 1, BurstSize: 2}, zap.NewNop())
	defer l.Stop()
	a, b := uuid.New(), uuid.New()

	if !l.AllowMessage(a) || !l.AllowMessage(a) {
		t.Fatal("burst not honoured")
	}
	if l.AllowMessage(a) {
		t.Error("third message within a minute allowed")
	}
	if !l.AllowMessage(b) {
		t.Error("sessions share a bucket")
	}
	if remaining, limit := l.Remaining(b); remaining != 1 || limit != 2 {
		t.Errorf("remaining = %d/%d", remaining, limit)
	}

	l.cleanup(time.Now().Add(time.Minute))
	if len(l.limiters) != 0 {
		t.Errorf("limiters left = %d", len(l.limiters))
	}
	if !l.AllowMessage(a) {
		t.Error("fresh bucket after cleanup should allow")
	}
}
