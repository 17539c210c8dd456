package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLimiter_WithoutRedisAdmitsEverything(t *testing.T) {
	l := NewLimiter(nil)
	for i := 0; i < 50; i++ {
		res, err := l.Check(context.Background(), "rpm:bot-backend", 5, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("check %d rejected without a Redis client", i)
		}
		if res.Remaining != 4 {
			t.Errorf("expected remaining 4, got %d", res.Remaining)
		}
	}
}

func TestLimiter_UnreachableRedisFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	l := NewLimiter(rdb)

	res, err := l.Check(context.Background(), "rpm:10.0.0.7", 3, time.Minute)
	if err != nil {
		t.Fatalf("redis errors must not surface, got %v", err)
	}
	if !res.Allowed {
		t.Error("expected the evaluation to be admitted while Redis is down")
	}
	if res.Remaining != 3 {
		t.Errorf("expected the full budget reported, got %d", res.Remaining)
	}
	if res.ResetAt.Before(time.Now()) {
		t.Error("expected a reset time in the future")
	}
}

func TestWindowKey(t *testing.T) {
	if got := windowKey("rpm:bot-backend"); got != "gate:rl:rpm:bot-backend" {
		t.Errorf("windowKey = %q", got)
	}
}
