package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyByUserOrIP(t *testing.T) {
	c, _ := gin.CreateTestContext(nil)
	c.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.7:1234"
	if got := KeyByUserOrIP()(c); got != "ip:203.0.113.7" {
		t.Fatalf("ip key = %q", got)
	}
	c.Set(ctxKeyUserID, "12")
	if got := KeyByUserOrIP()(c); got != "user:12" {
		t.Fatalf("user key = %q", got)
	}
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, func(*gin.Context) string { return "k" })
	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 2; i++ {
		if w := serve(r, http.MethodGet, "/", nil); w.Code != http.StatusNoContent {
			t.Fatalf("request %d: %d", i, w.Code)
		}
	}
	w := serve(r, http.MethodGet, "/", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 429 with Retry-After, got %d", w.Code)
	}
}

func TestRateLimiter_ReplayBypass(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, func(*gin.Context) string { return "k" })
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })
	r.Use(rl.Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 5; i++ {
		if w := serve(r, http.MethodGet, "/", nil); w.Code != http.StatusNoContent {
			t.Fatalf("replay %d limited: %d", i, w.Code)
		}
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.ttl = time.Nanosecond
	rl.limiterFor("old")
	time.Sleep(time.Millisecond)
	rl.lookups = sweepEvery - 1
	rl.limiterFor("new")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["old"]; ok {
		t.Fatal("idle bucket must be evicted")
	}
	if _, ok := rl.visitors["new"]; !ok {
		t.Fatal("fresh bucket must exist")
	}
}
