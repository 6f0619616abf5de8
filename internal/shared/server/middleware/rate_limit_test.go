package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func limitedRouter(now *time.Time, rule RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	limit := RateLimit(RateLimitConfig{
		Name:    "analyze",
		Rule:    rule,
		Limiter: NewRateLimiter(func() time.Time { return *now }),
	})
	r.POST("/api/analyze", limit, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return r
}

func postAnalyze(r http.Handler, clientIP string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	req.RemoteAddr = clientIP + ":40000"
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRateLimitAllowsBurstThenRefills(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := limitedRouter(&now, PerMinute(60, 2))

	for i := 0; i < 2; i++ {
		if resp := postAnalyze(r, "10.0.0.1"); resp.Code != http.StatusOK {
			t.Fatalf("request %d expected 200, got %d", i+1, resp.Code)
		}
	}
	if resp := postAnalyze(r, "10.0.0.1"); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("request 3 expected 429, got %d", resp.Code)
	}

	now = now.Add(time.Second)
	if resp := postAnalyze(r, "10.0.0.1"); resp.Code != http.StatusOK {
		t.Fatalf("expected a refilled token after 1s, got %d", resp.Code)
	}
}

func TestRateLimit429UsesErrorEnvelope(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := limitedRouter(&now, RateLimitRule{Rate: 1, Burst: 1})

	postAnalyze(r, "10.0.0.1")
	resp := postAnalyze(r, "10.0.0.1")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", resp.Header().Get("Retry-After"))
	}

	var payload struct {
		Error   string `json:"error"`
		Details struct {
			RetryAfterMs int64 `json:"retryAfterMs"`
		} `json:"details"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error != "Too many requests" {
		t.Fatalf("unexpected error %q", payload.Error)
	}
	if payload.Details.RetryAfterMs != 1000 {
		t.Fatalf("expected retryAfterMs 1000, got %d", payload.Details.RetryAfterMs)
	}
}

func TestRateLimitSeparatesClients(t *testing.T) {
	now := time.Unix(0, 0)
	r := limitedRouter(&now, RateLimitRule{Rate: 1, Burst: 1})

	if resp := postAnalyze(r, "10.0.0.1"); resp.Code != http.StatusOK {
		t.Fatalf("first client should be allowed, got %d", resp.Code)
	}
	if resp := postAnalyze(r, "10.0.0.2"); resp.Code != http.StatusOK {
		t.Fatalf("second client should have its own bucket, got %d", resp.Code)
	}
	if resp := postAnalyze(r, "10.0.0.1"); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("first client should be limited, got %d", resp.Code)
	}
}

func TestAllowReportsWait(t *testing.T) {
	limiter := NewRateLimiter(func() time.Time { return time.Unix(0, 0) })
	rule := PerMinute(30, 1)

	if ok, _ := limiter.Allow("k", rule); !ok {
		t.Fatalf("first call should be allowed")
	}
	ok, wait := limiter.Allow("k", rule)
	if ok || wait != 2*time.Second {
		t.Fatalf("expected 2s wait, got ok=%v wait=%v", ok, wait)
	}
	if ok, _ := limiter.Allow("k", RateLimitRule{}); !ok {
		t.Fatalf("zero rule should never limit")
	}
}
