package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/roomguard/pkg/errors"
)

type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{counts: make(map[string]int64)}
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func limitedRequest(actor string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/!r:example.org/join", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	if actor != "" {
		req = req.WithContext(WithUserID(req.Context(), actor))
	}
	return req
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	limiter := newFakeLimiter()
	policy := NewRateLimitPolicy("membership", time.Minute, 2)
	handler := RateLimit(policy, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest("@alice:example.org"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if limiter.counts["membership:user:@alice:example.org"] != 2 {
		t.Fatalf("expected actor scoped counter, got %v", limiter.counts)
	}
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	limiter := newFakeLimiter()
	policy := NewRateLimitPolicy("membership", time.Minute, 1)
	handler := RateLimit(policy, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), limitedRequest("@alice:example.org"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("@alice:example.org"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
		t.Fatalf("expected %s, got %s", pkgerrors.CodeRateLimit, payload.Error.Code)
	}

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, limitedRequest("@bob:example.org"))
	if other.Code != http.StatusOK {
		t.Fatalf("other actors keep their own window, got %d", other.Code)
	}
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	limiter := newFakeLimiter()
	policy := NewRateLimitPolicy("membership", time.Minute, 5)
	handler := RateLimit(policy, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := limitedRequest("")
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if limiter.counts["membership:ip:9.9.9.9"] != 1 {
		t.Fatalf("expected ip scoped counter, got %v", limiter.counts)
	}
}

func TestRateLimitStoreFailure(t *testing.T) {
	limiter := newFakeLimiter()
	limiter.err = errors.New("redis down")
	policy := NewRateLimitPolicy("membership", time.Minute, 5)
	handler := RateLimit(policy, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("@alice:example.org"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	limiter := newFakeLimiter()
	handler := RateLimit(NewRateLimitPolicy("off", 0, 0), limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("@alice:example.org"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(limiter.counts) != 0 {
		t.Fatalf("disabled policy must not count, got %v", limiter.counts)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "5.6.7.8:1234"
	if got := clientIP(req); got != "5.6.7.8" {
		t.Fatalf("expected remote host, got %s", got)
	}
	req.Header.Set("X-Real-IP", "4.4.4.4")
	if got := clientIP(req); got != "4.4.4.4" {
		t.Fatalf("expected X-Real-IP, got %s", got)
	}
}
