package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront/internal/session"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	handler := Handler{
		Limiter: Sliding{Client: client, Prefix: "ratelimit:", Window: time.Second, Max: 1},
		Key:     func(*http.Request) string { return "static" },
	}
	counted := handler.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/coupons/validate", nil)
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rr2.Code)
	}
	if rr2.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected limit header: %q", rr2.Header().Get("X-RateLimit-Limit"))
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = client.Close() }()

	called := false
	handler := Handler{
		Limiter: Sliding{Client: client, Prefix: "ratelimit:", Window: time.Second, Max: 1},
		Key:     func(*http.Request) string { return "err" },
		OnError: func(error) { called = true },
	}

	rr := httptest.NewRecorder()
	handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected handler to proceed on error, got %d", rr.Code)
	}
	if !called {
		t.Fatal("expected OnError callback to be invoked")
	}
}

func TestSlidingWindowRecovers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	window := 2 * time.Second
	l := Sliding{Client: client, Prefix: "test:", Window: window, Max: 2}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "key")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !d.Allowed || d.Remaining != 2-(i+1) {
			t.Fatalf("request %d: unexpected decision %+v", i, d)
		}
	}
	d, err := l.Allow(ctx, "key")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("expected third request rejected, got %+v", d)
	}

	mr.FastForward(window)
	d, err = l.Allow(ctx, "key")
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected request after window to be allowed")
	}
}

func TestFixedMemoryStore(t *testing.T) {
	l, err := NewFixed("2-M", nil, "coupon")
	if err != nil {
		t.Fatalf("new fixed: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "guest:a")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("expected request %d allowed", i)
		}
	}
	d, err := l.Allow(ctx, "guest:a")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.Limit != 2 {
		t.Fatalf("expected limit reached, got %+v", d)
	}
	if d, _ := l.Allow(ctx, "guest:b"); !d.Allowed {
		t.Fatal("expected other key to be unaffected")
	}
}

func TestFixedRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	l, err := NewFixed("1-H", client, "rl")
	if err != nil {
		t.Fatalf("new fixed: %v", err)
	}
	handler := Handler{Limiter: l, Key: SessionOrIP("coupon")}
	wrapped := handler.Middleware(okHandler())

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/coupons/validate", nil)
		req = req.WithContext(session.With(req.Context(), session.Context{UserID: "u1"}))
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		return rr.Code
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
}

func TestNewFixedRejectsBadRate(t *testing.T) {
	if _, err := NewFixed("lots", nil, ""); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSessionOrIPKey(t *testing.T) {
	key := SessionOrIP("coupon")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	if got := key(req); got != "coupon:ip:10.0.0.7" {
		t.Fatalf("unexpected ip key %q", got)
	}
	req = req.WithContext(session.With(req.Context(), session.Context{GuestID: "g1"}))
	if got := key(req); got != "coupon:guest:g1" {
		t.Fatalf("unexpected session key %q", got)
	}
}
