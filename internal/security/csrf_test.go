package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func guarded(status int) http.Handler {
	g := OriginGuard{Allowed: []string{"https://shop.example"}}
	return g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
}

func TestOriginGuardBlocksForeignCookieWrite(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://api.shop.example/api/v1/checkout", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.AddCookie(&http.Cookie{Name: "guest_id", Value: "g-1"})
	rr := httptest.NewRecorder()
	guarded(http.StatusCreated).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestOriginGuardAllowsListedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://api.shop.example/api/v1/cart/items", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.AddCookie(&http.Cookie{Name: "guest_id", Value: "g-1"})
	rr := httptest.NewRecorder()
	guarded(http.StatusOK).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestOriginGuardChecksReferer(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "http://api.shop.example/api/v1/cart/items/p1", nil)
	req.Header.Set("Referer", "https://evil.example/page")
	req.AddCookie(&http.Cookie{Name: "guest_id", Value: "g-1"})
	rr := httptest.NewRecorder()
	guarded(http.StatusOK).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 from referer check, got %d", rr.Code)
	}
}

func TestOriginGuardSkipsBearerAndSafeMethods(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://api.shop.example/api/v1/checkout", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Authorization", "Bearer abc.def")
	req.AddCookie(&http.Cookie{Name: "guest_id", Value: "g-1"})
	rr := httptest.NewRecorder()
	guarded(http.StatusAccepted).ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for bearer request, got %d", rr.Code)
	}

	get := httptest.NewRequest(http.MethodGet, "http://api.shop.example/api/v1/cart", nil)
	get.Header.Set("Origin", "https://evil.example")
	get.AddCookie(&http.Cookie{Name: "guest_id", Value: "g-1"})
	rr = httptest.NewRecorder()
	guarded(http.StatusOK).ServeHTTP(rr, get)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for GET, got %d", rr.Code)
	}
}
