package security

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/storefront/internal/common"
)

// OriginGuard rejects cross-site writes that ride on cookies. Guest carts are keyed by a
// cookie, so a foreign page could otherwise add items or check out on a shopper's behalf.
// Requests carrying a bearer token or no Origin/Referer at all pass through.
type OriginGuard struct {
	Allowed []string
}

// Middleware enforces the origin allowlist on unsafe methods.
func (g OriginGuard) Middleware(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(g.Allowed))
	wildcard := false
	for _, origin := range g.Allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			wildcard = true
		}
		if origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wildcard || safeMethod(r.Method) || hasBearer(r) || len(r.Cookies()) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		origin := requestOrigin(r)
		if origin == "" || origin == sameOrigin(r) {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := allowed[origin]; ok {
			next.ServeHTTP(w, r)
			return
		}
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN_ORIGIN", "cross-site request rejected", nil)
	})
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func hasBearer(r *http.Request) bool {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	return strings.HasPrefix(strings.ToLower(auth), "bearer ")
}

func requestOrigin(r *http.Request) string {
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" && origin != "null" {
		return strings.TrimRight(origin, "/")
	}
	ref := strings.TrimSpace(r.Header.Get("Referer"))
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func sameOrigin(r *http.Request) string {
	scheme := "http"
	if isHTTPS(r) {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
