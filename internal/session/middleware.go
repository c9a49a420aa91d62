package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/storefront/internal/common"
)

const (
	DefaultCookieName = "guest_id"
	GuestHeader       = "X-Guest-ID"
)

// Middleware resolves the session from the authenticated user and the guest
// cookie or header. A guest id is issued when the request carries none.
type Middleware struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
	NewID      func() string
}

func (m Middleware) cookieName() string {
	if m.CookieName != "" {
		return m.CookieName
	}
	return DefaultCookieName
}

func (m Middleware) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

// Handler implements chi middleware.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := Context{}
		if userID, ok := common.UserID(r.Context()); ok {
			s.UserID = strings.TrimSpace(userID)
		}
		s.GuestID = m.resolveGuest(r)
		if s.GuestID == "" {
			s.GuestID = m.newID()
			m.issue(w, s.GuestID)
		}
		next.ServeHTTP(w, r.WithContext(With(r.Context(), s)))
	})
}

// resolveGuest prefers the header over the cookie and drops ids that are not UUIDs.
func (m Middleware) resolveGuest(r *http.Request) string {
	candidates := []string{r.Header.Get(GuestHeader)}
	if c, err := r.Cookie(m.cookieName()); err == nil {
		candidates = append(candidates, c.Value)
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if id, err := uuid.Parse(c); err == nil {
			return id.String()
		}
	}
	return ""
}

func (m Middleware) issue(w http.ResponseWriter, id string) {
	ttl := m.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName(),
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(GuestHeader, id)
}

// Require rejects requests without a session. It must run after Handler.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := From(r.Context()); !ok || !s.Valid() {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
