// Package session carries the shopper identity (registered user or guest)
// that owns a cart and its orders.
package session

import (
	"context"
	"strings"
)

// GuestPrefix marks cart owners synthesized for anonymous shoppers.
const GuestPrefix = "guest:"

// Context identifies the shopper for one request. UserID wins over GuestID.
type Context struct {
	UserID  string
	GuestID string
}

// Owner is the cart owner key: the user id, or GuestPrefix plus the guest id.
func (c Context) Owner() string {
	if id := strings.TrimSpace(c.UserID); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.GuestID); id != "" {
		return GuestPrefix + id
	}
	return ""
}

// GuestOwner is the owner key of the guest cart, even when a user is signed in.
func (c Context) GuestOwner() string {
	if id := strings.TrimSpace(c.GuestID); id != "" {
		return GuestPrefix + id
	}
	return ""
}

// IsGuest reports whether no registered user is attached.
func (c Context) IsGuest() bool {
	return strings.TrimSpace(c.UserID) == ""
}

// Valid reports whether the context identifies anyone.
func (c Context) Valid() bool {
	return c.Owner() != ""
}

type ctxKey struct{}

// With stores s on ctx.
func With(ctx context.Context, s Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// From extracts the session stored by With.
func From(ctx context.Context) (Context, bool) {
	s, ok := ctx.Value(ctxKey{}).(Context)
	return s, ok
}
