package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func newTestVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{Secret: "super-secret-key", Issuer: "storefront", Audience: "storefront-web", ClockSkew: time.Second})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	v.WithNow(func() time.Time { return now })
	return v
}

func TestTokenValidatorValidateSuccess(t *testing.T) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		Issuer("issuer").
		Audience([]string{"aud"}).
		Subject("sub").
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(time.Minute)).
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	validator := TokenValidator{Issuer: "issuer", Audience: "aud", ClockSkew: time.Second, Algorithm: jwa.HS256}
	if err := validator.Validate(token, jwa.HS256, now); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := validator.Validate(token, jwa.RS256, now); err == nil {
		t.Fatal("expected algorithm mismatch error")
	}
}

func TestVerifierRoundTripCarriesRoles(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(t, now)
	token, err := v.Sign("user-42", []string{RoleAdmin}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != RoleAdmin {
		t.Fatalf("unexpected roles %v", claims.Roles)
	}
}

func TestVerifierRejectsExpired(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(t, now)
	token, err := v.Sign("user-42", nil, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	v.WithNow(func() time.Time { return now.Add(time.Hour) })
	if _, err := v.Parse(token); err == nil {
		t.Fatal("expected expiration error")
	}
}

func TestVerifierRejectsWrongAudience(t *testing.T) {
	now := time.Now()
	other, err := NewVerifier(Config{Secret: "super-secret-key", Issuer: "storefront", Audience: "mobile"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	other.WithNow(func() time.Time { return now })
	token, err := other.Sign("user-42", nil, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newTestVerifier(t, now).Parse(token); err == nil {
		t.Fatal("expected audience mismatch error")
	}
}

func TestVerifierRejectsAlgorithmMismatch(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(t, now)
	built, err := jwt.NewBuilder().
		Subject("user-42").
		Issuer("storefront").
		Audience([]string{"storefront-web"}).
		IssuedAt(now).
		Expiration(now.Add(time.Minute)).
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(built, jwt.WithKey(jwa.HS384, []byte("super-secret-key")))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := v.Parse(string(signed)); err == nil {
		t.Fatal("expected algorithm mismatch error")
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatal("expected missing secret error")
	}
}
