// Package auth carries the signed-in principal through request contexts and
// decides whether a principal may see a protected page.
package auth

import (
	"context"
	"encoding/gob"
	"net/url"
	"time"

	"github.com/alextreichler/libreserve/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gob.Register(Principal{})
}

// Principal is the authenticated user held in the session cookie.
type Principal struct {
	ID          string
	Name        string
	Email       string
	Role        models.Role
	Token       string
	TokenExpiry time.Time // zero when the token carries no exp claim
}

func (p *Principal) IsAdmin() bool { return p != nil && p.Role == models.RoleAdmin }

// Expired reports whether the bearer token is known to be expired at now.
func (p *Principal) Expired(now time.Time) bool {
	return !p.TokenExpiry.IsZero() && !now.Before(p.TokenExpiry)
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored by the session middleware, or nil
// for guests.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}

// Decision is the outcome of a gate check.
type Decision struct {
	Allow      bool
	RedirectTo string
}

// Decide evaluates a protected page. An empty required role only demands a
// signed-in principal; otherwise a principal with a different role is sent to
// mirror.
func Decide(p *Principal, required models.Role, path, mirror string, now time.Time) Decision {
	if p == nil || p.Token == "" || p.Expired(now) {
		return Decision{RedirectTo: LoginURL(path)}
	}
	if required != "" && p.Role != required {
		return Decision{RedirectTo: mirror}
	}
	return Decision{Allow: true}
}

// LoginURL builds the sign-in URL carrying a callback to path.
func LoginURL(path string) string {
	if path == "" {
		return "/login"
	}
	return "/login?callbackUrl=" + url.QueryEscape(path)
}

// SafeCallback keeps only same-site absolute paths so the login form cannot be
// used as an open redirect.
func SafeCallback(raw string) string {
	if raw == "" || raw[0] != '/' || (len(raw) > 1 && (raw[1] == '/' || raw[1] == '\\')) {
		return "/"
	}
	return raw
}

// TokenExpiry reads the exp claim of a JWT bearer token without verifying the
// signature; the backend remains the verifier. ok is false when the token is
// not a JWT or has no exp claim.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	date, err := claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}
