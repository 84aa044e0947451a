package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type idKey struct{}

// Cookie assigns every browser a stable session identifier via a cookie,
// minting a UUID on first contact. The id ties the fingerprint post to the
// gateway's later relay callback.
type Cookie struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Middleware places the session id on the request context and (re)issues the
// cookie so its lifetime tracks the store's TTL.
func (c Cookie) Middleware(next http.Handler) http.Handler {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "sid"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if cookie, err := r.Cookie(name); err == nil {
			id = strings.TrimSpace(cookie.Value)
		}
		if id == "" {
			id = uuid.NewString()
		}
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    id,
			Path:     "/",
			MaxAge:   int(c.TTL / time.Second),
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}

// WithID stores the session id on the context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey{}, id)
}

// IDFromContext extracts the session id, or "" when none was assigned.
func IDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(idKey{}).(string); ok {
		return id
	}
	return ""
}

// IDFromRequest is a convenience for handler wiring.
func IDFromRequest(r *http.Request) string {
	return IDFromContext(r.Context())
}
