package session

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/merchkit/dpm-relay/internal/dpm"
)

// Counter bumps the per-session request count on every request. The count is
// not used by the payment flow; it is a cheap liveness signal when inspecting
// a session by hand. Store failures are logged and ignored.
type Counter struct {
	Store  dpm.Store
	Logger zerolog.Logger
}

// Middleware increments the counter for the request's session. Must run after
// the Cookie middleware so the session id is on the context.
func (c Counter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.Store != nil {
			if id := IDFromRequest(r); id != "" {
				ctx := r.Context()
				sess, err := c.Store.Get(ctx, id)
				if err == nil {
					if sess == nil {
						sess = &dpm.Session{}
					}
					sess.Requests++
					err = c.Store.Set(ctx, id, sess)
				}
				if err != nil {
					c.Logger.Warn().Err(err).Str("session_id", id).Msg("count request")
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
