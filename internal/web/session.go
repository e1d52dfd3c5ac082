package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/fusion/internal/core"
	"github.com/JonMunkholm/fusion/internal/logging"
)

type sessionKey struct{}

// withSession resolves the browser session from its cookie, creating one
// when the cookie is missing or the session expired, and stores it in the
// request context.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(s.cfg.Session.CookieName); err == nil {
			id = c.Value
		}

		sess, created, err := s.sessions.GetOrCreate(id)
		if err != nil {
			respondError(w, r, err, statusFor(err))
			return
		}

		ctx := logging.WithSessionID(r.Context(), sess.ID())
		if created {
			s.setSessionCookie(w, sess.ID())
			if id != "" {
				logging.FromContext(ctx).Info("session expired, started a new one", "previous", id)
				sess.PushNotices(core.Infof("Your previous session expired. Upload your files again."))
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey{}, sess)))
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.cfg.Session.TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Session.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionFrom returns the session attached by withSession.
func sessionFrom(ctx context.Context) *core.Session {
	sess, _ := ctx.Value(sessionKey{}).(*core.Session)
	return sess
}
