package api

import (
	"context"
	"net/http"
	"strings"

	"bookmylawn/internal/domain"
	"bookmylawn/internal/models"
	"bookmylawn/internal/service"
)

type sessionKey struct{}

type tokenKey struct{}

// sessionFrom returns the session attached by requireSession.
func sessionFrom(ctx context.Context) *models.Session {
	s, _ := ctx.Value(sessionKey{}).(*models.Session)
	return s
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// requireSession resolves the bearer token to a live session and stamps the
// request with it. Writes made under it are attributed to the user.
func (s *HTTPServer) requireSession(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
			return
		}

		session, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		ctx = context.WithValue(ctx, tokenKey{}, token)
		ctx = service.WithActor(ctx, "api:"+session.UserID)
		next(w, r.WithContext(ctx))
	})
}
