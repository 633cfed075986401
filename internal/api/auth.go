package api

import (
	"net/http"

	"github.com/mattjoyce/armsd/internal/auth"
)

// authenticate attaches the caller's principal, answering 401 when the
// bearer token is missing or unknown.
func (s *Server) authenticate(keys *auth.Keyring) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := keys.Authenticate(r)
			if err != nil {
				s.writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// requireScope answers 403 unless the principal holds scope.
func (s *Server) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := auth.PrincipalFromContext(r.Context()); !ok || !p.Can(scope) {
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
