package httpapi

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	requestIDContextKey contextKey = "request_id"
	principalContextKey contextKey = "principal"
)

// requestIDMiddleware echoes X-Request-Id if the caller supplied one, and
// stashes it in the request context so handlers can include it in error
// bodies without re-reading the header (spec.md §6: "X-Request-Id is echoed
// back if present").
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID != "" {
			w.Header().Set("X-Request-Id", reqID)
		}
		ctx := context.WithValue(r.Context(), requestIDContextKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// authMiddleware resolves the Authorization bearer token into a Principal
// and stores it in the request context; handlers that require one call
// mustPrincipal. Rejects with 401 if the header is missing or the token is
// not recognized (spec.md §6: "401/403 for auth failure").
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, requestIDFrom(r.Context()), http.StatusUnauthorized, codeUnauthorized, "missing or malformed Authorization header", s.now().UnixMilli())
			return
		}

		principal, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, requestIDFrom(r.Context()), http.StatusUnauthorized, codeUnauthorized, "invalid token", s.now().UnixMilli())
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// mustPrincipal extracts the Principal authMiddleware placed in the request
// context or panics. Panicking here is always a programmer error — every
// route that calls this must be registered behind authMiddleware.
func mustPrincipal(ctx context.Context) Principal {
	p, ok := ctx.Value(principalContextKey).(Principal)
	if !ok {
		panic("BUG: Principal not found in context — route registered without authMiddleware")
	}
	return p
}

// deviceIDFromHeader reads X-Device-Id, required on push and pull
// (spec.md §6).
func deviceIDFromHeader(r *http.Request) string {
	return r.Header.Get("X-Device-Id")
}
