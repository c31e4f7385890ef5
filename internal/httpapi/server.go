// Package httpapi implements the sync server's HTTP surface (spec.md §6):
// push, pull, conflict listing and resolution, and a stub token
// login/refresh pair, routed with gorilla/mux in the style of
// spencer-p-cse138's pkg/handlers package — a State-like struct holding
// dependencies, with a Routes method wiring handlers onto a *mux.Router.
package httpapi

import (
	"log/slog"
	"time"

	"github.com/gorilla/mux"

	"github.com/taskmaster/syncserver/internal/store"
	"github.com/taskmaster/syncserver/internal/syncengine"
	"github.com/taskmaster/syncserver/internal/throttle"
)

// Server holds every dependency the HTTP handlers need. now is overridable
// in tests so responses have deterministic timestamps.
type Server struct {
	engine   *syncengine.Engine
	store    *store.Store
	auth     Authenticator
	tokens   *TokenStore
	throttle *throttle.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a Server. auth and tokens may be the same *TokenStore value —
// they're split into two fields because a production deployment would swap
// in a real Authenticator while keeping this package's stub issuer for
// nothing (auth.go's TokenStore is reference-only, see its doc comment).
func New(engine *syncengine.Engine, st *store.Store, auth Authenticator, tokens *TokenStore, limiter *throttle.Limiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   engine,
		store:    st,
		auth:     auth,
		tokens:   tokens,
		throttle: limiter,
		logger:   logger,
		now:      time.Now,
	}
}

// Routes registers every handler onto r.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/api/auth/login/", s.handleLogin).Methods("POST")
	r.HandleFunc("/api/auth/refresh/", s.handleRefresh).Methods("POST")

	sync := r.PathPrefix("/api/sync").Subrouter()
	sync.Use(requestIDMiddleware, s.authMiddleware)
	sync.HandleFunc("/push/", s.handlePush).Methods("POST")
	sync.HandleFunc("/pull/", s.handlePull).Methods("GET")
	sync.HandleFunc("/conflicts/", s.handleListConflicts).Methods("GET")
	sync.HandleFunc("/conflicts/{id}/resolve/", s.handleResolveConflict).Methods("POST")
}
