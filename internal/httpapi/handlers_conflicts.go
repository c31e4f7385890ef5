package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskmaster/syncserver/internal/store"
	"github.com/taskmaster/syncserver/internal/syncengine"
	"github.com/taskmaster/syncserver/internal/throttle"
)

func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r.Context())

	conflicts, err := s.store.ListUnresolvedConflicts(r.Context(), principal.OrganizationID)
	if err != nil {
		s.logger.Error("httpapi: list conflicts failed", "error", err)
		writeError(w, requestIDFrom(r.Context()), http.StatusInternalServerError, codeInternal,
			"list conflicts failed", s.now().UnixMilli())
		return
	}

	out := make([]conflictWire, 0, len(conflicts))
	for _, c := range conflicts {
		if c.UserID == nil || *c.UserID != principal.UserID {
			continue
		}
		out = append(out, toConflictWire(c))
	}
	writeJSON(w, http.StatusOK, conflictsListResponseWire{Conflicts: out})
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r.Context())

	if !s.checkThrottle(w, r, throttle.ScopeConflictResolution, principal.UserID) {
		return
	}

	conflictID := mux.Vars(r)["id"]

	var wire resolveRequestWire
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, requestIDFrom(r.Context()), http.StatusBadRequest, codeInvalidBody,
			"malformed request body", s.now().UnixMilli())
		return
	}

	choice := syncengine.ResolutionChoice(wire.Resolution)
	if choice != syncengine.ChoiceLocal && choice != syncengine.ChoiceRemote && choice != syncengine.ChoiceCustom {
		writeError(w, requestIDFrom(r.Context()), http.StatusBadRequest, codeInvalidBody,
			"resolution must be one of local, remote, custom", s.now().UnixMilli())
		return
	}
	if choice == syncengine.ChoiceCustom && wire.CustomResolution == nil {
		writeError(w, requestIDFrom(r.Context()), http.StatusBadRequest, codeInvalidBody,
			"customResolution is required when resolution=custom", s.now().UnixMilli())
		return
	}

	if _, err := s.store.GetConflict(r.Context(), principal.OrganizationID, conflictID); errors.Is(err, store.ErrNotFound) {
		writeError(w, requestIDFrom(r.Context()), http.StatusNotFound, codeNotFound,
			"conflict not found", s.now().UnixMilli())
		return
	} else if err != nil {
		s.logger.Error("httpapi: get conflict failed", "error", err)
		writeError(w, requestIDFrom(r.Context()), http.StatusInternalServerError, codeInternal,
			"internal error", s.now().UnixMilli())
		return
	}

	resolved, err := s.engine.ResolveManually(r.Context(), principal.OrganizationID, principal.UserID, conflictID, choice, wire.CustomResolution)
	if errors.Is(err, syncengine.ErrAlreadyResolved) {
		writeError(w, requestIDFrom(r.Context()), http.StatusBadRequest, codeAlreadyResolved,
			"conflict already resolved", s.now().UnixMilli())
		return
	}
	if err != nil {
		s.logger.Error("httpapi: resolve conflict failed", "error", err)
		writeError(w, requestIDFrom(r.Context()), http.StatusInternalServerError, codeInternal,
			"resolve conflict failed", s.now().UnixMilli())
		return
	}

	writeJSON(w, http.StatusOK, toConflictWire(resolved))
}

func toConflictWire(c *store.Conflict) conflictWire {
	w := conflictWire{
		ID:                c.ID,
		EntityType:        string(c.EntityType),
		EntityID:          c.EntityID,
		LocalVersion:      c.LocalVersion,
		ServerVersion:     c.ServerVersion,
		LocalVectorClock:  c.LocalVectorClock,
		ServerVectorClock: c.ServerVectorClock,
		Reason:            c.Reason,
		ResolvedPayload:   c.ResolvedPayload,
		CreatedAt:         c.CreatedAt.UnixMilli(),
	}
	if c.Strategy != nil {
		s := string(*c.Strategy)
		w.Strategy = &s
	}
	if c.ResolvedAt != nil {
		ms := c.ResolvedAt.UnixMilli()
		w.ResolvedAt = &ms
	}
	return w
}
