package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/taskmaster/syncserver/internal/store"
	"github.com/taskmaster/syncserver/internal/syncengine"
	"github.com/taskmaster/syncserver/internal/throttle"
)

// checkThrottle enforces scope's rate limit for callerKey, writing a 429
// with Retry-After and returning false if the caller must wait.
func (s *Server) checkThrottle(w http.ResponseWriter, r *http.Request, scope throttle.Scope, callerKey string) bool {
	if s.throttle == nil {
		return true
	}
	if s.throttle.Allow(scope, callerKey) {
		return true
	}
	retryAfter := s.throttle.RetryAfter(scope, callerKey)
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
	writeError(w, requestIDFrom(r.Context()), http.StatusTooManyRequests, codeTooManyRequests,
		"rate limit exceeded", s.now().UnixMilli())
	return false
}

// resolveDevice validates that deviceID belongs to principal's user,
// writing 400 INVALID_DEVICE and returning false if not.
func (s *Server) resolveDevice(w http.ResponseWriter, r *http.Request, userID, deviceID string) bool {
	if deviceID == "" {
		writeError(w, requestIDFrom(r.Context()), http.StatusBadRequest, codeInvalidDevice,
			"missing X-Device-Id header", s.now().UnixMilli())
		return false
	}
	_, err := s.store.GetDevice(r.Context(), userID, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, requestIDFrom(r.Context()), http.StatusBadRequest, codeInvalidDevice,
			"device does not belong to the authenticated user", s.now().UnixMilli())
		return false
	}
	if err != nil {
		s.logger.Error("httpapi: resolve device failed", "error", err)
		writeError(w, requestIDFrom(r.Context()), http.StatusInternalServerError, codeInternal,
			"internal error", s.now().UnixMilli())
		return false
	}
	return true
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r.Context())

	if !s.checkThrottle(w, r, throttle.ScopeSyncPush, principal.UserID) {
		return
	}

	deviceID := deviceIDFromHeader(r)
	if !s.resolveDevice(w, r, principal.UserID, deviceID) {
		return
	}

	var wire pushRequestWire
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, requestIDFrom(r.Context()), http.StatusBadRequest, codeInvalidBody,
			"malformed request body", s.now().UnixMilli())
		return
	}

	req := syncengine.PushRequest{
		DeviceID:    deviceID,
		VectorClock: wire.VectorClock,
		Timestamp:   time.UnixMilli(wire.Timestamp).UTC(),
		Tasks:       toChanges(wire.Changes.Tasks),
		Comments:    toChanges(wire.Changes.Comments),
	}

	result, err := s.engine.Push(r.Context(), principal.OrganizationID, principal.UserID, deviceID, req)
	if err != nil {
		s.logger.Error("httpapi: push failed", "error", err)
		writeError(w, requestIDFrom(r.Context()), http.StatusInternalServerError, codeInternal,
			"push failed", s.now().UnixMilli())
		return
	}

	writeJSON(w, http.StatusOK, pushResponseWire{
		Success:           true,
		Processed:         result.Processed,
		Conflicts:         nonNilConflicts(result.Conflicts),
		ServerVectorClock: result.ServerVectorClock,
		Timestamp:         result.Timestamp.UnixMilli(),
	})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r.Context())

	if !s.checkThrottle(w, r, throttle.ScopeSyncPull, principal.UserID) {
		return
	}

	deviceID := deviceIDFromHeader(r)
	if !s.resolveDevice(w, r, principal.UserID, deviceID) {
		return
	}

	since := time.UnixMilli(0).UTC()
	if v := r.URL.Query().Get("since"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, requestIDFrom(r.Context()), http.StatusBadRequest, codeInvalidBody,
				"since must be a millisecond timestamp", s.now().UnixMilli())
			return
		}
		since = time.UnixMilli(ms).UTC()
	}

	limit := syncengine.DefaultPullLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, requestIDFrom(r.Context()), http.StatusBadRequest, codeInvalidBody,
				"limit must be a positive integer", s.now().UnixMilli())
			return
		}
		limit = n
	}

	result, err := s.engine.Pull(r.Context(), principal.OrganizationID, principal.UserID, deviceID, since, limit)
	if err != nil {
		s.logger.Error("httpapi: pull failed", "error", err)
		writeError(w, requestIDFrom(r.Context()), http.StatusInternalServerError, codeInternal,
			"pull failed", s.now().UnixMilli())
		return
	}

	writeJSON(w, http.StatusOK, pullResponseWire{
		Tasks:             result.Tasks,
		Comments:          result.Comments,
		Tombstones:        result.Tombstones,
		ServerVectorClock: result.ServerVectorClock,
		HasMore:           result.HasMore,
		Timestamp:         result.Timestamp.UnixMilli(),
	})
}

func toChanges(wire []pushChangeWire) []syncengine.Change {
	out := make([]syncengine.Change, 0, len(wire))
	for _, c := range wire {
		out = append(out, syncengine.Change{ID: c.ID, Operation: c.Operation, Data: c.Data})
	}
	return out
}

func nonNilConflicts(c []syncengine.ConflictSummary) []syncengine.ConflictSummary {
	if c == nil {
		return []syncengine.ConflictSummary{}
	}
	return c
}
