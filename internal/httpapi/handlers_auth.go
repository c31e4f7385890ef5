package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleLogin issues a bearer token for the given userId/organizationId.
// Credential verification and device registration belong to the external
// auth system this server assumes (spec.md §1 Non-goals); this endpoint
// exists only to give the HTTP surface table's required path something to
// return, backed by auth.go's in-memory TokenStore.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var wire loginRequestWire
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil || wire.UserID == "" || wire.OrganizationID == "" {
		writeError(w, requestIDFrom(r.Context()), http.StatusBadRequest, codeInvalidBody,
			"userId and organizationId are required", s.now().UnixMilli())
		return
	}

	token := s.tokens.Issue(Principal{UserID: wire.UserID, OrganizationID: wire.OrganizationID})
	writeJSON(w, http.StatusOK, tokenResponseWire{Token: token})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var wire refreshRequestWire
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil || wire.Token == "" {
		writeError(w, requestIDFrom(r.Context()), http.StatusBadRequest, codeInvalidBody,
			"token is required", s.now().UnixMilli())
		return
	}

	newToken, err := s.tokens.Refresh(wire.Token)
	if err != nil {
		writeError(w, requestIDFrom(r.Context()), http.StatusUnauthorized, codeUnauthorized,
			"invalid token", s.now().UnixMilli())
		return
	}

	writeJSON(w, http.StatusOK, tokenResponseWire{Token: newToken})
}
