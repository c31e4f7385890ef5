package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/syncserver/internal/clock"
	"github.com/taskmaster/syncserver/internal/serverconfig"
	"github.com/taskmaster/syncserver/internal/store"
	"github.com/taskmaster/syncserver/internal/syncengine"
	"github.com/taskmaster/syncserver/internal/throttle"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(&testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testWriter struct{ t *testing.T }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestServer(t *testing.T) (*mux.Router, *TokenStore, string, string, string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, ":memory:", testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	orgID, userID, deviceID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	now := time.Now()
	require.NoError(t, st.InsertOrganization(ctx, &store.Organization{ID: orgID, Slug: "acme", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, st.InsertUser(ctx, &store.User{ID: userID, OrganizationID: orgID, Email: "a@example.com", Role: store.RoleMember, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, st.InsertDevice(ctx, &store.Device{ID: deviceID, UserID: userID, DeviceFingerprint: "fp-1", IsActive: true, VectorClock: clock.New(), CreatedAt: now, UpdatedAt: now}))

	engine := syncengine.New(st, testLogger(t), 90*24*time.Hour)
	tokens := NewTokenStore()
	limiter := throttle.New(serverconfig.DefaultConfig().Throttle, testLogger(t))
	srv := New(engine, st, tokens, tokens, limiter, testLogger(t))

	r := mux.NewRouter()
	srv.Routes(r)
	return r, tokens, orgID, userID, deviceID
}

func doRequest(r *mux.Router, method, path, token, deviceID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if deviceID != "" {
		req.Header.Set("X-Device-Id", deviceID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLogin_IssuesToken(t *testing.T) {
	r, _, orgID, userID, _ := newTestServer(t)

	rec := doRequest(r, http.MethodPost, "/api/auth/login/", "", "", loginRequestWire{UserID: userID, OrganizationID: orgID})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tokenResponseWire
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
}

func TestPush_WithoutAuthReturns401(t *testing.T) {
	r, _, _, _, deviceID := newTestServer(t)

	rec := doRequest(r, http.MethodPost, "/api/sync/push/", "", deviceID, pushRequestWire{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPush_WithUnknownDeviceReturns400(t *testing.T) {
	r, tokens, orgID, userID, _ := newTestServer(t)
	token := tokens.Issue(Principal{UserID: userID, OrganizationID: orgID})

	rec := doRequest(r, http.MethodPost, "/api/sync/push/", token, uuid.NewString(), pushRequestWire{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponseWire
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, codeInvalidDevice, resp.Code)
}

func TestPushThenPull_RejectsUnregisteredDeviceAndExcludesOwnChanges(t *testing.T) {
	r, tokens, orgID, userID, deviceID := newTestServer(t)
	token := tokens.Issue(Principal{UserID: userID, OrganizationID: orgID})

	taskID := uuid.NewString()
	pushBody := pushRequestWire{
		DeviceID:    deviceID,
		VectorClock: clock.Clock{},
		Timestamp:   time.Now().UnixMilli(),
		Changes: pushChangesWire{
			Tasks: []pushChangeWire{{
				ID:        taskID,
				Operation: syncengine.OpCreate,
				Data: map[string]any{
					"title":       "Ship the release",
					"description": "",
					"status":      "todo",
					"priority":    "high",
					"tags":        []any{},
					"vectorClock": map[string]any{},
				},
			}},
		},
	}

	rec := doRequest(r, http.MethodPost, "/api/sync/push/", token, deviceID, pushBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var pushResp pushResponseWire
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pushResp))
	require.True(t, pushResp.Success)
	require.Equal(t, 1, pushResp.Processed)
	require.Empty(t, pushResp.Conflicts)

	unregisteredDevice := uuid.NewString()
	pullRec := doRequest(r, http.MethodGet, "/api/sync/pull/?since=0", token, unregisteredDevice, nil)
	require.Equal(t, http.StatusBadRequest, pullRec.Code) // device not registered to this user

	pullRec2 := doRequest(r, http.MethodGet, "/api/sync/pull/?since=0", token, deviceID, nil)
	require.Equal(t, http.StatusOK, pullRec2.Code)

	var pullResp pullResponseWire
	require.NoError(t, json.NewDecoder(pullRec2.Body).Decode(&pullResp))
	require.Empty(t, pullResp.Tasks) // pulling from the same device that authored the push sees nothing new
}

func TestResolveConflict_UnknownIDReturns404(t *testing.T) {
	r, tokens, orgID, userID, _ := newTestServer(t)
	token := tokens.Issue(Principal{UserID: userID, OrganizationID: orgID})

	rec := doRequest(r, http.MethodPost, "/api/sync/conflicts/"+uuid.NewString()+"/resolve/", token, "", resolveRequestWire{Resolution: "remote"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveConflict_InvalidChoiceReturns400(t *testing.T) {
	r, tokens, orgID, userID, _ := newTestServer(t)
	token := tokens.Issue(Principal{UserID: userID, OrganizationID: orgID})

	rec := doRequest(r, http.MethodPost, "/api/sync/conflicts/"+uuid.NewString()+"/resolve/", token, "", resolveRequestWire{Resolution: "bogus"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
