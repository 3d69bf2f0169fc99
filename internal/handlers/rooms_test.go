package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chessonline/internal/auth"
	"chessonline/internal/matchmaking"
	"chessonline/internal/rooms"
)

func TestMain(m *testing.M) {
	if err := auth.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*httptest.Server, *rooms.MemoryStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := rooms.NewMemoryStore()
	manager := rooms.NewManager(store, store, rooms.NewCodeGenerator(store), logger)
	queue := matchmaking.NewQueue(logger)
	coordinator := matchmaking.NewCoordinator(queue, manager, logger)
	api := &RoomsAPI{Manager: manager, Match: coordinator, Log: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /rooms/create-private", CreatePrivateRoomHandler(api))
	mux.HandleFunc("POST /rooms/quick-join", QuickJoinHandler(api))
	mux.HandleFunc("POST /rooms/find-match", FindMatchHandler(api))
	mux.HandleFunc("POST /rooms/cancel-matchmaking", CancelMatchmakingHandler(api))
	mux.HandleFunc("GET /rooms/matchmaking-status", MatchmakingStatusHandler(api))
	mux.HandleFunc("POST /rooms/join/{code}", JoinByCodeHandler(api))
	mux.HandleFunc("POST /rooms/{id}/leave", LeaveRoomHandler(api))
	mux.HandleFunc("POST /rooms/{id}/finish", FinishRoomHandler(api))
	mux.HandleFunc("GET /rooms/{id}", RoomInfoHandler(api))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

// doAs performs an authenticated request with userID's session cookie.
func doAs(t *testing.T, srv *httptest.Server, userID uuid.UUID, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)

	token, err := auth.CreateJWT(userID.String())
	require.NoError(t, err)
	req.Header.Set("Cookie", "auth_token="+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) apiResponse {
	t.Helper()
	defer resp.Body.Close()
	var env apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func dataMap(t *testing.T, env apiResponse) map[string]any {
	t.Helper()
	m, ok := env.Data.(map[string]any)
	require.True(t, ok, "expected object data, got %T", env.Data)
	return m
}

func TestCreatePrivateRoomEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doAs(t, srv, uuid.New(), http.MethodPost, "/rooms/create-private",
		map[string]any{"time_control": 30, "room_type": "private"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)
	data := dataMap(t, env)
	assert.Len(t, data["share_code"], rooms.CodeLength)
	assert.Equal(t, true, data["waiting_for_friend"])

	room, ok := data["room"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "queued", room["status"])
	assert.Equal(t, float64(30), room["time_control"])
}

func TestJoinByCodeEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	userA := uuid.New()
	userB := uuid.New()

	resp := doAs(t, srv, userA, http.MethodPost, "/rooms/create-private", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	code := dataMap(t, decodeEnvelope(t, resp))["share_code"].(string)

	resp = doAs(t, srv, userB, http.MethodPost, "/rooms/join/"+code, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataMap(t, decodeEnvelope(t, resp))
	assert.Equal(t, true, data["game_started"])

	// Full room rejects a third player.
	resp = doAs(t, srv, uuid.New(), http.MethodPost, "/rooms/join/"+code, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Malformed and unknown codes.
	resp = doAs(t, srv, uuid.New(), http.MethodPost, "/rooms/join/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doAs(t, srv, uuid.New(), http.MethodPost, "/rooms/join/000000", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestQuickJoinEndpointPairsPlayers(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doAs(t, srv, uuid.New(), http.MethodPost, "/rooms/quick-join", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := dataMap(t, decodeEnvelope(t, resp))
	room := first["room"].(map[string]any)
	assert.Equal(t, "queued", room["status"])

	resp = doAs(t, srv, uuid.New(), http.MethodPost, "/rooms/quick-join", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := dataMap(t, decodeEnvelope(t, resp))
	room2 := second["room"].(map[string]any)
	assert.Equal(t, "in_progress", room2["status"])
	assert.Equal(t, room["id"], room2["id"])
}

func TestMatchmakingEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	userA := uuid.New()
	userB := uuid.New()

	resp := doAs(t, srv, userA, http.MethodPost, "/rooms/find-match", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataMap(t, decodeEnvelope(t, resp))
	assert.Equal(t, "searching", data["status"])
	assert.Equal(t, true, data["can_cancel"])

	resp = doAs(t, srv, userA, http.MethodGet, "/rooms/matchmaking-status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := dataMap(t, decodeEnvelope(t, resp))
	assert.Equal(t, float64(1), status["total_players"])

	// Re-entry while queued is rejected.
	resp = doAs(t, srv, userA, http.MethodPost, "/rooms/find-match", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = doAs(t, srv, userB, http.MethodPost, "/rooms/find-match", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	matched := dataMap(t, decodeEnvelope(t, resp))
	assert.Equal(t, "matched", matched["status"])
	assert.NotNil(t, matched["room"])

	resp = doAs(t, srv, userA, http.MethodPost, "/rooms/cancel-matchmaking", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelMatchmakingEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	userID := uuid.New()

	resp := doAs(t, srv, userID, http.MethodPost, "/rooms/find-match", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doAs(t, srv, userID, http.MethodPost, "/rooms/cancel-matchmaking", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doAs(t, srv, userID, http.MethodPost, "/rooms/cancel-matchmaking", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestLeaveFinishAndInfoEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	userA := uuid.New()
	userB := uuid.New()

	resp := doAs(t, srv, userA, http.MethodPost, "/rooms/create-private", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := dataMap(t, decodeEnvelope(t, resp))
	roomID := created["room"].(map[string]any)["id"].(string)
	code := created["share_code"].(string)

	resp = doAs(t, srv, userB, http.MethodPost, "/rooms/join/"+code, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doAs(t, srv, userA, http.MethodGet, "/rooms/"+roomID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := dataMap(t, decodeEnvelope(t, resp))
	assert.Equal(t, "in_progress", info["status"])

	resp = doAs(t, srv, userA, http.MethodPost, "/rooms/"+roomID+"/finish", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The room is terminal now; leave is rejected rather than
	// resurrecting it.
	resp = doAs(t, srv, userA, http.MethodPost, "/rooms/"+roomID+"/leave", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = doAs(t, srv, userA, http.MethodGet, "/rooms/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doAs(t, srv, userA, http.MethodGet, "/rooms/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestInvalidRoomTypeRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doAs(t, srv, uuid.New(), http.MethodPost, "/rooms/create-private",
		map[string]any{"room_type": "ranked"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestEndpointsRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Post(srv.URL+"/rooms/quick-join", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/rooms/quick-join", nil)
	require.NoError(t, err)
	req.Header.Set("Cookie", "auth_token=not-a-jwt")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}
