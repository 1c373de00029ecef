package huddle_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/huddle"
	"github.com/tokmz/huddle/pkg/auth"
	"github.com/tokmz/huddle/pkg/ws"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	srv    *httptest.Server
	hub    *ws.Hub
	issuer *auth.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	jwtCfg := auth.JWTConfig{Secret: testSecret, Issuer: "huddle-test"}
	verifier := auth.NewJWTVerifier(jwtCfg)

	hub, err := ws.NewHub(verifier)
	require.NoError(t, err)

	e := huddle.New(huddle.WithMode("test"))
	huddle.RegisterRoutes(e, hub, huddle.APIConfig{Verifier: verifier})

	srv := httptest.NewServer(e.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		srv.Close()
	})
	return &testEnv{srv: srv, hub: hub, issuer: auth.NewIssuer(jwtCfg, time.Hour)}
}

func (env *testEnv) token(t *testing.T, p auth.Principal) string {
	t.Helper()
	tok, err := env.issuer.Issue(p)
	require.NoError(t, err)
	return tok
}

func (env *testEnv) serviceToken(t *testing.T) string {
	return env.token(t, auth.Principal{ID: "scoring", Name: "scoring", Roles: []string{auth.RoleService}})
}

func (env *testEnv) dial(t *testing.T, p auth.Principal) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws?token=" + env.token(t, p)
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type apiResponse struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, env.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func readEvent(t *testing.T, c *websocket.Conn) *ws.Event {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev ws.Event
	require.NoError(t, c.ReadJSON(&ev))
	return &ev
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Data))
}

func TestAPIRequiresServiceRole(t *testing.T) {
	env := newTestEnv(t)
	student := env.token(t, auth.Principal{ID: "u1"})

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"no credential", "", http.StatusUnauthorized},
		{"garbage credential", "not-a-jwt", http.StatusUnauthorized},
		{"missing role", student, http.StatusForbidden},
		{"service", env.serviceToken(t), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := env.do(t, http.MethodGet, "/api/v1/stats", tt.token, nil)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestAPIAuthErrorHidesCause(t *testing.T) {
	env := newTestEnv(t)
	foreign, err := auth.NewIssuer(auth.JWTConfig{Secret: testSecret, Issuer: "someone-else"}, time.Hour).
		Issue(auth.Principal{ID: "scoring", Roles: []string{auth.RoleService}})
	require.NoError(t, err)

	status, resp := env.do(t, http.MethodGet, "/api/v1/stats", foreign, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, auth.ErrInvalidCredential.Message, resp.Message)
	assert.NotContains(t, resp.Message, "issuer")

	_, resp = env.do(t, http.MethodGet, "/api/v1/stats", "", nil)
	assert.Equal(t, auth.ErrNoCredential.Message, resp.Message)
}

func TestNotifyDeliversToEveryConnection(t *testing.T) {
	env := newTestEnv(t)
	u1 := auth.Principal{ID: "u1", Name: "Ann"}
	a := env.dial(t, u1)
	b := env.dial(t, u1)
	env.dial(t, auth.Principal{ID: "u2"})

	svc := env.serviceToken(t)
	require.Eventually(t, func() bool {
		return len(env.hub.Rooms().MembersOf(ws.PrincipalRoom("u1"))) == 2
	}, 2*time.Second, 20*time.Millisecond)

	status, resp := env.do(t, http.MethodGet, "/api/v1/principals/u1/connections", svc, nil)
	require.Equal(t, http.StatusOK, status)
	var pc huddle.PrincipalConnections
	require.NoError(t, json.Unmarshal(resp.Data, &pc))
	assert.Len(t, pc.Connections, 2)

	status, resp = env.do(t, http.MethodPost, "/api/v1/notify", svc, huddle.NotifyRequest{
		PrincipalID: "u1",
		Type:        "grade.posted",
		Data:        json.RawMessage(`{"score":92}`),
	})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var result huddle.DeliveryResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 2, result.Delivered)

	for _, c := range []*websocket.Conn{a, b} {
		ev := readEvent(t, c)
		assert.Equal(t, ws.KindPrincipalNotify, ev.Kind)
		assert.Equal(t, "scoring", ev.SenderID)
		var payload ws.NotifyPayload
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		assert.Equal(t, "grade.posted", payload.Type)
		assert.JSONEq(t, `{"score":92}`, string(payload.Data))
	}
}

func TestNotifyOfflinePrincipal(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.do(t, http.MethodPost, "/api/v1/notify", env.serviceToken(t), huddle.NotifyRequest{
		PrincipalID: "nobody",
		Type:        "grade.posted",
	})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"delivered":0}`, string(resp.Data))
}

func TestNotifyValidation(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(t, http.MethodPost, "/api/v1/notify", env.serviceToken(t), map[string]string{"type": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAnnounceAndStats(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, auth.Principal{ID: "u1"})
	b := env.dial(t, auth.Principal{ID: "u2"})
	svc := env.serviceToken(t)

	require.Eventually(t, func() bool {
		s := env.hub.Stats()
		return s.Connections == 2 && s.Rooms == 2
	}, 2*time.Second, 20*time.Millisecond)

	status, resp := env.do(t, http.MethodPost, "/api/v1/announce", svc, huddle.AnnounceRequest{
		Type: "maintenance",
		Data: json.RawMessage(`"in 5 minutes"`),
	})
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.JSONEq(t, `{"delivered":2}`, string(resp.Data))
	for _, c := range []*websocket.Conn{a, b} {
		assert.Equal(t, ws.KindAnnounce, readEvent(t, c).Kind)
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/stats", svc, nil)
	var stats ws.Stats
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, 2, stats.Connections)
	// 每个身份一个私有房间
	assert.Equal(t, 2, stats.Rooms)
}

func TestRoomMembers(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, auth.Principal{ID: "u1", Name: "Ann"})
	svc := env.serviceToken(t)

	require.NoError(t, a.WriteJSON(ws.Frame{Kind: ws.KindJoinRoom, RoomID: "algebra"}))

	var members huddle.RoomMembers
	require.Eventually(t, func() bool {
		_, resp := env.do(t, http.MethodGet, "/api/v1/rooms/algebra/members", svc, nil)
		return json.Unmarshal(resp.Data, &members) == nil && len(members.Members) == 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, "algebra", members.RoomID)
	assert.Equal(t, "u1", members.Members[0].PrincipalID)
	assert.Equal(t, "Ann", members.Members[0].Name)

	_, resp := env.do(t, http.MethodGet, "/api/v1/rooms/empty/members", svc, nil)
	assert.JSONEq(t, `{"roomId":"empty","members":[]}`, string(resp.Data))
}
