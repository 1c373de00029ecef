package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/huddle/pkg/auth"
)

func startServer(t *testing.T, h *Hub) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	c, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, f any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(f))
}

func read(t *testing.T, c *websocket.Conn) *Event {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, c.ReadJSON(&ev))
	return &ev
}

func readClose(t *testing.T, c *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := c.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.True(t, errors.As(err, &ce), "expected close error, got %v", err)
		return ce
	}
}

func TestHandshakeRejection(t *testing.T) {
	slow := auth.VerifierFunc(func(ctx context.Context, credential string) (*auth.Principal, error) {
		if credential == "slow" {
			time.Sleep(500 * time.Millisecond)
		}
		return staticVerifier(ctx, credential)
	})
	h, err := NewHub(slow, WithHandshakeTimeout(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })
	url := startServer(t, h)

	tests := []struct {
		name   string
		target string
		token  string
		reason string
	}{
		{"no credential", url, "", "Unauthenticated: no credential supplied"},
		{"invalid credential", url, "bad", "Unauthenticated: invalid credential"},
		{"timeout", url, "slow", "Unauthenticated: handshake timed out"},
		{"invalid query credential", url + "?token=bad", "", "Unauthenticated: invalid credential"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, tt.target, tt.token)
			ce := readClose(t, c)
			assert.Equal(t, CloseUnauthenticated, ce.Code)
			assert.Equal(t, tt.reason, ce.Text)
		})
	}

	// 被拒绝的握手从未进入注册表
	assert.Equal(t, 0, h.registry.Count())
	assert.Empty(t, h.registry.ConnectionsOf("bad"))
	assert.Empty(t, h.registry.ConnectionsOf("slow"))
}

func TestEndToEnd(t *testing.T) {
	h := newTestHub(t)
	url := startServer(t, h)

	alice := dial(t, url, "alice")
	bob := dial(t, url+"?token=bob", "")
	require.Eventually(t, func() bool { return h.registry.Count() == 2 }, time.Second, 10*time.Millisecond)

	send(t, alice, Frame{Kind: KindJoinRoom, RoomID: "math"})
	require.Eventually(t, func() bool { return len(h.rooms.MembersOf("math")) == 1 }, time.Second, 10*time.Millisecond)
	send(t, bob, Frame{Kind: KindJoinRoom, RoomID: "math"})

	ev := read(t, alice)
	assert.Equal(t, KindPresenceJoined, ev.Kind)
	assert.Equal(t, "bob", ev.SenderID)

	send(t, bob, map[string]any{"kind": "room.message", "roomId": "math", "payload": map[string]string{"text": "hello"}})
	for _, c := range []*websocket.Conn{alice, bob} {
		ev := read(t, c)
		assert.Equal(t, KindRoomMessage, ev.Kind)
		assert.Equal(t, "bob", ev.SenderID)
		assert.Equal(t, "name-bob", ev.SenderName)
		assert.False(t, ev.Timestamp.IsZero())
	}

	// 非成员房间返回本地错误帧，连接保持
	send(t, alice, map[string]any{"kind": "room.message", "roomId": "physics", "payload": map[string]string{"text": "x"}})
	ev = read(t, alice)
	assert.Equal(t, KindError, ev.Kind)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	assert.Equal(t, 4403, p.Code)
	assert.Equal(t, KindRoomMessage, p.RefKind)
	assert.Equal(t, "physics", p.RoomID)

	// bob 断开后 alice 收到离开通知，bob 不在任何房间
	require.NoError(t, bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	ev = read(t, alice)
	assert.Equal(t, KindPresenceLeft, ev.Kind)
	assert.Equal(t, "bob", ev.SenderID)
	require.Eventually(t, func() bool { return len(h.registry.ConnectionsOf("bob")) == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, len(h.rooms.MembersOf("math")))
}

func TestInvalidFramesCloseConnection(t *testing.T) {
	h := newTestHub(t, WithMaxInvalidFrames(2))
	url := startServer(t, h)
	c := dial(t, url, "alice")

	for i := 0; i < 2; i++ {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("{not json")))
		ev := read(t, c)
		assert.Equal(t, KindError, ev.Kind)
	}
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ce := readClose(t, c)
	assert.Equal(t, CloseInvalidFrames, ce.Code)
	require.Eventually(t, func() bool { return h.registry.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestFrameTooLarge(t *testing.T) {
	h := newTestHub(t, WithMessageSizeLimit(128))
	url := startServer(t, h)
	c := dial(t, url, "alice")

	big := strings.Repeat("x", 512)
	send(t, c, map[string]any{"kind": "room.message", "roomId": "a", "payload": map[string]string{"text": big}})
	ce := readClose(t, c)
	assert.Equal(t, CloseFrameTooLarge, ce.Code)
}

func TestConnectionLimit(t *testing.T) {
	h := newTestHub(t, WithMaxConnections(1))
	url := startServer(t, h)
	dial(t, url, "alice")
	require.Eventually(t, func() bool { return h.registry.Count() == 1 }, time.Second, 10*time.Millisecond)

	c := dial(t, url, "bob")
	ce := readClose(t, c)
	assert.Equal(t, CloseTryAgainLater, ce.Code)
	assert.Empty(t, h.registry.ConnectionsOf("bob"))
}

func TestShutdownClosesConnections(t *testing.T) {
	h, err := NewHub(staticVerifier)
	require.NoError(t, err)
	url := startServer(t, h)
	c := dial(t, url, "alice")
	require.Eventually(t, func() bool { return h.registry.Count() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	ce := readClose(t, c)
	assert.Equal(t, CloseGoingAway, ce.Code)
	assert.Equal(t, 0, h.registry.Count())
}

func TestHandshakeInFlightDuringShutdown(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := auth.VerifierFunc(func(ctx context.Context, credential string) (*auth.Principal, error) {
		close(entered)
		<-release
		return staticVerifier(ctx, credential)
	})
	h, err := NewHub(blocking)
	require.NoError(t, err)
	url := startServer(t, h)

	type dialResult struct {
		c   *websocket.Conn
		err error
	}
	dialed := make(chan dialResult, 1)
	go func() {
		header := http.Header{}
		header.Set("Authorization", "Bearer alice")
		c, _, err := websocket.DefaultDialer.Dial(url, header)
		dialed <- dialResult{c, err}
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handshake never reached the verifier")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
	close(release)

	res := <-dialed
	require.NoError(t, res.err)
	t.Cleanup(func() { _ = res.c.Close() })

	ce := readClose(t, res.c)
	assert.Equal(t, CloseGoingAway, ce.Code)
	assert.Equal(t, 0, h.registry.Count())
	assert.Empty(t, h.registry.ConnectionsOf("alice"))
	assert.Empty(t, h.rooms.MembersOf(PrincipalRoom("alice")))
}

func TestHeartbeatClosesIdleConnection(t *testing.T) {
	h := newTestHub(t, WithHeartbeat(50*time.Millisecond, 150*time.Millisecond))
	url := startServer(t, h)

	// 客户端不读，pong 永远不会发出
	dial(t, url, "alice")
	require.Eventually(t, func() bool { return h.registry.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return h.registry.Count() == 0 }, 2*time.Second, 20*time.Millisecond)
	assert.Empty(t, h.rooms.MembersOf(PrincipalRoom("alice")))
}

func TestHeartbeatKeepsResponsiveConnection(t *testing.T) {
	h := newTestHub(t, WithHeartbeat(50*time.Millisecond, 150*time.Millisecond))
	url := startServer(t, h)
	c := dial(t, url, "alice")

	// 读协程自动回复 ping
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 1, h.registry.Count())
	assert.Len(t, h.rooms.MembersOf(PrincipalRoom("alice")), 1)
}

func TestNewHubValidation(t *testing.T) {
	_, err := NewHub(nil)
	assert.Error(t, err)

	_, err = NewHub(staticVerifier, WithHeartbeat(time.Minute, time.Second))
	assert.Error(t, err)
}
