package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokmz/huddle/pkg/auth"
)

// staticVerifier 凭证即身份 ID
var staticVerifier = auth.VerifierFunc(func(_ context.Context, credential string) (*auth.Principal, error) {
	if credential == "bad" {
		return nil, auth.ErrInvalidCredential
	}
	return &auth.Principal{ID: credential, Name: "name-" + credential}, nil
})

func newTestHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	h, err := NewHub(staticVerifier, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h
}

// attachConn 注册一个没有底层 websocket 的连接，直接读取其发送队列
func attachConn(t *testing.T, h *Hub, principal auth.Principal) *Conn {
	t.Helper()
	c := newConn(nil, principal, h.config.SendQueueSize, h.log)
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NoError(t, h.attach(c))
	return c
}

func frame(t *testing.T, kind Kind, roomID string, payload any) *Frame {
	t.Helper()
	f := &Frame{Kind: kind, RoomID: roomID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		f.Payload = raw
	}
	return f
}

func mustJoin(t *testing.T, h *Hub, c *Conn, roomID string) {
	t.Helper()
	require.NoError(t, h.dispatcher.Handle(c, frame(t, KindJoinRoom, roomID, nil)))
}

func recv(t *testing.T, c *Conn) *Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return &ev
	case <-time.After(time.Second):
		t.Fatalf("connection %s received nothing", c.id)
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("connection %s unexpectedly received %s", c.id, data)
	default:
	}
}

// drain 丢弃队列中已有的事件
func drain(c *Conn) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}
