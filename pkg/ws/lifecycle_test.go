package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/huddle/pkg/auth"
)

func TestLifecycleBus(t *testing.T) {
	bus := NewLifecycleBus(2, 16)
	defer bus.Close()

	var mu sync.Mutex
	var got []LifecycleEvent
	bus.Subscribe(LifecycleRoomJoined, func(e LifecycleEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	bus.Publish(LifecycleEvent{Type: LifecycleRoomJoined, ConnID: "c1", RoomID: "math"})
	bus.Publish(LifecycleEvent{Type: LifecycleRoomLeft, ConnID: "c1", RoomID: "math"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "math", got[0].RoomID)
	assert.False(t, got[0].Time.IsZero())
}

func TestLifecycleBusClosed(t *testing.T) {
	bus := NewLifecycleBus(1, 1)
	bus.Close()
	bus.Close()
	bus.Publish(LifecycleEvent{Type: LifecycleConnOpened})
	assert.Zero(t, bus.Dropped())
}

func TestHubPublishesLifecycle(t *testing.T) {
	h := newTestHub(t)
	opened := make(chan LifecycleEvent, 1)
	closed := make(chan LifecycleEvent, 1)
	h.Subscribe(LifecycleConnOpened, func(e LifecycleEvent) { opened <- e })
	h.Subscribe(LifecycleConnClosed, func(e LifecycleEvent) { closed <- e })

	c := attachConn(t, h, auth.Principal{ID: "alice"})
	h.teardown(c, CloseNormal, "")

	for _, ch := range []chan LifecycleEvent{opened, closed} {
		select {
		case e := <-ch:
			assert.Equal(t, c.ID(), e.ConnID)
			assert.Equal(t, "alice", e.PrincipalID)
		case <-time.After(time.Second):
			t.Fatal("lifecycle event not published")
		}
	}
}
