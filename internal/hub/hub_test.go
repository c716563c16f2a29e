package hub_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"hichat/internal/hub"
)

// fakeConn records every payload written to it.
type fakeConn struct {
	mu         sync.Mutex
	events     []any
	failWrites bool
	closed     bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("write failed")
	}
	c.events = append(c.events, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.events...)
}

func TestRegisterReportsOnlineEdgeOnly(t *testing.T) {
	h := hub.New()
	first := &fakeConn{}
	second := &fakeConn{}

	assert.True(t, h.Register("alice", first), "first connection must be the online edge")
	assert.False(t, h.Register("alice", second), "second device must not re-fire presence")

	assert.False(t, h.Unregister("alice", first), "user still has a live connection")
	assert.True(t, h.Unregister("alice", second), "last connection gone is the offline edge")
}

func TestIsOnlineFollowsLiveConnections(t *testing.T) {
	h := hub.New()
	conn := &fakeConn{}

	assert.False(t, h.IsOnline("alice"))
	h.Register("alice", conn)
	assert.True(t, h.IsOnline("alice"))
	h.Unregister("alice", conn)
	assert.False(t, h.IsOnline("alice"))
}

func TestSendToUserReachesAllDevices(t *testing.T) {
	h := hub.New()
	phone := &fakeConn{}
	laptop := &fakeConn{}
	h.Register("alice", phone)
	h.Register("alice", laptop)

	h.SendToUser("alice", "ping")

	assert.Equal(t, []any{"ping"}, phone.received())
	assert.Equal(t, []any{"ping"}, laptop.received())
}

func TestSendToUserWithoutConnectionsIsSilent(t *testing.T) {
	h := hub.New()

	// must not panic or error; the event simply vanishes
	h.SendToUser("ghost", "ping")
}

func TestSendToRoomOnlyReachesSubscribers(t *testing.T) {
	h := hub.New()
	member := &fakeConn{}
	outsider := &fakeConn{}
	h.Register("alice", member)
	h.Register("bob", outsider)

	h.JoinRoom("chat-1", member)
	h.SendToRoom("chat-1", "hello")

	assert.Len(t, member.received(), 1)
	assert.Empty(t, outsider.received(), "connections that did not join must not receive room events")
}

func TestUnregisterLeavesRooms(t *testing.T) {
	h := hub.New()
	conn := &fakeConn{}
	h.Register("alice", conn)
	h.JoinRoom("chat-1", conn)

	h.Unregister("alice", conn)
	h.SendToRoom("chat-1", "hello")

	assert.Empty(t, conn.received())
}

func TestBroadcastAll(t *testing.T) {
	h := hub.New()
	a := &fakeConn{}
	b := &fakeConn{}
	h.Register("alice", a)
	h.Register("bob", b)

	h.BroadcastAll("presence")

	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)
}

func TestFailedWriteClosesConnection(t *testing.T) {
	h := hub.New()
	bad := &fakeConn{failWrites: true}
	good := &fakeConn{}
	h.Register("alice", bad)
	h.Register("alice", good)

	h.SendToUser("alice", "ping")

	bad.mu.Lock()
	closed := bad.closed
	bad.mu.Unlock()
	assert.True(t, closed, "a failing connection gets closed")
	assert.Len(t, good.received(), 1, "remaining connections still receive")
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	h := hub.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := &fakeConn{}
			h.Register("alice", conn)
			h.SendToUser("alice", "ping")
			h.Unregister("alice", conn)
		}()
	}
	wg.Wait()

	assert.False(t, h.IsOnline("alice"))
}
