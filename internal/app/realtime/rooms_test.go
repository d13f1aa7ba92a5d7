package realtime

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubscriber collects everything enqueued to it.
type fakeSubscriber struct {
	connID string
	userID string

	mu     sync.Mutex
	events [][]byte
}

func newFakeSubscriber(connID, userID string) *fakeSubscriber {
	return &fakeSubscriber{connID: connID, userID: userID}
}

func (s *fakeSubscriber) ConnID() string { return s.connID }
func (s *fakeSubscriber) UserID() string { return s.userID }

func (s *fakeSubscriber) Enqueue(event []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *fakeSubscriber) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.events...)
}

func TestRoomRouterBroadcastReachesAllSubscribers(t *testing.T) {
	rr := NewRoomRouter(zerolog.Nop())

	a := newFakeSubscriber("conn-a", "user-a")
	b := newFakeSubscriber("conn-b", "user-b")
	rr.Join(a, "conv-1")
	rr.Join(b, "conv-1")

	rr.Broadcast("conv-1", []byte("hello"))

	require.Len(t, a.received(), 1)
	require.Len(t, b.received(), 1)
	assert.Equal(t, "hello", string(a.received()[0]))
}

func TestRoomRouterDoubleJoinDeliversOnce(t *testing.T) {
	rr := NewRoomRouter(zerolog.Nop())

	a := newFakeSubscriber("conn-a", "user-a")
	rr.Join(a, "conv-1")
	rr.Join(a, "conv-1")

	assert.Equal(t, 1, rr.SubscriberCount("conv-1"))

	rr.Broadcast("conv-1", []byte("once"))
	assert.Len(t, a.received(), 1)
}

func TestRoomRouterIsolatesConversations(t *testing.T) {
	rr := NewRoomRouter(zerolog.Nop())

	a := newFakeSubscriber("conn-a", "user-a")
	b := newFakeSubscriber("conn-b", "user-b")
	rr.Join(a, "conv-1")
	rr.Join(b, "conv-2")

	rr.Broadcast("conv-1", []byte("for conv-1 only"))

	assert.Len(t, a.received(), 1)
	assert.Empty(t, b.received())
}

func TestRoomRouterLeaveIsIdempotent(t *testing.T) {
	rr := NewRoomRouter(zerolog.Nop())

	a := newFakeSubscriber("conn-a", "user-a")
	rr.Join(a, "conv-1")

	rr.Leave(a, "conv-1")
	rr.Leave(a, "conv-1")
	rr.Leave(a, "conv-never-joined")

	assert.False(t, rr.IsSubscribed("conn-a", "conv-1"))
	rr.Broadcast("conv-1", []byte("gone"))
	assert.Empty(t, a.received())
}

func TestRoomRouterDropConnectionRemovesAllSubscriptions(t *testing.T) {
	rr := NewRoomRouter(zerolog.Nop())

	a := newFakeSubscriber("conn-a", "user-a")
	rr.Join(a, "conv-1")
	rr.Join(a, "conv-2")

	rr.DropConnection("conn-a")

	assert.False(t, rr.IsSubscribed("conn-a", "conv-1"))
	assert.False(t, rr.IsSubscribed("conn-a", "conv-2"))
	assert.Equal(t, 0, rr.SubscriberCount("conv-1"))
	assert.Equal(t, 0, rr.SubscriberCount("conv-2"))
}

func TestRoomRouterBroadcastExceptSkipsOriginator(t *testing.T) {
	rr := NewRoomRouter(zerolog.Nop())

	a := newFakeSubscriber("conn-a", "user-a")
	b := newFakeSubscriber("conn-b", "user-b")
	rr.Join(a, "conv-1")
	rr.Join(b, "conv-1")

	rr.BroadcastExcept("conv-1", "conn-a", []byte("typing"))

	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)
}
