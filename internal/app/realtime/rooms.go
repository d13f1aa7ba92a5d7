package realtime

import (
	"sync"

	"github.com/rs/zerolog"
)

// Subscriber is a connection as the room router sees it: an addressable
// outbound queue. The router references subscribers but never owns them; the
// gateway controls their lifecycle.
type Subscriber interface {
	ConnID() string
	UserID() string

	// Enqueue hands an encoded event to the connection's send queue.
	// Best-effort: a full or closed queue drops the event (the live channel
	// is at-most-once; the durable store is the source of truth).
	Enqueue(event []byte)
}

// RoomRouter maps conversation IDs to the set of connections subscribed to
// their event stream. Membership is connection-scoped and evaporates on
// disconnect; there is no queuing for absent participants.
//
// The router does not authorize joins. The gateway verifies conversation
// participation before admitting a subscription.
type RoomRouter struct {
	mu sync.RWMutex

	// rooms: conversation ID → conn ID → subscriber.
	rooms map[string]map[string]Subscriber

	// byConn: conn ID → subscribed conversation IDs, for disconnect cleanup.
	byConn map[string]map[string]struct{}

	logger zerolog.Logger
}

// NewRoomRouter returns an empty router.
func NewRoomRouter(logger zerolog.Logger) *RoomRouter {
	return &RoomRouter{
		rooms:  make(map[string]map[string]Subscriber),
		byConn: make(map[string]map[string]struct{}),
		logger: logger.With().Str("component", "RoomRouter").Logger(),
	}
}

// Join subscribes the connection to the conversation's event stream.
// Idempotent: a double join leaves exactly one subscription.
func (rr *RoomRouter) Join(sub Subscriber, conversationID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	room, ok := rr.rooms[conversationID]
	if !ok {
		room = make(map[string]Subscriber)
		rr.rooms[conversationID] = room
	}
	room[sub.ConnID()] = sub

	convs, ok := rr.byConn[sub.ConnID()]
	if !ok {
		convs = make(map[string]struct{})
		rr.byConn[sub.ConnID()] = convs
	}
	convs[conversationID] = struct{}{}
}

// Leave removes the subscription. A leave for a conversation the connection
// never joined is a no-op, not an error.
func (rr *RoomRouter) Leave(sub Subscriber, conversationID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.leaveLocked(sub.ConnID(), conversationID)
}

func (rr *RoomRouter) leaveLocked(connID, conversationID string) {
	if room, ok := rr.rooms[conversationID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(rr.rooms, conversationID)
		}
	}
	if convs, ok := rr.byConn[connID]; ok {
		delete(convs, conversationID)
		if len(convs) == 0 {
			delete(rr.byConn, connID)
		}
	}
}

// DropConnection removes every subscription held by the connection. Called by
// the gateway on disconnect; no explicit leaves are needed.
func (rr *RoomRouter) DropConnection(connID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	for conversationID := range rr.byConn[connID] {
		rr.leaveLocked(connID, conversationID)
	}
}

// IsSubscribed reports whether the connection currently subscribes to the
// conversation.
func (rr *RoomRouter) IsSubscribed(connID, conversationID string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	_, ok := rr.byConn[connID][conversationID]
	return ok
}

// Broadcast delivers the encoded event to every connection currently
// subscribed to the conversation. At-most-once per connection.
func (rr *RoomRouter) Broadcast(conversationID string, event []byte) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	for _, sub := range rr.rooms[conversationID] {
		sub.Enqueue(event)
	}
}

// BroadcastExcept behaves like Broadcast but skips one connection, used for
// relays the originator does not need to hear back (typing, read receipts).
func (rr *RoomRouter) BroadcastExcept(conversationID, exceptConnID string, event []byte) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	for connID, sub := range rr.rooms[conversationID] {
		if connID == exceptConnID {
			continue
		}
		sub.Enqueue(event)
	}
}

// SubscriberCount returns how many connections subscribe to the conversation.
func (rr *RoomRouter) SubscriberCount(conversationID string) int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return len(rr.rooms[conversationID])
}
