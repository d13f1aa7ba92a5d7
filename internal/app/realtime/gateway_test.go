package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/app/store"
	"pairchat/internal/pkg/errs"
)

type gatewayFixture struct {
	gateway *Gateway
	rooms   *RoomRouter
	ps      *fakePipelineStore
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	ps := newFakePipelineStore()
	registry := NewConnectionRegistry()
	rooms := NewRoomRouter(zerolog.Nop())
	pipeline := NewMessagePipeline(ps, rooms, zerolog.Nop())
	gateway := NewGateway(registry, rooms, pipeline, ps, zerolog.Nop())

	presence := NewPresenceTracker(registry, newFakePresenceStore(), gateway, zerolog.Nop())
	gateway.SetPresence(presence)
	t.Cleanup(presence.Stop)

	return &gatewayFixture{gateway: gateway, rooms: rooms, ps: ps}
}

// addClient registers a connectionless client directly, bypassing the
// websocket upgrade, so dispatch paths can be exercised in isolation.
func (f *gatewayFixture) addClient(identity Identity, connID string) *Client {
	client := NewClient(f.gateway, nil, identity, connID)

	f.gateway.mu.Lock()
	f.gateway.clients[connID] = client
	f.gateway.mu.Unlock()

	f.gateway.presence.ConnectionOpened(context.Background(), identity.ID, connID)
	return client
}

func drainEvents(t *testing.T, c *Client) []Envelope {
	t.Helper()

	var out []Envelope
	for {
		select {
		case raw := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func eventsOfType(envs []Envelope, eventType string) []Envelope {
	var out []Envelope
	for _, env := range envs {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func frame(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	raw, err := EncodeEvent(eventType, payload)
	require.NoError(t, err)
	return raw
}

func decodePayload[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Payload, &out))
	return out
}

func TestGatewayDispatchRejectsInvalidJSON(t *testing.T) {
	f := newGatewayFixture(t)
	client := f.addClient(alice, "conn-a")
	drainEvents(t, client)

	f.gateway.dispatch(client, []byte("{not json"))

	errored := eventsOfType(drainEvents(t, client), EventError)
	require.Len(t, errored, 1)
	payload := decodePayload[ErrorPayload](t, errored[0])
	assert.Equal(t, errs.ErrInvalidJSONFormat, payload.Code)
}

func TestGatewayDispatchRejectsUnknownEventType(t *testing.T) {
	f := newGatewayFixture(t)
	client := f.addClient(alice, "conn-a")
	drainEvents(t, client)

	f.gateway.dispatch(client, frame(t, "teleport", map[string]string{}))

	errored := eventsOfType(drainEvents(t, client), EventError)
	require.Len(t, errored, 1)
	assert.Equal(t, errs.ErrInvalidParams, decodePayload[ErrorPayload](t, errored[0]).Code)
}

func TestGatewayJoinRequiresParticipation(t *testing.T) {
	f := newGatewayFixture(t)
	f.ps.addConversation("conv-1", bob.ID, "user-carol")
	client := f.addClient(alice, "conn-a")
	drainEvents(t, client)

	f.gateway.dispatch(client, frame(t, EventJoinConversation, ConversationRef{ConversationID: "conv-1"}))

	assert.False(t, f.rooms.IsSubscribed("conn-a", "conv-1"))
	errored := eventsOfType(drainEvents(t, client), EventError)
	require.Len(t, errored, 1)
	assert.Equal(t, errs.ErrNotParticipant, decodePayload[ErrorPayload](t, errored[0]).Code)
}

func TestGatewayJoinUnknownConversation(t *testing.T) {
	f := newGatewayFixture(t)
	client := f.addClient(alice, "conn-a")
	drainEvents(t, client)

	f.gateway.dispatch(client, frame(t, EventJoinConversation, ConversationRef{ConversationID: "conv-missing"}))

	errored := eventsOfType(drainEvents(t, client), EventError)
	require.Len(t, errored, 1)
	assert.Equal(t, errs.ErrConversationNotFound, decodePayload[ErrorPayload](t, errored[0]).Code)
}

func TestGatewayJoinAdmitsParticipant(t *testing.T) {
	f := newGatewayFixture(t)
	f.ps.addConversation("conv-1", alice.ID, bob.ID)
	client := f.addClient(alice, "conn-a")
	drainEvents(t, client)

	f.gateway.dispatch(client, frame(t, EventJoinConversation, ConversationRef{ConversationID: "conv-1"}))

	assert.True(t, f.rooms.IsSubscribed("conn-a", "conv-1"))
	assert.Empty(t, eventsOfType(drainEvents(t, client), EventError))
}

func TestGatewaySendMessageDeliversAndAcks(t *testing.T) {
	f := newGatewayFixture(t)
	f.ps.addConversation("conv-1", alice.ID, bob.ID)

	sender := f.addClient(alice, "conn-a")
	peer := f.addClient(bob, "conn-b")

	f.gateway.dispatch(sender, frame(t, EventJoinConversation, ConversationRef{ConversationID: "conv-1"}))
	f.gateway.dispatch(peer, frame(t, EventJoinConversation, ConversationRef{ConversationID: "conv-1"}))
	drainEvents(t, sender)
	drainEvents(t, peer)

	f.gateway.dispatch(sender, frame(t, EventSendMessage, SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "hello bob",
		TempID:         "tmp-42",
	}))

	senderEvents := drainEvents(t, sender)

	delivered := eventsOfType(senderEvents, EventNewMessage)
	require.Len(t, delivered, 1, "sender must receive the fan-out copy too")
	msg := decodePayload[NewMessagePayload](t, delivered[0])
	assert.Equal(t, "hello bob", msg.Message.Content)

	acks := eventsOfType(senderEvents, EventMessageAck)
	require.Len(t, acks, 1)
	ack := decodePayload[MessageAckPayload](t, acks[0])
	assert.Equal(t, "tmp-42", ack.TempID)
	assert.Equal(t, msg.Message.ID, ack.Message.ID)

	peerDelivered := eventsOfType(drainEvents(t, peer), EventNewMessage)
	require.Len(t, peerDelivered, 1)
	assert.Equal(t, msg.Message.ID, decodePayload[NewMessagePayload](t, peerDelivered[0]).Message.ID)
}

func TestGatewaySendMessageWithoutTempIDStillAcks(t *testing.T) {
	f := newGatewayFixture(t)
	f.ps.addConversation("conv-1", alice.ID, bob.ID)

	sender := f.addClient(alice, "conn-a")
	f.gateway.dispatch(sender, frame(t, EventJoinConversation, ConversationRef{ConversationID: "conv-1"}))
	drainEvents(t, sender)

	f.gateway.dispatch(sender, frame(t, EventSendMessage, SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "no correlation",
	}))

	events := drainEvents(t, sender)
	delivered := eventsOfType(events, EventNewMessage)
	require.Len(t, delivered, 1)

	acks := eventsOfType(events, EventMessageAck)
	require.Len(t, acks, 1)
	ack := decodePayload[MessageAckPayload](t, acks[0])
	assert.Empty(t, ack.TempID)
	assert.Equal(t, decodePayload[NewMessagePayload](t, delivered[0]).Message.ID, ack.Message.ID)
}

func TestGatewaySendFailureEmitsMessageError(t *testing.T) {
	f := newGatewayFixture(t)
	f.ps.addConversation("conv-1", alice.ID, bob.ID)
	sender := f.addClient(alice, "conn-a")
	drainEvents(t, sender)

	f.gateway.dispatch(sender, frame(t, EventSendMessage, SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "   ",
		TempID:         "tmp-9",
	}))

	failures := eventsOfType(drainEvents(t, sender), EventMessageError)
	require.Len(t, failures, 1)
	payload := decodePayload[MessageErrorPayload](t, failures[0])
	assert.Equal(t, errs.ErrMessageContentEmpty, payload.Code)
	assert.Equal(t, "tmp-9", payload.TempID)
}

func TestGatewayTypingRelayRequiresSubscription(t *testing.T) {
	f := newGatewayFixture(t)
	f.ps.addConversation("conv-1", alice.ID, bob.ID)
	sender := f.addClient(alice, "conn-a")
	drainEvents(t, sender)

	f.gateway.dispatch(sender, frame(t, EventTyping, TypingPayload{ConversationID: "conv-1", IsTyping: true}))

	errored := eventsOfType(drainEvents(t, sender), EventError)
	require.Len(t, errored, 1)
	assert.Equal(t, errs.ErrNotParticipant, decodePayload[ErrorPayload](t, errored[0]).Code)
}

func TestGatewayTypingRelaySkipsOriginator(t *testing.T) {
	f := newGatewayFixture(t)
	f.ps.addConversation("conv-1", alice.ID, bob.ID)

	sender := f.addClient(alice, "conn-a")
	peer := f.addClient(bob, "conn-b")
	f.gateway.dispatch(sender, frame(t, EventJoinConversation, ConversationRef{ConversationID: "conv-1"}))
	f.gateway.dispatch(peer, frame(t, EventJoinConversation, ConversationRef{ConversationID: "conv-1"}))
	drainEvents(t, sender)
	drainEvents(t, peer)

	f.gateway.dispatch(sender, frame(t, EventTyping, TypingPayload{ConversationID: "conv-1", IsTyping: true}))

	assert.Empty(t, eventsOfType(drainEvents(t, sender), EventUserTyping))

	relayed := eventsOfType(drainEvents(t, peer), EventUserTyping)
	require.Len(t, relayed, 1)
	payload := decodePayload[TypingRelayPayload](t, relayed[0])
	assert.Equal(t, alice.ID, payload.UserID)
	assert.Equal(t, alice.Username, payload.Username)
	assert.True(t, payload.IsTyping)
}

func TestGatewayGetUserStatusRepliesToAskerOnly(t *testing.T) {
	f := newGatewayFixture(t)

	asker := f.addClient(alice, "conn-a")
	f.addClient(bob, "conn-b")
	drainEvents(t, asker)

	f.gateway.dispatch(asker, frame(t, EventGetUserStatus, StatusQueryPayload{UserID: bob.ID}))

	replies := eventsOfType(drainEvents(t, asker), EventUserStatus)
	require.Len(t, replies, 1)
	payload := decodePayload[StatusChangePayload](t, replies[0])
	assert.Equal(t, bob.ID, payload.UserID)
	assert.Equal(t, store.StatusOnline, payload.Status)
}

func TestGatewayGetUserStatusForDisconnectedUser(t *testing.T) {
	f := newGatewayFixture(t)
	asker := f.addClient(alice, "conn-a")
	drainEvents(t, asker)

	f.gateway.dispatch(asker, frame(t, EventGetUserStatus, StatusQueryPayload{UserID: "user-ghost"}))

	replies := eventsOfType(drainEvents(t, asker), EventUserStatus)
	require.Len(t, replies, 1)
	assert.Equal(t, store.StatusOffline, decodePayload[StatusChangePayload](t, replies[0]).Status)
}

func TestGatewayUpdateStatusBroadcastsToEveryone(t *testing.T) {
	f := newGatewayFixture(t)

	self := f.addClient(alice, "conn-a")
	other := f.addClient(bob, "conn-b")
	drainEvents(t, self)
	drainEvents(t, other)

	f.gateway.dispatch(self, frame(t, EventUpdateStatus, UpdateStatusPayload{Status: store.StatusAway}))

	for i, client := range []*Client{self, other} {
		changes := eventsOfType(drainEvents(t, client), EventUserStatusChange)
		require.Len(t, changes, 1, fmt.Sprintf("client %d", i))
		payload := decodePayload[StatusChangePayload](t, changes[0])
		assert.Equal(t, alice.ID, payload.UserID)
		assert.Equal(t, store.StatusAway, payload.Status)
	}
}

func TestGatewayUpdateStatusRejectsOfflineClaim(t *testing.T) {
	f := newGatewayFixture(t)
	self := f.addClient(alice, "conn-a")
	drainEvents(t, self)

	f.gateway.dispatch(self, frame(t, EventUpdateStatus, UpdateStatusPayload{Status: store.StatusOffline}))

	errored := eventsOfType(drainEvents(t, self), EventError)
	require.Len(t, errored, 1)
	assert.Equal(t, errs.ErrInvalidParams, decodePayload[ErrorPayload](t, errored[0]).Code)
}
