/*
This file defines the Gateway, the single entry point of the realtime channel.
It admits authenticated connections, dispatches typed events to the presence
tracker, room router and message pipeline, and tears everything down on
disconnect.
*/
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairchat/internal/app/store"
	"pairchat/internal/metrics"
	"pairchat/internal/pkg/errs"
)

// dispatchTimeout bounds the store work done for a single inbound event.
const dispatchTimeout = 10 * time.Second

// ConversationReader is the slice of the store the gateway needs to authorize
// room joins.
type ConversationReader interface {
	GetConversation(ctx context.Context, id string) (store.Conversation, error)
}

// Gateway owns the set of live clients and routes every inbound event to the
// component that handles it. It is also the Broadcaster the presence tracker
// uses for global fan-out.
type Gateway struct {
	registry *ConnectionRegistry
	presence *PresenceTracker
	rooms    *RoomRouter
	pipeline *MessagePipeline
	convs    ConversationReader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewGateway wires the gateway. The presence tracker is attached afterwards
// with SetPresence because tracker and gateway reference each other.
func NewGateway(registry *ConnectionRegistry, rooms *RoomRouter, pipeline *MessagePipeline, convs ConversationReader, logger zerolog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		rooms:    rooms,
		pipeline: pipeline,
		convs:    convs,
		logger:   logger.With().Str("component", "Gateway").Logger(),
		clients:  make(map[string]*Client),
	}
}

// SetPresence attaches the presence tracker. Must be called before the first
// HandleConnection.
func (g *Gateway) SetPresence(presence *PresenceTracker) {
	g.presence = presence
}

// BroadcastAll delivers an encoded event to every connected client.
func (g *Gateway) BroadcastAll(event []byte) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, c := range g.clients {
		c.Enqueue(event)
	}
}

// ClientCount returns the number of live connections.
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// HandleConnection admits an already-authenticated WebSocket connection and
// runs its pumps. Blocks until the connection closes; intended to be called
// from the HTTP handler goroutine.
func (g *Gateway) HandleConnection(wsConn *websocket.Conn, identity Identity, connID string) {
	client := NewClient(g, wsConn, identity, connID)

	g.mu.Lock()
	g.clients[connID] = client
	g.mu.Unlock()

	metrics.WsConnections.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	g.presence.ConnectionOpened(ctx, identity.ID, connID)
	cancel()

	client.logger.Info().Str("username", identity.Username).Msg("Client connected.")

	go client.WritePump()
	client.ReadPump()
}

// disconnect tears down a client: room subscriptions evaporate, the presence
// tracker sees the connection close, and the send queue is shut.
func (g *Gateway) disconnect(c *Client) {
	g.mu.Lock()
	current, ok := g.clients[c.connID]
	if ok && current == c {
		delete(g.clients, c.connID)
	}
	g.mu.Unlock()

	if !ok || current != c {
		return
	}

	metrics.WsConnections.Dec()
	g.rooms.DropConnection(c.connID)

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	g.presence.ConnectionClosed(ctx, c.identity.ID, c.connID)
	cancel()

	close(c.send)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}

	c.logger.Info().Msg("Client disconnected.")
}

// dispatch routes one inbound frame to its handler. A panicking handler kills
// the frame, not the process.
func (g *Gateway) dispatch(c *Client, frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().
				Any("panic", r).
				Str("conn_id", c.connID).
				Msg("Recovered panic while handling event")
		}
	}()

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	switch env.Type {
	case EventJoinConversation:
		g.handleJoin(ctx, c, env.Payload)

	case EventLeaveConversation:
		g.handleLeave(c, env.Payload)

	case EventSendMessage:
		g.handleSend(ctx, c, env.Payload)

	case EventTyping:
		g.handleTyping(c, env.Payload)

	case EventMarkRead:
		g.handleMarkRead(ctx, c, env.Payload)

	case EventGetUserStatus:
		g.handleGetStatus(ctx, c, env.Payload)

	case EventUpdateStatus:
		g.handleUpdateStatus(ctx, c, env.Payload)

	default:
		c.logger.Warn().Str("event_type", env.Type).Msg("Client sent unsupported event type")
		c.SendError(errs.NewError(errs.ErrInvalidParams))
	}
}

// handleJoin subscribes the connection to a conversation's event stream after
// verifying the user is one of its participants.
func (g *Gateway) handleJoin(ctx context.Context, c *Client, payload json.RawMessage) {
	var ref ConversationRef
	if err := json.Unmarshal(payload, &ref); err != nil || ref.ConversationID == "" {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	conv, err := g.convs.GetConversation(ctx, ref.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.SendError(errs.NewError(errs.ErrConversationNotFound))
			return
		}
		c.logger.Error().Err(err).Str("conversation_id", ref.ConversationID).Msg("Conversation lookup failed on join")
		c.SendError(errs.NewError(errs.ErrPersistenceFailed))
		return
	}

	if !conv.HasParticipant(c.identity.ID) {
		c.logger.Warn().Str("conversation_id", conv.ID).Msg("Join rejected: not a participant")
		c.SendError(errs.NewError(errs.ErrNotParticipant))
		return
	}

	g.rooms.Join(c, conv.ID)
	c.logger.Debug().Str("conversation_id", conv.ID).Msg("Client joined conversation")
}

// handleLeave drops the subscription. Leaving a never-joined conversation is a
// silent no-op.
func (g *Gateway) handleLeave(c *Client, payload json.RawMessage) {
	var ref ConversationRef
	if err := json.Unmarshal(payload, &ref); err != nil || ref.ConversationID == "" {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	g.rooms.Leave(c, ref.ConversationID)
}

// handleSend runs a message submission through the delivery pipeline and
// acknowledges or rejects it back to the sender.
func (g *Gateway) handleSend(ctx context.Context, c *Client, payload json.RawMessage) {
	var in SendMessagePayload
	if err := json.Unmarshal(payload, &in); err != nil {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	persisted, customErr := g.pipeline.Send(ctx, c.identity, in)
	if customErr != nil {
		c.sendMessageError(customErr, in.TempID)
		return
	}

	c.sendConfirmation(MessageAckPayload{TempID: in.TempID, Message: persisted})
}

// handleTyping relays the ephemeral typing signal to the rest of the room.
// Only subscribers may emit it; nothing is persisted.
func (g *Gateway) handleTyping(c *Client, payload json.RawMessage) {
	var in TypingPayload
	if err := json.Unmarshal(payload, &in); err != nil || in.ConversationID == "" {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	if !g.rooms.IsSubscribed(c.connID, in.ConversationID) {
		c.SendError(errs.NewError(errs.ErrNotParticipant))
		return
	}

	event, err := EncodeEvent(EventUserTyping, TypingRelayPayload{
		ConversationID: in.ConversationID,
		UserID:         c.identity.ID,
		Username:       c.identity.Username,
		IsTyping:       in.IsTyping,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode typing relay")
		return
	}

	g.rooms.BroadcastExcept(in.ConversationID, c.connID, event)
}

// handleMarkRead records a read receipt and relays it to the room.
func (g *Gateway) handleMarkRead(ctx context.Context, c *Client, payload json.RawMessage) {
	var in MarkReadPayload
	if err := json.Unmarshal(payload, &in); err != nil || in.ConversationID == "" || in.MessageID == "" {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	if customErr := g.pipeline.MarkRead(ctx, c.identity, in); customErr != nil {
		c.SendError(customErr)
	}
}

// handleGetStatus answers an on-demand presence query with a user_status
// event addressed to the asking connection only.
func (g *Gateway) handleGetStatus(ctx context.Context, c *Client, payload json.RawMessage) {
	var in StatusQueryPayload
	if err := json.Unmarshal(payload, &in); err != nil || in.UserID == "" {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	pr := g.presence.Status(ctx, in.UserID)

	c.sendEvent(EventUserStatus, StatusChangePayload{
		UserID:     in.UserID,
		Status:     pr.Status,
		LastActive: pr.LastActive,
	})
}

// handleUpdateStatus applies an explicit presence override (away, or back to
// online). Offline cannot be claimed; only a real disconnect produces it.
func (g *Gateway) handleUpdateStatus(ctx context.Context, c *Client, payload json.RawMessage) {
	var in UpdateStatusPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	if customErr := g.presence.SetStatus(ctx, c.identity.ID, in.Status); customErr != nil {
		c.SendError(customErr)
	}
}

// Shutdown closes every live connection and stops the presence sweep. Safe to
// call once during server teardown.
func (g *Gateway) Shutdown() {
	g.presence.Stop()

	g.mu.Lock()
	clients := make([]*Client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		deadline := time.Now().Add(writeWait)
		c.conn.SetWriteDeadline(deadline)
		if err := c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to send shutdown close frame")
		}
		c.conn.Close()
	}

	g.logger.Info().Int("client_count", len(clients)).Msg("Gateway shut down.")
}
