/*
This file defines the Client struct, representing one active WebSocket
connection. It manages the connection's lifecycle and its message pumps
(ReadPump and WritePump); event semantics live in the gateway dispatch.
*/
package realtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message. Pongs feed the
	// presence heartbeat, so pings must come more often than idleThreshold
	// or a quiet but responsive connection would read as idle between them.
	pingPeriod = idleThreshold / 2

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192
)

// Client represents an active WebSocket connection bound to one authenticated
// user. A user may hold several clients at once (tabs, devices).
type Client struct {
	// gateway the client reports inbound events and its disconnect to.
	gateway *Gateway

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// authenticated identity bound at handshake time.
	identity Identity

	// connection ID, unique per connection (not per user).
	connID string

	// a buffered channel used to queue events waiting to be sent to the client.
	send chan []byte

	// structured logger with user and connection context.
	logger zerolog.Logger
}

// NewClient constructs and returns a new Client instance.
func NewClient(gateway *Gateway, wsConn *websocket.Conn, identity Identity, connID string) *Client {
	clientLogger := logx.Logger().With().
		Str("user_id", identity.ID).
		Str("conn_id", connID).
		Logger()

	return &Client{
		gateway:  gateway,
		conn:     wsConn,
		identity: identity,
		connID:   connID,
		send:     make(chan []byte, 256),
		logger:   clientLogger,
	}
}

// ConnID returns the connection's unique ID.
func (c *Client) ConnID() string { return c.connID }

// UserID returns the authenticated user's ID.
func (c *Client) UserID() string { return c.identity.ID }

// Enqueue hands an encoded event to the client's send queue. Best-effort: a
// full queue drops the event rather than blocking the caller.
func (c *Client) Enqueue(event []byte) {
	select {
	case c.send <- event:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping event")
	}
}

// ReadPump handles reading frames from the WebSocket connection.
// It feeds heartbeats (Pong and any inbound event) to the presence tracker,
// dispatches events to the gateway, and performs cleanup upon closure.
func (c *Client) ReadPump() {
	defer c.gateway.disconnect(c)

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		c.gateway.presence.Heartbeat(c.identity.ID)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (Client close/going away)")
			}
			break
		}

		c.gateway.presence.Heartbeat(c.identity.ID)
		c.gateway.dispatch(c, frame)
	}
}

// WritePump handles writing events from the Client.send channel to the
// WebSocket connection, plus the periodic ping.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case event, ok := <-c.send:
			if !c.writeQueuedEvent(event, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedEvent writes one event pulled from the send channel to the
// WebSocket. Returns true if the WritePump loop should continue.
func (c *Client) writeQueuedEvent(event []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Error().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, event); err != nil {
		c.logger.Error().Err(err).Msg("Error writing event")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the
// connection heartbeat. Returns false if the WritePump loop should terminate.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// sendEvent encodes an outbound event and queues it for this client only.
func (c *Client) sendEvent(eventType string, payload any) {
	event, err := EncodeEvent(eventType, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event_type", eventType).Msg("Failed to encode outbound event")
		return
	}
	c.Enqueue(event)
}

// SendError sends an error event to the client. Used for failures outside the
// message pipeline; message submissions fail via message_error instead, so the
// client can reconcile its optimistic copy.
func (c *Client) SendError(err error) {
	var code int
	var message string

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		code = customErr.Code
		message = customErr.Message
	} else {
		code = errs.ErrUnknown
		message = fmt.Sprintf("Internal server error: %v", err)
	}

	c.sendEvent(EventError, ErrorPayload{Code: code, Message: message})
}

// sendMessageError signals a failed message submission, carrying the client's
// correlation token so the optimistic copy can be marked failed.
func (c *Client) sendMessageError(customErr *errs.CustomError, tempID string) {
	c.sendEvent(EventMessageError, MessageErrorPayload{
		Code:   customErr.Code,
		Error:  customErr.Message,
		TempID: tempID,
	})
}

// sendConfirmation sends the message_ack for a successful submission. The ack
// is the delivery contract; the correlation token is only echoed, empty when
// the client supplied none.
func (c *Client) sendConfirmation(ack MessageAckPayload) {
	c.sendEvent(EventMessageAck, ack)
}
