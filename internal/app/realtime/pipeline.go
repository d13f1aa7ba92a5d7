package realtime

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"pairchat/internal/app/store"
	"pairchat/internal/metrics"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/randx"
)

// MaxContentBytes is the maximum allowed size (in bytes) for message content.
const MaxContentBytes = 5000

// PipelineStore is the durable side of message delivery.
type PipelineStore interface {
	GetConversation(ctx context.Context, id string) (store.Conversation, error)
	GetMessage(ctx context.Context, id string) (store.Message, error)
	CreateMessage(ctx context.Context, m store.Message) (store.Message, error)
	TouchConversation(ctx context.Context, conversationID, messageID, senderID string) error
	MarkMessageRead(ctx context.Context, messageID, userID string) error
}

// MessagePipeline is the single authoritative path from a submitted message to
// its delivery: validate, persist, update the conversation summary, fan out.
//
// Persistence always precedes fan-out. A message that was acknowledged is in
// the store even if every live delivery missed; participants pick it up on the
// next history read.
type MessagePipeline struct {
	store  PipelineStore
	rooms  *RoomRouter
	logger zerolog.Logger
}

// NewMessagePipeline wires the pipeline.
func NewMessagePipeline(ps PipelineStore, rooms *RoomRouter, logger zerolog.Logger) *MessagePipeline {
	return &MessagePipeline{
		store:  ps,
		rooms:  rooms,
		logger: logger.With().Str("component", "MessagePipeline").Logger(),
	}
}

// Send runs a submission through the delivery pipeline. The sender identity
// comes from the authenticated connection, never from the payload. On success
// the persisted message is returned for the sender's acknowledgement; on
// failure a CustomError describes the rejection.
func (p *MessagePipeline) Send(ctx context.Context, sender Identity, in SendMessagePayload) (store.Message, *errs.CustomError) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		metrics.MessageFailures.Inc()
		return store.Message{}, errs.NewError(errs.ErrMessageContentEmpty)
	}
	if len(content) > MaxContentBytes {
		metrics.MessageFailures.Inc()
		return store.Message{}, errs.NewError(errs.ErrMessageContentTooLong)
	}

	conv, err := p.store.GetConversation(ctx, in.ConversationID)
	if err != nil {
		metrics.MessageFailures.Inc()
		if errors.Is(err, store.ErrNotFound) {
			return store.Message{}, errs.NewError(errs.ErrConversationNotFound)
		}
		p.logger.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("Conversation lookup failed.")
		return store.Message{}, errs.NewError(errs.ErrPersistenceFailed)
	}

	if !conv.HasParticipant(sender.ID) {
		metrics.MessageFailures.Inc()
		p.logger.Warn().
			Str("user_id", sender.ID).
			Str("conversation_id", conv.ID).
			Msg("Message rejected: sender is not a participant.")
		return store.Message{}, errs.NewError(errs.ErrNotParticipant)
	}

	// A reply must point at a real message in this conversation, so a stale
	// or forged reference fails validation instead of the insert's FK.
	if in.ReplyTo != nil && *in.ReplyTo != "" {
		ref, err := p.store.GetMessage(ctx, *in.ReplyTo)
		if err != nil {
			metrics.MessageFailures.Inc()
			if errors.Is(err, store.ErrNotFound) {
				return store.Message{}, errs.NewError(errs.ErrMessageNotFound)
			}
			p.logger.Error().Err(err).Str("reply_to", *in.ReplyTo).Msg("Reply target lookup failed.")
			return store.Message{}, errs.NewError(errs.ErrPersistenceFailed)
		}
		if ref.ConversationID != conv.ID {
			metrics.MessageFailures.Inc()
			return store.Message{}, errs.NewError(errs.ErrMessageNotFound)
		}
	}

	msg := store.Message{
		ID:             randx.MessageID(),
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		SenderName:     sender.Username,
		Content:        content,
		ReplyTo:        in.ReplyTo,
	}

	persisted, err := p.store.CreateMessage(ctx, msg)
	if err != nil {
		metrics.MessageFailures.Inc()
		p.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Message persistence failed.")
		return store.Message{}, errs.NewError(errs.ErrPersistenceFailed)
	}
	persisted.SenderName = sender.Username

	// Summary update failures do not fail the send: the message itself is
	// already durable and the pointer self-heals on the next send.
	if err := p.store.TouchConversation(ctx, conv.ID, persisted.ID, sender.ID); err != nil {
		p.logger.Error().Err(err).
			Str("conversation_id", conv.ID).
			Str("message_id", persisted.ID).
			Msg("Conversation summary update failed after persistence.")
	}

	event, err := EncodeEvent(EventNewMessage, NewMessagePayload{
		ConversationID: conv.ID,
		Message:        persisted,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("message_id", persisted.ID).Msg("Failed to encode fan-out event.")
	} else {
		p.rooms.Broadcast(conv.ID, event)
	}

	metrics.MessagesDelivered.Inc()
	return persisted, nil
}

// MarkRead appends the reader to a message's read set and relays a read
// receipt to the conversation's room.
func (p *MessagePipeline) MarkRead(ctx context.Context, reader Identity, in MarkReadPayload) *errs.CustomError {
	conv, err := p.store.GetConversation(ctx, in.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.NewError(errs.ErrConversationNotFound)
		}
		p.logger.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("Conversation lookup failed.")
		return errs.NewError(errs.ErrPersistenceFailed)
	}
	if !conv.HasParticipant(reader.ID) {
		return errs.NewError(errs.ErrNotParticipant)
	}

	if err := p.store.MarkMessageRead(ctx, in.MessageID, reader.ID); err != nil {
		p.logger.Error().Err(err).Str("message_id", in.MessageID).Msg("Read receipt persistence failed.")
		return errs.NewError(errs.ErrPersistenceFailed)
	}

	event, err := EncodeEvent(EventMessageRead, ReadRelayPayload{
		ConversationID: conv.ID,
		MessageID:      in.MessageID,
		UserID:         reader.ID,
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to encode read receipt relay.")
		return nil
	}
	p.rooms.Broadcast(conv.ID, event)

	return nil
}
