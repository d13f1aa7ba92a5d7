/*
This file provides the HTTP handlers for the conversation surface: creating a
two-party conversation, listing them with unread counts, paging message
history and resetting unread state.
*/
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pairchat/internal/app/store"
	"pairchat/internal/pkg/auth/jwt"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/req"
	"pairchat/internal/pkg/resp"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type CreateConversationInput struct {
	PeerID string `json:"peerId"`
}

// HandleCreateConversation opens (or returns the existing) conversation
// between the caller and the given peer. Idempotent on the pair.
func HandleCreateConversation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input CreateConversationInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.PeerID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		if input.PeerID == identity.ID {
			resp.RespondError(w, r, errs.NewError(errs.ErrSelfConversation))
			return
		}

		peer, err := deps.Store.GetUserByID(r.Context(), input.PeerID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		conv, err := deps.Store.CreateConversation(r.Context(), identity.ID, peer.ID)
		if err != nil {
			logx.Error(err, "failed to create conversation", "user_id", identity.ID, "peer_id", peer.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"conversation": conv,
			"peer":         peer,
		})
	}
}

// HandleListConversations lists the caller's conversations with peer, last
// message and unread count, most recent first.
func HandleListConversations(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		summaries, err := deps.Store.ListConversations(r.Context(), identity.ID)
		if err != nil {
			logx.Error(err, "failed to list conversations", "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"conversations": summaries})
	}
}

// requireParticipant loads the conversation and verifies the caller belongs to
// it. Shared by the history and read handlers.
func requireParticipant(deps *AppDeps, w http.ResponseWriter, r *http.Request, userID string) (store.Conversation, bool) {
	conversationID := chi.URLParam(r, "id")
	if conversationID == "" {
		resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
		return store.Conversation{}, false
	}

	conv, err := deps.Store.GetConversation(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			resp.RespondError(w, r, errs.NewError(errs.ErrConversationNotFound))
			return store.Conversation{}, false
		}
		logx.Error(err, "conversation lookup failed", "conversation_id", conversationID)
		resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed))
		return store.Conversation{}, false
	}

	if !conv.HasParticipant(userID) {
		resp.RespondError(w, r, errs.NewError(errs.ErrNotParticipant))
		return store.Conversation{}, false
	}

	return conv, true
}

// HandleListMessages pages the conversation's history, oldest first within the
// page. Pagination cursor is a `before` timestamp (RFC3339).
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conv, ok := requireParticipant(deps, w, r, identity.ID)
		if !ok {
			return
		}

		before := time.Now()
		if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
			parsed, err := time.Parse(time.RFC3339, beforeStr)
			if err != nil {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			before = parsed
		}

		limit := defaultHistoryLimit
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil || parsed < 1 {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			limit = min(parsed, maxHistoryLimit)
		}

		messages, err := deps.Store.ListMessages(r.Context(), conv.ID, before, limit)
		if err != nil {
			logx.Error(err, "failed to list messages", "conversation_id", conv.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"messages": messages})
	}
}

// HandleMarkConversationRead resets the caller's unread count and marks every
// message from the other participant as read.
func HandleMarkConversationRead(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conv, ok := requireParticipant(deps, w, r, identity.ID)
		if !ok {
			return
		}

		if err := deps.Store.MarkConversationRead(r.Context(), conv.ID, identity.ID); err != nil {
			logx.Error(err, "failed to mark conversation read", "conversation_id", conv.ID, "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed))
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}
