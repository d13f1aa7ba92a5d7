package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pairchat/internal/pkg/auth/jwt"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/randx"
	"pairchat/internal/pkg/req"
	"pairchat/internal/pkg/resp"
)

type AddFriendInput struct {
	SessionID string `json:"sessionId"`
}

// HandleAddFriend links the authenticated user with the account behind the
// given session ID. The link is mutual; adding an existing friend succeeds
// without change.
func HandleAddFriend(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input AddFriendInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		sessionID := strings.ToUpper(strings.TrimSpace(input.SessionID))
		if !randx.IsValidSessionID(sessionID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidSessionID))
			return
		}

		if sessionID == identity.SessionID {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		friend, err := deps.Store.GetUserBySessionID(r.Context(), sessionID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		if err := deps.Store.AddFriend(r.Context(), identity.ID, friend.ID); err != nil {
			logx.Error(err, "failed to add friend", "user_id", identity.ID, "friend_id", friend.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed))
			return
		}

		pr := deps.Presence.Status(r.Context(), friend.ID)
		friend.Status = pr.Status
		friend.LastActive = pr.LastActive

		resp.RespondSuccess(w, r, map[string]any{"friend": friend})
	}
}

// HandleListFriends returns the authenticated user's friends with their live
// presence overlaid, so the list reflects who is reachable right now.
func HandleListFriends(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		friends, err := deps.Store.ListFriends(r.Context(), identity.ID)
		if err != nil {
			logx.Error(err, "failed to list friends", "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed))
			return
		}

		for i := range friends {
			pr := deps.Presence.Status(r.Context(), friends[i].ID)
			friends[i].Status = pr.Status
			friends[i].LastActive = pr.LastActive
		}

		resp.RespondSuccess(w, r, map[string]any{"friends": friends})
	}
}

// HandleRemoveFriend severs the mutual link with the given user.
func HandleRemoveFriend(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		friendID := chi.URLParam(r, "id")
		if friendID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		friend, err := deps.Store.GetUserByID(r.Context(), friendID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		if err := deps.Store.RemoveFriend(r.Context(), identity.ID, friend.ID); err != nil {
			logx.Error(err, "failed to remove friend", "user_id", identity.ID, "friend_id", friend.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"removed": friend.ID})
	}
}
