package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pairchat/internal/pkg/auth/jwt"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/randx"
	"pairchat/internal/pkg/resp"
)

// HandleGetProfile returns the authenticated user's own profile.
func HandleGetProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		user, err := deps.Store.GetUserByID(r.Context(), identity.ID)
		if err != nil {
			logx.Warn("get_profile: user not found", "id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": user})
	}
}

// HandleGetUser returns another user's public profile plus their live presence.
// Presence comes from the tracker, not the raw DB row, so a connected user
// always reads as online (or their self-reported away).
func HandleGetUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		userID := chi.URLParam(r, "id")
		if userID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		user, err := deps.Store.GetUserByID(r.Context(), userID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		pr := deps.Presence.Status(r.Context(), user.ID)
		user.Status = pr.Status
		user.LastActive = pr.LastActive

		resp.RespondSuccess(w, r, map[string]any{"user": user})
	}
}

// HandleLookupUser resolves a session ID to its account, the step before
// opening a conversation with a new partner.
func HandleLookupUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		sessionID := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("sessionId")))
		if !randx.IsValidSessionID(sessionID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidSessionID))
			return
		}

		user, err := deps.Store.GetUserBySessionID(r.Context(), sessionID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		pr := deps.Presence.Status(r.Context(), user.ID)
		user.Status = pr.Status
		user.LastActive = pr.LastActive

		resp.RespondSuccess(w, r, map[string]any{"user": user})
	}
}
