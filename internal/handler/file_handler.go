package handler

import (
	"net/http"

	"pairchat/internal/app/storage"
	"pairchat/internal/pkg/auth/jwt"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/req"
	"pairchat/internal/pkg/resp"
)

// PresignUploadInput defines the JSON input structure for generating an upload URL.
type PresignUploadInput struct {
	ConversationID string `json:"conversationId"`
	FileName       string `json:"fileName"`
	MimeType       string `json:"mimeType"`
	FileSize       int64  `json:"fileSize"`
}

// HandlePresignUpload generates a time-limited presigned upload URL for an
// attachment, keyed inside the conversation's namespace. Only participants of
// the conversation may mint keys under it.
func HandlePresignUpload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input PresignUploadInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.FileSize <= 0 || input.FileSize > storage.MaxFileSize {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileSizeTooLarge))
			return
		}
		if input.FileName == "" || input.MimeType == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		conv, err := deps.Store.GetConversation(r.Context(), input.ConversationID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrConversationNotFound))
			return
		}
		if !conv.HasParticipant(identity.ID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotParticipant))
			return
		}

		fileKey := storage.AttachmentKey(conv.ID, input.FileName)

		url, err := deps.Storage.PresignUpload(r.Context(), fileKey, input.MimeType, input.FileSize, storage.UploadURLTTL)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
			"fileName":     input.FileName,
		})
	}
}

// HandlePresignDownload redirects to a time-limited presigned download URL for
// an attachment key the caller is entitled to.
func HandlePresignDownload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		fileKey := r.URL.Query().Get("k")
		conversationID := r.URL.Query().Get("conversationId")
		if fileKey == "" || conversationID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		conv, err := deps.Store.GetConversation(r.Context(), conversationID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrConversationNotFound))
			return
		}
		if !conv.HasParticipant(identity.ID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotParticipant))
			return
		}

		if customErr := storage.ValidateAttachmentKey(fileKey, conv.ID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		url, err := deps.Storage.PresignDownload(r.Context(), fileKey, storage.DownloadURLTTL)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}
