/*
Package storage provides the file storage service for message attachments and
avatars, backed by any S3-compatible object store.

Files never pass through the chat server: clients upload and download directly
against presigned URLs, and the server only mints URLs for keys inside the
namespace the caller is entitled to.
*/
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pairchat/internal/pkg/errs"
)

const (
	// MaxFileSize is the largest attachment the server will presign (20 MiB).
	MaxFileSize = 20 << 20

	// UploadURLTTL is how long a presigned upload URL stays valid.
	UploadURLTTL = 10 * time.Minute

	// DownloadURLTTL is how long a presigned download URL stays valid.
	DownloadURLTTL = 1 * time.Hour
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Service defines the public interface for the file storage service.
type Service interface {
	// PresignUpload generates a pre-signed URL for uploading a file.
	PresignUpload(ctx context.Context, key, mimeType string, fileSize int64, duration time.Duration) (string, error)

	// PresignDownload generates a pre-signed URL for downloading a file.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// Delete removes the file specified by the given key.
	Delete(ctx context.Context, key string) error
}

// NewService initializes and returns a concrete Service based on the provided
// configuration. Currently only S3-compatible stores are supported.
func NewService(cfg ServiceConfig) (Service, error) {
	return newS3Client(cfg)
}

// AttachmentKey builds the object key for a new attachment inside its
// conversation's namespace: <conversationID>/<uuid>-<filename>.
func AttachmentKey(conversationID, filename string) string {
	return fmt.Sprintf("%s/%s-%s", conversationID, uuid.NewString(), sanitizeFilename(filename))
}

// ValidateAttachmentKey checks that a client-supplied key lives inside the
// conversation's namespace, so one conversation can never presign another's
// objects.
func ValidateAttachmentKey(key, conversationID string) *errs.CustomError {
	prefix := conversationID + "/"
	if !strings.HasPrefix(key, prefix) || strings.Contains(key, "..") {
		return errs.NewError(errs.ErrAttachmentKeyInvalid)
	}
	return nil
}

// sanitizeFilename strips path separators so a filename cannot escape its key
// prefix.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "file"
	}
	return name
}
