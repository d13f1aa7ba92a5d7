/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Conversation and Message Business Logic Errors
const (
	// ErrConversationNotFound indicates that the referenced conversation does not exist.
	ErrConversationNotFound = 2101

	// ErrSelfConversation indicates an attempt to open a conversation with oneself.
	ErrSelfConversation = 2103

	// ErrMessageContentEmpty indicates that the message content was empty after trimming.
	ErrMessageContentEmpty = 2201

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2202

	// ErrMessageNotFound indicates that the referenced message does not exist.
	ErrMessageNotFound = 2203

	// ErrFileSizeTooLarge indicates that an attachment exceeded the size limit.
	ErrFileSizeTooLarge = 2301

	// ErrAttachmentKeyInvalid indicates an attachment key outside the conversation's namespace.
	ErrAttachmentKeyInvalid = 2302
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3001

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid or incorrect.
	ErrPowChallengeInvalid = 3002

	// ErrPowChallengeInternal indicates an internal error occurred during the PoW challenge process.
	ErrPowChallengeInternal = 3003

	// ErrInvalidUsername indicates a username failing format validation.
	ErrInvalidUsername = 3004

	// ErrInvalidSessionID indicates a session ID failing format validation or lookup.
	ErrInvalidSessionID = 3005

	// ErrUserNotFound indicates that no account matches the supplied identifier.
	ErrUserNotFound = 3006

	// ErrUnauthorized indicates a missing or invalid identity token.
	ErrUnauthorized = 3100

	// ErrAuthenticationFailed indicates a realtime handshake was rejected before admission.
	ErrAuthenticationFailed = 3101

	// ErrNotParticipant indicates the identity is not a participant of the conversation.
	ErrNotParticipant = 3102
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrPersistenceFailed indicates the durable store rejected or failed a write.
	ErrPersistenceFailed = 5001

	// ErrFileStorageFailed indicates the object storage operation failed.
	ErrFileStorageFailed = 5002
)
