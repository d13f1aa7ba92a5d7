package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the structure of the JSON Web Token (JWT) claims for PairChat.
// It includes standard claims required by the JWT specification and custom claims
// necessary for identifying users both on the REST surface and during the
// realtime handshake.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the durable user identifier bound to the token.
	ID string `json:"id"`

	// Username is the display name at issuance time, carried for logging and
	// realtime payloads so the hot path avoids a store read.
	Username string `json:"username"`

	// SessionID is the human-readable pairing code issued at registration.
	SessionID string `json:"session_id"`
}
