/*
Package randx provides functions for generating cryptographically secure random identifiers.

It is primarily used to generate human-readable session IDs handed out at registration
and standard UUID message and connection IDs.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// SessionIDChars defines the character set for the random segments of a session ID.
	SessionIDChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// sessionIDLetters is the purely alphabetic subset, used for prefix and suffix characters.
	sessionIDLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// sessionIDPattern matches the canonical session ID shape: two letters, a dash,
// four alphanumerics, a dash, a four-digit year and one trailing letter.
var sessionIDPattern = regexp.MustCompile(`^[A-Z]{2}-[A-Z0-9]{4}-\d{4}[A-Z]$`)

func pick(charset string) (byte, error) {
	num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random index: %w", err)
	}
	return charset[num.Int64()], nil
}

// SessionID generates a session ID of the form "AB-1C2D-2026X": a two-letter
// prefix, a four-character alphanumeric middle, and the current year plus a
// single letter suffix. Uniqueness is enforced at the store level, not here.
func SessionID() (string, error) {
	var b strings.Builder

	for range 2 {
		c, err := pick(sessionIDLetters)
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
	}

	b.WriteByte('-')

	for range 4 {
		c, err := pick(SessionIDChars)
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
	}

	suffix, err := pick(sessionIDLetters)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(&b, "-%d%c", time.Now().Year(), suffix)

	return b.String(), nil
}

// IsValidSessionID checks whether the given string has the canonical session ID shape.
// Comparison is case-insensitive; callers normalize to upper case before lookups.
func IsValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(strings.ToUpper(id))
}

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a message.
func MessageID() string {
	return uuid.New().String()
}

// ConnectionID generates a unique identifier for a realtime connection.
func ConnectionID() string {
	return uuid.New().String()
}
