/*
Package pow implements the Proof-of-Work gate in front of account
registration. Accounts are free and anonymous, so the cost of creating one is
a client-side hash search instead of a credential: the client fetches a
challenge nonce, finds a counter whose hash meets the difficulty, and trades
the solution for a short-lived proof token it presents on register.
*/
package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenHeaderKey is the header the client presents its proof token in.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is how long a solved challenge stays redeemable.
	// Short on purpose: the token exists only to bridge the verify and
	// register requests.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration bounds how long a client may grind on a challenge.
	NonceExpiryDuration = 5 * time.Minute

	// sweepInterval is how often expired challenges and proofs are purged.
	sweepInterval = time.Minute
)

// PoWManager issues challenges and redeems solutions. Challenges and proof
// tokens live in memory only; a restart simply makes clients solve again.
type PoWManager struct {
	// difficulty is the required number of leading zero hex digits.
	difficulty int

	mu sync.RWMutex
	// challenges maps outstanding nonces to their expiry.
	challenges map[string]time.Time
	// proofs maps issued proof tokens to their expiry.
	proofs map[string]time.Time
}

// NewPoWManager creates a manager with the given difficulty and starts the
// background purge of expired entries.
func NewPoWManager(difficulty int) *PoWManager {
	m := &PoWManager{
		difficulty: difficulty,
		challenges: make(map[string]time.Time),
		proofs:     make(map[string]time.Time),
	}

	go m.purgeLoop()

	return m
}

// Difficulty returns the number of leading zero hex digits a solution's hash
// must carry. Served to clients alongside the nonce.
func (m *PoWManager) Difficulty() int {
	return m.difficulty
}

// GenerateNonce mints a fresh challenge nonce and registers it for later
// validation.
func (m *PoWManager) GenerateNonce() string {
	nonce := uuid.New().String()

	m.mu.Lock()
	m.challenges[nonce] = time.Now().Add(NonceExpiryDuration)
	m.mu.Unlock()

	return nonce
}

// meetsDifficulty reports whether sha256(nonce+counter) starts with the
// required run of zero hex digits.
func (m *PoWManager) meetsDifficulty(nonce, counter string) bool {
	hash := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(hash[:]), strings.Repeat("0", m.difficulty))
}

// ValidateProof checks a solved challenge and, on success, consumes the nonce
// and issues a proof token for the register call. A nonce redeems exactly
// once; concurrent redemptions race for the single consume.
func (m *PoWManager) ValidateProof(nonce, counter string) (string, error) {
	m.mu.RLock()
	expiry, ok := m.challenges[nonce]
	m.mu.RUnlock()

	if !ok || time.Now().After(expiry) {
		return "", fmt.Errorf("nonce expired or invalid")
	}

	if !m.meetsDifficulty(nonce, counter) {
		return "", fmt.Errorf("proof does not meet difficulty requirement")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, stillExists := m.challenges[nonce]; !stillExists {
		return "", fmt.Errorf("nonce consumed by concurrent request")
	}
	delete(m.challenges, nonce)

	token := uuid.New().String()
	m.proofs[token] = time.Now().Add(ProofTokenDuration)
	return token, nil
}

// CheckProofToken reports whether the request carries a live proof token, in
// the X-PoW-Token header or the pow_token query parameter.
func (m *PoWManager) CheckProofToken(r *http.Request) bool {
	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		token = r.URL.Query().Get("pow_token")
	}
	if token == "" {
		return false
	}

	m.mu.RLock()
	expiry, ok := m.proofs[token]
	m.mu.RUnlock()

	return ok && time.Now().Before(expiry)
}

// purgeLoop drops expired challenges and proofs so abandoned attempts do not
// accumulate.
func (m *PoWManager) purgeLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()

		m.mu.Lock()
		for nonce, expiry := range m.challenges {
			if now.After(expiry) {
				delete(m.challenges, nonce)
			}
		}
		for token, expiry := range m.proofs {
			if now.After(expiry) {
				delete(m.proofs, token)
			}
		}
		m.mu.Unlock()
	}
}
