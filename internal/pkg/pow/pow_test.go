package pow

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Difficulty zero makes every counter a valid solution, which keeps the
// lifecycle tests independent of hash grinding.

func TestValidateProofIssuesTokenAndConsumesNonce(t *testing.T) {
	m := NewPoWManager(0)

	nonce := m.GenerateNonce()
	token, err := m.ValidateProof(nonce, "1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = m.ValidateProof(nonce, "1")
	assert.Error(t, err, "a nonce redeems exactly once")
}

func TestValidateProofRejectsUnknownNonce(t *testing.T) {
	m := NewPoWManager(0)

	_, err := m.ValidateProof("never-issued", "1")
	assert.Error(t, err)
}

func TestValidateProofEnforcesDifficulty(t *testing.T) {
	m := NewPoWManager(64) // no sha256 output carries 64 leading zero digits

	nonce := m.GenerateNonce()
	_, err := m.ValidateProof(nonce, "1")
	assert.Error(t, err)
}

func TestCheckProofTokenAcceptsHeaderAndQuery(t *testing.T) {
	m := NewPoWManager(0)
	token, err := m.ValidateProof(m.GenerateNonce(), "1")
	require.NoError(t, err)

	withHeader := httptest.NewRequest("POST", "/api/auth/register", nil)
	withHeader.Header.Set(TokenHeaderKey, token)
	assert.True(t, m.CheckProofToken(withHeader))

	token2, err := m.ValidateProof(m.GenerateNonce(), "1")
	require.NoError(t, err)
	withQuery := httptest.NewRequest("POST", "/api/auth/register?pow_token="+token2, nil)
	assert.True(t, m.CheckProofToken(withQuery))
}

func TestCheckProofTokenRejectsMissingOrBogus(t *testing.T) {
	m := NewPoWManager(0)

	bare := httptest.NewRequest("POST", "/api/auth/register", nil)
	assert.False(t, m.CheckProofToken(bare))

	bogus := httptest.NewRequest("POST", "/api/auth/register", nil)
	bogus.Header.Set(TokenHeaderKey, "forged")
	assert.False(t, m.CheckProofToken(bogus))
}

func TestDifficultyMatchesConstruction(t *testing.T) {
	assert.Equal(t, 4, NewPoWManager(4).Difficulty())
}
