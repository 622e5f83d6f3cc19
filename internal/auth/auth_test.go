package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridocs/veridocs/internal/model"
)

func testContext() model.AuthorityContext {
	return model.AuthorityContext{
		User:                  "alice",
		Roles:                 []string{"viewer", "engineer"},
		ProjectCodes:          []string{"P2"},
		Discipline:            "process",
		Classification:        "internal",
		CommercialSensitivity: "low",
	}
}

func TestContextToken_RoundTrip(t *testing.T) {
	m, err := NewTokenManager("", "", time.Hour)
	require.NoError(t, err)

	token, exp, err := m.IssueContextToken(testContext())
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)

	actx := claims.Context()
	assert.Equal(t, testContext(), actx)
}

func TestContextToken_RequiresUser(t *testing.T) {
	m, err := NewTokenManager("", "", time.Hour)
	require.NoError(t, err)

	actx := testContext()
	actx.User = ""
	_, _, err = m.IssueContextToken(actx)
	require.Error(t, err)
}

func TestContextToken_TamperedSignatureRejected(t *testing.T) {
	m, err := NewTokenManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := m.IssueContextToken(testContext())
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = m.ValidateToken(tampered)
	require.Error(t, err)
}

func TestContextToken_ForeignKeyRejected(t *testing.T) {
	issuer, err := NewTokenManager("", "", time.Hour)
	require.NoError(t, err)
	verifier, err := NewTokenManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := issuer.IssueContextToken(testContext())
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
}

func TestContextToken_ExpiredRejected(t *testing.T) {
	m, err := NewTokenManager("", "", -time.Minute)
	require.NoError(t, err)

	token, _, err := m.IssueContextToken(testContext())
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	require.Error(t, err)
}

func TestAPIKeyHash_RoundTrip(t *testing.T) {
	encoded, err := HashAPIKey("secret-key")
	require.NoError(t, err)

	ok, err := VerifyAPIKey("secret-key", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyAPIKey("wrong-key", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAPIKeyHash_SaltsDiffer(t *testing.T) {
	a, err := HashAPIKey("secret-key")
	require.NoError(t, err)
	b, err := HashAPIKey("secret-key")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerifyAPIKey_MalformedHash(t *testing.T) {
	_, err := VerifyAPIKey("key", "not-a-valid-hash")
	require.Error(t, err)
}
