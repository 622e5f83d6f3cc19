// Package auth provides boundary authentication for the retrieval service:
// Argon2id-hashed API keys and Ed25519-signed context tokens. A context token
// is a short-lived JWT whose claims carry the caller's authority context, so
// the policy attributes evaluated per query are exactly the ones attested at
// token issue time.
package auth

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/veridocs/veridocs/internal/model"
)

// ContextClaims extends jwt.RegisteredClaims with the authority context
// attributes. Subject is the user identifier.
type ContextClaims struct {
	jwt.RegisteredClaims
	Roles                 []string `json:"roles"`
	ProjectCodes          []string `json:"project_codes,omitempty"`
	Discipline            string   `json:"discipline,omitempty"`
	Classification        string   `json:"classification,omitempty"`
	CommercialSensitivity string   `json:"commercial_sensitivity,omitempty"`
}

// Context reconstructs the authority context attested by the token.
func (c *ContextClaims) Context() model.AuthorityContext {
	return model.AuthorityContext{
		User:                  c.Subject,
		Roles:                 c.Roles,
		ProjectCodes:          c.ProjectCodes,
		Discipline:            c.Discipline,
		Classification:        c.Classification,
		CommercialSensitivity: c.CommercialSensitivity,
	}
}

// TokenManager handles context token creation and validation using Ed25519.
type TokenManager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	expiration time.Duration
}

// NewTokenManager creates a TokenManager from PEM key files.
// If paths are empty, generates an ephemeral key pair (for development).
func NewTokenManager(privateKeyPath, publicKeyPath string, expiration time.Duration) (*TokenManager, error) {
	if privateKeyPath == "" || publicKeyPath == "" {
		slog.Warn("auth: no token key files configured, generating ephemeral key pair (not for production)")
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("auth: generate key pair: %w", err)
		}
		return &TokenManager{privateKey: priv, publicKey: pub, expiration: expiration}, nil
	}

	privPEM, err := os.ReadFile(privateKeyPath) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read private key: %w", err)
	}
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("auth: decode private key PEM")
	}
	privKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse private key: %w", err)
	}
	edPriv, ok := privKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("auth: private key is not Ed25519")
	}

	pubPEM, err := os.ReadFile(publicKeyPath) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read public key: %w", err)
	}
	pubBlock, _ := pem.Decode(pubPEM)
	if pubBlock == nil {
		return nil, fmt.Errorf("auth: decode public key PEM")
	}
	pubKey, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	edPub, ok := pubKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: public key is not Ed25519")
	}

	// Verify the public key matches the private key to catch misconfiguration
	// (e.g., deploying a private key from one environment with a public key
	// from another).
	derivedPub := edPriv.Public().(ed25519.PublicKey)
	if !bytes.Equal(derivedPub, edPub) {
		return nil, fmt.Errorf("auth: public key does not match private key")
	}

	return &TokenManager{privateKey: edPriv, publicKey: edPub, expiration: expiration}, nil
}

// IssueContextToken creates a signed context token for the given authority
// context. The context's user must be non-empty.
func (m *TokenManager) IssueContextToken(actx model.AuthorityContext) (string, time.Time, error) {
	if actx.User == "" {
		return "", time.Time{}, fmt.Errorf("auth: context user is required")
	}

	now := time.Now().UTC()
	exp := now.Add(m.expiration)

	claims := ContextClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actx.User,
			Issuer:    "veridocs",
			Audience:  jwt.ClaimStrings{"veridocs"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		Roles:                 actx.Roles,
		ProjectCodes:          actx.ProjectCodes,
		Discipline:            actx.Discipline,
		Classification:        actx.Classification,
		CommercialSensitivity: actx.CommercialSensitivity,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken parses and validates a context token, returning the claims.
func (m *TokenManager) ValidateToken(tokenStr string) (*ContextClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&ContextClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return m.publicKey, nil
		},
		jwt.WithAudience("veridocs"),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}

	claims, ok := token.Claims.(*ContextClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if claims.Issuer != "veridocs" {
		return nil, fmt.Errorf("auth: invalid issuer: %s", claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("auth: token subject is empty")
	}

	return claims, nil
}
