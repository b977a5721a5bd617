// Package auth validates OAuth bearer tokens for callers that prefer JWT over
// API keys. Token issuance lives with the identity provider; this side only
// verifies.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"consentd/internal/platform/middleware"
)

// HMACValidator verifies HS256-signed bearer tokens against a shared secret.
type HMACValidator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewHMACValidator constructs a validator. Issuer and audience are only
// enforced when non-empty.
func NewHMACValidator(secret []byte, issuer, audience string) *HMACValidator {
	return &HMACValidator{secret: secret, issuer: issuer, audience: audience}
}

// ValidateToken parses and verifies the token, returning the client identity
// from its subject claim.
func (v *HMACValidator) ValidateToken(tokenString string) (*middleware.ClientIdentity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenString, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse bearer token: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("bearer token has no subject")
	}
	identity := &middleware.ClientIdentity{ClientID: subject, Name: subject}
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		if name, ok := claims["name"].(string); ok && name != "" {
			identity.Name = name
		}
	}
	return identity, nil
}
