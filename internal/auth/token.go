package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrNoJWKS       = errors.New("no JWKS URL provided")
	ErrNoAudience   = errors.New("no audience configured")
)

// GoogleIssuers are the issuers of OIDC tokens attached to Pub/Sub push and
// Eventarc deliveries.
var GoogleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// OIDCClaims are the claims of an identity token minted for a service account.
type OIDCClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// Caller identifies whoever delivered a trigger request.
type Caller struct {
	Subject string
	Email   string
}

type TokenValidator interface {
	Validate(tokenString string) (Caller, error)
}
