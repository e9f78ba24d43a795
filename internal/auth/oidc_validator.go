package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/jwk"
)

// OIDCValidator verifies identity tokens against a JWKS endpoint.
type OIDCValidator struct {
	mu       sync.RWMutex
	keySet   jwk.Set
	jwksURL  string
	audience string
	issuers  []string
}

// NewOIDCValidator fetches the JWKS at jwksURL and returns a validator that
// accepts tokens for audience issued by one of issuers.
func NewOIDCValidator(ctx context.Context, jwksURL, audience string, issuers []string) (*OIDCValidator, error) {
	if jwksURL == "" {
		return nil, ErrNoJWKS
	}
	if audience == "" {
		return nil, ErrNoAudience
	}

	keySet, err := jwk.Fetch(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	return &OIDCValidator{
		keySet:   keySet,
		jwksURL:  jwksURL,
		audience: audience,
		issuers:  issuers,
	}, nil
}

// RefreshKeys refreshes the JWKS from the URL.
func (v *OIDCValidator) RefreshKeys(ctx context.Context) error {
	if v.jwksURL == "" {
		return ErrNoJWKS
	}

	keySet, err := jwk.Fetch(ctx, v.jwksURL)
	if err != nil {
		return fmt.Errorf("failed to refresh JWKS from %s: %w", v.jwksURL, err)
	}

	v.mu.Lock()
	v.keySet = keySet
	v.mu.Unlock()

	return nil
}

// Validate checks signature, expiry, audience and issuer of tokenString.
func (v *OIDCValidator) Validate(tokenString string) (Caller, error) {
	claims := &OIDCClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}))
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return Caller{}, ErrExpiredToken
		}
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return Caller{}, ErrInvalidToken
	}

	if !claims.VerifyAudience(v.audience, true) {
		return Caller{}, fmt.Errorf("%w: unexpected audience %v", ErrInvalidToken, claims.Audience)
	}

	if len(v.issuers) > 0 && !slices.Contains(v.issuers, claims.Issuer) {
		return Caller{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}

	if claims.Subject == "" {
		return Caller{}, fmt.Errorf("%w: no subject (sub) found in token claims", ErrInvalidToken)
	}

	return Caller{Subject: claims.Subject, Email: claims.Email}, nil
}

// keyFunc resolves the verification key by kid, refreshing the JWKS once when
// the kid is unknown (key rotation).
func (v *OIDCValidator) keyFunc(token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, errors.New("token header missing kid")
	}

	key, found := v.lookup(kid)
	if !found {
		if err := v.RefreshKeys(context.Background()); err != nil {
			return nil, fmt.Errorf("key with ID %s not found and failed to refresh keys: %w", kid, err)
		}
		if key, found = v.lookup(kid); !found {
			return nil, fmt.Errorf("key with ID %s not found", kid)
		}
	}

	var rawKey interface{}
	if err := key.Raw(&rawKey); err != nil {
		return nil, fmt.Errorf("failed to get raw key: %w", err)
	}

	return rawKey, nil
}

func (v *OIDCValidator) lookup(kid string) (jwk.Key, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.keySet == nil {
		return nil, false
	}
	return v.keySet.LookupKeyID(kid)
}
