package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"confetti/internal/domain"
)

type jwtClaims struct {
	jwt.RegisteredClaims
	// UserID is accepted as an alternative to "sub", as issued by Firebase.
	UserID string `json:"user_id,omitempty"`
}

type jwtVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// VerifierConfig configures the bearer token verifier.
type VerifierConfig struct {
	Secret string
	// Issuer and Audience, when set, must match the token's "iss" and "aud" claims.
	Issuer   string
	Audience string
}

// NewJWTVerifier returns a TokenVerifier accepting HS256 JWTs signed with the configured secret.
func NewJWTVerifier(cfg VerifierConfig) (domain.TokenVerifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("%w: jwt secret is required", domain.ErrInvalidInput)
	}
	return &jwtVerifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer, audience: cfg.Audience}, nil
}

func (v *jwtVerifier) Verify(token string) (string, error) {
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
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok {
		return "", fmt.Errorf("%w: unexpected claims", domain.ErrUnauthorized)
	}
	userID := claims.Subject
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, errors.New("token has no subject"))
	}
	return userID, nil
}
