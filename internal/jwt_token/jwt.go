package jwttoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/requestcontext"
)

// CallerClaims are the claims the external authorization layer puts in a
// registry bearer token. The subject is the caller identity.
type CallerClaims struct {
	Role          string `json:"role"`
	InstitutionID string `json:"institution_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs and validates HS256 caller tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	tokenTTL   time.Duration
}

func NewJWTService(signingKey, issuer, audience string, tokenTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		tokenTTL:   tokenTTL,
	}
}

// IssueCallerToken mints a token for c. Used by cmd/tokengen and tests; in
// production tokens come from the external authorization layer.
func (s *JWTService) IssueCallerToken(ctx context.Context, c id.Caller) (string, error) {
	if c.IsZero() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "caller identity cannot be empty")
	}
	if _, err := id.ParseRole(string(c.Role)); err != nil {
		return "", err
	}
	if c.Role == id.RoleInstitution && c.InstitutionID.IsNil() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "institution token requires institution_id")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	now := requestcontext.Now(ctx)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, CallerClaims{
		Role:          string(c.Role),
		InstitutionID: c.InstitutionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Identity.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        hex.EncodeToString(b),
		},
	})
	return token.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*CallerClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &CallerClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid token")
	}

	claims, ok := parsed.Claims.(*CallerClaims)
	if !ok || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid token claims")
	}
	return claims, nil
}
