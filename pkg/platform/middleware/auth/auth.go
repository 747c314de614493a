// Package auth turns a bearer token into an id.Caller. The token only names
// a claimed role; membership is re-confirmed with the role directory on every
// request, so a withdrawn role stops working before the token expires.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/requestcontext"
)

type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// TokenRevocationChecker reports whether a token id was revoked early.
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// RoleDirectory confirms that a token's claimed role is currently held.
// Confirm returns a CodeUnauthorized domain error when membership is not held
// and any other error when the directory cannot answer.
type RoleDirectory interface {
	Confirm(ctx context.Context, caller id.Caller) error
}

// JWTClaims is the subset of token claims the registry reads.
type JWTClaims struct {
	Subject       string
	Role          string
	InstitutionID string
	JTI           string
}

// rejection is a refused request: what the client sees and what is logged.
type rejection struct {
	status int
	code   string
	desc   string
	logMsg string
	level  slog.Level
	attrs  []any
}

func unauthenticated(desc, logMsg string, attrs ...any) *rejection {
	return &rejection{
		status: http.StatusUnauthorized,
		code:   "unauthenticated",
		desc:   desc,
		logMsg: logMsg,
		level:  slog.LevelWarn,
		attrs:  attrs,
	}
}

// authenticator resolves callers for RequireCaller. revocations may be nil.
type authenticator struct {
	validator   JWTValidator
	directory   RoleDirectory
	revocations TokenRevocationChecker
}

func (a *authenticator) authenticate(ctx context.Context, header string) (id.Caller, *rejection) {
	token, ok := bearerToken(header)
	if !ok {
		return id.Caller{}, unauthenticated("Missing or invalid Authorization header", "unauthorized access - missing token")
	}

	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		return id.Caller{}, unauthenticated("Invalid or expired token", "unauthorized access - invalid token", "error", err)
	}

	if a.revocations != nil && claims.JTI != "" {
		revoked, err := a.revocations.IsTokenRevoked(ctx, claims.JTI)
		if err != nil {
			return id.Caller{}, &rejection{
				status: http.StatusInternalServerError,
				code:   "internal_error",
				desc:   "Failed to validate token",
				logMsg: "failed to check token revocation",
				level:  slog.LevelError,
				attrs:  []any{"error", err},
			}
		}
		if revoked {
			return id.Caller{}, unauthenticated("Token has been revoked", "unauthorized access - token revoked", "jti", claims.JTI)
		}
	}

	caller, err := callerFromClaims(claims)
	if err != nil {
		return id.Caller{}, unauthenticated("Invalid or expired token", "unauthorized access - malformed token claims", "error", err)
	}

	if err := a.directory.Confirm(ctx, caller); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return id.Caller{}, &rejection{
				status: http.StatusForbidden,
				code:   "unauthorized",
				desc:   "Caller does not hold the claimed role",
				logMsg: "unauthorized access - role not held",
				level:  slog.LevelWarn,
				attrs:  []any{"identity", caller.Identity, "role", caller.Role},
			}
		}
		return id.Caller{}, &rejection{
			status: http.StatusServiceUnavailable,
			code:   "internal_error",
			desc:   "Role directory unavailable",
			logMsg: "role directory unavailable",
			level:  slog.LevelError,
			attrs:  []any{"error", err},
		}
	}
	return caller, nil
}

// bearerToken accepts the scheme in any case, as RFC 6750 allows.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// callerFromClaims drops the institution binding for every role other than
// Institution.
func callerFromClaims(claims *JWTClaims) (id.Caller, error) {
	identity, err := id.ParseIdentity(claims.Subject)
	if err != nil {
		return id.Caller{}, fmt.Errorf("invalid sub: %w", err)
	}
	role, err := id.ParseRole(claims.Role)
	if err != nil {
		return id.Caller{}, fmt.Errorf("invalid role: %w", err)
	}
	c := id.Caller{Identity: identity, Role: role}
	if role != id.RoleInstitution {
		return c, nil
	}
	if c.InstitutionID, err = id.ParseInstitutionID(claims.InstitutionID); err != nil {
		return id.Caller{}, fmt.Errorf("invalid institution_id: %w", err)
	}
	return c, nil
}

// RequireCaller stores the authenticated Caller in the request context or
// answers 401, 403, 500 or 503 without calling next.
func RequireCaller(validator JWTValidator, directory RoleDirectory, revocations TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	a := &authenticator{validator: validator, directory: directory, revocations: revocations}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller, rej := a.authenticate(ctx, r.Header.Get("Authorization"))
			if rej != nil {
				attrs := append(rej.attrs, "request_id", requestcontext.RequestID(ctx))
				logger.Log(ctx, rej.level, rej.logMsg, attrs...)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(rej.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": rej.code, "error_description": rej.desc})
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, caller)))
		})
	}
}
