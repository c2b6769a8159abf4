// Package auth authenticates bearer tokens and enforces per-route capabilities.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"policykernel/pkg/requestcontext"
)

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims carries the subject and the capability set granted to it.
type Claims struct {
	Capabilities []string `json:"caps"`
	jwt.RegisteredClaims
}

// JWTValidator verifies HS256 capability tokens.
type JWTValidator struct {
	key      []byte
	issuer   string
	audience string
}

// NewJWTValidator creates a validator for tokens minted by issuer for audience.
func NewJWTValidator(key []byte, issuer, audience string) *JWTValidator {
	return &JWTValidator{key: key, issuer: issuer, audience: audience}
}

func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Mint signs a capability token. Used by development tooling and tests.
func (v *JWTValidator) Mint(subject string, caps []requestcontext.Capability, ttl time.Duration, now time.Time) (string, error) {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	claims := Claims{
		Capabilities: names,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, errCode, errDesc))
}

// RequireAuth authenticates the bearer token and stores the principal.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			caps := make([]requestcontext.Capability, 0, len(claims.Capabilities))
			for _, c := range claims.Capabilities {
				caps = append(caps, requestcontext.Capability(c))
			}
			ctx = requestcontext.WithPrincipal(ctx, requestcontext.NewPrincipal(claims.Subject, caps...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects callers lacking cap with 403.
func RequireCapability(cap requestcontext.Capability, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			p := requestcontext.Principal(ctx)
			if p.IsAnonymous() {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if !p.Has(cap) {
				logger.WarnContext(ctx, "forbidden - missing capability",
					"capability", cap,
					"subject", p.Subject,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("capability %s required", cap))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
