// Package invite mints and verifies the signed, single-use authorization
// invitations handed to holders.
package invite

import (
	"errors"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
)

const audience = "authorization-invite"

// Claims identify the invitation. The JWT ID is the request id.
type Claims struct {
	AssetID string `json:"asset_id"`
	Holder  string `json:"holder"`
	jwt.RegisteredClaims
}

// Signer mints invitation tokens and builds their shareable URL.
type Signer struct {
	key     []byte
	issuer  string
	baseURL string
}

func NewSigner(key, issuer, baseURL string) *Signer {
	return &Signer{key: []byte(key), issuer: issuer, baseURL: baseURL}
}

// Mint signs an invitation that expires at expiresAt.
func (s *Signer) Mint(reqID id.AuthorizationRequestID, assetID id.AssetID, holder string, now, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AssetID: assetID.String(),
		Holder:  holder,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        reqID.String(),
			Issuer:    s.issuer,
			Audience:  []string{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign invitation")
	}
	return signed, nil
}

// URL returns the holder-facing link for a token.
func (s *Signer) URL(token string) string {
	return s.baseURL + "/authorize?token=" + url.QueryEscape(token)
}

// Verify checks the signature and expiry against now and returns the
// request id the invitation was issued for.
func (s *Signer) Verify(token string, now time.Time) (id.AuthorizationRequestID, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.key, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return id.AuthorizationRequestID{}, dErrors.NewReason(dErrors.CodeExpired, dErrors.ReasonRequestExpired,
			"authorization invitation has expired")
	}
	if err != nil {
		return id.AuthorizationRequestID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid authorization invitation")
	}
	reqID, err := id.ParseAuthorizationRequestID(claims.ID)
	if err != nil {
		return id.AuthorizationRequestID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid authorization invitation")
	}
	return reqID, nil
}
