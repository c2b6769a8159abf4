package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "policykernel/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so ids of different entities cannot be
// assigned to one another by accident.
type (
	AssetID                uuid.UUID
	ProductID              uuid.UUID
	OrganizationID         uuid.UUID
	InstanceID             uuid.UUID
	IssuanceID             uuid.UUID
	AuthorizationID        uuid.UUID
	AuthorizationRequestID uuid.UUID
)

// maxIDLength bounds input before it reaches the UUID parser.
const maxIDLength = 64

func parseUUID(s, field string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be nil")
	}
	return u, nil
}

func ParseAssetID(s string) (AssetID, error) {
	u, err := parseUUID(s, "asset_id")
	return AssetID(u), err
}

func ParseProductID(s string) (ProductID, error) {
	u, err := parseUUID(s, "product_id")
	return ProductID(u), err
}

func ParseOrganizationID(s string) (OrganizationID, error) {
	u, err := parseUUID(s, "organization_id")
	return OrganizationID(u), err
}

func ParseInstanceID(s string) (InstanceID, error) {
	u, err := parseUUID(s, "requirement_id")
	return InstanceID(u), err
}

func ParseIssuanceID(s string) (IssuanceID, error) {
	u, err := parseUUID(s, "issuance_id")
	return IssuanceID(u), err
}

func ParseAuthorizationID(s string) (AuthorizationID, error) {
	u, err := parseUUID(s, "authorization_id")
	return AuthorizationID(u), err
}

func ParseAuthorizationRequestID(s string) (AuthorizationRequestID, error) {
	u, err := parseUUID(s, "authorization_request_id")
	return AuthorizationRequestID(u), err
}

func (i AssetID) String() string { return uuid.UUID(i).String() }
func (i AssetID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }
func (i AssetID) MarshalText() ([]byte, error) {
	return uuid.UUID(i).MarshalText()
}
func (i *AssetID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(i).UnmarshalText(b)
}

func (i ProductID) String() string { return uuid.UUID(i).String() }
func (i ProductID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }
func (i ProductID) MarshalText() ([]byte, error) {
	return uuid.UUID(i).MarshalText()
}
func (i *ProductID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(i).UnmarshalText(b)
}

func (i OrganizationID) String() string { return uuid.UUID(i).String() }
func (i OrganizationID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }
func (i OrganizationID) MarshalText() ([]byte, error) {
	return uuid.UUID(i).MarshalText()
}
func (i *OrganizationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(i).UnmarshalText(b)
}

func (i InstanceID) String() string { return uuid.UUID(i).String() }
func (i InstanceID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }
func (i InstanceID) MarshalText() ([]byte, error) {
	return uuid.UUID(i).MarshalText()
}
func (i *InstanceID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(i).UnmarshalText(b)
}

func (i IssuanceID) String() string { return uuid.UUID(i).String() }
func (i IssuanceID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }
func (i IssuanceID) MarshalText() ([]byte, error) {
	return uuid.UUID(i).MarshalText()
}
func (i *IssuanceID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(i).UnmarshalText(b)
}

func (i AuthorizationID) String() string { return uuid.UUID(i).String() }
func (i AuthorizationID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }
func (i AuthorizationID) MarshalText() ([]byte, error) {
	return uuid.UUID(i).MarshalText()
}
func (i *AuthorizationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(i).UnmarshalText(b)
}

func (i AuthorizationRequestID) String() string { return uuid.UUID(i).String() }
func (i AuthorizationRequestID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }
func (i AuthorizationRequestID) MarshalText() ([]byte, error) {
	return uuid.UUID(i).MarshalText()
}
func (i *AuthorizationRequestID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(i).UnmarshalText(b)
}
