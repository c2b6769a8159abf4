// Package models holds authorization requests, authorizations and the
// transition table that governs them.
package models

import (
	"time"

	id "policykernel/pkg/domain"
)

// Initiator records who started an authorization.
type Initiator string

const (
	InitiatedByHolder Initiator = "HOLDER"
	InitiatedByIssuer Initiator = "ISSUER"
	InitiatedBySystem Initiator = "SYSTEM"
)

func ParseInitiator(s string) (Initiator, bool) {
	switch i := Initiator(s); i {
	case InitiatedByHolder, InitiatedByIssuer, InitiatedBySystem:
		return i, true
	default:
		return "", false
	}
}

// RequestStatus is the state of an invitation.
type RequestStatus string

const (
	RequestInvited   RequestStatus = "INVITED"
	RequestFulfilled RequestStatus = "FULFILLED"
	RequestExpired   RequestStatus = "EXPIRED"
)

// AuthorizationRequest is an invitation issued before a trustline exists.
type AuthorizationRequest struct {
	ID             id.AuthorizationRequestID `json:"id"`
	AssetID        id.AssetID                `json:"assetId"`
	HolderAddress  string                    `json:"holderAddress"`
	RequestedLimit string                    `json:"requestedLimit"`
	Status         RequestStatus             `json:"status"`
	InitiatedBy    Initiator                 `json:"initiatedBy"`
	ExpiresAt      time.Time                 `json:"expiresAt"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
}

// IsPending reports an invitation that can still be fulfilled.
func (r *AuthorizationRequest) IsPending(now time.Time) bool {
	return r.Status == RequestInvited && now.Before(r.ExpiresAt)
}

// IsExpired reports an unfulfilled invitation past its expiry.
func (r *AuthorizationRequest) IsExpired(now time.Time) bool {
	return r.Status == RequestExpired || (r.Status == RequestInvited && !now.Before(r.ExpiresAt))
}

func (r *AuthorizationRequest) Clone() *AuthorizationRequest {
	c := *r
	return &c
}

// Authorization is the holder-issuer permission record for an (asset,
// holder) pair. At most one non-closed Authorization exists per pair.
type Authorization struct {
	ID             id.AuthorizationID         `json:"id"`
	AssetID        id.AssetID                 `json:"assetId"`
	HolderAddress  string                     `json:"holderAddress"`
	RequestID      *id.AuthorizationRequestID `json:"requestId,omitempty"`
	Currency       string                     `json:"currency,omitempty"`
	IssuerAddress  string                     `json:"issuerAddress,omitempty"`
	Limit          string                     `json:"limit"`
	TxHash         string                     `json:"txHash,omitempty"`
	Status         State                      `json:"status"`
	InitiatedBy    Initiator                  `json:"initiatedBy"`
	External       bool                       `json:"external"`
	ExternalSource string                     `json:"externalSource,omitempty"`
	CreatedAt      time.Time                  `json:"createdAt"`
	UpdatedAt      time.Time                  `json:"updatedAt"`
}

func (a *Authorization) Clone() *Authorization {
	c := *a
	if a.RequestID != nil {
		reqID := *a.RequestID
		c.RequestID = &reqID
	}
	return &c
}

// HistoryEntry is one append-only transition record.
type HistoryEntry struct {
	ID              string             `json:"id"`
	AuthorizationID id.AuthorizationID `json:"authorizationId"`
	Event           Event              `json:"event"`
	From            State              `json:"from"`
	To              State              `json:"to"`
	Limit           string             `json:"limit,omitempty"`
	Actor           string             `json:"actor"`
	OccurredAt      time.Time          `json:"occurredAt"`
}
