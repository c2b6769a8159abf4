// Package models holds the issuance to authorization hand-off draft.
package models

import (
	"time"

	id "policykernel/pkg/domain"
)

// Draft carries what the issuance flow collected into the authorization
// flow. The token is the only handle; it travels in the URL.
type Draft struct {
	Token          string     `json:"token"`
	AssetID        id.AssetID `json:"assetId"`
	HolderAddress  string     `json:"holderAddress"`
	Amount         string     `json:"amount,omitempty"`
	RequestedLimit string     `json:"requestedLimit,omitempty"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
}

func (d *Draft) IsExpired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}
