// Package models holds issuances and preflight results.
package models

import (
	"time"

	compliancemodels "policykernel/internal/compliance/models"
	id "policykernel/pkg/domain"
)

type Status string

const StatusCreated Status = "CREATED"

// Issuance is a recorded issuance of an asset to a holder. Requirements is
// the frozen compliance snapshot taken when it was created.
type Issuance struct {
	ID            id.IssuanceID                           `json:"id"`
	AssetID       id.AssetID                              `json:"assetId"`
	HolderAddress string                                  `json:"holderAddress"`
	Amount        string                                  `json:"amount"`
	Status        Status                                  `json:"status"`
	CreatedBy     string                                  `json:"createdBy"`
	CreatedAt     time.Time                               `json:"createdAt"`
	Requirements  []*compliancemodels.RequirementInstance `json:"requirements,omitempty"`

	// IdempotencyKey and RequestHash bind the issuance to the request that
	// created it, per asset.
	IdempotencyKey string `json:"-"`
	RequestHash    string `json:"-"`
}

func (i *Issuance) Clone() *Issuance {
	c := *i
	c.Requirements = nil
	return &c
}

// BlockerCode identifies one unmet issuance condition.
type BlockerCode string

const (
	BlockerRequirementsOutstanding BlockerCode = "REQUIREMENTS_OUTSTANDING"
	BlockerAcknowledgementPending  BlockerCode = "ACKNOWLEDGEMENT_PENDING"
	BlockerAuthorizationMissing    BlockerCode = "AUTHORIZATION_MISSING"
	BlockerAssetNotActive          BlockerCode = "ASSET_NOT_ACTIVE"
	BlockerEnforcementNotReady     BlockerCode = "ENFORCEMENT_NOT_READY"
)

type Blocker struct {
	Code    BlockerCode `json:"code"`
	Message string      `json:"message"`
	Hint    string      `json:"hint,omitempty"`
}

// Preflight lists every blocker at once; OK is true only when none remain.
type Preflight struct {
	AssetID  id.AssetID `json:"assetId"`
	OK       bool       `json:"ok"`
	Blockers []Blocker  `json:"blockers"`
}

func (p *Preflight) Has(code BlockerCode) bool {
	for _, b := range p.Blockers {
		if b.Code == code {
			return true
		}
	}
	return false
}
