// Package models holds the asset, product and organization records that are
// the source of truth for compliance facts. The kernel only reads them.
package models

import (
	"time"

	id "policykernel/pkg/domain"
)

// AssetStatus is the lifecycle state owned by the asset registry.
type AssetStatus string

const (
	AssetStatusDraft     AssetStatus = "DRAFT"
	AssetStatusActive    AssetStatus = "ACTIVE"
	AssetStatusSuspended AssetStatus = "SUSPENDED"
	AssetStatusRetired   AssetStatus = "RETIRED"
)

type Organization struct {
	ID      id.OrganizationID `json:"id"`
	Name    string            `json:"name"`
	Country string            `json:"country"`
	IsCASP  bool              `json:"isCasp"`
}

type Product struct {
	ID               id.ProductID      `json:"id"`
	OrganizationID   id.OrganizationID `json:"organizationId"`
	Name             string            `json:"name"`
	TargetMarkets    []string          `json:"targetMarkets"`
	DistributionType string            `json:"distributionType"`
	InvestorAudience string            `json:"investorAudience"`
	TransferType     string            `json:"transferType"`
	CASPInvolved     bool              `json:"caspInvolved"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

type Asset struct {
	ID            id.AssetID    `json:"id"`
	ProductID     id.ProductID  `json:"productId"`
	Code          string        `json:"code"`
	Class         id.AssetClass `json:"assetClass"`
	Ledger        id.Ledger     `json:"ledger"`
	IssuerAddress string        `json:"issuerAddress"`
	Status        AssetStatus   `json:"status"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (a *Asset) IsActive() bool {
	return a.Status == AssetStatusActive
}

// Record is an asset joined with its product and issuing organization.
type Record struct {
	Asset        Asset
	Product      Product
	Organization Organization
}

// Clone returns a deep copy so callers cannot mutate store state.
func (r *Record) Clone() *Record {
	c := *r
	c.Product.TargetMarkets = append([]string(nil), r.Product.TargetMarkets...)
	return &c
}
