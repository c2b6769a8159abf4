package models

import (
	id "policykernel/pkg/domain"
)

// Scope selects which projection of the instance set a query returns.
type Scope string

const (
	// ScopeAsset returns live asset-level instances only.
	ScopeAsset Scope = "asset"
	// ScopeAll returns asset-level instances and issuance snapshots.
	ScopeAll Scope = "all"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Filter narrows an instance query.
type Filter struct {
	AssetID    *id.AssetID
	Status     *Status
	Scope      Scope
	IssuanceID *id.IssuanceID
}

// Page bounds a query result.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to valid bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Matches reports whether an instance satisfies the filter.
func (f Filter) Matches(r *RequirementInstance) bool {
	if f.AssetID != nil && r.AssetID != *f.AssetID {
		return false
	}
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.IssuanceID != nil {
		return r.IssuanceID != nil && *r.IssuanceID == *f.IssuanceID
	}
	if f.Scope != ScopeAll && !r.IsAssetLevel() {
		return false
	}
	return true
}

// ListResult is one page of instances plus the total match count.
type ListResult struct {
	Items  []*RequirementInstance `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// Counters are derived per evaluation; never stored.
type Counters struct {
	Evaluated              int `json:"evaluated"`
	Applicable             int `json:"applicable"`
	Required               int `json:"required"`
	Satisfied              int `json:"satisfied"`
	Exceptions             int `json:"exceptions"`
	PendingAcknowledgement int `json:"pendingAcknowledgement"`
}
