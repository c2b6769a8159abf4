// Package models holds requirement instances and their lifecycle rules.
package models

import (
	"strings"
	"time"

	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
)

// Status is the lifecycle state of a requirement instance.
type Status string

const (
	// StatusAvailable marks a template match that is not bound to an asset.
	// Only produced for template browsing; never persisted.
	StatusAvailable Status = "AVAILABLE"
	StatusRequired  Status = "REQUIRED"
	StatusSatisfied Status = "SATISFIED"
	StatusException Status = "EXCEPTION"
)

// ParseStatus validates a status value supplied by a caller.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusAvailable, StatusRequired, StatusSatisfied, StatusException:
		return st, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown status: "+s)
	}
}

// CanTransitionTo reports whether a direct transition is legal. Only
// REQUIRED moves, and only to SATISFIED or EXCEPTION.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusRequired && (next == StatusSatisfied || next == StatusException)
}

// RequirementInstance is a concrete obligation attached to an asset
// (IssuanceID nil, live) or to an issuance snapshot (frozen).
//
// Invariants:
//   - Status EXCEPTION carries a non-empty ExceptionReason
//   - Issuance-level instances are never re-evaluated or transitioned
//   - PlatformAcknowledged is only set on SATISFIED instances of ART/EMT assets
type RequirementInstance struct {
	ID                           id.InstanceID  `json:"id"`
	AssetID                      id.AssetID     `json:"assetId"`
	IssuanceID                   *id.IssuanceID `json:"issuanceId,omitempty"`
	TemplateID                   string         `json:"requirementTemplateId"`
	RegimeID                     string         `json:"regimeId"`
	RegimeVersion                string         `json:"regimeVersion"`
	Status                       Status         `json:"status"`
	Rationale                    string         `json:"rationale,omitempty"`
	EvidenceRefs                 []string       `json:"evidenceRefs,omitempty"`
	ExceptionReason              string         `json:"exceptionReason,omitempty"`
	RequiresPlatformAck          bool           `json:"requiresPlatformAcknowledgement"`
	PlatformAcknowledged         bool           `json:"platformAcknowledged"`
	PlatformAcknowledgedBy       string         `json:"platformAcknowledgedBy,omitempty"`
	PlatformAcknowledgedAt       *time.Time     `json:"platformAcknowledgedAt,omitempty"`
	PlatformAcknowledgmentReason string         `json:"platformAcknowledgmentReason,omitempty"`
	CreatedAt                    time.Time      `json:"createdAt"`
	UpdatedAt                    time.Time      `json:"updatedAt"`
}

// NewRequired creates a live asset-level instance in REQUIRED.
func NewRequired(instanceID id.InstanceID, assetID id.AssetID, templateID, regimeID, regimeVersion string, requiresAck bool, now time.Time) *RequirementInstance {
	return &RequirementInstance{
		ID:                  instanceID,
		AssetID:             assetID,
		TemplateID:          templateID,
		RegimeID:            regimeID,
		RegimeVersion:       regimeVersion,
		Status:              StatusRequired,
		RequiresPlatformAck: requiresAck,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// IsAssetLevel reports whether the instance is live (not a snapshot).
func (r *RequirementInstance) IsAssetLevel() bool {
	return r.IssuanceID == nil
}

// IsDischarged reports whether the obligation no longer blocks issuance.
// A SATISFIED instance that needs platform co-sign is discharged only once
// acknowledged; EXCEPTION is discharged by waiver.
func (r *RequirementInstance) IsDischarged(class id.AssetClass) bool {
	switch r.Status {
	case StatusException:
		return true
	case StatusSatisfied:
		return !r.AwaitingAcknowledgement(class)
	default:
		return false
	}
}

// AwaitingAcknowledgement reports a SATISFIED instance still missing its
// platform co-sign.
func (r *RequirementInstance) AwaitingAcknowledgement(class id.AssetClass) bool {
	return r.Status == StatusSatisfied &&
		r.RequiresPlatformAck &&
		class.RequiresPlatformAcknowledgement() &&
		!r.PlatformAcknowledged
}

// ContributesEnforcement reports whether the instance feeds enforcement
// intents. Waived (EXCEPTION) obligations never do.
func (r *RequirementInstance) ContributesEnforcement() bool {
	return r.Status == StatusRequired || r.Status == StatusSatisfied
}

// CanUpdateStatus validates a status change without applying it.
func (r *RequirementInstance) CanUpdateStatus(next Status, exceptionReason string) error {
	if !r.IsAssetLevel() {
		return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonInvalidTransition,
			"issuance snapshot instances are frozen")
	}
	if next == StatusException && strings.TrimSpace(exceptionReason) == "" {
		return dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonMissingExceptionReason,
			"exceptionReason is required for EXCEPTION")
	}
	if !r.Status.CanTransitionTo(next) {
		return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonInvalidTransition,
			"cannot transition from "+string(r.Status)+" to "+string(next))
	}
	return nil
}

// ApplyStatus sets the new status. Call CanUpdateStatus first.
func (r *RequirementInstance) ApplyStatus(next Status, exceptionReason, rationale string, now time.Time) {
	r.Status = next
	if next == StatusException {
		r.ExceptionReason = strings.TrimSpace(exceptionReason)
	}
	if rationale != "" {
		r.Rationale = rationale
	}
	r.UpdatedAt = now
}

// CanAcknowledge validates a platform acknowledgement for an asset class.
func (r *RequirementInstance) CanAcknowledge(class id.AssetClass, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonMissingReason,
			"acknowledgmentReason is required")
	}
	if r.Status != StatusSatisfied {
		return dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonNotSatisfied,
			"only SATISFIED requirements can be acknowledged")
	}
	if !class.RequiresPlatformAcknowledgement() {
		return dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonNotApplicable,
			"platform acknowledgement applies to ART and EMT assets only")
	}
	if r.PlatformAcknowledged {
		return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonAlreadyAcknowledged,
			"requirement is already acknowledged")
	}
	return nil
}

// ApplyAcknowledgement stamps the co-sign. Call CanAcknowledge first.
func (r *RequirementInstance) ApplyAcknowledgement(by, reason string, now time.Time) {
	at := now
	r.PlatformAcknowledged = true
	r.PlatformAcknowledgedBy = by
	r.PlatformAcknowledgedAt = &at
	r.PlatformAcknowledgmentReason = strings.TrimSpace(reason)
	r.UpdatedAt = now
}

// SnapshotFor copies the instance into a frozen issuance-level instance.
func (r *RequirementInstance) SnapshotFor(instanceID id.InstanceID, issuanceID id.IssuanceID, now time.Time) *RequirementInstance {
	c := r.Clone()
	c.ID = instanceID
	c.IssuanceID = &issuanceID
	c.CreatedAt = now
	c.UpdatedAt = now
	return c
}

// Clone returns a deep copy.
func (r *RequirementInstance) Clone() *RequirementInstance {
	c := *r
	c.EvidenceRefs = append([]string(nil), r.EvidenceRefs...)
	if r.IssuanceID != nil {
		iss := *r.IssuanceID
		c.IssuanceID = &iss
	}
	if r.PlatformAcknowledgedAt != nil {
		at := *r.PlatformAcknowledgedAt
		c.PlatformAcknowledgedAt = &at
	}
	return &c
}
