// Package enforcement derives ledger-agnostic enforcement intents from
// requirement instances and maps them onto ledger adapter capabilities.
//
// Intents are never stored. They are recomputed from the current instance
// set on every read so a re-evaluation that waives or removes an obligation
// takes effect immediately.
package enforcement

import (
	"sort"

	"policykernel/internal/compliance/models"
	"policykernel/internal/compliance/regime"
	id "policykernel/pkg/domain"
)

// IntentKind is an abstract control an asset needs, independent of ledger.
type IntentKind string

const (
	IntentGateHolderEligibility IntentKind = "GateHolderEligibility"
	IntentRequireAuthorization  IntentKind = "RequireAuthorization"
	IntentEmergencyStop         IntentKind = "EmergencyStop"
	IntentRecoveryMechanism     IntentKind = "RecoveryMechanism"
)

// IntentKinds lists every kind in response order.
var IntentKinds = []IntentKind{
	IntentGateHolderEligibility,
	IntentRequireAuthorization,
	IntentEmergencyStop,
	IntentRecoveryMechanism,
}

// hintIntents binds the capability part of an enforcement hint
// ("xrpl.requireAuth" -> "requireAuth") to the intents it asks for.
var hintIntents = map[string][]IntentKind{
	"requireAuth":            {IntentRequireAuthorization},
	"trustlineAuthorization": {IntentRequireAuthorization},
	"allowlistGating":        {IntentRequireAuthorization, IntentGateHolderEligibility},
	"kycGrant":               {IntentRequireAuthorization, IntentGateHolderEligibility},
	"credentials":            {IntentGateHolderEligibility},
	"freeze":                 {IntentEmergencyStop},
	"globalFreeze":           {IntentEmergencyStop},
	"accountFreeze":          {IntentEmergencyStop},
	"pause":                  {IntentEmergencyStop},
	"clawback":               {IntentRecoveryMechanism},
	"wipe":                   {IntentRecoveryMechanism},
	"forceTransfer":          {IntentRecoveryMechanism},
}

// IntentsForHint returns the intents a hint capability maps to, or nil when
// the hint is not bound.
func IntentsForHint(capability string) []IntentKind {
	return hintIntents[capability]
}

// Intent is one derived intent. Sources lists the contributing template ids.
type Intent struct {
	Kind    IntentKind `json:"kind"`
	Active  bool       `json:"active"`
	Sources []string   `json:"sources,omitempty"`
}

// IntentSet always carries all four kinds.
type IntentSet struct {
	Ledger  id.Ledger `json:"ledger"`
	Intents []Intent  `json:"intents"`
}

func (s IntentSet) IsActive(kind IntentKind) bool {
	for _, in := range s.Intents {
		if in.Kind == kind {
			return in.Active
		}
	}
	return false
}

// DeriveIntents ORs the ledger's hints of every contributing instance.
// Callers pass applicable instances only; EXCEPTION instances are skipped
// here because a waived obligation never drives enforcement.
func DeriveIntents(ledger id.Ledger, instances []*models.RequirementInstance, templates map[string]*regime.RequirementTemplate) IntentSet {
	sources := make(map[IntentKind]map[string]bool, len(IntentKinds))
	prefix := ledger.HintPrefix()
	for _, inst := range instances {
		if !inst.ContributesEnforcement() {
			continue
		}
		t, ok := templates[inst.TemplateID]
		if !ok {
			continue
		}
		for _, capability := range t.HintsFor(prefix) {
			for _, kind := range hintIntents[capability] {
				if sources[kind] == nil {
					sources[kind] = make(map[string]bool)
				}
				sources[kind][t.ID] = true
			}
		}
	}

	set := IntentSet{Ledger: ledger, Intents: make([]Intent, 0, len(IntentKinds))}
	for _, kind := range IntentKinds {
		in := Intent{Kind: kind, Active: len(sources[kind]) > 0}
		for templateID := range sources[kind] {
			in.Sources = append(in.Sources, templateID)
		}
		sort.Strings(in.Sources)
		set.Intents = append(set.Intents, in)
	}
	return set
}
