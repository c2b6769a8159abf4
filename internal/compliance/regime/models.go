// Package regime holds the registry of versioned regulatory rule sets.
//
// A Regime is immutable once published: new rules ship as a new version and
// existing versions are never edited in place. Callers receive shared
// pointers and must treat them as read-only.
package regime

import (
	"time"

	"github.com/Masterminds/semver/v3"

	"policykernel/internal/compliance/predicate"
)

// Regime is one published version of a regulatory rule set.
type Regime struct {
	ID            string
	Name          string
	Version       *semver.Version
	Jurisdiction  string
	EffectiveFrom time.Time
	Templates     []RequirementTemplate
}

// Ref identifies a regime version.
type Ref struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

func (r *Regime) Ref() Ref {
	return Ref{ID: r.ID, Version: r.Version.String()}
}

// RequirementTemplate is one rule within a regime.
type RequirementTemplate struct {
	ID            string
	RegimeID      string
	RegimeVersion string
	Name          string
	Description   string
	Applicability predicate.Predicate
	// EnforcementHints maps "<ledger>.<capability>" (for example
	// "xrpl.requireAuth") to whether the rule asks for that control.
	EnforcementHints map[string]bool
	// RequiresPlatformAcknowledgement marks rules whose SATISFIED state needs
	// an operator co-sign for ART/EMT assets.
	RequiresPlatformAcknowledgement bool
}

// HintsFor returns the enabled hint capabilities for a ledger prefix, e.g.
// "xrpl" yields ["requireAuth", ...]. Order follows the map's sorted keys.
func (t *RequirementTemplate) HintsFor(prefix string) []string {
	var out []string
	for _, key := range sortedKeys(t.EnforcementHints) {
		if !t.EnforcementHints[key] {
			continue
		}
		if p, capability, ok := splitHint(key); ok && p == prefix {
			out = append(out, capability)
		}
	}
	return out
}
