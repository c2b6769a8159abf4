package enforcement

import (
	id "policykernel/pkg/domain"
)

// Scope is the account a ledger control applies to.
type Scope string

const (
	ScopeIssuer     Scope = "Issuer"
	ScopeAnyAccount Scope = "Any Account"
	ScopeTrustline  Scope = "Trustline"
	ScopeHolder     Scope = "Holder"
)

// Capability is one ledger control primitive.
type Capability struct {
	Name    string       `json:"name"`
	Scope   Scope        `json:"scope"`
	Intents []IntentKind `json:"intents,omitempty"`
	// HolderFreeze marks the per-holder freeze used by Freeze/Unfreeze.
	HolderFreeze bool `json:"-"`
	// Authorizes marks the control that grants a holder permission to hold.
	Authorizes bool `json:"-"`
}

// Adapter is the static capability table of one ledger.
type Adapter struct {
	Ledger       id.Ledger    `json:"ledger"`
	Capabilities []Capability `json:"capabilities"`
}

// Supports returns the capabilities that can realise kind.
func (a Adapter) Supports(kind IntentKind) []Capability {
	var out []Capability
	for _, c := range a.Capabilities {
		for _, k := range c.Intents {
			if k == kind {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (a Adapter) holderFreeze() (Capability, bool) {
	for _, c := range a.Capabilities {
		if c.HolderFreeze {
			return c, true
		}
	}
	return Capability{}, false
}

func (a Adapter) authorizer() (Capability, bool) {
	for _, c := range a.Capabilities {
		if c.Authorizes {
			return c, true
		}
	}
	return Capability{}, false
}

var adapters = []Adapter{
	{
		Ledger: id.LedgerXRPL,
		Capabilities: []Capability{
			{Name: "RequireAuth", Scope: ScopeIssuer, Intents: []IntentKind{IntentRequireAuthorization}},
			{Name: "Global Freeze", Scope: ScopeIssuer, Intents: []IntentKind{IntentEmergencyStop}},
			{Name: "Clawback", Scope: ScopeIssuer, Intents: []IntentKind{IntentRecoveryMechanism}},
			{Name: "Trustline Freeze", Scope: ScopeTrustline, Intents: []IntentKind{IntentEmergencyStop}, HolderFreeze: true},
			{Name: "Transfer Rate", Scope: ScopeIssuer},
			{Name: "Trustline Limit", Scope: ScopeHolder},
			{Name: "Credentials", Scope: ScopeAnyAccount, Intents: []IntentKind{IntentGateHolderEligibility}},
			{Name: "Trustline Authorization", Scope: ScopeTrustline, Intents: []IntentKind{IntentRequireAuthorization}, Authorizes: true},
		},
	},
	{
		Ledger: id.LedgerEVM,
		Capabilities: []Capability{
			{Name: "Allowlist", Scope: ScopeAnyAccount, Intents: []IntentKind{IntentRequireAuthorization, IntentGateHolderEligibility}, Authorizes: true},
			{Name: "Pause", Scope: ScopeIssuer, Intents: []IntentKind{IntentEmergencyStop}},
			{Name: "Force Transfer", Scope: ScopeIssuer, Intents: []IntentKind{IntentRecoveryMechanism}},
			{Name: "Account Freeze", Scope: ScopeHolder, Intents: []IntentKind{IntentEmergencyStop}, HolderFreeze: true},
		},
	},
	{
		Ledger: id.LedgerHedera,
		Capabilities: []Capability{
			{Name: "KYC Grant", Scope: ScopeHolder, Intents: []IntentKind{IntentRequireAuthorization, IntentGateHolderEligibility}, Authorizes: true},
			{Name: "Freeze", Scope: ScopeHolder, Intents: []IntentKind{IntentEmergencyStop}, HolderFreeze: true},
			{Name: "Pause", Scope: ScopeIssuer, Intents: []IntentKind{IntentEmergencyStop}},
			{Name: "Wipe", Scope: ScopeIssuer, Intents: []IntentKind{IntentRecoveryMechanism}},
		},
	},
}

// Adapters returns every registered adapter in a stable order.
func Adapters() []Adapter {
	return adapters
}

// AdapterFor returns the adapter of a ledger.
func AdapterFor(ledger id.Ledger) (Adapter, bool) {
	for _, a := range adapters {
		if a.Ledger == ledger {
			return a, true
		}
	}
	return Adapter{}, false
}
