package enforcement

import (
	id "policykernel/pkg/domain"
)

// CapabilityStatus reports whether an adapter can realise an intent.
type CapabilityStatus string

const (
	StatusReady        CapabilityStatus = "Ready"
	StatusNotAvailable CapabilityStatus = "NotAvailable"
	StatusPreviewOnly  CapabilityStatus = "PreviewOnly"
)

// Mapping is the realisation of one intent on one adapter.
type Mapping struct {
	Intent       IntentKind       `json:"intent"`
	Active       bool             `json:"active"`
	Status       CapabilityStatus `json:"status"`
	Capabilities []Capability     `json:"capabilities,omitempty"`
	// Binding is set only for active intents on the asset's own ledger.
	Binding bool `json:"binding"`
}

// AdapterPlan is every intent mapped onto one adapter.
type AdapterPlan struct {
	Ledger   id.Ledger `json:"ledger"`
	Active   bool      `json:"active"`
	Mappings []Mapping `json:"mappings"`
}

// Plan is the enforcement plan of an asset. The active ledger's adapter is
// binding; every other adapter is a preview.
type Plan struct {
	AssetID      id.AssetID    `json:"assetId"`
	ActiveLedger id.Ledger     `json:"activeLedger"`
	Intents      []Intent      `json:"intents"`
	Adapters     []AdapterPlan `json:"adapters"`
}

// BuildPlan maps intents onto every registered adapter. An unsupported
// intent is reported as NotAvailable.
func BuildPlan(assetID id.AssetID, intents IntentSet) Plan {
	plan := Plan{
		AssetID:      assetID,
		ActiveLedger: intents.Ledger,
		Intents:      intents.Intents,
		Adapters:     make([]AdapterPlan, 0, len(adapters)),
	}
	for _, a := range adapters {
		active := a.Ledger == intents.Ledger
		ap := AdapterPlan{Ledger: a.Ledger, Active: active, Mappings: make([]Mapping, 0, len(intents.Intents))}
		for _, in := range intents.Intents {
			caps := a.Supports(in.Kind)
			m := Mapping{Intent: in.Kind, Active: in.Active, Capabilities: caps}
			switch {
			case len(caps) == 0:
				m.Status = StatusNotAvailable
			case active:
				m.Status = StatusReady
			default:
				m.Status = StatusPreviewOnly
			}
			m.Binding = active && in.Active && m.Status == StatusReady
			ap.Mappings = append(ap.Mappings, m)
		}
		plan.Adapters = append(plan.Adapters, ap)
	}
	return plan
}

// Status returns the active adapter's status for kind.
func (p Plan) Status(kind IntentKind) CapabilityStatus {
	for _, ap := range p.Adapters {
		if !ap.Active {
			continue
		}
		for _, m := range ap.Mappings {
			if m.Intent == kind {
				return m.Status
			}
		}
	}
	return StatusNotAvailable
}

// Unrealisable lists active intents the asset's own ledger cannot enforce.
func (p Plan) Unrealisable() []IntentKind {
	var out []IntentKind
	for _, in := range p.Intents {
		if in.Active && p.Status(in.Kind) != StatusReady {
			out = append(out, in.Kind)
		}
	}
	return out
}
