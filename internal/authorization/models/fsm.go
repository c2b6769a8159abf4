package models

import (
	"policykernel/internal/enforcement"
	dErrors "policykernel/pkg/domain-errors"
)

// State is the lifecycle state of an Authorization.
type State string

const (
	StateNone                        State = ""
	StateHolderRequested             State = "HOLDER_REQUESTED"
	StateAwaitingIssuerAuthorization State = "AWAITING_ISSUER_AUTHORIZATION"
	StateIssuerAuthorized            State = "ISSUER_AUTHORIZED"
	StateExternal                    State = "EXTERNAL"
	StateLimitUpdated                State = "LIMIT_UPDATED"
	StateTrustlineClosed             State = "TRUSTLINE_CLOSED"
	StateFrozen                      State = "FROZEN"
	StateUnfrozen                    State = "UNFROZEN"
)

// Event drives a transition.
type Event string

const (
	EventHolderRequest    Event = "HolderRequest"
	EventHolderFulfill    Event = "HolderFulfill"
	EventIssuerAuthorize  Event = "IssuerAuthorize"
	EventRegisterExternal Event = "RegisterExternal"
	EventUpdateLimit      Event = "UpdateLimit"
	EventClose            Event = "Close"
	EventFreeze           Event = "Freeze"
	EventUnfreeze         Event = "Unfreeze"
)

// transition is one row of the table. When Intent is set and inactive the
// machine moves to Otherwise, or refuses when Otherwise is empty.
type transition struct {
	To        State
	Intent    enforcement.IntentKind
	Otherwise State
}

// authorizedStates may be limited, frozen or closed.
var authorizedStates = []State{StateIssuerAuthorized, StateExternal, StateLimitUpdated, StateUnfrozen}

var transitions = buildTransitions()

func buildTransitions() map[State]map[Event]transition {
	t := map[State]map[Event]transition{
		StateNone: {
			EventHolderRequest:    {To: StateHolderRequested},
			EventRegisterExternal: {To: StateExternal},
		},
		StateHolderRequested: {
			EventHolderFulfill: {
				To:        StateAwaitingIssuerAuthorization,
				Intent:    enforcement.IntentRequireAuthorization,
				Otherwise: StateIssuerAuthorized,
			},
			EventClose: {To: StateTrustlineClosed},
		},
		StateAwaitingIssuerAuthorization: {
			EventIssuerAuthorize: {To: StateIssuerAuthorized, Intent: enforcement.IntentRequireAuthorization},
			EventClose:           {To: StateTrustlineClosed},
		},
		StateFrozen: {
			EventUnfreeze: {To: StateUnfrozen, Intent: enforcement.IntentEmergencyStop},
			EventClose:    {To: StateTrustlineClosed},
		},
		StateTrustlineClosed: {},
	}
	for _, s := range authorizedStates {
		t[s] = map[Event]transition{
			EventUpdateLimit: {To: StateLimitUpdated},
			EventClose:       {To: StateTrustlineClosed},
			EventFreeze:      {To: StateFrozen, Intent: enforcement.IntentEmergencyStop},
		}
	}
	return t
}

// Next resolves the target state for an event against the live intent set.
func Next(from State, ev Event, intents enforcement.IntentSet) (State, error) {
	row, ok := transitions[from][ev]
	if !ok {
		if ev == EventIssuerAuthorize {
			return "", dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonNotAwaitingAuthorization,
				"authorization is "+string(from)+", not awaiting issuer authorization")
		}
		return "", dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonInvalidTransition,
			"cannot apply "+string(ev)+" to "+describe(from))
	}
	if row.Intent != "" && !intents.IsActive(row.Intent) {
		if row.Otherwise == "" {
			return "", dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonIntentInactive,
				string(ev)+" requires the "+string(row.Intent)+" intent")
		}
		return row.Otherwise, nil
	}
	return row.To, nil
}

// RequiredIntent returns the intent an event is gated on, if any.
func RequiredIntent(from State, ev Event) (enforcement.IntentKind, bool) {
	row, ok := transitions[from][ev]
	if !ok || row.Intent == "" || row.Otherwise != "" {
		return "", false
	}
	return row.Intent, true
}

// IsTerminal reports a state with no outgoing transitions.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsActive reports whether the authorization occupies its (asset, holder) pair.
func (s State) IsActive() bool {
	return s != StateNone && s != StateTrustlineClosed
}

// IsAuthorized reports whether the holder may receive the asset.
func (s State) IsAuthorized() bool {
	for _, a := range authorizedStates {
		if s == a {
			return true
		}
	}
	return false
}

func describe(s State) string {
	if s == StateNone {
		return "a new authorization"
	}
	return string(s)
}
