package models

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policykernel/internal/enforcement"
	dErrors "policykernel/pkg/domain-errors"
)

func intents(active ...enforcement.IntentKind) enforcement.IntentSet {
	on := make(map[enforcement.IntentKind]bool, len(active))
	for _, k := range active {
		on[k] = true
	}
	set := enforcement.IntentSet{}
	for _, k := range enforcement.IntentKinds {
		set.Intents = append(set.Intents, enforcement.Intent{Kind: k, Active: on[k]})
	}
	return set
}

var (
	allIntents = intents(enforcement.IntentKinds...)
	noIntents  = intents()
)

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		ev      Event
		intents enforcement.IntentSet
		want    State
		reason  dErrors.Reason
	}{
		{"holder request opens", StateNone, EventHolderRequest, noIntents, StateHolderRequested, ""},
		{"external registration", StateNone, EventRegisterExternal, noIntents, StateExternal, ""},
		{"fulfill waits for issuer", StateHolderRequested, EventHolderFulfill, allIntents, StateAwaitingIssuerAuthorization, ""},
		{"fulfill auto-authorizes", StateHolderRequested, EventHolderFulfill, noIntents, StateIssuerAuthorized, ""},
		{"issuer authorizes", StateAwaitingIssuerAuthorization, EventIssuerAuthorize, intents(enforcement.IntentRequireAuthorization), StateIssuerAuthorized, ""},
		{"issuer authorize after RequireAuthorization lapsed", StateAwaitingIssuerAuthorization, EventIssuerAuthorize, noIntents, "", dErrors.ReasonIntentInactive},
		{"authorize twice", StateIssuerAuthorized, EventIssuerAuthorize, allIntents, "", dErrors.ReasonNotAwaitingAuthorization},
		{"authorize external", StateExternal, EventIssuerAuthorize, allIntents, "", dErrors.ReasonNotAwaitingAuthorization},
		{"limit on external", StateExternal, EventUpdateLimit, noIntents, StateLimitUpdated, ""},
		{"limit again", StateLimitUpdated, EventUpdateLimit, noIntents, StateLimitUpdated, ""},
		{"limit while awaiting", StateAwaitingIssuerAuthorization, EventUpdateLimit, allIntents, "", dErrors.ReasonInvalidTransition},
		{"freeze with emergency stop", StateIssuerAuthorized, EventFreeze, allIntents, StateFrozen, ""},
		{"freeze without emergency stop", StateIssuerAuthorized, EventFreeze, noIntents, "", dErrors.ReasonIntentInactive},
		{"freeze frozen", StateFrozen, EventFreeze, allIntents, "", dErrors.ReasonInvalidTransition},
		{"limit while frozen", StateFrozen, EventUpdateLimit, allIntents, "", dErrors.ReasonInvalidTransition},
		{"unfreeze", StateFrozen, EventUnfreeze, allIntents, StateUnfrozen, ""},
		{"unfreeze without emergency stop", StateFrozen, EventUnfreeze, noIntents, "", dErrors.ReasonIntentInactive},
		{"freeze unfrozen", StateUnfrozen, EventFreeze, allIntents, StateFrozen, ""},
		{"close awaiting", StateAwaitingIssuerAuthorization, EventClose, noIntents, StateTrustlineClosed, ""},
		{"close frozen", StateFrozen, EventClose, noIntents, StateTrustlineClosed, ""},
		{"closed is terminal", StateTrustlineClosed, EventUpdateLimit, allIntents, "", dErrors.ReasonInvalidTransition},
		{"close on nothing", StateNone, EventClose, allIntents, "", dErrors.ReasonInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.from, tt.ev, tt.intents)
			if tt.reason != "" {
				require.Error(t, err)
				assert.True(t, dErrors.HasReason(err, tt.reason), "got %v", err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatePredicates(t *testing.T) {
	assert.True(t, StateTrustlineClosed.IsTerminal())
	assert.False(t, StateNone.IsTerminal())
	assert.False(t, StateFrozen.IsTerminal())

	assert.False(t, StateNone.IsActive())
	assert.False(t, StateTrustlineClosed.IsActive())
	assert.True(t, StateAwaitingIssuerAuthorization.IsActive())

	assert.True(t, StateExternal.IsAuthorized())
	assert.True(t, StateUnfrozen.IsAuthorized())
	assert.False(t, StateFrozen.IsAuthorized())
	assert.False(t, StateAwaitingIssuerAuthorization.IsAuthorized())

	kind, ok := RequiredIntent(StateIssuerAuthorized, EventFreeze)
	assert.True(t, ok)
	assert.Equal(t, enforcement.IntentEmergencyStop, kind)
	kind, ok = RequiredIntent(StateAwaitingIssuerAuthorization, EventIssuerAuthorize)
	assert.True(t, ok)
	assert.Equal(t, enforcement.IntentRequireAuthorization, kind)
	_, ok = RequiredIntent(StateAwaitingIssuerAuthorization, EventClose)
	assert.False(t, ok)
	_, ok = RequiredIntent(StateHolderRequested, EventHolderFulfill)
	assert.False(t, ok, "fulfill falls back instead of refusing")
}

var allEvents = []Event{
	EventHolderRequest,
	EventHolderFulfill,
	EventIssuerAuthorize,
	EventRegisterExternal,
	EventUpdateLimit,
	EventClose,
	EventFreeze,
	EventUnfreeze,
}

// Any event sequence stays inside the table: accepted transitions never
// return to the empty state, and nothing leaves TRUSTLINE_CLOSED.
func TestTransitionSequenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("closed absorbs and none is never re-entered", prop.ForAll(
		func(events []int, active []bool) bool {
			var kinds []enforcement.IntentKind
			for i, on := range active {
				if on && i < len(enforcement.IntentKinds) {
					kinds = append(kinds, enforcement.IntentKinds[i])
				}
			}
			set := intents(kinds...)
			state := StateNone
			for _, e := range events {
				next, err := Next(state, allEvents[e], set)
				if err != nil {
					if !dErrors.HasCode(err, dErrors.CodeConflict) {
						return false
					}
					continue
				}
				if state == StateTrustlineClosed || next == StateNone {
					return false
				}
				if next == StateFrozen && !set.IsActive(enforcement.IntentEmergencyStop) {
					return false
				}
				if state == StateAwaitingIssuerAuthorization && next == StateIssuerAuthorized &&
					!set.IsActive(enforcement.IntentRequireAuthorization) {
					return false
				}
				state = next
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(allEvents)-1)),
		gen.SliceOfN(len(enforcement.IntentKinds), gen.Bool()),
	))

	properties.TestingRun(t)
}
