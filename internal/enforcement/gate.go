package enforcement

import (
	"context"

	assetmodels "policykernel/internal/asset/models"
	"policykernel/internal/compliance/service"
	id "policykernel/pkg/domain"
)

// Assessor is the compliance read the gate derives intents from.
type Assessor interface {
	Assess(ctx context.Context, assetID id.AssetID) (*service.Assessment, error)
}

// Position is everything a caller needs to enforce an asset's obligations.
type Position struct {
	Asset   *assetmodels.Record
	Intents IntentSet
	Plan    Plan
	Adapter Adapter
}

// Gate answers which intents are active for an asset. Nothing is cached; a
// status change or re-evaluation is visible on the next call.
type Gate struct {
	assessor Assessor
}

func NewGate(assessor Assessor) *Gate {
	return &Gate{assessor: assessor}
}

// Position recomputes intents and the plan for the asset.
func (g *Gate) Position(ctx context.Context, assetID id.AssetID) (*Position, error) {
	a, err := g.assessor.Assess(ctx, assetID)
	if err != nil {
		return nil, err
	}
	ledger := a.Record.Asset.Ledger
	intents := DeriveIntents(ledger, a.Current(), a.Templates)
	adapter, _ := AdapterFor(ledger)
	return &Position{
		Asset:   a.Record,
		Intents: intents,
		Plan:    BuildPlan(assetID, intents),
		Adapter: adapter,
	}, nil
}

func (g *Gate) Intents(ctx context.Context, assetID id.AssetID) (IntentSet, error) {
	p, err := g.Position(ctx, assetID)
	if err != nil {
		return IntentSet{}, err
	}
	return p.Intents, nil
}

func (g *Gate) Plan(ctx context.Context, assetID id.AssetID) (*Plan, error) {
	p, err := g.Position(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return &p.Plan, nil
}
