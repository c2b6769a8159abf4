package enforcement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	assetmodels "policykernel/internal/asset/models"
	assetstore "policykernel/internal/asset/store"
	"policykernel/internal/compliance/evaluator"
	"policykernel/internal/compliance/facts"
	"policykernel/internal/compliance/models"
	"policykernel/internal/compliance/predicate"
	"policykernel/internal/compliance/regime"
	"policykernel/internal/compliance/service"
	"policykernel/internal/compliance/store"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
	"policykernel/pkg/requestcontext"
)

var gateNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type GateSuite struct {
	suite.Suite
	ctx        context.Context
	assets     *assetstore.InMemoryStore
	instances  *store.InMemoryStore
	compliance *service.Service
	gate       *Gate
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	ctx := requestcontext.WithTime(context.Background(), gateNow)
	s.ctx = requestcontext.WithPrincipal(ctx, requestcontext.NewPrincipal("ops@platform",
		requestcontext.CapManageCompliance))

	s.assets = assetstore.NewInMemoryStore()
	s.Require().NoError(assetstore.SeedDemo(s.ctx, s.assets, gateNow))
	engine, err := predicate.NewEngine()
	s.Require().NoError(err)
	mica, err := regime.LoadEmbedded("mica")
	s.Require().NoError(err)
	registry := regime.NewRegistry(engine)
	s.Require().NoError(registry.PublishAll(mica))

	s.instances = store.NewInMemoryStore()
	s.compliance = service.New(facts.NewBuilder(s.assets), registry, evaluator.New(engine), s.instances)
	s.gate = NewGate(s.compliance)
}

func (s *GateSuite) setStatus(templateID string, status models.Status, reason string) {
	list, err := s.instances.ListByAsset(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	for _, inst := range list {
		if inst.TemplateID == templateID {
			_, err := s.compliance.UpdateStatus(s.ctx, inst.ID, service.UpdateStatusRequest{
				Status:          status,
				ExceptionReason: reason,
			})
			s.Require().NoError(err)
			return
		}
	}
	s.FailNow("missing template " + templateID)
}

// =============================================================================
// Intent derivation over live compliance state
// =============================================================================

func (s *GateSuite) TestIntentsBeforeEvaluation() {
	set, err := s.gate.Intents(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.Equal(id.LedgerXRPL, set.Ledger)
	s.True(set.IsActive(IntentRequireAuthorization))
	s.True(set.IsActive(IntentEmergencyStop))
	s.True(set.IsActive(IntentRecoveryMechanism))
	s.False(set.IsActive(IntentGateHolderEligibility))
}

func (s *GateSuite) TestExceptionDeactivatesOnNextRead() {
	_, err := s.compliance.Evaluate(s.ctx, assetstore.DemoARTAssetID, id.ProductID{})
	s.Require().NoError(err)

	s.setStatus("mica.art.authorisation", models.StatusSatisfied, "")
	set, err := s.gate.Intents(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.True(set.IsActive(IntentRequireAuthorization))

	s.setStatus("mica.art.reserve", models.StatusException, "reserve held off-chain")
	set, err = s.gate.Intents(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.True(set.IsActive(IntentRequireAuthorization))
	s.False(set.IsActive(IntentEmergencyStop))
	s.False(set.IsActive(IntentRecoveryMechanism))
}

func (s *GateSuite) TestMarketChangeDropsIntents() {
	_, err := s.compliance.Evaluate(s.ctx, assetstore.DemoARTAssetID, id.ProductID{})
	s.Require().NoError(err)
	s.Require().NoError(s.assets.Touch(s.ctx, assetstore.DemoARTAssetID, gateNow, func(r *assetmodels.Record) {
		r.Product.TargetMarkets = []string{"US"}
	}))

	set, err := s.gate.Intents(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	for _, in := range set.Intents {
		s.False(in.Active, in.Kind)
	}
}

func (s *GateSuite) TestPlan() {
	s.Run("active ledger is the asset's ledger", func() {
		plan, err := s.gate.Plan(s.ctx, assetstore.DemoARTAssetID)
		s.Require().NoError(err)
		s.Equal(assetstore.DemoARTAssetID, plan.AssetID)
		s.Equal(id.LedgerXRPL, plan.ActiveLedger)
		s.Empty(plan.Unrealisable())
	})

	s.Run("position carries the adapter", func() {
		pos, err := s.gate.Position(s.ctx, assetstore.DemoARTAssetID)
		s.Require().NoError(err)
		s.Equal(id.LedgerXRPL, pos.Adapter.Ledger)
		s.Equal(assetstore.DemoARTAssetID, pos.Asset.Asset.ID)
	})

	s.Run("unknown asset", func() {
		_, err := s.gate.Plan(s.ctx, id.AssetID{9})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
