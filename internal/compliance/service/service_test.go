package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	assetmodels "policykernel/internal/asset/models"
	assetstore "policykernel/internal/asset/store"
	"policykernel/internal/compliance/evaluator"
	"policykernel/internal/compliance/facts"
	"policykernel/internal/compliance/models"
	"policykernel/internal/compliance/predicate"
	"policykernel/internal/compliance/regime"
	"policykernel/internal/compliance/store"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
	"policykernel/pkg/platform/audit"
	auditpublisher "policykernel/pkg/platform/audit/publishers/compliance"
	auditmemory "policykernel/pkg/platform/audit/store/memory"
	"policykernel/pkg/requestcontext"
)

var serviceNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	assets   *assetstore.InMemoryStore
	registry *regime.Registry
	store    *store.InMemoryStore
	audit    *auditmemory.InMemoryStore
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	ctx := requestcontext.WithTime(context.Background(), serviceNow)
	ctx = requestcontext.WithPrincipal(ctx, requestcontext.NewPrincipal("ops@platform",
		requestcontext.CapManageCompliance, requestcontext.CapPlatformOperator))
	s.ctx = requestcontext.WithRequestID(ctx, "req-1")

	s.assets = assetstore.NewInMemoryStore()
	s.Require().NoError(assetstore.SeedDemo(s.ctx, s.assets, serviceNow))

	engine, err := predicate.NewEngine()
	s.Require().NoError(err)
	mica, err := regime.LoadEmbedded("mica")
	s.Require().NoError(err)
	s.registry = regime.NewRegistry(engine)
	s.Require().NoError(s.registry.PublishAll(mica))

	s.store = store.NewInMemoryStore()
	s.audit = auditmemory.NewInMemoryStore()
	s.service = New(facts.NewBuilder(s.assets), s.registry, evaluator.New(engine), s.store,
		WithAuditPublisher(auditpublisher.New(s.audit)))
}

func (s *ServiceSuite) evaluateDemo() *EvaluationResult {
	res, err := s.service.Evaluate(s.ctx, assetstore.DemoARTAssetID, id.ProductID{})
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) instanceFor(templateID string) *models.RequirementInstance {
	list, err := s.store.ListByAsset(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	for _, inst := range list {
		if inst.TemplateID == templateID {
			return inst
		}
	}
	s.FailNow("no instance for template " + templateID)
	return nil
}

// =============================================================================
// Evaluate
// =============================================================================

func (s *ServiceSuite) TestEvaluate() {
	s.Run("creates REQUIRED instances for applicable templates", func() {
		res := s.evaluateDemo()
		s.Equal(models.Counters{Evaluated: 10, Applicable: 3, Required: 3}, res.Counters)
		s.Len(res.Created, 3)
		for _, inst := range res.Created {
			s.Equal(models.StatusRequired, inst.Status)
			s.True(inst.IsAssetLevel())
		}
		s.Equal([]regime.Ref{{ID: "mica", Version: "1.0.0"}}, res.Regimes)
		s.Equal(1, s.audit.CountAction(audit.EventComplianceEvaluated))
	})

	s.Run("re-running with unchanged facts creates nothing", func() {
		res := s.evaluateDemo()
		s.Empty(res.Created)
		s.NotNil(res.Created)
		s.Equal(3, res.Counters.Required)
		s.Equal(1, s.audit.CountAction(audit.EventComplianceEvaluated))
	})

	s.Run("terminal statuses are sticky across re-evaluation", func() {
		inst := s.instanceFor("mica.art.whitepaper")
		_, err := s.service.UpdateStatus(s.ctx, inst.ID, UpdateStatusRequest{Status: models.StatusSatisfied})
		s.Require().NoError(err)

		res := s.evaluateDemo()
		s.Empty(res.Created)
		s.Equal(models.StatusSatisfied, s.instanceFor("mica.art.whitepaper").Status)
		s.Equal(1, res.Counters.Satisfied)
	})
}

func (s *ServiceSuite) TestEvaluateUnknownAsset() {
	_, err := s.service.Evaluate(s.ctx, id.AssetID(uuid.New()), id.ProductID{})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestEvaluateRejectsMismatchedProduct() {
	_, err := s.service.Evaluate(s.ctx, assetstore.DemoARTAssetID, id.ProductID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestNonApplicableInstancesAreKept() {
	s.evaluateDemo()

	s.Require().NoError(s.assets.Touch(s.ctx, assetstore.DemoARTAssetID, serviceNow, func(r *assetmodels.Record) {
		r.Product.TargetMarkets = []string{"US"}
	}))
	res := s.evaluateDemo()
	s.Empty(res.Created)
	s.Equal(models.Counters{Evaluated: 10}, res.Counters)

	list, err := s.store.ListByAsset(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.Len(list, 3, "history must persist when a template stops applying")
}

func (s *ServiceSuite) TestFailingPredicateAbortsWithoutWrites() {
	s.evaluateDemo()

	s.Require().NoError(s.registry.Publish(&regime.Regime{
		ID:            "broken",
		Name:          "Broken",
		Version:       semver.MustParse("1.0.0"),
		EffectiveFrom: serviceNow.Add(-time.Hour),
		Templates: []regime.RequirementTemplate{
			{ID: "broken.a", Applicability: predicate.Predicate{Language: predicate.LanguageCELv1, Expr: `facts.assetClass == "ART"`}},
			{ID: "broken.b", Applicability: predicate.Predicate{Language: predicate.LanguageCELv1, Expr: `facts.targetMarkets[5] == "DE"`}},
		},
	}))

	_, err := s.service.Evaluate(s.ctx, assetstore.DemoARTAssetID, id.ProductID{})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	list, err := s.store.ListByAsset(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.Len(list, 3, "a failed evaluation must not persist its partial candidate set")
}

func (s *ServiceSuite) TestConcurrentEvaluationCreatesNoDuplicates() {
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Evaluate(s.ctx, assetstore.DemoARTAssetID, id.ProductID{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	list, err := s.store.ListByAsset(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.Len(list, 3)
}

// =============================================================================
// UpdateStatus
// =============================================================================

func (s *ServiceSuite) TestUpdateStatus() {
	s.evaluateDemo()
	inst := s.instanceFor("mica.art.reserve")

	s.Run("EXCEPTION without a reason is rejected before persistence", func() {
		_, err := s.service.UpdateStatus(s.ctx, inst.ID, UpdateStatusRequest{Status: models.StatusException, ExceptionReason: "  "})
		s.True(dErrors.HasReason(err, dErrors.ReasonMissingExceptionReason))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(models.StatusRequired, s.instanceFor("mica.art.reserve").Status)
		s.Equal(0, s.audit.CountAction(audit.EventRequirementStatusChanged))
	})

	s.Run("EXCEPTION with a reason", func() {
		updated, err := s.service.UpdateStatus(s.ctx, inst.ID, UpdateStatusRequest{
			Status:          models.StatusException,
			ExceptionReason: "pending legal opinion",
			EvidenceRefs:    []string{"memo-17"},
		})
		s.Require().NoError(err)
		s.Equal(models.StatusException, updated.Status)
		s.Equal("pending legal opinion", updated.ExceptionReason)
		s.Equal([]string{"memo-17"}, updated.EvidenceRefs)
		s.Equal(1, s.audit.CountAction(audit.EventRequirementStatusChanged))
	})

	s.Run("reversal is an InvalidTransition conflict", func() {
		_, err := s.service.UpdateStatus(s.ctx, inst.ID, UpdateStatusRequest{Status: models.StatusRequired})
		s.True(dErrors.HasReason(err, dErrors.ReasonInvalidTransition))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown instance", func() {
		_, err := s.service.UpdateStatus(s.ctx, id.InstanceID(uuid.New()), UpdateStatusRequest{Status: models.StatusSatisfied})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// PlatformAcknowledge
// =============================================================================

func (s *ServiceSuite) TestPlatformAcknowledge() {
	s.evaluateDemo()
	auth := s.instanceFor("mica.art.authorisation")

	s.Run("reason is required", func() {
		_, err := s.service.PlatformAcknowledge(s.ctx, auth.ID, "")
		s.True(dErrors.HasReason(err, dErrors.ReasonMissingReason))
	})

	s.Run("instance must be SATISFIED", func() {
		_, err := s.service.PlatformAcknowledge(s.ctx, auth.ID, "reviewed")
		s.True(dErrors.HasReason(err, dErrors.ReasonNotSatisfied))
	})

	_, err := s.service.UpdateStatus(s.ctx, auth.ID, UpdateStatusRequest{Status: models.StatusSatisfied})
	s.Require().NoError(err)

	s.Run("stamps actor, time and reason", func() {
		acked, err := s.service.PlatformAcknowledge(s.ctx, auth.ID, "reviewed licence")
		s.Require().NoError(err)
		s.True(acked.PlatformAcknowledged)
		s.Equal("ops@platform", acked.PlatformAcknowledgedBy)
		s.Require().NotNil(acked.PlatformAcknowledgedAt)
		s.Equal(serviceNow, *acked.PlatformAcknowledgedAt)
		s.Equal("reviewed licence", acked.PlatformAcknowledgmentReason)
		s.Equal(1, s.audit.CountAction(audit.EventRequirementAcknowledged))
	})

	s.Run("second acknowledgement conflicts", func() {
		_, err := s.service.PlatformAcknowledge(s.ctx, auth.ID, "again")
		s.True(dErrors.HasReason(err, dErrors.ReasonAlreadyAcknowledged))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("asset class is read at call time", func() {
		reserve := s.instanceFor("mica.art.reserve")
		_, err := s.service.UpdateStatus(s.ctx, reserve.ID, UpdateStatusRequest{Status: models.StatusSatisfied})
		s.Require().NoError(err)
		s.Require().NoError(s.assets.Touch(s.ctx, assetstore.DemoARTAssetID, serviceNow, func(r *assetmodels.Record) {
			r.Asset.Class = id.AssetClassOther
		}))
		_, err = s.service.PlatformAcknowledge(s.ctx, reserve.ID, "reviewed")
		s.True(dErrors.HasReason(err, dErrors.ReasonNotApplicable))
	})
}

// =============================================================================
// End to end
// =============================================================================

func (s *ServiceSuite) TestARTInGermanyLifecycle() {
	res := s.evaluateDemo()
	s.Equal(10, res.Counters.Evaluated)
	s.Equal(3, res.Counters.Applicable)

	for _, tmpl := range []string{"mica.art.whitepaper", "mica.art.authorisation"} {
		inst := s.instanceFor(tmpl)
		_, err := s.service.UpdateStatus(s.ctx, inst.ID, UpdateStatusRequest{Status: models.StatusSatisfied})
		s.Require().NoError(err)
	}
	summary, err := s.service.Summary(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.Equal(1, summary.Counters.PendingAcknowledgement)

	_, err = s.service.PlatformAcknowledge(s.ctx, s.instanceFor("mica.art.authorisation").ID, "licence verified")
	s.Require().NoError(err)
	_, err = s.service.UpdateStatus(s.ctx, s.instanceFor("mica.art.reserve").ID, UpdateStatusRequest{
		Status:          models.StatusException,
		ExceptionReason: "pending legal opinion",
	})
	s.Require().NoError(err)

	summary, err = s.service.Summary(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.Equal(id.AssetClassART, summary.AssetClass)
	s.Equal(models.Counters{Evaluated: 10, Applicable: 3, Required: 0, Satisfied: 2, Exceptions: 1}, summary.Counters)
}

// =============================================================================
// Read surface
// =============================================================================

func (s *ServiceSuite) TestSummaryCountsUnpersistedTemplatesAsRequired() {
	summary, err := s.service.Summary(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.Equal(3, summary.Counters.Required)

	list, err := s.store.ListByAsset(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.Empty(list, "summary must not write")
}

func (s *ServiceSuite) TestTemplates() {
	out, err := s.service.Templates(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.Len(out, 3)
	for _, inst := range out {
		s.Equal(models.StatusAvailable, inst.Status)
		s.Equal(assetstore.DemoARTAssetID, inst.AssetID)
	}

	out, err = s.service.Templates(s.ctx, assetstore.DemoOtherAssetID)
	s.Require().NoError(err)
	s.Empty(out)
	s.NotNil(out)
}

func (s *ServiceSuite) TestList() {
	s.evaluateDemo()
	assetID := assetstore.DemoARTAssetID
	res, err := s.service.List(s.ctx, models.Filter{AssetID: &assetID}, models.Page{Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, res.Total)
	s.Len(res.Items, 2)
}

// =============================================================================
// Snapshot
// =============================================================================

func (s *ServiceSuite) TestSnapshot() {
	s.evaluateDemo()
	_, err := s.service.UpdateStatus(s.ctx, s.instanceFor("mica.art.whitepaper").ID, UpdateStatusRequest{Status: models.StatusSatisfied})
	s.Require().NoError(err)

	issuanceID := id.IssuanceID(uuid.New())
	snap, err := s.service.Snapshot(s.ctx, assetstore.DemoARTAssetID, issuanceID)
	s.Require().NoError(err)
	s.Len(snap, 3)
	for _, inst := range snap {
		s.Require().NotNil(inst.IssuanceID)
		s.Equal(issuanceID, *inst.IssuanceID)
	}
	s.Equal(1, s.audit.CountAction(audit.EventRequirementsSnapshotted))

	s.Run("snapshots are frozen", func() {
		_, err := s.service.UpdateStatus(s.ctx, snap[0].ID, UpdateStatusRequest{Status: models.StatusSatisfied})
		s.True(dErrors.HasReason(err, dErrors.ReasonInvalidTransition))
	})

	s.Run("live changes do not leak into the snapshot", func() {
		live := s.instanceFor("mica.art.reserve")
		_, err := s.service.UpdateStatus(s.ctx, live.ID, UpdateStatusRequest{Status: models.StatusSatisfied})
		s.Require().NoError(err)

		res, err := s.service.List(s.ctx, models.Filter{IssuanceID: &issuanceID}, models.Page{})
		s.Require().NoError(err)
		satisfied := 0
		for _, inst := range res.Items {
			if inst.Status == models.StatusSatisfied {
				satisfied++
			}
		}
		s.Equal(1, satisfied)
	})
}

func (s *ServiceSuite) TestSnapshotPersistsMissingCandidates() {
	issuanceID := id.IssuanceID(uuid.New())
	snap, err := s.service.Snapshot(s.ctx, assetstore.DemoARTAssetID, issuanceID)
	s.Require().NoError(err)
	s.Len(snap, 3)

	list, err := s.store.ListByAsset(s.ctx, assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	s.Len(list, 3)
}
