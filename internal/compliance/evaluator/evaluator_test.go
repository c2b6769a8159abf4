package evaluator

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"policykernel/internal/compliance/facts"
	"policykernel/internal/compliance/models"
	"policykernel/internal/compliance/predicate"
	"policykernel/internal/compliance/regime"
	id "policykernel/pkg/domain"
)

var evalNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type EvaluatorSuite struct {
	suite.Suite
	engine  *predicate.Engine
	mica    []*regime.Regime
	eval    *Evaluator
	assetID id.AssetID
}

func TestEvaluatorSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorSuite))
}

func (s *EvaluatorSuite) SetupTest() {
	engine, err := predicate.NewEngine()
	s.Require().NoError(err)
	s.engine = engine
	reg, err := regime.LoadEmbedded("mica")
	s.Require().NoError(err)
	r := regime.NewRegistry(engine)
	s.Require().NoError(r.PublishAll(reg))
	s.mica = r.Active(evalNow)
	s.eval = New(engine)
	s.assetID = id.AssetID(uuid.New())
}

func artInGermany() facts.Facts {
	return facts.Facts{
		IssuerCountry:    "DE",
		AssetClass:       id.AssetClassART,
		TargetMarkets:    []string{"DE"},
		Ledger:           id.LedgerXRPL,
		DistributionType: "PUBLIC_OFFER",
		InvestorAudience: "RETAIL",
		TransferType:     "PEER_TO_PEER",
	}
}

func templateIDs(instances []*models.RequirementInstance) []string {
	out := make([]string, 0, len(instances))
	for _, i := range instances {
		out = append(out, i.TemplateID)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Evaluate
// =============================================================================

func (s *EvaluatorSuite) TestARTInGermany() {
	res, err := s.eval.Evaluate(artInGermany(), s.mica, nil, s.assetID, evalNow)
	s.Require().NoError(err)

	s.Equal(10, res.Counters.Evaluated)
	s.Equal(3, res.Counters.Applicable)
	s.Equal(3, res.Counters.Required)
	s.Equal([]string{"mica.art.authorisation", "mica.art.reserve", "mica.art.whitepaper"}, templateIDs(res.New))
	for _, inst := range res.New {
		s.Equal(models.StatusRequired, inst.Status)
		s.Equal(s.assetID, inst.AssetID)
		s.Nil(inst.IssuanceID)
		s.Equal("mica", inst.RegimeID)
		s.Equal("1.0.0", inst.RegimeVersion)
	}
}

func (s *EvaluatorSuite) TestReevaluationIsIdempotent() {
	first, err := s.eval.Evaluate(artInGermany(), s.mica, nil, s.assetID, evalNow)
	s.Require().NoError(err)

	first.New[0].ApplyStatus(models.StatusSatisfied, "", "", evalNow)
	first.New[1].ApplyStatus(models.StatusException, "pending legal opinion", "", evalNow)

	second, err := s.eval.Evaluate(artInGermany(), s.mica, first.New, s.assetID, evalNow.Add(time.Hour))
	s.Require().NoError(err)
	s.Empty(second.New)
	s.Equal(models.StatusSatisfied, first.New[0].Status)
	s.Equal(models.StatusException, first.New[1].Status)
	s.Equal(1, second.Counters.Required)
	s.Equal(1, second.Counters.Satisfied)
	s.Equal(1, second.Counters.Exceptions)
}

func (s *EvaluatorSuite) TestInapplicableInstancesAreKeptButNotCounted() {
	first, err := s.eval.Evaluate(artInGermany(), s.mica, nil, s.assetID, evalNow)
	s.Require().NoError(err)

	moved := artInGermany()
	moved.TargetMarkets = []string{"US"}
	second, err := s.eval.Evaluate(moved, s.mica, first.New, s.assetID, evalNow)
	s.Require().NoError(err)

	s.Empty(second.New)
	s.Equal(10, second.Counters.Evaluated)
	s.Zero(second.Counters.Applicable)
	s.Zero(second.Counters.Required)
	for _, inst := range first.New {
		s.False(second.Applicable[inst.TemplateID])
	}
}

func (s *EvaluatorSuite) TestSnapshotsAndOtherAssetsAreIgnored() {
	other := models.NewRequired(id.InstanceID(uuid.New()), id.AssetID(uuid.New()), "mica.art.whitepaper", "mica", "1.0.0", false, evalNow)
	snap := models.NewRequired(id.InstanceID(uuid.New()), s.assetID, "mica.art.reserve", "mica", "1.0.0", true, evalNow)
	iss := id.IssuanceID(uuid.New())
	snap.IssuanceID = &iss

	res, err := s.eval.Evaluate(artInGermany(), s.mica, []*models.RequirementInstance{other, snap}, s.assetID, evalNow)
	s.Require().NoError(err)
	s.Len(res.New, 3)
}

func (s *EvaluatorSuite) TestPendingAcknowledgementCounter() {
	first, err := s.eval.Evaluate(artInGermany(), s.mica, nil, s.assetID, evalNow)
	s.Require().NoError(err)
	for _, inst := range first.New {
		inst.ApplyStatus(models.StatusSatisfied, "", "", evalNow)
	}

	res, err := s.eval.Evaluate(artInGermany(), s.mica, first.New, s.assetID, evalNow)
	s.Require().NoError(err)
	s.Equal(3, res.Counters.Satisfied)
	s.Equal(2, res.Counters.PendingAcknowledgement)
}

func (s *EvaluatorSuite) TestPredicateFailureAbortsWholeEvaluation() {
	broken := New(failingPredicates{failOn: "mica.art.reserve"})
	res, err := broken.Evaluate(artInGermany(), s.mica, nil, s.assetID, evalNow)
	s.Error(err)
	s.Nil(res)
}

func (s *EvaluatorSuite) TestDeterministicIDs() {
	n := 0
	e := New(s.engine, WithIDGenerator(func() id.InstanceID {
		n++
		return id.InstanceID(uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(n)}))
	}))
	res, err := e.Evaluate(artInGermany(), s.mica, nil, s.assetID, evalNow)
	s.Require().NoError(err)
	s.Equal(id.InstanceID(uuid.NewSHA1(uuid.NameSpaceOID, []byte{1})), res.New[0].ID)
}

// =============================================================================
// Browse
// =============================================================================

func (s *EvaluatorSuite) TestBrowse() {
	emt := artInGermany()
	emt.AssetClass = id.AssetClassEMT
	out, err := s.eval.Browse(emt, s.mica)
	s.Require().NoError(err)
	s.Equal([]string{"mica.emt.authorisation", "mica.emt.redemption", "mica.emt.whitepaper"}, templateIDs(out))
	for _, inst := range out {
		s.Equal(models.StatusAvailable, inst.Status)
		s.True(inst.ID.IsNil())
	}
}

type failingPredicates struct{ failOn string }

func (f failingPredicates) Eval(p predicate.Predicate, _ map[string]any) (bool, error) {
	if p.Expr == "" {
		return false, nil
	}
	return false, errors.New("malformed template " + f.failOn)
}

func singleRegime(templates ...regime.RequirementTemplate) []*regime.Regime {
	return []*regime.Regime{{
		ID:            "r",
		Version:       semver.MustParse("1.0.0"),
		EffectiveFrom: evalNow,
		Templates:     templates,
	}}
}

func (s *EvaluatorSuite) TestEmptyRegime() {
	res, err := s.eval.Evaluate(artInGermany(), singleRegime(), nil, s.assetID, evalNow)
	s.Require().NoError(err)
	s.Zero(res.Counters.Evaluated)
	s.Empty(res.New)
}
