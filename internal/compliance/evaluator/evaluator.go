// Package evaluator matches facts against active regimes and computes the
// requirement instances an asset is missing.
//
// Evaluation is pure: it reads facts, regimes and the existing instances and
// returns the full candidate set. Callers persist the result in one write, so
// a failing predicate leaves stored instances untouched.
package evaluator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"policykernel/internal/compliance/facts"
	"policykernel/internal/compliance/models"
	"policykernel/internal/compliance/predicate"
	"policykernel/internal/compliance/regime"
	id "policykernel/pkg/domain"
)

// PredicateEvaluator runs an applicability predicate.
type PredicateEvaluator interface {
	Eval(p predicate.Predicate, facts map[string]any) (bool, error)
}

// Result is the outcome of one evaluation.
type Result struct {
	// New holds instances to create; empty when nothing changed.
	New []*models.RequirementInstance
	// Applicable maps every considered template id to its predicate result.
	Applicable map[string]bool
	// Templates indexes the considered templates by id.
	Templates map[string]*regime.RequirementTemplate
	Regimes   []regime.Ref
	Counters  models.Counters
}

// Evaluator is safe for concurrent use.
type Evaluator struct {
	predicates PredicateEvaluator
	newID      func() id.InstanceID
}

type Option func(*Evaluator)

// WithIDGenerator overrides instance id generation.
func WithIDGenerator(fn func() id.InstanceID) Option {
	return func(e *Evaluator) {
		e.newID = fn
	}
}

func New(predicates PredicateEvaluator, opts ...Option) *Evaluator {
	e := &Evaluator{
		predicates: predicates,
		newID:      func() id.InstanceID { return id.InstanceID(uuid.New()) },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every template of every regime against f.
//
// Applicable templates without an asset-level instance produce a new
// REQUIRED instance. Instances whose template no longer applies are kept and
// only dropped from the counters. Any predicate error aborts the evaluation.
func (e *Evaluator) Evaluate(f facts.Facts, regimes []*regime.Regime, existing []*models.RequirementInstance, assetID id.AssetID, now time.Time) (*Result, error) {
	activation := f.Activation()
	res := &Result{
		Applicable: make(map[string]bool),
		Templates:  make(map[string]*regime.RequirementTemplate),
	}

	byTemplate := make(map[string]*models.RequirementInstance, len(existing))
	for _, inst := range existing {
		if inst.AssetID == assetID && inst.IsAssetLevel() {
			byTemplate[inst.TemplateID] = inst
		}
	}

	for _, reg := range regimes {
		res.Regimes = append(res.Regimes, reg.Ref())
		for i := range reg.Templates {
			t := &reg.Templates[i]
			ok, err := e.predicates.Eval(t.Applicability, activation)
			if err != nil {
				return nil, fmt.Errorf("template %s (%s@%s): %w", t.ID, reg.ID, reg.Version, err)
			}
			res.Counters.Evaluated++
			res.Templates[t.ID] = t
			res.Applicable[t.ID] = ok
			if !ok {
				continue
			}
			res.Counters.Applicable++
			if _, exists := byTemplate[t.ID]; exists {
				continue
			}
			inst := models.NewRequired(e.newID(), assetID, t.ID, reg.ID, reg.Version.String(),
				t.RequiresPlatformAcknowledgement, now)
			byTemplate[t.ID] = inst
			res.New = append(res.New, inst)
		}
	}

	for templateID, inst := range byTemplate {
		if !res.Applicable[templateID] {
			continue
		}
		countStatus(&res.Counters, inst, f.AssetClass)
	}
	return res, nil
}

func countStatus(c *models.Counters, inst *models.RequirementInstance, class id.AssetClass) {
	switch inst.Status {
	case models.StatusRequired:
		c.Required++
	case models.StatusSatisfied:
		c.Satisfied++
		if inst.AwaitingAcknowledgement(class) {
			c.PendingAcknowledgement++
		}
	case models.StatusException:
		c.Exceptions++
	}
}

// Browse returns AVAILABLE pseudo-instances for every applicable template.
// Nothing is bound to an asset and nothing is persisted.
func (e *Evaluator) Browse(f facts.Facts, regimes []*regime.Regime) ([]*models.RequirementInstance, error) {
	activation := f.Activation()
	var out []*models.RequirementInstance
	for _, reg := range regimes {
		for i := range reg.Templates {
			t := &reg.Templates[i]
			ok, err := e.predicates.Eval(t.Applicability, activation)
			if err != nil {
				return nil, fmt.Errorf("template %s (%s@%s): %w", t.ID, reg.ID, reg.Version, err)
			}
			if !ok {
				continue
			}
			out = append(out, &models.RequirementInstance{
				TemplateID:          t.ID,
				RegimeID:            reg.ID,
				RegimeVersion:       reg.Version.String(),
				Status:              models.StatusAvailable,
				RequiresPlatformAck: t.RequiresPlatformAcknowledgement,
			})
		}
	}
	return out, nil
}
