// Package service orchestrates requirement evaluation and the requirement
// instance lifecycle: status changes, platform acknowledgement, listing,
// counters and issuance snapshots.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	assetmodels "policykernel/internal/asset/models"
	"policykernel/internal/compliance/evaluator"
	"policykernel/internal/compliance/facts"
	"policykernel/internal/compliance/metrics"
	"policykernel/internal/compliance/models"
	"policykernel/internal/compliance/regime"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
	"policykernel/pkg/platform/audit"
	"policykernel/pkg/platform/sentinel"
	txcontext "policykernel/pkg/platform/tx"
	"policykernel/pkg/requestcontext"
)

// maxEvaluateAttempts bounds retries when a concurrent evaluation of the same
// asset wins the unique (asset, template) race.
const maxEvaluateAttempts = 3

type Store interface {
	AppendAll(ctx context.Context, instances []*models.RequirementInstance) error
	FindByID(ctx context.Context, instanceID id.InstanceID) (*models.RequirementInstance, error)
	ListByAsset(ctx context.Context, assetID id.AssetID) ([]*models.RequirementInstance, error)
	List(ctx context.Context, filter models.Filter, page models.Page) (*models.ListResult, error)
	Execute(ctx context.Context, instanceID id.InstanceID, validate func(*models.RequirementInstance) error, mutate func(*models.RequirementInstance)) (*models.RequirementInstance, error)
}

type FactSource interface {
	ForAsset(ctx context.Context, assetID id.AssetID) (facts.Facts, *assetmodels.Record, error)
}

type RegimeSource interface {
	Active(at time.Time) []*regime.Regime
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is safe for concurrent use. Evaluation computes the full candidate
// set before writing, so readers never observe a partial evaluation.
type Service struct {
	facts          FactSource
	regimes        RegimeSource
	evaluator      *evaluator.Evaluator
	store          Store
	tx             txcontext.Runner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	newID          func() id.InstanceID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx sets the transactional boundary wrapping writes and their audit
// events. Defaults to txcontext.NopRunner.
func WithTx(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithIDGenerator overrides snapshot instance ids.
func WithIDGenerator(fn func() id.InstanceID) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func New(factSource FactSource, regimes RegimeSource, eval *evaluator.Evaluator, store Store, opts ...Option) *Service {
	s := &Service{
		facts:     factSource,
		regimes:   regimes,
		evaluator: eval,
		store:     store,
		tx:        txcontext.NopRunner{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("policykernel/compliance"),
		newID:     func() id.InstanceID { return id.InstanceID(uuid.New()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assessment is the compliance position of an asset at one instant. It is
// recomputed on every call.
type Assessment struct {
	AssetID id.AssetID
	Facts   facts.Facts
	Record  *assetmodels.Record
	Regimes []regime.Ref
	// Instances are the stored asset-level instances, applicable or not.
	Instances []*models.RequirementInstance
	// Missing are REQUIRED candidates for applicable templates that have not
	// been persisted yet.
	Missing    []*models.RequirementInstance
	Applicable map[string]bool
	Templates  map[string]*regime.RequirementTemplate
	Counters   models.Counters
}

func (a *Assessment) Class() id.AssetClass {
	return a.Record.Asset.Class
}

// Current returns stored and missing instances whose template applies today.
func (a *Assessment) Current() []*models.RequirementInstance {
	out := make([]*models.RequirementInstance, 0, len(a.Instances)+len(a.Missing))
	for _, inst := range a.Instances {
		if a.Applicable[inst.TemplateID] {
			out = append(out, inst)
		}
	}
	return append(out, a.Missing...)
}

// Assess builds facts, evaluates the active regimes and loads stored
// instances without writing anything.
func (s *Service) Assess(ctx context.Context, assetID id.AssetID) (*Assessment, error) {
	now := requestcontext.Now(ctx)
	f, rec, err := s.facts.ForAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load requirement instances")
	}
	res, err := s.evaluator.Evaluate(f, s.regimes.Active(now), existing, assetID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "requirement evaluation failed")
	}
	return &Assessment{
		AssetID:    assetID,
		Facts:      f,
		Record:     rec,
		Regimes:    res.Regimes,
		Instances:  existing,
		Missing:    res.New,
		Applicable: res.Applicable,
		Templates:  res.Templates,
		Counters:   res.Counters,
	}, nil
}

// EvaluationResult reports one evaluation.
type EvaluationResult struct {
	AssetID  id.AssetID                    `json:"assetId"`
	Regimes  []regime.Ref                  `json:"regimes"`
	Created  []*models.RequirementInstance `json:"created"`
	Counters models.Counters               `json:"counters"`
}

// Evaluate re-evaluates an asset and persists new REQUIRED instances in one
// write. Re-running with unchanged facts creates nothing and leaves existing
// statuses untouched. A non-nil productID must match the asset's product.
func (s *Service) Evaluate(ctx context.Context, assetID id.AssetID, productID id.ProductID) (*EvaluationResult, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.Evaluate",
		trace.WithAttributes(attribute.String("asset_id", assetID.String())))
	defer span.End()
	start := time.Now()

	for attempt := 1; ; attempt++ {
		a, err := s.Assess(ctx, assetID)
		if err != nil {
			s.failSpan(span, err)
			s.metrics.ObserveEvaluation("error", 0, time.Since(start))
			return nil, err
		}
		if !productID.IsNil() && a.Record.Product.ID != productID {
			return nil, dErrors.New(dErrors.CodeValidation, "productId does not match the asset's product")
		}
		result := &EvaluationResult{
			AssetID:  assetID,
			Regimes:  a.Regimes,
			Created:  a.Missing,
			Counters: a.Counters,
		}
		if result.Created == nil {
			result.Created = []*models.RequirementInstance{}
		}
		if len(a.Missing) == 0 {
			s.metrics.ObserveEvaluation("unchanged", 0, time.Since(start))
			return result, nil
		}

		err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.store.AppendAll(ctx, a.Missing); err != nil {
				return err
			}
			return s.emit(ctx, audit.EventComplianceEvaluated, assetID, "", "", map[string]string{
				"created":    strconv.Itoa(len(a.Missing)),
				"evaluated":  strconv.Itoa(a.Counters.Evaluated),
				"applicable": strconv.Itoa(a.Counters.Applicable),
			})
		})
		if errors.Is(err, sentinel.ErrConflict) && attempt < maxEvaluateAttempts {
			s.logger.DebugContext(ctx, "concurrent evaluation detected, retrying",
				"request_id", requestcontext.RequestID(ctx),
				"asset_id", assetID.String(),
				"attempt", attempt,
			)
			continue
		}
		if errors.Is(err, sentinel.ErrConflict) {
			s.failSpan(span, err)
			return nil, dErrors.New(dErrors.CodeConflict, "asset is being evaluated concurrently")
		}
		if err != nil {
			s.failSpan(span, err)
			s.metrics.ObserveEvaluation("error", 0, time.Since(start))
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist requirement instances")
		}

		span.SetAttributes(attribute.Int("instances_created", len(a.Missing)))
		s.metrics.ObserveEvaluation("created", len(a.Missing), time.Since(start))
		s.logger.InfoContext(ctx, "requirement instances created",
			"request_id", requestcontext.RequestID(ctx),
			"asset_id", assetID.String(),
			"created", len(a.Missing),
			"applicable", a.Counters.Applicable,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, nil
	}
}

// UpdateStatusRequest changes the status of an asset-level instance.
type UpdateStatusRequest struct {
	Status          models.Status
	ExceptionReason string
	Rationale       string
	EvidenceRefs    []string
}

// UpdateStatus moves a REQUIRED instance to SATISFIED or EXCEPTION. The
// change and its audit event commit together.
func (s *Service) UpdateStatus(ctx context.Context, instanceID id.InstanceID, req UpdateStatusRequest) (*models.RequirementInstance, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.UpdateStatus",
		trace.WithAttributes(attribute.String("instance_id", instanceID.String()), attribute.String("status", string(req.Status))))
	defer span.End()
	now := requestcontext.Now(ctx)

	var updated *models.RequirementInstance
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		var from models.Status
		updated, err = s.store.Execute(ctx, instanceID,
			func(r *models.RequirementInstance) error {
				from = r.Status
				return r.CanUpdateStatus(req.Status, req.ExceptionReason)
			},
			func(r *models.RequirementInstance) {
				r.ApplyStatus(req.Status, req.ExceptionReason, req.Rationale, now)
				r.EvidenceRefs = append(r.EvidenceRefs, req.EvidenceRefs...)
			},
		)
		if err != nil {
			return err
		}
		return s.emit(ctx, audit.EventRequirementStatusChanged, updated.AssetID, updated.TemplateID,
			updated.ExceptionReason, map[string]string{
				"instance_id": updated.ID.String(),
				"from":        string(from),
				"to":          string(updated.Status),
			})
	})
	if err != nil {
		s.failSpan(span, err)
		return nil, s.translate(err, "failed to update requirement status")
	}

	s.metrics.IncStatusChange(string(updated.Status))
	s.logger.InfoContext(ctx, "requirement status changed",
		"request_id", requestcontext.RequestID(ctx),
		"asset_id", updated.AssetID.String(),
		"instance_id", updated.ID.String(),
		"template_id", updated.TemplateID,
		"status", updated.Status,
		"actor", requestcontext.Actor(ctx),
	)
	return updated, nil
}

// PlatformAcknowledge records the platform co-sign on a SATISFIED instance of
// an ART or EMT asset. The asset class is read at call time.
func (s *Service) PlatformAcknowledge(ctx context.Context, instanceID id.InstanceID, reason string) (*models.RequirementInstance, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.PlatformAcknowledge",
		trace.WithAttributes(attribute.String("instance_id", instanceID.String())))
	defer span.End()
	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)

	current, err := s.store.FindByID(ctx, instanceID)
	if err != nil {
		return nil, s.translate(err, "failed to load requirement")
	}
	_, rec, err := s.facts.ForAsset(ctx, current.AssetID)
	if err != nil {
		return nil, err
	}
	class := rec.Asset.Class

	var updated *models.RequirementInstance
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.store.Execute(ctx, instanceID,
			func(r *models.RequirementInstance) error {
				if !r.IsAssetLevel() {
					return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonInvalidTransition,
						"issuance snapshot instances are frozen")
				}
				return r.CanAcknowledge(class, reason)
			},
			func(r *models.RequirementInstance) {
				r.ApplyAcknowledgement(actor, reason, now)
			},
		)
		if err != nil {
			return err
		}
		return s.emit(ctx, audit.EventRequirementAcknowledged, updated.AssetID, updated.TemplateID,
			updated.PlatformAcknowledgmentReason, map[string]string{
				"instance_id": updated.ID.String(),
				"asset_class": string(class),
			})
	})
	if err != nil {
		s.failSpan(span, err)
		return nil, s.translate(err, "failed to acknowledge requirement")
	}

	s.metrics.IncAcknowledgement()
	s.logger.InfoContext(ctx, "requirement platform acknowledged",
		"request_id", requestcontext.RequestID(ctx),
		"asset_id", updated.AssetID.String(),
		"instance_id", updated.ID.String(),
		"actor", actor,
	)
	return updated, nil
}

// Get returns one instance.
func (s *Service) Get(ctx context.Context, instanceID id.InstanceID) (*models.RequirementInstance, error) {
	inst, err := s.store.FindByID(ctx, instanceID)
	if err != nil {
		return nil, s.translate(err, "failed to load requirement")
	}
	return inst, nil
}

func (s *Service) List(ctx context.Context, filter models.Filter, page models.Page) (*models.ListResult, error) {
	res, err := s.store.List(ctx, filter, page)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requirements")
	}
	return res, nil
}

// Summary is the counter view of an asset.
type Summary struct {
	AssetID    id.AssetID      `json:"assetId"`
	AssetClass id.AssetClass   `json:"assetClass"`
	Regimes    []regime.Ref    `json:"regimes"`
	Counters   models.Counters `json:"counters"`
}

// Summary derives counters from current facts and stored instances. Applicable
// templates that were never persisted count as REQUIRED.
func (s *Service) Summary(ctx context.Context, assetID id.AssetID) (*Summary, error) {
	a, err := s.Assess(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return &Summary{AssetID: assetID, AssetClass: a.Class(), Regimes: a.Regimes, Counters: a.Counters}, nil
}

// Templates lists the templates that would apply to an asset as AVAILABLE
// pseudo-instances. Nothing is persisted.
func (s *Service) Templates(ctx context.Context, assetID id.AssetID) ([]*models.RequirementInstance, error) {
	f, _, err := s.facts.ForAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	out, err := s.evaluator.Browse(f, s.regimes.Active(requestcontext.Now(ctx)))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "template browsing failed")
	}
	for _, inst := range out {
		inst.AssetID = assetID
	}
	if out == nil {
		out = []*models.RequirementInstance{}
	}
	return out, nil
}

// Snapshot freezes the currently applicable asset-level instances under an
// issuance. Missing candidates are persisted first so the snapshot covers
// every applicable template. Runs inside the caller's transaction when one
// is active.
func (s *Service) Snapshot(ctx context.Context, assetID id.AssetID, issuanceID id.IssuanceID) ([]*models.RequirementInstance, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.Snapshot",
		trace.WithAttributes(attribute.String("asset_id", assetID.String()), attribute.String("issuance_id", issuanceID.String())))
	defer span.End()
	now := requestcontext.Now(ctx)

	a, err := s.Assess(ctx, assetID)
	if err != nil {
		s.failSpan(span, err)
		return nil, err
	}
	current := a.Current()
	snapshot := make([]*models.RequirementInstance, 0, len(current))
	for _, inst := range current {
		snapshot = append(snapshot, inst.SnapshotFor(s.newID(), issuanceID, now))
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.AppendAll(ctx, append(append([]*models.RequirementInstance{}, a.Missing...), snapshot...)); err != nil {
			return err
		}
		return s.emit(ctx, audit.EventRequirementsSnapshotted, assetID, issuanceID.String(), "", map[string]string{
			"issuance_id": issuanceID.String(),
			"instances":   strconv.Itoa(len(snapshot)),
		})
	})
	if err != nil {
		s.failSpan(span, err)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "asset is being evaluated concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot requirements")
	}
	s.metrics.IncSnapshot()
	return snapshot, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, assetID id.AssetID, subject, reason string, details map[string]string) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, audit.Event{
		AssetID:   assetID.String(),
		Subject:   subject,
		Action:    string(action),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   requestcontext.Actor(ctx),
		Timestamp: requestcontext.Now(ctx),
		Details:   details,
	})
}

// translate maps store sentinels to domain errors; domain errors pass through.
func (s *Service) translate(err error, msg string) error {
	switch {
	case dErrors.Is(err):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "requirement not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
