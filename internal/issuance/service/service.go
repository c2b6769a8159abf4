package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	compliancemodels "policykernel/internal/compliance/models"
	complianceservice "policykernel/internal/compliance/service"
	"policykernel/internal/enforcement"
	"policykernel/internal/issuance/idempotency"
	"policykernel/internal/issuance/metrics"
	"policykernel/internal/issuance/models"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
	"policykernel/pkg/platform/audit"
	"policykernel/pkg/platform/sentinel"
	txcontext "policykernel/pkg/platform/tx"
	"policykernel/pkg/requestcontext"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	maxIdempotencyKeyLen  = 255
)

var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

type Store interface {
	Create(ctx context.Context, iss *models.Issuance) error
	FindByID(ctx context.Context, issuanceID id.IssuanceID) (*models.Issuance, error)
	FindByIdempotencyKey(ctx context.Context, assetID id.AssetID, key string) (*models.Issuance, error)
	ListByAsset(ctx context.Context, assetID id.AssetID) ([]*models.Issuance, error)
}

// errKeyTaken means another request committed an issuance under the same key.
var errKeyTaken = errors.New("idempotency key already used")

// Compliance is the slice of the compliance service issuance depends on.
type Compliance interface {
	Assess(ctx context.Context, assetID id.AssetID) (*complianceservice.Assessment, error)
	Snapshot(ctx context.Context, assetID id.AssetID, issuanceID id.IssuanceID) ([]*compliancemodels.RequirementInstance, error)
	List(ctx context.Context, filter compliancemodels.Filter, page compliancemodels.Page) (*compliancemodels.ListResult, error)
}

type Gate interface {
	Position(ctx context.Context, assetID id.AssetID) (*enforcement.Position, error)
}

type Authorizations interface {
	IsAuthorized(ctx context.Context, assetID id.AssetID, holder string) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	compliance     Compliance
	gate           Gate
	authorizations Authorizations
	idempotency    idempotency.Store
	flight         singleflight.Group
	tx             txcontext.Runner
	ttl            time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
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

func WithTx(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, compliance Compliance, gate Gate, authorizations Authorizations, idem idempotency.Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		compliance:     compliance,
		gate:           gate,
		authorizations: authorizations,
		idempotency:    idem,
		tx:             txcontext.NopRunner{},
		ttl:            defaultIdempotencyTTL,
		logger:         slog.Default(),
		tracer:         otel.Tracer("policykernel/issuance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preflight collects every blocker to issuing assetID. holder is optional;
// without it the authorization check is skipped.
func (s *Service) Preflight(ctx context.Context, assetID id.AssetID, holder string) (*models.Preflight, error) {
	ctx, span := s.tracer.Start(ctx, "issuance.Preflight",
		trace.WithAttributes(attribute.String("asset_id", assetID.String())))
	defer span.End()

	a, err := s.compliance.Assess(ctx, assetID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	pos, err := s.gate.Position(ctx, assetID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	p := &models.Preflight{AssetID: assetID, Blockers: []models.Blocker{}}
	if !a.Record.Asset.IsActive() {
		p.Blockers = append(p.Blockers, models.Blocker{
			Code:    models.BlockerAssetNotActive,
			Message: "asset is " + string(a.Record.Asset.Status),
			Hint:    "activate the asset in the registry",
		})
	}

	class := a.Class()
	var outstanding, unacknowledged []string
	for _, inst := range a.Current() {
		switch {
		case inst.AwaitingAcknowledgement(class):
			unacknowledged = append(unacknowledged, inst.TemplateID)
		case !inst.IsDischarged(class):
			outstanding = append(outstanding, inst.TemplateID)
		}
	}
	if len(outstanding) > 0 {
		p.Blockers = append(p.Blockers, models.Blocker{
			Code:    models.BlockerRequirementsOutstanding,
			Message: "requirements not satisfied: " + strings.Join(outstanding, ", "),
			Hint:    "satisfy or record an exception for each requirement",
		})
	}
	if len(unacknowledged) > 0 {
		p.Blockers = append(p.Blockers, models.Blocker{
			Code:    models.BlockerAcknowledgementPending,
			Message: "platform acknowledgement pending: " + strings.Join(unacknowledged, ", "),
			Hint:    "a platform operator must acknowledge these requirements",
		})
	}

	if missing := pos.Plan.Unrealisable(); len(missing) > 0 {
		kinds := make([]string, 0, len(missing))
		for _, k := range missing {
			kinds = append(kinds, string(k))
		}
		p.Blockers = append(p.Blockers, models.Blocker{
			Code:    models.BlockerEnforcementNotReady,
			Message: "no " + string(pos.Plan.ActiveLedger) + " capability for " + strings.Join(kinds, ", "),
			Hint:    "issue on a ledger whose adapter supports every active intent",
		})
	}

	if holder != "" && pos.Intents.IsActive(enforcement.IntentRequireAuthorization) {
		ok, err := s.authorizations.IsAuthorized(ctx, assetID, holder)
		if err != nil {
			return nil, s.fail(span, err)
		}
		if !ok {
			p.Blockers = append(p.Blockers, models.Blocker{
				Code:    models.BlockerAuthorizationMissing,
				Message: "holder " + holder + " has no authorized trustline",
				Hint:    "invite the holder and authorize the trustline",
			})
		}
	}

	p.OK = len(p.Blockers) == 0
	for _, b := range p.Blockers {
		s.metrics.IncBlocker(string(b.Code))
	}
	return p, nil
}

// CreateRequest is the logical body of an issuance.
type CreateRequest struct {
	HolderAddress string `json:"holderAddress"`
	Amount        string `json:"amount"`
}

// Result is an issuance plus whether it was served from a previous request
// with the same key.
type Result struct {
	Issuance *models.Issuance `json:"issuance"`
	Replayed bool             `json:"replayed"`
}

// BlockedError is returned by Create when preflight fails. It unwraps to a
// validation error so transports map it like any other.
type BlockedError struct {
	Preflight *models.Preflight
}

func (e *BlockedError) Error() string {
	return e.Unwrap().Error()
}

func (e *BlockedError) Unwrap() error {
	codes := make([]string, 0, len(e.Preflight.Blockers))
	for _, b := range e.Preflight.Blockers {
		codes = append(codes, string(b.Code))
	}
	return dErrors.NewReason(dErrors.CodeValidation, dErrors.ReasonPreflightFailed,
		"issuance blocked: "+strings.Join(codes, ", "))
}

type outcome struct {
	result *Result
	hash   string
}

// Create issues an asset once per idempotency key. A replay with the same
// key and body returns the original issuance; a different body under the
// same key is a conflict. Concurrent calls with one key share a single run.
func (s *Service) Create(ctx context.Context, assetID id.AssetID, key string, req CreateRequest) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "issuance.Create",
		trace.WithAttributes(attribute.String("asset_id", assetID.String())))
	defer span.End()

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, s.fail(span, dErrors.New(dErrors.CodeBadRequest, "Idempotency-Key header is required"))
	}
	if len(key) > maxIdempotencyKeyLen {
		return nil, s.fail(span, dErrors.New(dErrors.CodeValidation, "Idempotency-Key must be at most 255 characters"))
	}
	req.HolderAddress = strings.TrimSpace(req.HolderAddress)
	req.Amount = strings.TrimSpace(req.Amount)
	if req.HolderAddress == "" {
		return nil, s.fail(span, dErrors.New(dErrors.CodeValidation, "holderAddress is required"))
	}
	if !amountPattern.MatchString(req.Amount) || strings.Trim(req.Amount, "0.") == "" {
		return nil, s.fail(span, dErrors.New(dErrors.CodeValidation, "amount must be a positive decimal"))
	}
	hash, err := requestHash(assetID, req)
	if err != nil {
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash issuance request"))
	}

	v, err, shared := s.flight.Do(scopedKey(assetID, key), func() (any, error) {
		res, err := s.create(ctx, assetID, key, hash, req)
		if err != nil {
			return nil, err
		}
		return &outcome{result: res, hash: hash}, nil
	})
	if shared {
		s.metrics.IncShared()
	}
	if err != nil {
		return nil, s.fail(span, err)
	}
	out := v.(*outcome)
	if out.hash != hash {
		return nil, s.fail(span, mismatch())
	}
	res := *out.result
	return &res, nil
}

func scopedKey(assetID id.AssetID, key string) string {
	return assetID.String() + ":" + key
}

// create owns the key once reserved. The issuance row carries the key too,
// so a lost or stale reservation record never leads to a second issuance.
func (s *Service) create(ctx context.Context, assetID id.AssetID, key, hash string, req CreateRequest) (*Result, error) {
	now := requestcontext.Now(ctx)
	scoped := scopedKey(assetID, key)
	rec, reserved, err := s.idempotency.Reserve(ctx, scoped, hash, s.ttl)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve idempotency key")
	}
	if !reserved {
		return s.replay(ctx, assetID, key, rec, hash)
	}

	prior, err := s.issuedUnder(ctx, assetID, key)
	if err != nil {
		s.release(ctx, scoped)
		return nil, err
	}
	if prior != nil {
		s.complete(ctx, scoped, prior)
		return s.replayIssuance(ctx, prior, hash)
	}

	iss, err := s.issue(ctx, assetID, key, hash, req, now)
	if errors.Is(err, errKeyTaken) {
		prior, err = s.issuedUnder(ctx, assetID, key)
		if err == nil && prior == nil {
			err = dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonRequestInProgress,
				"a request with this Idempotency-Key is still in progress")
		}
		if err != nil {
			return nil, err
		}
		s.complete(ctx, scoped, prior)
		return s.replayIssuance(ctx, prior, hash)
	}
	if err != nil {
		s.release(ctx, scoped)
		return nil, err
	}
	s.complete(ctx, scoped, iss)
	s.metrics.IncCreated()
	s.logger.InfoContext(ctx, "issuance created",
		"request_id", requestcontext.RequestID(ctx),
		"issuance_id", iss.ID.String(),
		"asset_id", assetID.String(),
		"requirements", len(iss.Requirements),
	)
	return &Result{Issuance: iss}, nil
}

// replay serves a key whose reservation another request holds. A record
// still marked pending is checked against the issuance rows, since the
// owner may have committed without recording its result.
func (s *Service) replay(ctx context.Context, assetID id.AssetID, key string, rec *idempotency.Record, hash string) (*Result, error) {
	if rec.RequestHash != hash {
		return nil, mismatch()
	}
	if rec.Pending() {
		prior, err := s.issuedUnder(ctx, assetID, key)
		if err != nil {
			return nil, err
		}
		if prior == nil {
			return nil, dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonRequestInProgress,
				"a request with this Idempotency-Key is still in progress")
		}
		s.complete(ctx, scopedKey(assetID, key), prior)
		return s.replayIssuance(ctx, prior, hash)
	}
	issuanceID, err := id.ParseIssuanceID(rec.IssuanceID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt idempotency record")
	}
	iss, err := s.Get(ctx, issuanceID)
	if err != nil {
		return nil, err
	}
	s.metrics.IncReplayed()
	return &Result{Issuance: iss, Replayed: true}, nil
}

func (s *Service) replayIssuance(ctx context.Context, prior *models.Issuance, hash string) (*Result, error) {
	if prior.RequestHash != hash {
		return nil, mismatch()
	}
	iss, err := s.Get(ctx, prior.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.IncReplayed()
	return &Result{Issuance: iss, Replayed: true}, nil
}

// issuedUnder returns the issuance committed under key, or nil.
func (s *Service) issuedUnder(ctx context.Context, assetID id.AssetID, key string) (*models.Issuance, error) {
	iss, err := s.store.FindByIdempotencyKey(ctx, assetID, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.translate(err, "failed to load issuance")
	}
	return iss, nil
}

// complete records the result of a key. Failure is logged only: the
// issuance row still answers replays.
func (s *Service) complete(ctx context.Context, scoped string, iss *models.Issuance) {
	rec := idempotency.Record{RequestHash: iss.RequestHash, IssuanceID: iss.ID.String()}
	if err := s.idempotency.Complete(ctx, scoped, rec, s.ttl); err != nil {
		s.logger.ErrorContext(ctx, "failed to record idempotency result",
			"request_id", requestcontext.RequestID(ctx),
			"issuance_id", iss.ID.String(),
			"error", err,
		)
	}
}

func (s *Service) release(ctx context.Context, scoped string) {
	if err := s.idempotency.Release(ctx, scoped); err != nil {
		s.logger.WarnContext(ctx, "failed to release idempotency key",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (s *Service) issue(ctx context.Context, assetID id.AssetID, key, hash string, req CreateRequest, now time.Time) (*models.Issuance, error) {
	pf, err := s.Preflight(ctx, assetID, req.HolderAddress)
	if err != nil {
		return nil, err
	}
	if !pf.OK {
		return nil, &BlockedError{Preflight: pf}
	}

	iss := &models.Issuance{
		ID:            id.IssuanceID(uuid.New()),
		AssetID:       assetID,
		HolderAddress: req.HolderAddress,
		Amount:        req.Amount,
		Status:        models.StatusCreated,
		CreatedBy:     requestcontext.Actor(ctx),
		CreatedAt:     now,

		IdempotencyKey: key,
		RequestHash:    hash,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, iss); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return errKeyTaken
			}
			return err
		}
		snapshot, err := s.compliance.Snapshot(ctx, assetID, iss.ID)
		if err != nil {
			return err
		}
		iss.Requirements = snapshot
		return s.emit(ctx, iss)
	})
	if errors.Is(err, errKeyTaken) {
		return nil, err
	}
	if err != nil {
		return nil, s.translate(err, "failed to create issuance")
	}
	return iss, nil
}

// Get returns an issuance with its frozen requirement snapshot.
func (s *Service) Get(ctx context.Context, issuanceID id.IssuanceID) (*models.Issuance, error) {
	iss, err := s.store.FindByID(ctx, issuanceID)
	if err != nil {
		return nil, s.translate(err, "failed to load issuance")
	}
	res, err := s.compliance.List(ctx, compliancemodels.Filter{IssuanceID: &issuanceID, Scope: compliancemodels.ScopeAll},
		compliancemodels.Page{Limit: compliancemodels.MaxPageLimit})
	if err != nil {
		return nil, err
	}
	iss.Requirements = res.Items
	return iss, nil
}

func (s *Service) List(ctx context.Context, assetID id.AssetID) ([]*models.Issuance, error) {
	list, err := s.store.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, s.translate(err, "failed to list issuances")
	}
	return list, nil
}

// requestHash is the SHA-256 of the canonical JSON of the logical request.
func requestHash(assetID id.AssetID, req CreateRequest) (string, error) {
	raw, err := json.Marshal(struct {
		AssetID string `json:"assetId"`
		CreateRequest
	}{assetID.String(), req})
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Service) emit(ctx context.Context, iss *models.Issuance) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, audit.Event{
		AssetID:   iss.AssetID.String(),
		Subject:   iss.HolderAddress,
		Action:    string(audit.EventIssuanceCreated),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   requestcontext.Actor(ctx),
		Timestamp: iss.CreatedAt,
		Details: map[string]string{
			"issuance_id": iss.ID.String(),
			"amount":      iss.Amount,
		},
	})
}

func (s *Service) translate(err error, msg string) error {
	switch {
	case dErrors.Is(err):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "issuance not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "issuance already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func mismatch() error {
	return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonIdempotencyMismatch,
		"Idempotency-Key was already used with a different request")
}
