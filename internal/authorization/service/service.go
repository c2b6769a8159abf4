// Package service runs the holder/issuer authorization handshake. Every
// operation re-reads the asset's enforcement position so a compliance change
// takes effect on the next call.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"policykernel/internal/authorization/metrics"
	"policykernel/internal/authorization/models"
	"policykernel/internal/enforcement"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
	"policykernel/pkg/platform/audit"
	"policykernel/pkg/platform/sentinel"
	txcontext "policykernel/pkg/platform/tx"
	"policykernel/pkg/requestcontext"
)

const defaultInviteTTL = 24 * time.Hour

type Store interface {
	CreateRequest(ctx context.Context, req *models.AuthorizationRequest) error
	FindRequest(ctx context.Context, reqID id.AuthorizationRequestID) (*models.AuthorizationRequest, error)
	InvitedRequest(ctx context.Context, assetID id.AssetID, holder string) (*models.AuthorizationRequest, error)
	UpdateRequest(ctx context.Context, req *models.AuthorizationRequest) error
	CreateAuthorization(ctx context.Context, auth *models.Authorization) error
	FindAuthorization(ctx context.Context, authID id.AuthorizationID) (*models.Authorization, error)
	FindByRequest(ctx context.Context, reqID id.AuthorizationRequestID) (*models.Authorization, error)
	ActiveAuthorization(ctx context.Context, assetID id.AssetID, holder string) (*models.Authorization, error)
	UpdateAuthorization(ctx context.Context, auth *models.Authorization) error
	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
	History(ctx context.Context, authID id.AuthorizationID) ([]*models.HistoryEntry, error)
}

// Gate supplies the live enforcement position of an asset.
type Gate interface {
	Position(ctx context.Context, assetID id.AssetID) (*enforcement.Position, error)
}

// Invitations mints and verifies holder invitation tokens.
type Invitations interface {
	Mint(reqID id.AuthorizationRequestID, assetID id.AssetID, holder string, now, expiresAt time.Time) (string, error)
	URL(token string) string
	Verify(token string, now time.Time) (id.AuthorizationRequestID, error)
}

// InviteMarker makes invitations single-use across replicas.
type InviteMarker interface {
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jti string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	gate           Gate
	invites        Invitations
	marker         InviteMarker
	pairs          *pairTx
	inviteTTL      time.Duration
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

// WithTx runs each transition inside runner, under the per-pair lock.
func WithTx(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.pairs.inner = runner
	}
}

func WithInviteTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.inviteTTL = ttl
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, gate Gate, invites Invitations, marker InviteMarker, opts ...Option) *Service {
	s := &Service{
		store:     store,
		gate:      gate,
		invites:   invites,
		marker:    marker,
		pairs:     newPairTx(txcontext.NopRunner{}),
		inviteTTL: defaultInviteTTL,
		logger:    slog.Default(),
		tracer:    otel.Tracer("policykernel/authorization"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pairs.onWait = func(d time.Duration) {
		s.metrics.ObserveLockWait(float64(d.Microseconds()) / 1000)
	}
	return s
}

// CreateRequest is an invitation for a holder that has no trustline yet.
type CreateRequest struct {
	AssetID        id.AssetID
	HolderAddress  string
	RequestedLimit string
	InitiatedBy    models.Initiator
}

// Invitation is a created request plus its shareable URL.
type Invitation struct {
	Request *models.AuthorizationRequest `json:"request"`
	AuthURL string                       `json:"authUrl"`
}

// Create issues an invitation. It fails with DuplicateRequest when the pair
// already has a non-closed authorization or a pending invitation.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Invitation, error) {
	ctx, span := s.tracer.Start(ctx, "authorization.Create",
		trace.WithAttributes(attribute.String("asset_id", req.AssetID.String())))
	defer span.End()
	now := requestcontext.Now(ctx)

	pos, err := s.gate.Position(ctx, req.AssetID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	holder, err := models.NormalizeAddress(pos.Asset.Asset.Ledger, req.HolderAddress)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := models.ValidateLimit(req.RequestedLimit); err != nil {
		return nil, s.fail(span, err)
	}
	initiatedBy := req.InitiatedBy
	if initiatedBy == "" {
		initiatedBy = models.InitiatedByIssuer
	}

	var inv *Invitation
	err = s.pairs.run(ctx, req.AssetID, holder, func(ctx context.Context) error {
		if err := s.ensurePairFree(ctx, req.AssetID, holder, now); err != nil {
			return err
		}
		ar := &models.AuthorizationRequest{
			ID:             id.AuthorizationRequestID(uuid.New()),
			AssetID:        req.AssetID,
			HolderAddress:  holder,
			RequestedLimit: strings.TrimSpace(req.RequestedLimit),
			Status:         models.RequestInvited,
			InitiatedBy:    initiatedBy,
			ExpiresAt:      now.Add(s.inviteTTL),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.CreateRequest(ctx, ar); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return duplicate()
			}
			return err
		}
		token, err := s.invites.Mint(ar.ID, ar.AssetID, holder, now, ar.ExpiresAt)
		if err != nil {
			return err
		}
		inv = &Invitation{Request: ar, AuthURL: s.invites.URL(token)}
		return s.emit(ctx, audit.EventAuthorizationRequested, req.AssetID, holder, map[string]string{
			"request_id":   ar.ID.String(),
			"initiated_by": string(initiatedBy),
			"expires_at":   ar.ExpiresAt.Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, s.fail(span, s.translate(err, "failed to create authorization request"))
	}
	s.metrics.IncInvite()
	s.logger.InfoContext(ctx, "authorization invitation issued",
		"request_id", requestcontext.RequestID(ctx),
		"authorization_request_id", inv.Request.ID.String(),
		"asset_id", req.AssetID.String(),
		"holder", holder,
	)
	return inv, nil
}

// ensurePairFree rejects a pair that is already owned. A stale invitation
// is marked EXPIRED so it no longer holds the pair.
func (s *Service) ensurePairFree(ctx context.Context, assetID id.AssetID, holder string, now time.Time) error {
	if _, err := s.store.ActiveAuthorization(ctx, assetID, holder); err == nil {
		return duplicate()
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	pending, err := s.store.InvitedRequest(ctx, assetID, holder)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil
	case err != nil:
		return err
	case pending.IsPending(now):
		return duplicate()
	}
	pending.Status = models.RequestExpired
	pending.UpdatedAt = now
	return s.store.UpdateRequest(ctx, pending)
}

// Fulfill consumes an invitation once the holder has opened the trustline.
// With RequireAuthorization active the authorization waits for the issuer;
// otherwise it is authorized at once by the system.
func (s *Service) Fulfill(ctx context.Context, token, txHash string) (*models.Authorization, error) {
	ctx, span := s.tracer.Start(ctx, "authorization.Fulfill")
	defer span.End()
	now := requestcontext.Now(ctx)

	reqID, err := s.invites.Verify(token, now)
	if err != nil {
		return nil, s.fail(span, err)
	}
	ar, err := s.store.FindRequest(ctx, reqID)
	if err != nil {
		return nil, s.fail(span, s.translate(err, "failed to load authorization request"))
	}
	span.SetAttributes(attribute.String("asset_id", ar.AssetID.String()))
	pos, err := s.gate.Position(ctx, ar.AssetID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	var (
		out     *models.Authorization
		claimed bool
	)
	err = s.pairs.run(ctx, ar.AssetID, ar.HolderAddress, func(ctx context.Context) error {
		ar, err := s.store.FindRequest(ctx, reqID)
		if err != nil {
			return err
		}
		if ar.Status == models.RequestFulfilled {
			return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonInvitationUsed, "authorization invitation was already used")
		}
		if ar.IsExpired(now) {
			return expired()
		}
		claimed, err = s.marker.Claim(ctx, ar.ID.String(), ar.ExpiresAt.Sub(now))
		if err != nil {
			return err
		}
		if !claimed {
			return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonInvitationUsed, "authorization invitation was already used")
		}
		out, err = s.fulfillLocked(ctx, ar, pos, txHash, now)
		return err
	})
	if err != nil {
		// The claim must not outlive a rolled back fulfilment, including a
		// failed commit.
		if claimed {
			s.releaseClaim(ctx, reqID)
		}
		return nil, s.fail(span, s.translate(err, "failed to fulfill authorization invitation"))
	}
	s.logger.InfoContext(ctx, "authorization invitation fulfilled",
		"request_id", requestcontext.RequestID(ctx),
		"authorization_id", out.ID.String(),
		"status", out.Status,
	)
	return out, nil
}

func (s *Service) releaseClaim(ctx context.Context, reqID id.AuthorizationRequestID) {
	if err := s.marker.Release(context.WithoutCancel(ctx), reqID.String()); err != nil {
		s.logger.WarnContext(ctx, "failed to release invitation claim",
			"request_id", requestcontext.RequestID(ctx),
			"authorization_request_id", reqID.String(),
			"error", err,
		)
	}
}

func (s *Service) fulfillLocked(ctx context.Context, ar *models.AuthorizationRequest, pos *enforcement.Position, txHash string, now time.Time) (*models.Authorization, error) {
	requested, err := models.Next(models.StateNone, models.EventHolderRequest, pos.Intents)
	if err != nil {
		return nil, err
	}
	final, err := models.Next(requested, models.EventHolderFulfill, pos.Intents)
	if err != nil {
		return nil, err
	}
	initiatedBy := ar.InitiatedBy
	if final == models.StateIssuerAuthorized {
		initiatedBy = models.InitiatedBySystem
	}
	reqID := ar.ID
	auth := &models.Authorization{
		ID:            id.AuthorizationID(uuid.New()),
		AssetID:       ar.AssetID,
		HolderAddress: ar.HolderAddress,
		RequestID:     &reqID,
		Currency:      pos.Asset.Asset.Code,
		IssuerAddress: pos.Asset.Asset.IssuerAddress,
		Limit:         ar.RequestedLimit,
		TxHash:        strings.TrimSpace(txHash),
		Status:        final,
		InitiatedBy:   initiatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateAuthorization(ctx, auth); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, duplicate()
		}
		return nil, err
	}
	if err := s.record(ctx, auth, models.EventHolderRequest, models.StateNone, requested, now); err != nil {
		return nil, err
	}
	if err := s.record(ctx, auth, models.EventHolderFulfill, requested, final, now); err != nil {
		return nil, err
	}
	ar.Status = models.RequestFulfilled
	ar.UpdatedAt = now
	if err := s.store.UpdateRequest(ctx, ar); err != nil {
		return nil, err
	}
	return auth, nil
}

// Authorized is an issuer authorization plus the ledger operation that
// realises it, when the active adapter can produce one.
type Authorized struct {
	Authorization *models.Authorization `json:"authorization"`
	Transaction   *enforcement.TxIntent `json:"transaction,omitempty"`
}

// AuthorizeRequest authorizes the authorization created from an invitation.
func (s *Service) AuthorizeRequest(ctx context.Context, reqID id.AuthorizationRequestID) (*Authorized, error) {
	now := requestcontext.Now(ctx)
	ar, err := s.store.FindRequest(ctx, reqID)
	if err != nil {
		return nil, s.translate(err, "failed to load authorization request")
	}
	if ar.IsExpired(now) {
		return nil, expired()
	}
	if ar.Status != models.RequestFulfilled {
		return nil, dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonNotAwaitingAuthorization,
			"holder has not opened the trustline yet")
	}
	auth, err := s.store.FindByRequest(ctx, reqID)
	if err != nil {
		return nil, s.translate(err, "failed to load authorization")
	}
	return s.AuthorizeExisting(ctx, auth.ID)
}

// AuthorizeExisting moves AWAITING_ISSUER_AUTHORIZATION to ISSUER_AUTHORIZED.
// It fails with IntentInactive once RequireAuthorization is no longer active,
// and with RequestExpired when the invitation has expired.
func (s *Service) AuthorizeExisting(ctx context.Context, authID id.AuthorizationID) (*Authorized, error) {
	now := requestcontext.Now(ctx)
	var tx *enforcement.TxIntent
	auth, err := s.transition(ctx, authID, models.EventIssuerAuthorize, func(ctx context.Context, a *models.Authorization, pos *enforcement.Position) error {
		if a.RequestID != nil {
			ar, err := s.store.FindRequest(ctx, *a.RequestID)
			if err != nil {
				return err
			}
			if !now.Before(ar.ExpiresAt) {
				return expired()
			}
		}
		kind, _ := models.RequiredIntent(models.StateAwaitingIssuerAuthorization, models.EventIssuerAuthorize)
		if pos.Plan.Status(kind) != enforcement.StatusReady {
			return nil
		}
		if t, ok := pos.Adapter.AuthorizationTx(trustline(a)); ok {
			tx = &t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Authorized{Authorization: auth, Transaction: tx}, nil
}

// RegisterExternalRequest describes a trustline found on-ledger.
type RegisterExternalRequest struct {
	AssetID        id.AssetID
	HolderAddress  string
	Currency       string
	IssuerAddress  string
	Limit          string
	ExternalSource string
}

// RegisterExternal records a trustline that was created outside the kernel.
func (s *Service) RegisterExternal(ctx context.Context, req RegisterExternalRequest) (*models.Authorization, error) {
	ctx, span := s.tracer.Start(ctx, "authorization.RegisterExternal",
		trace.WithAttributes(attribute.String("asset_id", req.AssetID.String())))
	defer span.End()
	now := requestcontext.Now(ctx)

	pos, err := s.gate.Position(ctx, req.AssetID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	ledger := pos.Asset.Asset.Ledger
	holder, err := models.NormalizeAddress(ledger, req.HolderAddress)
	if err != nil {
		return nil, s.fail(span, err)
	}
	issuer, err := models.NormalizeAddress(ledger, req.IssuerAddress)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := models.ValidateLimit(req.Limit); err != nil {
		return nil, s.fail(span, err)
	}
	if strings.TrimSpace(req.ExternalSource) == "" {
		return nil, s.fail(span, dErrors.New(dErrors.CodeValidation, "externalSource is required"))
	}

	var out *models.Authorization
	err = s.pairs.run(ctx, req.AssetID, holder, func(ctx context.Context) error {
		if _, err := s.store.ActiveAuthorization(ctx, req.AssetID, holder); err == nil {
			return duplicate()
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		to, err := models.Next(models.StateNone, models.EventRegisterExternal, pos.Intents)
		if err != nil {
			return err
		}
		auth := &models.Authorization{
			ID:             id.AuthorizationID(uuid.New()),
			AssetID:        req.AssetID,
			HolderAddress:  holder,
			Currency:       strings.TrimSpace(req.Currency),
			IssuerAddress:  issuer,
			Limit:          strings.TrimSpace(req.Limit),
			Status:         to,
			InitiatedBy:    models.InitiatedBySystem,
			External:       true,
			ExternalSource: strings.TrimSpace(req.ExternalSource),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.CreateAuthorization(ctx, auth); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return duplicate()
			}
			return err
		}
		if err := s.record(ctx, auth, models.EventRegisterExternal, models.StateNone, to, now); err != nil {
			return err
		}
		out = auth
		return s.emit(ctx, audit.EventAuthorizationExternal, req.AssetID, holder, map[string]string{
			"authorization_id": auth.ID.String(),
			"external_source":  auth.ExternalSource,
		})
	})
	if err != nil {
		return nil, s.fail(span, s.translate(err, "failed to register external authorization"))
	}
	return out, nil
}

// LimitChange is an updated authorization plus the holder-side operation
// that applies the limit on ledgers that track it per trustline.
type LimitChange struct {
	Authorization *models.Authorization `json:"authorization"`
	Transaction   *enforcement.TxIntent `json:"transaction,omitempty"`
}

func (s *Service) UpdateLimit(ctx context.Context, authID id.AuthorizationID, limit string) (*LimitChange, error) {
	if err := models.ValidateLimit(limit); err != nil {
		return nil, err
	}
	limit = strings.TrimSpace(limit)
	var tx *enforcement.TxIntent
	auth, err := s.transition(ctx, authID, models.EventUpdateLimit, func(_ context.Context, a *models.Authorization, pos *enforcement.Position) error {
		a.Limit = limit
		// Only XRPL trustlines carry a holder-side limit.
		if pos.Adapter.Ledger != id.LedgerXRPL {
			return nil
		}
		if t, ok := pos.Adapter.HolderSetupTx(trustline(a)); ok {
			tx = &t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &LimitChange{Authorization: auth, Transaction: tx}, nil
}

// Close is terminal.
func (s *Service) Close(ctx context.Context, authID id.AuthorizationID) (*models.Authorization, error) {
	return s.transition(ctx, authID, models.EventClose, nil)
}

// Freeze requires EmergencyStop and a Ready per-holder freeze on the asset's
// own ledger.
func (s *Service) Freeze(ctx context.Context, authID id.AuthorizationID) (*Authorized, error) {
	return s.toggleFreeze(ctx, authID, models.EventFreeze, true)
}

func (s *Service) Unfreeze(ctx context.Context, authID id.AuthorizationID) (*Authorized, error) {
	return s.toggleFreeze(ctx, authID, models.EventUnfreeze, false)
}

func (s *Service) toggleFreeze(ctx context.Context, authID id.AuthorizationID, ev models.Event, freeze bool) (*Authorized, error) {
	var tx *enforcement.TxIntent
	auth, err := s.transition(ctx, authID, ev, func(_ context.Context, a *models.Authorization, pos *enforcement.Position) error {
		kind, _ := models.RequiredIntent(a.Status, ev)
		if pos.Plan.Status(kind) != enforcement.StatusReady {
			return capabilityUnavailable(pos)
		}
		t, ok := pos.Adapter.FreezeTx(trustline(a), freeze)
		if !ok {
			return capabilityUnavailable(pos)
		}
		tx = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Authorized{Authorization: auth, Transaction: tx}, nil
}

// transition applies ev under the pair lock. check runs after the table
// accepted the event and before anything is written; it may mutate the
// authorization.
func (s *Service) transition(ctx context.Context, authID id.AuthorizationID, ev models.Event, check func(context.Context, *models.Authorization, *enforcement.Position) error) (*models.Authorization, error) {
	ctx, span := s.tracer.Start(ctx, "authorization.Transition",
		trace.WithAttributes(attribute.String("authorization_id", authID.String()), attribute.String("event", string(ev))))
	defer span.End()
	now := requestcontext.Now(ctx)

	current, err := s.store.FindAuthorization(ctx, authID)
	if err != nil {
		return nil, s.fail(span, s.translate(err, "failed to load authorization"))
	}
	pos, err := s.gate.Position(ctx, current.AssetID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	var out *models.Authorization
	err = s.pairs.run(ctx, current.AssetID, current.HolderAddress, func(ctx context.Context) error {
		a, err := s.store.FindAuthorization(ctx, authID)
		if err != nil {
			return err
		}
		from := a.Status
		to, err := models.Next(from, ev, pos.Intents)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(ctx, a, pos); err != nil {
				return err
			}
		}
		a.Status = to
		a.UpdatedAt = now
		if err := s.store.UpdateAuthorization(ctx, a); err != nil {
			return err
		}
		if err := s.record(ctx, a, ev, from, to, now); err != nil {
			return err
		}
		out = a
		return s.emit(ctx, audit.EventAuthorizationTransitioned, a.AssetID, a.HolderAddress, map[string]string{
			"authorization_id": a.ID.String(),
			"event":            string(ev),
			"from":             string(from),
			"to":               string(to),
		})
	})
	if err != nil {
		err = s.translate(err, "failed to apply authorization transition")
		var de *dErrors.Error
		if errors.As(err, &de) {
			s.metrics.IncRejection(string(de.Reason))
		}
		s.logger.WarnContext(ctx, "authorization transition rejected",
			"request_id", requestcontext.RequestID(ctx),
			"authorization_id", authID.String(),
			"event", ev,
			"error", err,
		)
		return nil, s.fail(span, err)
	}
	s.metrics.IncTransition(string(ev), string(out.Status))
	return out, nil
}

// HolderStatus is the current standing of an (asset, holder) pair.
type HolderStatus struct {
	Authorization *models.Authorization        `json:"authorization,omitempty"`
	Request       *models.AuthorizationRequest `json:"request,omitempty"`
}

// Lookup returns the active authorization or pending invitation of a pair.
func (s *Service) Lookup(ctx context.Context, assetID id.AssetID, holder string) (*HolderStatus, error) {
	now := requestcontext.Now(ctx)
	holder = models.CanonicalHolder(holder)
	auth, err := s.store.ActiveAuthorization(ctx, assetID, holder)
	if err == nil {
		return &HolderStatus{Authorization: auth}, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, s.translate(err, "failed to load authorization")
	}
	ar, err := s.store.InvitedRequest(ctx, assetID, holder)
	if err == nil && ar.IsPending(now) {
		return &HolderStatus{Request: ar}, nil
	}
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, s.translate(err, "failed to load authorization request")
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no authorization for holder")
}

// IsAuthorized reports whether the holder may receive the asset.
func (s *Service) IsAuthorized(ctx context.Context, assetID id.AssetID, holder string) (bool, error) {
	st, err := s.Lookup(ctx, assetID, holder)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Authorization != nil && st.Authorization.Status.IsAuthorized(), nil
}

func (s *Service) Get(ctx context.Context, authID id.AuthorizationID) (*models.Authorization, error) {
	auth, err := s.store.FindAuthorization(ctx, authID)
	if err != nil {
		return nil, s.translate(err, "failed to load authorization")
	}
	return auth, nil
}

func (s *Service) History(ctx context.Context, authID id.AuthorizationID) ([]*models.HistoryEntry, error) {
	if _, err := s.Get(ctx, authID); err != nil {
		return nil, err
	}
	entries, err := s.store.History(ctx, authID)
	if err != nil {
		return nil, s.translate(err, "failed to load authorization history")
	}
	return entries, nil
}

// WalletUpsert is the outcome of PUT /assets/{id}/authorizations/{holder}.
type WalletUpsert struct {
	Authorization *models.Authorization        `json:"authorization,omitempty"`
	Request       *models.AuthorizationRequest `json:"request,omitempty"`
	AuthURL       string                       `json:"authUrl,omitempty"`
	Transaction   *enforcement.TxIntent        `json:"transaction,omitempty"`
}

// UpsertForWallet creates an invitation for a holder without one, reissues
// the link of a pending invitation, or updates the limit of an authorized
// trustline. The returned transaction is for the holder's wallet to sign.
func (s *Service) UpsertForWallet(ctx context.Context, assetID id.AssetID, holder, limit string) (*WalletUpsert, error) {
	now := requestcontext.Now(ctx)
	st, err := s.Lookup(ctx, assetID, holder)
	switch {
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		inv, err := s.Create(ctx, CreateRequest{
			AssetID:        assetID,
			HolderAddress:  holder,
			RequestedLimit: limit,
			InitiatedBy:    models.InitiatedByHolder,
		})
		if err != nil {
			return nil, err
		}
		return s.withHolderSetup(ctx, &WalletUpsert{Request: inv.Request, AuthURL: inv.AuthURL}, limit)
	case err != nil:
		return nil, err
	case st.Request != nil:
		token, err := s.invites.Mint(st.Request.ID, assetID, st.Request.HolderAddress, now, st.Request.ExpiresAt)
		if err != nil {
			return nil, err
		}
		return s.withHolderSetup(ctx, &WalletUpsert{Request: st.Request, AuthURL: s.invites.URL(token)}, st.Request.RequestedLimit)
	case st.Authorization.Status.IsAuthorized():
		change, err := s.UpdateLimit(ctx, st.Authorization.ID, limit)
		if err != nil {
			return nil, err
		}
		return &WalletUpsert{Authorization: change.Authorization, Transaction: change.Transaction}, nil
	default:
		return nil, dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonInvalidTransition,
			"authorization is "+string(st.Authorization.Status))
	}
}

func (s *Service) withHolderSetup(ctx context.Context, out *WalletUpsert, limit string) (*WalletUpsert, error) {
	pos, err := s.gate.Position(ctx, out.Request.AssetID)
	if err != nil {
		return nil, err
	}
	ref := enforcement.TrustlineRef{
		Issuer:   pos.Asset.Asset.IssuerAddress,
		Holder:   out.Request.HolderAddress,
		Currency: pos.Asset.Asset.Code,
		Limit:    limit,
	}
	if t, ok := pos.Adapter.HolderSetupTx(ref); ok {
		out.Transaction = &t
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, a *models.Authorization, ev models.Event, from, to models.State, now time.Time) error {
	entry := &models.HistoryEntry{
		ID:              uuid.NewString(),
		AuthorizationID: a.ID,
		Event:           ev,
		From:            from,
		To:              to,
		Actor:           requestcontext.Actor(ctx),
		OccurredAt:      now,
	}
	if ev == models.EventUpdateLimit || ev == models.EventRegisterExternal || ev == models.EventHolderFulfill {
		entry.Limit = a.Limit
	}
	return s.store.AppendHistory(ctx, entry)
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, assetID id.AssetID, subject string, details map[string]string) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, audit.Event{
		AssetID:   assetID.String(),
		Subject:   subject,
		Action:    string(action),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   requestcontext.Actor(ctx),
		Timestamp: requestcontext.Now(ctx),
		Details:   details,
	})
}

func (s *Service) translate(err error, msg string) error {
	switch {
	case dErrors.Is(err):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "authorization not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "authorization transaction timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func trustline(a *models.Authorization) enforcement.TrustlineRef {
	return enforcement.TrustlineRef{
		Issuer:   a.IssuerAddress,
		Holder:   a.HolderAddress,
		Currency: a.Currency,
		Limit:    a.Limit,
	}
}

func duplicate() error {
	return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonDuplicateRequest,
		"an authorization or pending request already exists for this holder")
}

func expired() error {
	return dErrors.NewReason(dErrors.CodeExpired, dErrors.ReasonRequestExpired, "authorization invitation has expired")
}

func capabilityUnavailable(pos *enforcement.Position) error {
	return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonCapabilityUnavailable,
		"no ready freeze capability on "+string(pos.Adapter.Ledger))
}
