package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	assetmodels "policykernel/internal/asset/models"
	authmodels "policykernel/internal/authorization/models"
	"policykernel/internal/draft/models"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
	"policykernel/pkg/platform/audit"
	"policykernel/pkg/platform/sentinel"
	"policykernel/pkg/requestcontext"
)

const defaultTTL = 30 * time.Minute

type Store interface {
	Save(ctx context.Context, d *models.Draft) error
	Get(ctx context.Context, token string) (*models.Draft, error)
}

type Assets interface {
	Get(ctx context.Context, assetID id.AssetID) (*assetmodels.Record, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	assets         Assets
	ttl            time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

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

func New(store Store, assets Assets, opts ...Option) *Service {
	s := &Service{
		store:  store,
		assets: assets,
		ttl:    defaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateRequest struct {
	AssetID        id.AssetID
	HolderAddress  string
	Amount         string
	RequestedLimit string
}

// Create stores a draft under a fresh opaque token.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Draft, error) {
	now := requestcontext.Now(ctx)
	rec, err := s.assets.Get(ctx, req.AssetID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "asset not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load asset")
	}
	holder, err := authmodels.NormalizeAddress(rec.Asset.Ledger, req.HolderAddress)
	if err != nil {
		return nil, err
	}
	if req.RequestedLimit = strings.TrimSpace(req.RequestedLimit); req.RequestedLimit != "" {
		if err := authmodels.ValidateLimit(req.RequestedLimit); err != nil {
			return nil, err
		}
	}

	d := &models.Draft{
		Token:          uuid.NewString(),
		AssetID:        req.AssetID,
		HolderAddress:  holder,
		Amount:         strings.TrimSpace(req.Amount),
		RequestedLimit: req.RequestedLimit,
		CreatedBy:      requestcontext.Actor(ctx),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, d); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save draft")
	}
	if s.auditPublisher != nil {
		if err := s.auditPublisher.Emit(ctx, audit.Event{
			AssetID:   req.AssetID.String(),
			Subject:   holder,
			Action:    string(audit.EventDraftCreated),
			RequestID: requestcontext.RequestID(ctx),
			ActorID:   requestcontext.Actor(ctx),
			Timestamp: now,
			Details:   map[string]string{"expires_at": d.ExpiresAt.Format(time.RFC3339)},
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to audit draft creation",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
	return d, nil
}

// Get returns a live draft. Expired drafts are reported as such until the
// store forgets them.
func (s *Service) Get(ctx context.Context, token string) (*models.Draft, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "token is required")
	}
	d, err := s.store.Get(ctx, token)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "draft not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft")
	}
	if d.IsExpired(requestcontext.Now(ctx)) {
		return nil, dErrors.New(dErrors.CodeExpired, "draft expired")
	}
	return d, nil
}
