package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	assetmodels "policykernel/internal/asset/models"
	assetstore "policykernel/internal/asset/store"
	"policykernel/internal/authorization/invite"
	authorizationservice "policykernel/internal/authorization/service"
	authorizationstore "policykernel/internal/authorization/store"
	complianceservice "policykernel/internal/compliance/service"
	compliancestore "policykernel/internal/compliance/store"
	draftservice "policykernel/internal/draft/service"
	draftstore "policykernel/internal/draft/store"
	httpapi "policykernel/internal/http"
	"policykernel/internal/issuance/idempotency"
	issuanceservice "policykernel/internal/issuance/service"
	issuancestore "policykernel/internal/issuance/store"
	"policykernel/internal/platform/config"
	"policykernel/internal/platform/postgres"
	"policykernel/internal/platform/redis"
	id "policykernel/pkg/domain"
	audit "policykernel/pkg/platform/audit"
	auditmemory "policykernel/pkg/platform/audit/store/memory"
	auditpostgres "policykernel/pkg/platform/audit/store/postgres"
	txcontext "policykernel/pkg/platform/tx"
)

type assetStore interface {
	Get(ctx context.Context, assetID id.AssetID) (*assetmodels.Record, error)
	Put(ctx context.Context, r *assetmodels.Record) error
}

// backends holds the storage chosen by configuration. Postgres and Redis are
// independent: either may be absent, in which case in-memory stores are used.
type backends struct {
	db     *sql.DB
	redis  *redis.Client
	outbox *auditpostgres.Store

	tx             txcontext.Runner
	assets         assetStore
	compliance     complianceservice.Store
	authorizations authorizationservice.Store
	issuances      issuanceservice.Store
	audit          audit.Store
	idempotency    idempotency.Store
	drafts         draftservice.Store
	inviteMarker   authorizationservice.InviteMarker

	checks map[string]httpapi.Check
}

func openBackends(ctx context.Context, cfg config.Server, logger *slog.Logger) (*backends, error) {
	b := &backends{checks: map[string]httpapi.Check{}}

	if cfg.Database.URL != "" {
		db, err := postgres.OpenFromConfig(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		b.db = db
		b.outbox = auditpostgres.New(db)
		b.tx = txcontext.NewSQLRunner(db)
		b.assets = assetstore.NewPostgres(db)
		b.compliance = compliancestore.NewPostgres(db)
		b.authorizations = authorizationstore.NewPostgres(db)
		b.issuances = issuancestore.NewPostgres(db)
		b.audit = b.outbox
		b.checks["postgres"] = db.PingContext
		logger.Info("using postgres stores")
	} else {
		b.tx = txcontext.NopRunner{}
		b.assets = assetstore.NewInMemoryStore()
		b.compliance = compliancestore.NewInMemoryStore()
		b.authorizations = authorizationstore.NewInMemoryStore()
		b.issuances = issuancestore.NewInMemoryStore()
		b.audit = auditmemory.NewInMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		b.Close()
		return nil, err
	}
	if client != nil {
		b.redis = client
		b.idempotency = idempotency.NewRedisStore(client.Client)
		b.drafts = draftstore.NewRedisStore(client.Client)
		b.inviteMarker = invite.NewRedisMarker(client.Client)
		b.checks["redis"] = client.Health
		logger.Info("using redis for idempotency, drafts and invitation markers")
	} else {
		b.idempotency = idempotency.NewInMemoryStore()
		b.drafts = draftstore.NewInMemoryStore()
		b.inviteMarker = invite.NewInMemoryMarker()
		logger.Warn("REDIS_URL not set, idempotency and drafts are local to this process")
	}

	if !cfg.IsProduction() {
		if err := assetstore.SeedDemo(ctx, b.assets, time.Now()); err != nil {
			b.Close()
			return nil, fmt.Errorf("seed demo assets: %w", err)
		}
		logger.Info("seeded demo assets",
			"art_asset_id", assetstore.DemoARTAssetID,
			"other_asset_id", assetstore.DemoOtherAssetID,
		)
	}
	return b, nil
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}
